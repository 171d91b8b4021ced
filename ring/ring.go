// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2024
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package ring provides the playback buffer sitting between the processing
// path and the audio device callback.
//
// The Buffer is written by exactly one producer (the pipeline's processing
// loop) and read by exactly one consumer (the audio sink, on the device's
// cadence). Neither side ever blocks on the other: a full buffer drops its
// oldest frames to make room, an empty buffer pads reads with silence. Both
// conditions are counted, not raised.
package ring

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCapacity is returned by New for a non-positive capacity.
var ErrCapacity = errors.New("ring: capacity must be positive")

// Frame is one stereo audio sample pair, signed 16-bit per channel. The
// pipeline emits mono-derived audio, so both channels normally carry the
// same value.
type Frame struct {
	L int16
	R int16
}

// Buffer is a fixed-capacity circular queue of audio Frames with independent
// read and write cursors.
//
// The cursors are absolute counts; the write cursor can never lap the read
// cursor by more than the capacity, enforced by the oldest-drop overflow
// policy in Write.
type Buffer struct {
	mu     sync.Mutex
	frames []Frame
	r, w   uint64

	overflows  atomic.Uint64
	underflows atomic.Uint64
}

// New returns a Buffer holding at most capacity frames. Capacity is fixed
// for the lifetime of the buffer.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, ErrCapacity
	}
	return &Buffer{frames: make([]Frame, capacity)}, nil
}

// Write appends frames to the buffer. If the buffer lacks room, the oldest
// unread frames are discarded to make it (latency is bounded, completeness
// is not), and the overflow counter advances by the number of frames lost.
//
// Write returns the number of frames stored.
func (b *Buffer) Write(in []Frame) int {
	capacity := len(b.frames)
	var dropped uint64

	if len(in) > capacity {
		// The tail alone fills the buffer; everything before it
		// is already stale.
		dropped += uint64(len(in) - capacity)
		in = in[len(in)-capacity:]
	}

	b.mu.Lock()
	if free := capacity - int(b.w-b.r); len(in) > free {
		adv := uint64(len(in) - free)
		b.r += adv
		dropped += adv
	}
	idx := int(b.w % uint64(capacity))
	n := copy(b.frames[idx:], in)
	copy(b.frames, in[n:])
	b.w += uint64(len(in))
	b.mu.Unlock()

	if dropped > 0 {
		b.overflows.Add(dropped)
	}
	return len(in)
}

// Read fills out with buffered frames. If fewer than len(out) frames are
// available it zero-fills the remainder (silence) and advances the underflow
// counter; it never waits for the producer.
//
// Read returns the number of real (non-padding) frames copied.
func (b *Buffer) Read(out []Frame) int {
	capacity := len(b.frames)

	b.mu.Lock()
	n := int(b.w - b.r)
	if n > len(out) {
		n = len(out)
	}
	idx := int(b.r % uint64(capacity))
	m := copy(out[:n], b.frames[idx:])
	copy(out[m:n], b.frames)
	b.r += uint64(n)
	b.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = Frame{}
	}
	if n < len(out) {
		b.underflows.Add(1)
	}
	return n
}

// Len returns the number of frames currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.w - b.r)
}

// Cap returns the fixed capacity in frames.
func (b *Buffer) Cap() int {
	return len(b.frames)
}

// Overflows returns the total number of frames discarded by the oldest-drop
// policy.
func (b *Buffer) Overflows() uint64 {
	return b.overflows.Load()
}

// Underflows returns the number of reads that needed silence padding.
func (b *Buffer) Underflows() uint64 {
	return b.underflows.Load()
}

// Reset discards all buffered frames and zeroes the counters.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.r = b.w
	b.mu.Unlock()
	b.overflows.Store(0)
	b.underflows.Store(0)
}

// vim: foldmethod=marker
