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

package source

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"hz.tools/sdr"
)

// ReaderSource adapts any sdr.Reader — an RTL dongle opened through
// hz.tools/cli, an rfcap capture on stdin, or a conversion/convolution
// chain stacked on either — into a Source.
//
// A capture goroutine reads fixed-size blocks off the device and parks them
// on a bounded queue. If the pipeline falls behind and the queue fills, the
// fresh block is dropped and counted; its Seq number is still consumed so
// the gap shows downstream.
type ReaderSource struct {
	reader     sdr.Reader
	sampleRate uint
	timeout    time.Duration

	blocks  chan IQBlock
	closed  atomic.Bool
	readErr atomic.Value // error

	discontinuities atomic.Uint64
}

// NewReaderSource starts capturing blockSize-sample blocks from reader,
// queueing up to depth of them ahead of the pipeline. A zero timeout means
// DefaultTimeout.
//
// The reader must produce complex64 samples; convert with
// stream.ConvertReader first if it doesn't.
func NewReaderSource(reader sdr.Reader, blockSize, depth int, timeout time.Duration) (*ReaderSource, error) {
	if reader.SampleFormat() != sdr.SampleFormatC64 {
		return nil, sdr.ErrSampleFormatMismatch
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("source: block size must be positive, got %d", blockSize)
	}
	if depth <= 0 {
		return nil, fmt.Errorf("source: queue depth must be positive, got %d", depth)
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	s := &ReaderSource{
		reader:     reader,
		sampleRate: reader.SampleRate(),
		timeout:    timeout,
		blocks:     make(chan IQBlock, depth),
	}
	go s.capture(blockSize)
	return s, nil
}

func (s *ReaderSource) capture(blockSize int) {
	defer close(s.blocks)

	var seq uint64
	for !s.closed.Load() {
		buf := make(sdr.SamplesC64, blockSize)
		n, err := sdr.ReadFull(s.reader, buf)
		if n > 0 {
			seq++
			blk := IQBlock{
				Seq:        seq,
				SampleRate: s.sampleRate,
				Samples:    buf[:n],
			}
			select {
			case s.blocks <- blk:
			default:
				s.discontinuities.Add(1)
			}
		}
		if err != nil {
			s.readErr.Store(err)
			return
		}
	}
}

// NextBlock returns the next captured block, or fails once the reader does.
func (s *ReaderSource) NextBlock(ctx context.Context) (IQBlock, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case blk, ok := <-s.blocks:
		if !ok {
			return IQBlock{}, s.unavailable()
		}
		return blk, nil
	case <-ctx.Done():
		return IQBlock{}, ctx.Err()
	case <-timer.C:
		return IQBlock{}, fmt.Errorf("source: no samples in %s: %w", s.timeout, ErrUnavailable)
	}
}

func (s *ReaderSource) unavailable() error {
	if err, ok := s.readErr.Load().(error); ok && err != io.EOF {
		return fmt.Errorf("source: read failed: %v: %w", err, ErrUnavailable)
	}
	return fmt.Errorf("source: stream ended: %w", ErrUnavailable)
}

// SampleRate implements Source.
func (s *ReaderSource) SampleRate() uint {
	return s.sampleRate
}

// Discontinuities implements Source.
func (s *ReaderSource) Discontinuities() uint64 {
	return s.discontinuities.Load()
}

// Close stops the capture goroutine, and closes the underlying reader when
// it owns a Close (which also unblocks a read stuck on a dead device).
func (s *ReaderSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if closer, ok := s.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// vim: foldmethod=marker
