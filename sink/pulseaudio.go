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

package sink

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"hz.tools/pulseaudio"
	"hz.tools/rx/ring"
)

// PulseSink plays frames through a pulseaudio stream. The writer's blocking
// Write paces a pull goroutine at the device cadence: each round pulls one
// chunk from the ring (silence-padded on underflow) and pushes it to the
// server, so a starved pipeline plays quiet instead of stalling.
type PulseSink struct {
	writer interface {
		Write([]float32) error
	}
	chunk int

	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
	err     atomic.Value // error
}

// NewPulseSink connects to pulseaudio for 2-channel playback at rate,
// pulling chunk frames per round. sinkName selects a specific pulse sink,
// empty for the default.
func NewPulseSink(rate uint, chunk int, sinkName string) (*PulseSink, error) {
	if chunk <= 0 {
		return nil, fmt.Errorf("sink: chunk must be positive, got %d", chunk)
	}
	writer, err := pulseaudio.NewWriter(pulseaudio.Config{
		Format:     pulseaudio.SampleFormatFloat32NE,
		Rate:       rate,
		AppName:    "rx",
		StreamName: "rx",
		Channels:   2,
		SinkName:   sinkName,
	})
	if err != nil {
		return nil, fmt.Errorf("sink: pulseaudio open failed: %v: %w", err, ErrUnavailable)
	}
	return &PulseSink{
		writer: writer,
		chunk:  chunk,
		done:   make(chan struct{}),
	}, nil
}

// Start implements Sink.
func (s *PulseSink) Start(buf *ring.Buffer) error {
	if s.started.Swap(true) {
		return fmt.Errorf("sink: already started")
	}
	s.wg.Add(1)
	go s.play(buf)
	return nil
}

func (s *PulseSink) play(buf *ring.Buffer) {
	defer s.wg.Done()

	frames := make([]ring.Frame, s.chunk)
	interleaved := make([]float32, 2*s.chunk)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		buf.Read(frames)
		for i, f := range frames {
			interleaved[2*i] = float32(f.L) / 32768
			interleaved[2*i+1] = float32(f.R) / 32768
		}
		if err := s.writer.Write(interleaved); err != nil {
			s.err.Store(fmt.Errorf("sink: write failed: %v: %w", err, ErrUnavailable))
			return
		}
	}
}

// Err implements Sink.
func (s *PulseSink) Err() error {
	if err, ok := s.err.Load().(error); ok {
		return err
	}
	return nil
}

// Close implements Sink.
func (s *PulseSink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	s.wg.Wait()
	if closer, ok := s.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// vim: foldmethod=marker
