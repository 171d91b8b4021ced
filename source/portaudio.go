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
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"hz.tools/sdr"
)

// warmupBlocks is how many initial buffers to toss; the first callbacks
// after a stream opens carry stale device state.
const warmupBlocks = 1

// PortAudioSource captures IQ from a sound card sampling a receiver's IF
// output: the card's left channel is I, right is Q, 16-bit at the configured
// rate. Blocks are assembled in the portaudio callback and parked on a
// bounded queue; the callback itself never waits on the pipeline.
type PortAudioSource struct {
	stream     *portaudio.Stream
	sampleRate uint

	blocks chan IQBlock
	done   chan struct{}
	closed atomic.Bool
	seq    uint64
	warmup int

	timeout         time.Duration
	discontinuities atomic.Uint64
}

// NewPortAudioSource opens input device deviceIndex (negative for the system
// default) capturing 2-channel 16-bit at sampleRate, delivering blocks of
// blockSize samples and queueing up to depth of them. A zero timeout means
// DefaultTimeout.
func NewPortAudioSource(deviceIndex int, sampleRate uint, blockSize, depth int, timeout time.Duration) (*PortAudioSource, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("source: block size must be positive, got %d", blockSize)
	}
	if depth <= 0 {
		return nil, fmt.Errorf("source: queue depth must be positive, got %d", depth)
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("source: portaudio init failed: %v: %w", err, ErrUnavailable)
	}

	dev, err := inputDevice(deviceIndex)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	s := &PortAudioSource{
		sampleRate: sampleRate,
		blocks:     make(chan IQBlock, depth),
		done:       make(chan struct{}),
		warmup:     warmupBlocks,
		timeout:    timeout,
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = 2
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = blockSize

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("source: open of %q failed: %v: %w", dev.Name, err, ErrUnavailable)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("source: start of %q failed: %v: %w", dev.Name, err, ErrUnavailable)
	}

	s.stream = stream
	return s, nil
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("source: no default input device: %v: %w", err, ErrUnavailable)
		}
		return dev, nil
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("source: device enumeration failed: %v: %w", err, ErrUnavailable)
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("source: no input device at index %d: %w", index, ErrUnavailable)
	}
	dev := devs[index]
	if dev.MaxInputChannels < 2 {
		return nil, fmt.Errorf("source: device %q has no stereo input: %w", dev.Name, ErrUnavailable)
	}
	return dev, nil
}

// callback runs on portaudio's capture thread. It converts the interleaved
// int16 stereo buffer to complex samples and hands the block off without
// blocking; if the queue is full the block is dropped and counted.
func (s *PortAudioSource) callback(in []int16) {
	if s.closed.Load() {
		return
	}
	if s.warmup > 0 {
		s.warmup--
		return
	}

	samples := make(sdr.SamplesC64, len(in)/2)
	for i := range samples {
		samples[i] = complex(
			float32(in[2*i])/32768,
			float32(in[2*i+1])/32768,
		)
	}

	s.seq++
	blk := IQBlock{
		Seq:        s.seq,
		SampleRate: s.sampleRate,
		Samples:    samples,
	}
	select {
	case s.blocks <- blk:
	default:
		s.discontinuities.Add(1)
	}
}

// NextBlock implements Source.
func (s *PortAudioSource) NextBlock(ctx context.Context) (IQBlock, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case blk := <-s.blocks:
		return blk, nil
	case <-s.done:
		return IQBlock{}, fmt.Errorf("source: capture stopped: %w", ErrUnavailable)
	case <-ctx.Done():
		return IQBlock{}, ctx.Err()
	case <-timer.C:
		return IQBlock{}, fmt.Errorf("source: no samples in %s: %w", s.timeout, ErrUnavailable)
	}
}

// SampleRate implements Source.
func (s *PortAudioSource) SampleRate() uint {
	return s.sampleRate
}

// Discontinuities implements Source.
func (s *PortAudioSource) Discontinuities() uint64 {
	return s.discontinuities.Load()
}

// Close stops the capture stream and releases the device.
func (s *PortAudioSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	err := s.stream.Stop()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	portaudio.Terminate()
	return err
}

// vim: foldmethod=marker
