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
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"hz.tools/rx/ring"
)

// PortAudioSink plays frames through a portaudio output stream. The device
// invokes the callback at its own fixed cadence; the callback pulls exactly
// the frames the device asked for straight out of the ring, which pads with
// silence when the pipeline is behind. Nothing in the callback allocates
// (beyond a one-time scratch growth) or waits.
type PortAudioSink struct {
	stream *portaudio.Stream
	buf    atomic.Pointer[ring.Buffer]

	scratch []ring.Frame

	started atomic.Bool
	closed  atomic.Bool
}

// NewPortAudioSink opens output device deviceIndex (negative for the system
// default) for 2-channel 16-bit playback at rate, with framesPerBuffer
// frames per device callback.
func NewPortAudioSink(deviceIndex int, rate uint, framesPerBuffer int) (*PortAudioSink, error) {
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("sink: frames per buffer must be positive, got %d", framesPerBuffer)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("sink: portaudio init failed: %v: %w", err, ErrUnavailable)
	}

	dev, err := outputDevice(deviceIndex)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	s := &PortAudioSink{
		scratch: make([]ring.Frame, framesPerBuffer),
	}

	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = 2
	params.SampleRate = float64(rate)
	params.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("sink: open of %q failed: %v: %w", dev.Name, err, ErrUnavailable)
	}
	s.stream = stream
	return s, nil
}

func outputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("sink: no default output device: %v: %w", err, ErrUnavailable)
		}
		return dev, nil
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("sink: device enumeration failed: %v: %w", err, ErrUnavailable)
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("sink: no output device at index %d: %w", index, ErrUnavailable)
	}
	dev := devs[index]
	if dev.MaxOutputChannels < 2 {
		return nil, fmt.Errorf("sink: device %q has no stereo output: %w", dev.Name, ErrUnavailable)
	}
	return dev, nil
}

// callback runs on portaudio's playback thread.
func (s *PortAudioSink) callback(out []int16) {
	buf := s.buf.Load()
	if buf == nil {
		for i := range out {
			out[i] = 0
		}
		return
	}

	n := len(out) / 2
	if n > len(s.scratch) {
		s.scratch = make([]ring.Frame, n)
	}
	frames := s.scratch[:n]
	buf.Read(frames)
	for i, f := range frames {
		out[2*i] = f.L
		out[2*i+1] = f.R
	}
}

// Start implements Sink.
func (s *PortAudioSink) Start(buf *ring.Buffer) error {
	if s.started.Swap(true) {
		return fmt.Errorf("sink: already started")
	}
	s.buf.Store(buf)
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("sink: stream start failed: %v: %w", err, ErrUnavailable)
	}
	return nil
}

// Err implements Sink. PortAudio surfaces playback trouble as underflow in
// the device buffer, not as an error on the callback path.
func (s *PortAudioSink) Err() error {
	return nil
}

// Close implements Sink.
func (s *PortAudioSink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var err error
	if s.started.Load() {
		err = s.stream.Stop()
	}
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	portaudio.Terminate()
	return err
}

// vim: foldmethod=marker
