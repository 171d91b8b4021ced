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

package rx

import (
	"fmt"

	"hz.tools/rx/ring"
)

// dcAlpha tracks the running mean slowly enough that audio-band content
// passes untouched.
const dcAlpha = 1.0 / 4096

// Resampler converts filtered baseband samples at the input rate into audio
// frames at the audio rate, subtracting a slowly-tracked DC offset, scaling
// into the 16-bit range and hard-limiting rather than letting the conversion
// wrap. Each output sample is duplicated across both channels.
//
// Rate conversion is a fractional stepper: when the input rate is above the
// audio rate samples are dropped (decimation), below it they're repeated
// (zero-order hold). The step phase and DC estimate persist across blocks.
type Resampler struct {
	step float64
	gain float32

	pos float64
	dc  float32
}

// NewResampler converts inputRate baseband to audioRate frames. gain maps
// a unit-amplitude baseband signal to gain·32767 at the output.
func NewResampler(inputRate, audioRate uint, gain float64) (*Resampler, error) {
	if inputRate == 0 || audioRate == 0 {
		return nil, fmt.Errorf("rx: resampler rates must be positive, got %d -> %d",
			inputRate, audioRate)
	}
	if gain <= 0 {
		return nil, fmt.Errorf("rx: resampler gain must be positive, got %f", gain)
	}
	return &Resampler{
		step: float64(audioRate) / float64(inputRate),
		gain: float32(gain),
	}, nil
}

// Process consumes baseband samples and appends the resulting audio frames
// to dst, returning the extended slice.
func (r *Resampler) Process(in []float32, dst []ring.Frame) []ring.Frame {
	for _, x := range in {
		r.dc += dcAlpha * (x - r.dc)

		r.pos += r.step
		if r.pos < 1 {
			continue
		}

		v := (x - r.dc) * r.gain * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32767 {
			v = -32767
		}
		s := int16(v)

		for r.pos >= 1 {
			dst = append(dst, ring.Frame{L: s, R: s})
			r.pos--
		}
	}
	return dst
}

// Reset discards the step phase and DC estimate.
func (r *Resampler) Reset() {
	r.pos = 0
	r.dc = 0
}

// vim: foldmethod=marker
