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
	"math"

	"hz.tools/rf"
)

// Lowpass is a single-pole low-pass filter smoothing demodulated baseband
// samples before they're taken down to the audio rate. It knocks out
// detection noise above the audio band; the cutoff is tunable, defaulting
// to voice/broadcast bandwidth (see DefaultCutoff).
//
// The previous output is carried across blocks. Reset it only at stream
// (re)start or after an input discontinuity — resetting mid-stream clicks.
type Lowpass struct {
	alpha float32
	y     float32
}

// NewLowpass returns a single-pole low-pass with the -3dB point at cutoff,
// operating on samples at sampleRate.
func NewLowpass(cutoff rf.Hz, sampleRate uint) (*Lowpass, error) {
	if cutoff <= 0 {
		return nil, fmt.Errorf("rx: lowpass cutoff must be positive, got %s", cutoff)
	}
	if float64(cutoff) >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("rx: lowpass cutoff %s is at or above nyquist for %d samples per second",
			cutoff, sampleRate)
	}
	alpha := 1 - math.Exp(-2*math.Pi*float64(cutoff)/float64(sampleRate))
	return &Lowpass{alpha: float32(alpha)}, nil
}

// Filter smooths buf in place.
func (l *Lowpass) Filter(buf []float32) {
	y := l.y
	for i := range buf {
		y += l.alpha * (buf[i] - y)
		buf[i] = y
	}
	l.y = y
}

// Reset discards the filter state.
func (l *Lowpass) Reset() {
	l.y = 0
}

// vim: foldmethod=marker
