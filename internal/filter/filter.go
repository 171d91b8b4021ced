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

// Package filter builds the frequency-domain masks used to select one
// channel out of a wideband capture before demodulation.
package filter

import (
	"fmt"

	"hz.tools/rf"
)

// Passband fills buf with a frequency-domain mask passing center±cutoff
// at sampleRate, zero-first bin ordering (DC at index 0, negative
// frequencies in the upper half), for use with an FFT convolution reader.
func Passband(buf []complex64, sampleRate uint, center rf.Hz, cutoff rf.Hz) error {
	if len(buf) == 0 {
		return fmt.Errorf("filter: mask buffer is empty")
	}
	if cutoff <= 0 {
		return fmt.Errorf("filter: cutoff must be positive, got %s", cutoff)
	}
	if float64(cutoff) >= float64(sampleRate)/2 {
		return fmt.Errorf("filter: cutoff %s is at or above nyquist for %d samples per second",
			cutoff, sampleRate)
	}

	n := len(buf)
	binWidth := float64(sampleRate) / float64(n)

	for i := range buf {
		bin := i
		if bin >= n/2 {
			bin -= n
		}
		freq := rf.Hz(float64(bin) * binWidth)

		delta := freq - center
		if delta < 0 {
			delta = -delta
		}
		if delta <= cutoff {
			buf[i] = 1
		} else {
			buf[i] = 0
		}
	}
	return nil
}

// vim: foldmethod=marker
