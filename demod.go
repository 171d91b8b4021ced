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
	"math/cmplx"

	"hz.tools/rf"
	"hz.tools/sdr"
)

// Mode selects the demodulation scheme for a pipeline run.
type Mode string

var (
	// ModeAM demodulates the amplitude envelope of the signal.
	ModeAM Mode = "am"

	// ModeFM demodulates the instantaneous frequency of the signal.
	ModeFM Mode = "fm"
)

// Demodulator will turn a block of IQ samples into baseband audio samples,
// one scalar per input sample, still at the input sample rate.
//
// A Demodulator may carry state between blocks of a continuous stream (the
// FM detector's phase reference); Reset discards that state and must be
// called when the stream is interrupted — a pipeline (re)start or a detected
// gap in the input — so stale state can't smear an artifact into the audio.
type Demodulator interface {
	// Demodulate fills out with one baseband sample per input sample.
	// out must be at least len(iq) long.
	Demodulate(iq sdr.SamplesC64, out []float32)

	// Reset discards any cross-block continuity state.
	Reset()
}

// NewDemodulator returns the Demodulator for the given Mode. The sample rate
// and expected peak deviation size the FM detector's gain; AM ignores both.
func NewDemodulator(mode Mode, sampleRate uint, deviation rf.Hz) (Demodulator, error) {
	switch mode {
	case ModeAM:
		return &amDemodulator{}, nil
	case ModeFM:
		if deviation <= 0 {
			return nil, fmt.Errorf("rx: fm deviation must be positive, got %s", deviation)
		}
		return &fmDemodulator{
			gain: float32(float64(sampleRate) / (2 * math.Pi * float64(deviation))),
		}, nil
	default:
		return nil, fmt.Errorf("rx: unknown demodulation mode %q", mode)
	}
}

// amDemodulator recovers the envelope, sample by sample. It has no state.
type amDemodulator struct{}

func (d *amDemodulator) Demodulate(iq sdr.SamplesC64, out []float32) {
	for i := range iq {
		out[i] = float32(cmplx.Abs(complex128(iq[i])))
	}
}

func (d *amDemodulator) Reset() {}

// fmDemodulator is a quadrature discriminator: each output sample is the
// phase advance from the previous IQ sample, wrapped into (-π, π] and scaled
// so a swing of `deviation` lands at ±1.0.
//
// The previous sample's phasor is carried across blocks so block boundaries
// are inaudible. The very first sample of a run has no phase reference and
// is emitted as zero.
type fmDemodulator struct {
	gain   float32
	last   complex128
	primed bool
}

func (d *fmDemodulator) Demodulate(iq sdr.SamplesC64, out []float32) {
	for i := range iq {
		phasor := complex128(iq[i])
		if phasor == 0 {
			// Zero amplitude has no phase; atan2(0, 0) is undefined,
			// so emit silence and keep the old reference.
			out[i] = 0
			continue
		}
		if !d.primed {
			out[i] = 0
			d.last = phasor
			d.primed = true
			continue
		}
		// Phase(p · conj(last)) is the phase difference already
		// wrapped into (-π, π], so a carrier crossing the ±π boundary
		// can't spike a 2π discontinuity into the audio.
		out[i] = float32(cmplx.Phase(phasor*cmplx.Conj(d.last))) * d.gain
		d.last = phasor
	}
}

func (d *fmDemodulator) Reset() {
	d.last = 0
	d.primed = false
}

// vim: foldmethod=marker
