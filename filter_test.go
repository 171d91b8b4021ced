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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hz.tools/rf"
)

func TestNewLowpass(t *testing.T) {
	_, err := NewLowpass(3*rf.KHz, testRate)
	assert.NoError(t, err)

	_, err = NewLowpass(0, testRate)
	assert.Error(t, err)

	_, err = NewLowpass(24*rf.KHz, testRate)
	assert.Error(t, err, "cutoff at nyquist")
}

// DC passes through once the filter settles.
func TestLowpassSettlesToDC(t *testing.T) {
	lp, err := NewLowpass(3*rf.KHz, testRate)
	require.NoError(t, err)

	buf := make([]float32, 2000)
	for i := range buf {
		buf[i] = 0.8
	}
	lp.Filter(buf)

	assert.InDelta(t, 0.8, buf[len(buf)-1], 1e-3)
	// Causal: the first output can't have settled yet.
	assert.Less(t, buf[0], float32(0.8))
}

// A tone well above the cutoff is strongly attenuated; one well below
// passes nearly intact.
func TestLowpassAttenuation(t *testing.T) {
	peakAfter := func(toneHz float64) float64 {
		lp, err := NewLowpass(3*rf.KHz, testRate)
		require.NoError(t, err)

		buf := make([]float32, 9600)
		for i := range buf {
			buf[i] = float32(math.Sin(2 * math.Pi * toneHz * float64(i) / float64(testRate)))
		}
		lp.Filter(buf)

		var max float64
		for _, v := range buf[len(buf)/2:] {
			if a := math.Abs(float64(v)); a > max {
				max = a
			}
		}
		return max
	}

	assert.Greater(t, peakAfter(300), 0.95)
	assert.Less(t, peakAfter(20000), 0.25)
}

// State carries across blocks: block-by-block filtering equals filtering
// the stream whole.
func TestLowpassBlockContinuity(t *testing.T) {
	signal := make([]float32, 1000)
	for i := range signal {
		signal[i] = float32(math.Sin(0.05 * float64(i)))
	}

	whole, err := NewLowpass(3*rf.KHz, testRate)
	require.NoError(t, err)
	wholeBuf := append([]float32(nil), signal...)
	whole.Filter(wholeBuf)

	split, err := NewLowpass(3*rf.KHz, testRate)
	require.NoError(t, err)
	splitBuf := append([]float32(nil), signal...)
	split.Filter(splitBuf[:333])
	split.Filter(splitBuf[333:900])
	split.Filter(splitBuf[900:])

	for i := range wholeBuf {
		require.InDelta(t, wholeBuf[i], splitBuf[i], 1e-6, "sample %d", i)
	}
}

func TestLowpassReset(t *testing.T) {
	lp, err := NewLowpass(3*rf.KHz, testRate)
	require.NoError(t, err)

	buf := []float32{1, 1, 1, 1}
	lp.Filter(buf)
	require.NotZero(t, buf[3])

	lp.Reset()
	fresh := []float32{0, 0, 0, 0}
	lp.Filter(fresh)
	for _, v := range fresh {
		assert.Zero(t, v)
	}
}

// vim: foldmethod=marker
