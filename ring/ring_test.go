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

package ring_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"hz.tools/rx/ring"
)

func frames(values ...int16) []ring.Frame {
	out := make([]ring.Frame, len(values))
	for i, v := range values {
		out[i] = ring.Frame{L: v, R: v}
	}
	return out
}

func TestNewBadCapacity(t *testing.T) {
	_, err := ring.New(0)
	assert.ErrorIs(t, err, ring.ErrCapacity)

	_, err = ring.New(-3)
	assert.ErrorIs(t, err, ring.ErrCapacity)
}

func TestWriteRead(t *testing.T) {
	buf, err := ring.New(8)
	require.NoError(t, err)

	assert.Equal(t, 3, buf.Write(frames(1, 2, 3)))
	assert.Equal(t, 3, buf.Len())

	out := make([]ring.Frame, 3)
	assert.Equal(t, 3, buf.Read(out))
	assert.Equal(t, frames(1, 2, 3), out)
	assert.Equal(t, 0, buf.Len())
	assert.Zero(t, buf.Overflows())
	assert.Zero(t, buf.Underflows())
}

func TestWrap(t *testing.T) {
	buf, err := ring.New(4)
	require.NoError(t, err)

	out := make([]ring.Frame, 3)
	for i := int16(0); i < 10; i++ {
		buf.Write(frames(3*i, 3*i+1, 3*i+2))
		require.Equal(t, 3, buf.Read(out))
		require.Equal(t, frames(3*i, 3*i+1, 3*i+2), out)
	}
	assert.Zero(t, buf.Overflows())
}

func TestOverflowDropsOldest(t *testing.T) {
	buf, err := ring.New(4)
	require.NoError(t, err)

	buf.Write(frames(1, 2, 3, 4))
	buf.Write(frames(5, 6))

	assert.Equal(t, 4, buf.Len())
	assert.Equal(t, uint64(2), buf.Overflows())

	out := make([]ring.Frame, 4)
	buf.Read(out)
	assert.Equal(t, frames(3, 4, 5, 6), out)
}

func TestOverflowHugeWrite(t *testing.T) {
	buf, err := ring.New(4)
	require.NoError(t, err)

	in := make([]ring.Frame, 10)
	for i := range in {
		in[i] = ring.Frame{L: int16(i), R: int16(i)}
	}
	assert.Equal(t, 4, buf.Write(in))
	assert.Equal(t, uint64(6), buf.Overflows())
	assert.Equal(t, 4, buf.Len())

	out := make([]ring.Frame, 4)
	buf.Read(out)
	assert.Equal(t, frames(6, 7, 8, 9), out)
}

func TestUnderflowPadsSilence(t *testing.T) {
	buf, err := ring.New(8)
	require.NoError(t, err)

	buf.Write(frames(9, 9))

	out := make([]ring.Frame, 5)
	for i := range out {
		out[i] = ring.Frame{L: -1, R: -1}
	}
	assert.Equal(t, 2, buf.Read(out))
	assert.Equal(t, frames(9, 9, 0, 0, 0), out)
	assert.Equal(t, uint64(1), buf.Underflows())
}

// The consumer outrunning the producer yields silence and counters, never
// a stall or garbage.
func TestConsumerOutrunsProducer(t *testing.T) {
	buf, err := ring.New(64)
	require.NoError(t, err)

	out := make([]ring.Frame, 16)
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if i%10 == 0 {
			buf.Write(frames(5))
		}
		buf.Read(out)
		for _, f := range out {
			if f.L != 0 && f.L != 5 {
				t.Fatalf("read garbage frame %+v", f)
			}
		}
	}
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Greater(t, buf.Underflows(), uint64(0))
}

// The producer outrunning the consumer keeps memory bounded at capacity and
// counts every dropped frame.
func TestProducerOutrunsConsumer(t *testing.T) {
	const capacity = 128
	buf, err := ring.New(capacity)
	require.NoError(t, err)

	in := make([]ring.Frame, 48)
	out := make([]ring.Frame, 16)
	for i := 0; i < 1000; i++ {
		buf.Write(in)
		if i%10 == 0 {
			buf.Read(out)
		}
		require.LessOrEqual(t, buf.Len(), capacity)
	}
	assert.Greater(t, buf.Overflows(), uint64(0))
	assert.Equal(t, capacity, buf.Cap())
}

func TestReset(t *testing.T) {
	buf, err := ring.New(4)
	require.NoError(t, err)

	buf.Write(frames(1, 2, 3, 4, 5))
	buf.Read(make([]ring.Frame, 8))
	require.NotZero(t, buf.Overflows())
	require.NotZero(t, buf.Underflows())

	buf.Reset()
	assert.Zero(t, buf.Len())
	assert.Zero(t, buf.Overflows())
	assert.Zero(t, buf.Underflows())
}

// One writer, one reader, no locks held across the test's observations:
// every frame that comes out must be a frame that went in, in order.
func TestConcurrentSPSC(t *testing.T) {
	buf, err := ring.New(256)
	require.NoError(t, err)

	const total = 20000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var v int16 = 1
		chunk := make([]ring.Frame, 32)
		for v <= total {
			for i := range chunk {
				chunk[i] = ring.Frame{L: v, R: v}
				v++
			}
			buf.Write(chunk)
		}
	}()

	// Values only ever increase (modulo drops); a frame going backwards
	// would mean a torn or reordered read.
	var last int16
	out := make([]ring.Frame, 32)
	deadline := time.Now().Add(10 * time.Second)
	for last < total && time.Now().Before(deadline) {
		n := buf.Read(out)
		for _, f := range out[:n] {
			require.Equal(t, f.L, f.R)
			if f.L == 0 {
				continue
			}
			require.GreaterOrEqual(t, f.L, last)
			last = f.L
		}
	}
	wg.Wait()
	require.GreaterOrEqual(t, int(last)+int(buf.Overflows()), total)
}

// rapid drives the buffer against a plain slice model: same writes, same
// reads, same drops, same counters.
func TestRapidModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 32).Draw(t, "capacity")
		buf, err := ring.New(capacity)
		require.NoError(t, err)

		var model []ring.Frame
		var overflows uint64

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "write") {
				n := rapid.IntRange(0, 48).Draw(t, "n")
				in := make([]ring.Frame, n)
				for j := range in {
					v := int16(rapid.IntRange(-100, 100).Draw(t, "v"))
					in[j] = ring.Frame{L: v, R: v}
				}
				buf.Write(in)
				model = append(model, in...)
				if drop := len(model) - capacity; drop > 0 {
					overflows += uint64(drop)
					model = model[drop:]
				}
			} else {
				n := rapid.IntRange(0, 48).Draw(t, "n")
				out := make([]ring.Frame, n)
				got := buf.Read(out)

				want := len(model)
				if want > n {
					want = n
				}
				require.Equal(t, want, got)
				if want > 0 {
					require.Equal(t, model[:want], out[:want])
				}
				for _, f := range out[want:] {
					require.Equal(t, ring.Frame{}, f)
				}
				model = model[want:]
			}
			require.Equal(t, len(model), buf.Len())
			require.Equal(t, overflows, buf.Overflows())
		}
	})
}

// vim: foldmethod=marker
