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

// Package source abstracts where IQ samples come from — an SDR dongle or
// capture stream behind an sdr.Reader, or a sound card sampling a radio's
// IF output — and hands them to the pipeline as ordered blocks.
package source

import (
	"context"
	"errors"
	"time"

	"hz.tools/sdr"
)

// ErrUnavailable means the underlying device never opened or has gone away.
// It's fatal to a pipeline run; recovery is an explicit restart.
var ErrUnavailable = errors.New("source: device unavailable")

// DefaultTimeout bounds how long NextBlock will wait for the device before
// declaring it unavailable.
const DefaultTimeout = 4 * time.Second

// IQBlock is an ordered run of complex baseband samples as captured, tagged
// with the rate they were captured at.
//
// Seq increases strictly per source. A gap between consecutive blocks means
// input was lost in between; consumers should treat the boundary as a stream
// discontinuity, not silently splice across it.
type IQBlock struct {
	Seq        uint64
	SampleRate uint
	Samples    sdr.SamplesC64
}

// Source yields ordered blocks of IQ samples at a fixed input rate.
type Source interface {
	// NextBlock waits — bounded by the source's timeout and ctx — for the
	// next full block. Blocks are contiguous in time on the source clock
	// unless their Seq numbers say otherwise.
	NextBlock(ctx context.Context) (IQBlock, error)

	// SampleRate is the capture rate, samples per second.
	SampleRate() uint

	// Discontinuities counts blocks lost because the pipeline fell behind
	// the device. Lost blocks still consume Seq numbers, so the gap is
	// also visible in the block stream.
	Discontinuities() uint64

	// Close stops capture and releases the device.
	Close() error
}

// vim: foldmethod=marker
