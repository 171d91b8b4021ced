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

// Package sink abstracts the audio output device. A Sink pulls stereo
// int16 frames from the playback ring at the device's own cadence; it is
// never driven — or blocked — by the processing path.
package sink

import (
	"errors"

	"hz.tools/rx/ring"
)

// ErrUnavailable means the output device couldn't be opened (bad index,
// device busy) or has gone away. Fatal to a pipeline run.
var ErrUnavailable = errors.New("sink: device unavailable")

// Sink plays frames pulled from a ring.Buffer.
type Sink interface {
	// Start begins pulling frames from buf on the device's timing. The
	// pull path must never block on the processing path; a starved buffer
	// yields silence by ring.Buffer's contract.
	Start(buf *ring.Buffer) error

	// Err reports a playback fault seen since Start, nil if none.
	Err() error

	// Close stops playback and releases the device.
	Close() error
}

// vim: foldmethod=marker
