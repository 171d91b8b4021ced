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

// Package rx turns a stream of complex IQ samples into audible sound in
// real time: capture, demodulation (am or fm), audio-band filtering, rate
// conversion and normalization, and glitch-free playback across a
// producer/consumer timing mismatch.
//
// The Pipeline owns the whole chain. Samples flow one way:
//
//	source.Source → Demodulator → Lowpass → Resampler → ring.Buffer → sink.Sink
//
// with the ring buffer as the only state shared between the processing path
// and the audio device's own timing.
package rx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"hz.tools/rx/ring"
	"hz.tools/rx/sink"
	"hz.tools/rx/source"
)

// State is where the pipeline is in its lifecycle.
type State int32

const (
	// StateStopped means no devices are held and no audio is flowing.
	StateStopped State = iota

	// StateStarting means devices are being opened and stages built.
	StateStarting

	// StateRunning means the capture→process→enqueue loop is live.
	StateRunning

	// StateStopping means input has stopped and the playback buffer is
	// draining to the sink.
	StateStopping

	// StateFaulted means a fatal source or sink error ended the run. Only
	// an explicit Start recovers.
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrDisabled is returned by Start when Config.Audio is off.
	ErrDisabled = errors.New("rx: audio output is disabled")

	// ErrNotStopped is returned by Start when a run is already underway.
	ErrNotStopped = errors.New("rx: pipeline is not stopped")

	// ErrNotRunning is returned by Stop when there's no run to stop.
	ErrNotRunning = errors.New("rx: pipeline is not running")

	// ErrModeLocked is returned when changing the demodulation mode
	// mid-run: clean filter and phase state needs a stop/start cycle,
	// a live hot-swap is not a thing. Use Restart.
	ErrModeLocked = errors.New("rx: mode is locked while the pipeline runs; restart to change it")
)

// SourceFactory opens the configured sample source for one run.
type SourceFactory func(Config) (source.Source, error)

// SinkFactory opens the configured audio sink for one run.
type SinkFactory func(Config) (sink.Sink, error)

// Stats is a point-in-time snapshot of a pipeline's counters.
type Stats struct {
	State State

	// Blocks processed, Skipped shed by the skip factor, Frames enqueued
	// for playback.
	Blocks  uint64
	Skipped uint64
	Frames  uint64

	// Discontinuities is sequence gaps observed in the block stream;
	// each one reset the demodulator and filter state.
	Discontinuities uint64

	// Overflows is frames dropped oldest-first from the playback buffer;
	// Underflows is device reads that needed silence padding.
	Overflows  uint64
	Underflows uint64
}

// Pipeline owns every stage of one receive chain and walks it through
// Stopped → Starting → Running → Stopping → Stopped, with Faulted reachable
// from Starting and Running. Pipelines are independent: nothing here is
// process-wide, so tests (or receivers) can run several side by side.
type Pipeline struct {
	mu         sync.Mutex
	cfg        Config
	openSource SourceFactory
	openSink   SinkFactory
	logger     *log.Logger

	state atomic.Int32
	fault error

	src       source.Source
	snk       sink.Sink
	buf       *ring.Buffer
	demod     Demodulator
	lowpass   *Lowpass
	resampler *Resampler

	cancel context.CancelFunc
	done   chan struct{}

	blocks  atomic.Uint64
	skipped atomic.Uint64
	frames  atomic.Uint64
	gaps    atomic.Uint64
}

// Option adjusts a Pipeline at construction.
type Option func(*Pipeline)

// WithLogger routes pipeline logging somewhere. The default logger
// discards.
func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New wires a Pipeline for cfg. The factories run at Start, so a Pipeline
// can be built long before any device is touched.
func New(cfg Config, openSource SourceFactory, openSink SinkFactory, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		openSource: openSource,
		openSink:   openSink,
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State reports where the pipeline is.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Err reports the fault that ended the last run, nil if none.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fault
}

// Mode reports the configured demodulation mode.
func (p *Pipeline) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Mode
}

// SetMode changes the demodulation mode for the next run. It is rejected
// while a run is underway: the filter and phase state of one mode must
// never bleed into the other.
func (p *Pipeline) SetMode(mode Mode) error {
	switch p.State() {
	case StateStopped, StateFaulted:
	default:
		return ErrModeLocked
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Mode = mode
	return nil
}

// Start opens devices, builds fresh stage state, and begins the run.
// Allowed from Stopped or — as the explicit recovery path — Faulted.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch State(p.state.Load()) {
	case StateStopped, StateFaulted:
	default:
		return ErrNotStopped
	}
	if !p.cfg.Audio {
		return ErrDisabled
	}

	p.state.Store(int32(StateStarting))
	p.fault = nil

	if err := p.startLocked(); err != nil {
		p.fault = err
		p.state.Store(int32(StateFaulted))
		p.logger.Error("pipeline start failed", "err", err)
		return err
	}

	p.state.Store(int32(StateRunning))
	p.logger.Info("pipeline running",
		"mode", p.cfg.Mode,
		"input_rate", p.cfg.InputRate,
		"audio_rate", p.cfg.AudioRate,
		"block_size", p.cfg.BlockSize)
	return nil
}

func (p *Pipeline) startLocked() error {
	cfg := p.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	demod, err := NewDemodulator(cfg.Mode, cfg.InputRate, cfg.Deviation)
	if err != nil {
		return err
	}
	lowpass, err := NewLowpass(cfg.Cutoff, cfg.InputRate)
	if err != nil {
		return err
	}
	resampler, err := NewResampler(cfg.InputRate, cfg.AudioRate, cfg.Gain)
	if err != nil {
		return err
	}
	buf, err := ring.New(cfg.RingCapacity)
	if err != nil {
		return err
	}

	src, err := p.openSource(cfg)
	if err != nil {
		return fmt.Errorf("rx: opening source: %w", err)
	}
	snk, err := p.openSink(cfg)
	if err != nil {
		src.Close()
		return fmt.Errorf("rx: opening sink: %w", err)
	}
	if err := snk.Start(buf); err != nil {
		snk.Close()
		src.Close()
		return fmt.Errorf("rx: starting sink: %w", err)
	}

	p.src, p.snk, p.buf = src, snk, buf
	p.demod, p.lowpass, p.resampler = demod, lowpass, resampler

	p.blocks.Store(0)
	p.skipped.Store(0)
	p.frames.Store(0)
	p.gaps.Store(0)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

// run is the capture/processing path: strictly sequential per block, never
// sharing anything with the audio callback beyond the ring buffer.
func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)

	var (
		lastSeq  uint64
		baseband = make([]float32, p.cfg.BlockSize)
		frames   = make([]ring.Frame, 0, p.cfg.BlockSize)
	)

	for {
		if ctx.Err() != nil {
			return
		}

		blk, err := p.src.NextBlock(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.faultRun(err)
			return
		}
		if err := p.snk.Err(); err != nil {
			p.faultRun(err)
			return
		}

		n := p.blocks.Add(1)

		if lastSeq != 0 && blk.Seq != lastSeq+1 {
			// Samples went missing between these blocks: carrying
			// phase or filter state across the gap would smear a
			// spurious transient into the audio.
			p.gaps.Add(blk.Seq - lastSeq - 1)
			p.demod.Reset()
			p.lowpass.Reset()
			p.logger.Warn("input discontinuity",
				"lost_blocks", blk.Seq-lastSeq-1, "seq", blk.Seq)
		}
		lastSeq = blk.Seq

		if p.cfg.Skip > 1 && n%uint64(p.cfg.Skip) != 0 {
			// Shedding load; the dropped block breaks continuity
			// just like lost input does.
			p.skipped.Add(1)
			p.demod.Reset()
			continue
		}

		if len(blk.Samples) > cap(baseband) {
			baseband = make([]float32, len(blk.Samples))
		}
		out := baseband[:len(blk.Samples)]

		p.demod.Demodulate(blk.Samples, out)
		p.lowpass.Filter(out)
		frames = p.resampler.Process(out, frames[:0])
		p.buf.Write(frames)
		p.frames.Add(uint64(len(frames)))
	}
}

// faultRun moves a live run to Faulted and releases the devices.
func (p *Pipeline) faultRun(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if State(p.state.Load()) != StateRunning {
		return
	}
	p.fault = err
	p.state.Store(int32(StateFaulted))
	p.logger.Error("pipeline faulted", "err", err)
	p.snk.Close()
	p.src.Close()
}

// Stop ends the run: capture stops first, then the playback buffer drains
// into the sink (bounded by DrainTimeout), then the devices are released.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if State(p.state.Load()) != StateRunning {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.state.Store(int32(StateStopping))
	p.cancel()
	done := p.done
	p.mu.Unlock()

	<-done

	p.mu.Lock()
	defer p.mu.Unlock()

	if State(p.state.Load()) != StateStopping {
		// The run loop faulted while we were waiting; devices are
		// already released.
		return p.fault
	}

	p.drainLocked()
	p.snk.Close()
	p.src.Close()
	p.state.Store(int32(StateStopped))
	p.logger.Info("pipeline stopped",
		"blocks", p.blocks.Load(),
		"frames", p.frames.Load(),
		"overflows", p.buf.Overflows(),
		"underflows", p.buf.Underflows())
	return nil
}

// drainLocked waits, bounded, for the sink to play out what's buffered.
func (p *Pipeline) drainLocked() {
	deadline := time.Now().Add(p.cfg.DrainTimeout)
	for p.buf.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

// Restart stops the run if one is live, applies mode, and starts again
// with fresh state — the only sanctioned way to change modes.
func (p *Pipeline) Restart(mode Mode) error {
	if p.State() == StateRunning {
		if err := p.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
	}
	if err := p.SetMode(mode); err != nil {
		return err
	}
	return p.Start()
}

// Stats snapshots the run counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{
		State:           State(p.state.Load()),
		Blocks:          p.blocks.Load(),
		Skipped:         p.skipped.Load(),
		Frames:          p.frames.Load(),
		Discontinuities: p.gaps.Load(),
	}
	if p.src != nil {
		stats.Discontinuities += p.src.Discontinuities()
	}
	if p.buf != nil {
		stats.Overflows = p.buf.Overflows()
		stats.Underflows = p.buf.Underflows()
	}
	return stats
}

// vim: foldmethod=marker
