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
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hz.tools/rf"
)

var (
	// DefaultCutoff is the audio low-pass cutoff when none is configured,
	// sized for voice/broadcast audio.
	DefaultCutoff rf.Hz = 3 * rf.KHz

	// DefaultDeviation is the expected FM peak deviation when none is
	// configured, 5 KHz (10 KHz bandwidth).
	DefaultDeviation rf.Hz = 5 * rf.KHz
)

// DeviceDescriptor identifies one end of the pipeline's hardware: a device
// index (negative meaning the system default), its sample rate and channel
// count. Descriptors are fixed once a run has started; changing one means a
// restart.
type DeviceDescriptor struct {
	Index      int  `yaml:"index"`
	SampleRate uint `yaml:"sample_rate"`
	Channels   int  `yaml:"channels"`
}

// Config is everything a pipeline run needs, validated once when the run
// starts. Zero values fall back to the defaults noted per field; see
// DefaultConfig.
type Config struct {
	// Audio enables the pipeline at all. Off by default.
	Audio bool `yaml:"audio"`

	// Mode selects amplitude or frequency demodulation. Default am.
	Mode Mode `yaml:"mode"`

	// InputRate is the IQ capture rate in samples per second: hundreds of
	// kHz to ~1 MHz for dongle capture, tens of kHz for sound-card IF.
	InputRate uint `yaml:"input_rate"`

	// AudioRate is the playback rate. Default 48000.
	AudioRate uint `yaml:"audio_rate"`

	// BlockSize is the number of IQ samples per processing block.
	BlockSize int `yaml:"block_size"`

	// Skip processes only every Skip'th block when positive, shedding
	// load on machines that can't keep up with the full rate.
	Skip int `yaml:"skip"`

	// Buffers is how many blocks may queue between capture and the
	// processing loop.
	Buffers int `yaml:"buffers"`

	// RingCapacity is the playback buffer size in audio frames.
	RingCapacity int `yaml:"ring_capacity"`

	// InputDevice is the capture device index for sound-card IF input,
	// -1 for the system default.
	InputDevice int `yaml:"input_device"`

	// OutputDevice is the playback device index, -1 for the system
	// default.
	OutputDevice int `yaml:"output_device"`

	// Cutoff is the audio low-pass cutoff.
	Cutoff rf.Hz `yaml:"cutoff"`

	// Deviation is the expected FM peak deviation, sizing the
	// discriminator gain.
	Deviation rf.Hz `yaml:"deviation"`

	// Gain maps unit baseband amplitude to Gain·32767 at the output.
	Gain float64 `yaml:"gain"`

	// SourceTimeout bounds a single block wait before the source is
	// declared unavailable.
	SourceTimeout time.Duration `yaml:"source_timeout"`

	// DrainTimeout bounds how long Stop waits for the playback buffer to
	// empty into the sink.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// DefaultConfig returns the documented defaults. Audio stays disabled; the
// caller opts in.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeAM,
		InputRate:     48000,
		AudioRate:     48000,
		BlockSize:     2048,
		Buffers:       12,
		RingCapacity:  16384,
		InputDevice:   -1,
		OutputDevice:  -1,
		Cutoff:        DefaultCutoff,
		Deviation:     DefaultDeviation,
		Gain:          0.5,
		SourceTimeout: 4 * time.Second,
		DrainTimeout:  500 * time.Millisecond,
	}
}

// LoadConfig reads a yaml file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("rx: reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("rx: parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration before a run starts.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeAM, ModeFM:
	default:
		return fmt.Errorf("rx: unknown demodulation mode %q", c.Mode)
	}
	if c.InputRate == 0 {
		return fmt.Errorf("rx: input rate must be positive")
	}
	if c.AudioRate == 0 {
		return fmt.Errorf("rx: audio rate must be positive")
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("rx: block size must be positive, got %d", c.BlockSize)
	}
	if c.Buffers <= 0 {
		return fmt.Errorf("rx: buffer count must be positive, got %d", c.Buffers)
	}
	if c.RingCapacity <= 0 {
		return fmt.Errorf("rx: ring capacity must be positive, got %d", c.RingCapacity)
	}
	if c.Skip < 0 {
		return fmt.Errorf("rx: skip factor can't be negative, got %d", c.Skip)
	}
	if c.Cutoff <= 0 {
		return fmt.Errorf("rx: cutoff must be positive, got %s", c.Cutoff)
	}
	if float64(c.Cutoff) >= float64(c.InputRate)/2 {
		return fmt.Errorf("rx: cutoff %s is at or above nyquist for input rate %d",
			c.Cutoff, c.InputRate)
	}
	if c.Mode == ModeFM && c.Deviation <= 0 {
		return fmt.Errorf("rx: fm deviation must be positive, got %s", c.Deviation)
	}
	if c.Gain <= 0 {
		return fmt.Errorf("rx: gain must be positive, got %f", c.Gain)
	}
	if c.SourceTimeout < 0 || c.DrainTimeout < 0 {
		return fmt.Errorf("rx: timeouts can't be negative")
	}
	return nil
}

// InputDescriptor is the capture side's device identity for this run.
func (c Config) InputDescriptor() DeviceDescriptor {
	return DeviceDescriptor{Index: c.InputDevice, SampleRate: c.InputRate, Channels: 2}
}

// OutputDescriptor is the playback side's device identity for this run.
func (c Config) OutputDescriptor() DeviceDescriptor {
	return DeviceDescriptor{Index: c.OutputDevice, SampleRate: c.AudioRate, Channels: 2}
}

// vim: foldmethod=marker
