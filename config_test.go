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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hz.tools/rf"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	assert.False(t, cfg.Audio, "audio output is opt-in")
	assert.Equal(t, ModeAM, cfg.Mode)
	assert.Equal(t, DefaultCutoff, cfg.Cutoff)
	assert.Equal(t, DefaultDeviation, cfg.Deviation)
}

func TestValidateFailures(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"bad mode":           func(c *Config) { c.Mode = Mode("ssb") },
		"zero input rate":    func(c *Config) { c.InputRate = 0 },
		"zero audio rate":    func(c *Config) { c.AudioRate = 0 },
		"zero block size":    func(c *Config) { c.BlockSize = 0 },
		"zero buffers":       func(c *Config) { c.Buffers = 0 },
		"zero ring":          func(c *Config) { c.RingCapacity = 0 },
		"negative skip":      func(c *Config) { c.Skip = -1 },
		"zero cutoff":        func(c *Config) { c.Cutoff = 0 },
		"cutoff at nyquist":  func(c *Config) { c.Cutoff = 24 * rf.KHz },
		"fm zero deviation":  func(c *Config) { c.Mode = ModeFM; c.Deviation = 0 },
		"zero gain":          func(c *Config) { c.Gain = 0 },
		"negative timeout":   func(c *Config) { c.DrainTimeout = -time.Second },
		"negative src wait":  func(c *Config) { c.SourceTimeout = -time.Second },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// AM doesn't care about deviation; only FM validates it.
func TestValidateAMIgnoresDeviation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAM
	cfg.Deviation = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
audio: true
mode: fm
input_rate: 240000
cutoff: 5000
skip: 2
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Audio)
	assert.Equal(t, ModeFM, cfg.Mode)
	assert.Equal(t, uint(240000), cfg.InputRate)
	assert.Equal(t, 5*rf.KHz, cfg.Cutoff)
	assert.Equal(t, 2, cfg.Skip)

	// Everything the file didn't mention keeps its default.
	assert.Equal(t, uint(48000), cfg.AudioRate)
	assert.Equal(t, 2048, cfg.BlockSize)
	assert.Equal(t, DefaultDeviation, cfg.Deviation)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: [oops"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDescriptors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InputDevice = 3
	cfg.InputRate = 96000

	in := cfg.InputDescriptor()
	assert.Equal(t, 3, in.Index)
	assert.Equal(t, uint(96000), in.SampleRate)
	assert.Equal(t, 2, in.Channels)

	out := cfg.OutputDescriptor()
	assert.Equal(t, -1, out.Index)
	assert.Equal(t, uint(48000), out.SampleRate)
	assert.Equal(t, 2, out.Channels)
}

// vim: foldmethod=marker
