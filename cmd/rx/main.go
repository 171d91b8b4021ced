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

package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"hz.tools/cli"
	"hz.tools/fftw"
	"hz.tools/rf"
	"hz.tools/rfcap"
	"hz.tools/rx"
	"hz.tools/rx/internal/filter"
	"hz.tools/rx/sink"
	"hz.tools/rx/source"
	"hz.tools/sdr"
	"hz.tools/sdr/stream"
)

// maskSize is the FFT length for the channel-select convolution filter.
const maskSize = 1024 * 32

var rootCmd = &cobra.Command{
	Use:   "rx",
	Short: "demodulate an IQ stream to the speakers",
	Long:  `Demodulate AM or FM audio from an SDR, a sound-card IF input, or an rfcap capture on stdin, and play it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.New(os.Stderr)

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		input, err := cmd.Flags().GetString("input")
		if err != nil {
			return err
		}
		sinkKind, err := cmd.Flags().GetString("sink")
		if err != nil {
			return err
		}
		sinkName, err := cmd.Flags().GetString("sink-name")
		if err != nil {
			return err
		}

		var closers []io.Closer
		defer func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i].Close()
			}
		}()

		openSource := func(cfg rx.Config) (source.Source, error) {
			if input == "soundcard" {
				return source.NewPortAudioSource(
					cfg.InputDevice, cfg.InputRate,
					cfg.BlockSize, cfg.Buffers, cfg.SourceTimeout)
			}

			var reader sdr.Reader
			switch input {
			case "rfcap":
				r, _, err := rfcap.Reader(os.Stdin)
				if err != nil {
					return nil, err
				}
				reader = r
			case "sdr":
				dev, _, _, err := cli.LoadSDR(cmd)
				if err != nil {
					return nil, err
				}
				closers = append(closers, dev)
				rcv, ok := dev.(sdr.Receiver)
				if !ok {
					return nil, source.ErrUnavailable
				}
				rc, err := rcv.StartRx()
				if err != nil {
					return nil, err
				}
				reader = rc
			default:
				return nil, errBadFlag("input", input)
			}

			reader, err := stream.ConvertReader(reader, sdr.SampleFormatC64)
			if err != nil {
				return nil, err
			}
			reader, err = channelFilter(cmd, reader)
			if err != nil {
				return nil, err
			}
			return source.NewReaderSource(reader, cfg.BlockSize, cfg.Buffers, cfg.SourceTimeout)
		}

		openSink := func(cfg rx.Config) (sink.Sink, error) {
			switch sinkKind {
			case "pulse":
				return sink.NewPulseSink(cfg.AudioRate, cfg.BlockSize, sinkName)
			case "portaudio":
				return sink.NewPortAudioSink(cfg.OutputDevice, cfg.AudioRate, cfg.BlockSize)
			default:
				return nil, errBadFlag("sink", sinkKind)
			}
		}

		pipeline := rx.New(cfg, openSource, openSink, rx.WithLogger(logger))
		if err := pipeline.Start(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		if err := pipeline.Stop(); err != nil {
			return err
		}
		stats := pipeline.Stats()
		logger.Info("done",
			"blocks", stats.Blocks,
			"frames", stats.Frames,
			"discontinuities", stats.Discontinuities,
			"overflows", stats.Overflows,
			"underflows", stats.Underflows)
		return nil
	},
}

type flagError struct {
	name, value string
}

func (e flagError) Error() string {
	return "unknown --" + e.name + " value " + e.value
}

func errBadFlag(name, value string) error {
	return flagError{name: name, value: value}
}

// loadConfig layers flags over the optional yaml file over the defaults.
func loadConfig(cmd *cobra.Command) (rx.Config, error) {
	flags := cmd.Flags()

	cfg := rx.DefaultConfig()
	if path, err := flags.GetString("config"); err != nil {
		return cfg, err
	} else if path != "" {
		loaded, err := rx.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if flags.Changed("audio") {
		cfg.Audio, _ = flags.GetBool("audio")
	}
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		cfg.Mode = rx.Mode(mode)
	}
	if flags.Changed("input-rate") {
		cfg.InputRate, _ = flags.GetUint("input-rate")
	}
	if flags.Changed("rate") {
		cfg.AudioRate, _ = flags.GetUint("rate")
	}
	if flags.Changed("block-size") {
		cfg.BlockSize, _ = flags.GetInt("block-size")
	}
	if flags.Changed("skip") {
		cfg.Skip, _ = flags.GetInt("skip")
	}
	if flags.Changed("buffers") {
		cfg.Buffers, _ = flags.GetInt("buffers")
	}
	if flags.Changed("ring") {
		cfg.RingCapacity, _ = flags.GetInt("ring")
	}
	if flags.Changed("input-device") {
		cfg.InputDevice, _ = flags.GetInt("input-device")
	}
	if flags.Changed("output-device") {
		cfg.OutputDevice, _ = flags.GetInt("output-device")
	}
	if flags.Changed("gain") {
		cfg.Gain, _ = flags.GetFloat64("gain")
	}
	if flags.Changed("cutoff") {
		str, _ := flags.GetString("cutoff")
		cutoff, err := rf.ParseHz(str)
		if err != nil {
			return cfg, err
		}
		cfg.Cutoff = cutoff
	}
	if flags.Changed("deviation") {
		str, _ := flags.GetString("deviation")
		deviation, err := rf.ParseHz(str)
		if err != nil {
			return cfg, err
		}
		cfg.Deviation = deviation
	}
	return cfg, nil
}

// channelFilter wraps reader in an FFT convolution selecting the configured
// channel out of a wideband capture, when --center is given.
func channelFilter(cmd *cobra.Command, reader sdr.Reader) (sdr.Reader, error) {
	flags := cmd.Flags()
	if !flags.Changed("center") {
		return reader, nil
	}

	centerStr, err := flags.GetString("center")
	if err != nil {
		return nil, err
	}
	center, err := rf.ParseHz(centerStr)
	if err != nil {
		return nil, err
	}
	bandwidthStr, err := flags.GetString("bandwidth")
	if err != nil {
		return nil, err
	}
	bandwidth, err := rf.ParseHz(bandwidthStr)
	if err != nil {
		return nil, err
	}

	mask := make([]complex64, maskSize)
	if err := filter.Passband(mask, reader.SampleRate(), center, bandwidth/2); err != nil {
		return nil, err
	}
	return stream.ConvolutionReader(reader, fftw.Plan, mask)
}

func init() {
	flags := rootCmd.Flags()

	flags.String("config", "", "yaml config file")
	flags.Bool("audio", true, "enable audio output")
	flags.String("mode", "am", "demodulation mode [am|fm]")
	flags.String("input", "rfcap", "sample input [sdr|soundcard|rfcap]")
	flags.Uint("input-rate", 48000, "IQ capture rate in samples per second")
	flags.Uint("rate", 48000, "audio playback rate")
	flags.Int("block-size", 2048, "IQ samples per processing block")
	flags.Int("skip", 0, "process only every Nth block (load shedding)")
	flags.Int("buffers", 12, "blocks buffered between capture and processing")
	flags.Int("ring", 16384, "playback buffer capacity in frames")
	flags.Int("input-device", -1, "sound card input device index (-1 = default)")
	flags.Int("output-device", -1, "output device index (-1 = default)")
	flags.String("cutoff", "3KHz", "audio low-pass cutoff")
	flags.String("deviation", "5KHz", "expected fm peak deviation")
	flags.Float64("gain", 0.5, "amount of gain on the signal")
	flags.String("center", "", "channel center frequency in the capture (enables the channel filter)")
	flags.String("bandwidth", "10KHz", "channel filter bandwidth")
	flags.String("sink", "pulse", "audio output backend [pulse|portaudio]")
	flags.String("sink-name", "", "pulseaudio sink name")

	cli.RegisterSDRFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// vim: foldmethod=marker
