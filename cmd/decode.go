package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mjibson/go-dsp/wav"
	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/anetz/internal/callctl"
	"github.com/ColonelBlimp/anetz/internal/dsp"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <file.wav>",
	Short: "Detect supervisory tones in a recording",
	Long: `Runs the tone detector over a WAV recording of a receive path and prints
every confirmed tone, lost tone and carrier loss with its time offset.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().Int("channel", 0, "channel of a multi-channel recording")
	rootCmd.AddCommand(decodeCmd)
}

func toneName(t dsp.Tone) string {
	switch t {
	case callctl.GuardTone:
		return "guard"
	case callctl.CallTone:
		return "call"
	default:
		return t.String()
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	channel, _ := cmd.Flags().GetInt("channel")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	rec, err := wav.New(f)
	if err != nil {
		return fmt.Errorf("read wav header: %w", err)
	}
	channels := int(rec.Header.NumChannels)
	if channel < 0 || channel >= channels {
		return fmt.Errorf("channel %d out of range, recording has %d", channel, channels)
	}

	// The recording decides the sample rate; chunk length stays as configured
	cfg := settings.Detector()
	cfg.SampleRate = float64(rec.Header.SampleRate)
	cfg.ChunkSize = int(cfg.SampleRate) * settings.ChunkMS / 1000
	detector, err := dsp.NewDetector(cfg)
	if err != nil {
		return err
	}

	logger.Info("decoding", "file", args[0], "rate", rec.Header.SampleRate, "channels", channels, "chunk", detector.ChunkDuration())

	out := cmd.OutOrStdout()
	events := 0
	detector.SetCallback(func(ev dsp.ToneEvent) {
		events++
		switch ev.Kind {
		case dsp.EventCarrierLost:
			fmt.Fprintf(out, "%9.3fs  %-14s level=%.4f\n", ev.Offset.Seconds(), ev.Kind, ev.Level)
		default:
			fmt.Fprintf(out, "%9.3fs  %-14s %-5s level=%.3f quality=%.2f\n",
				ev.Offset.Seconds(), ev.Kind, toneName(ev.Tone), ev.Level, ev.Quality)
		}
	})

	mono := make([]float32, 0, cfg.ChunkSize)
	for {
		frames, err := rec.ReadFloats(cfg.ChunkSize * channels)
		mono = mono[:0]
		for i := channel; i < len(frames); i += channels {
			mono = append(mono, frames[i])
		}
		detector.Process(mono)

		if errors.Is(err, io.EOF) || (err == nil && len(frames) == 0) {
			break
		}
		if err != nil {
			return fmt.Errorf("read samples: %w", err)
		}
	}

	logger.Info("done", "events", events)
	return nil
}
