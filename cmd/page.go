package cmd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/anetz/internal/dsp"
	"github.com/ColonelBlimp/anetz/internal/paging"
)

var pageCmd = &cobra.Command{
	Use:   "page <number>",
	Short: "Render the paging signal of a number as raw audio",
	Long: `Writes the paging tones of a number as signed 16-bit little-endian mono
PCM at the configured sample rate, simultaneous or sequential as configured.
Play it back with e.g. 'aplay -f S16_LE -r 8000'.`,
	Args: cobra.ExactArgs(1),
	RunE: runPage,
}

func init() {
	pageCmd.Flags().StringP("output", "o", "-", "output file, - for stdout")
	pageCmd.Flags().DurationP("duration", "t", 2*time.Second, "length of the signal")
	rootCmd.AddCommand(pageCmd)
}

func runPage(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	freqs, err := paging.Frequencies(args[0])
	if err != nil {
		return err
	}
	gen, err := dsp.NewGenerator(settings.Generator())
	if err != nil {
		return err
	}
	if err := gen.SetPaging(freqs); err != nil {
		return err
	}

	duration, _ := cmd.Flags().GetDuration("duration")
	output, _ := cmd.Flags().GetString("output")

	var w io.Writer = cmd.OutOrStdout()
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	samples := int(duration.Seconds() * settings.SampleRate)
	logger.Info("rendering page", "number", args[0], "tones", freqs, "mode", gen.Mode(), "samples", samples)
	return writePCM(w, gen, samples, settings.ChunkSize())
}

// writePCM renders n samples from gen as S16_LE.
func writePCM(w io.Writer, gen *dsp.Generator, n, chunk int) error {
	bw := bufio.NewWriter(w)
	buf := make([]float32, chunk)
	pcm := make([]int16, chunk)

	for n > 0 {
		m := min(chunk, n)
		gen.Generate(buf[:m])
		for i, s := range buf[:m] {
			pcm[i] = int16(math.Round(float64(max(-1, min(1, s))) * math.MaxInt16))
		}
		if err := binary.Write(bw, binary.LittleEndian, pcm[:m]); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		n -= m
	}
	return bw.Flush()
}
