package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ColonelBlimp/anetz/internal/paging"
)

type toneEntry struct {
	Tone      int     `yaml:"tone"`
	Frequency float64 `yaml:"frequency"`
}

type toneReport struct {
	Number  string      `yaml:"number"`
	Station string      `yaml:"station"`
	Tones   []toneEntry `yaml:"tones"`
}

var tonesCmd = &cobra.Command{
	Use:   "tones <number>",
	Short: "Show the paging tones of a number",
	Long: `Maps a 5-digit station number, or a 7-digit number with prefix, to its
four paging tones. Numbers whose tones would coincide are rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runTones,
}

func init() {
	tonesCmd.Flags().Bool("yaml", false, "print as YAML")
	rootCmd.AddCommand(tonesCmd)
}

func runTones(cmd *cobra.Command, args []string) error {
	report, err := newToneReport(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "station %s\n", report.Station)
	for i, t := range report.Tones {
		fmt.Fprintf(out, "  %d: tone %2d  %6.1f Hz\n", i+1, t.Tone, t.Frequency)
	}
	return nil
}

func newToneReport(number string) (*toneReport, error) {
	tones, err := paging.ToneNumbers(number)
	if err != nil {
		return nil, err
	}
	station, err := paging.Suffix(number)
	if err != nil {
		return nil, err
	}

	report := &toneReport{Number: number, Station: station}
	for _, t := range tones {
		report.Tones = append(report.Tones, toneEntry{Tone: t, Frequency: paging.Frequency(t)})
	}
	return report, nil
}
