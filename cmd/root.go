// cmd/root.go
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/anetz/internal/config"
	"github.com/ColonelBlimp/anetz/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "anetz",
	Short: "A-Netz base station: supervisory tones, paging and call control",
	Long: `An analog mobile-telephone base station. It detects the guard and call
tones on the receive path, pages mobiles with four-tone selective calling and
runs the call control of each radio channel.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().Float64P("sample-rate", "r", 8000, "audio sample rate in Hz")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	// Bind flags to viper
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"device":      "device_index",
		"sample-rate": "sample_rate",
		"log-level":   "log_level",
		"debug":       "debug",
	})
}

// bindFlags binds each named flag to its config key.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings returns the validated settings and a logger writing to w.
func loadSettings(w io.Writer) (*config.Settings, *log.Logger, error) {
	settings, err := config.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	level := settings.LogLevel
	if settings.Debug {
		level = "debug"
	}
	logger, err := logging.New(level, w)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return settings, logger, nil
}
