package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/anetz/internal/audio"
	"github.com/ColonelBlimp/anetz/internal/callctl"
	"github.com/ColonelBlimp/anetz/internal/config"
	"github.com/ColonelBlimp/anetz/internal/recovery"
	"github.com/ColonelBlimp/anetz/internal/routing"
	"github.com/ColonelBlimp/anetz/internal/station"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the base station on a sound card",
	Long: `Runs the base station on a full-duplex audio device. Capture channel i is
the receiver output of radio channel i, playback channel i feeds its
transmitter. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runStation,
}

func init() {
	runCmd.Flags().String("page", "", "page this number once the station is up")
	runCmd.Flags().Duration("status-interval", 30*time.Second, "period of the status log, 0 to disable")
	runCmd.Flags().Bool("list-devices", false, "list audio devices and exit")
	rootCmd.AddCommand(runCmd)
}

func audioConfig(settings *config.Settings) audio.Config {
	return audio.Config{
		DeviceIndex: settings.DeviceIndex,
		SampleRate:  uint32(settings.SampleRate),
		Channels:    uint32(settings.Channels),
		BufferSize:  uint32(settings.ChunkSize()),
	}
}

func runStation(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	number, _ := cmd.Flags().GetString("page")
	interval, _ := cmd.Flags().GetDuration("status-interval")
	list, _ := cmd.Flags().GetBool("list-devices")

	router := routing.New(logger)
	st, err := newStation(settings, router, logger)
	if err != nil {
		return err
	}

	device := audio.New(audioConfig(settings), st)
	if err := device.Init(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	defer device.Close()

	if list {
		return listDevices(cmd, device)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := device.Start(ctx); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	logger.Info("station running", "channels", settings.Channels, "rate", settings.SampleRate,
		"chunk", settings.ChunkSize(), "paging", settings.PagingMode)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer recovery.Catch(&err)
		select {
		case <-ctx.Done():
			return nil
		case err := <-device.Errors():
			return fmt.Errorf("audio: %w", err)
		}
	})

	if number != "" {
		g.Go(func() (err error) {
			defer recovery.Catch(&err)
			pageOnce(ctx, st, router, logger, number)
			return nil
		})
	}

	if interval > 0 {
		g.Go(func() (err error) {
			defer recovery.Catch(&err)
			logStatus(ctx, st, logger, interval)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("station stopping")
	if stopErr := device.Stop(); stopErr != nil && !errors.Is(stopErr, audio.ErrNotRunning) {
		logger.Warn("stop audio", "err", stopErr)
	}
	return err
}

// pageOnce sets up a network-originated call from the loop.
func pageOnce(ctx context.Context, st *station.Station, router *routing.Router, logger *log.Logger, number string) {
	ref := router.Dial("operator", number)
	err := st.Do(ctx, func(n *callctl.Network) error {
		return n.Setup(ref, "operator", number)
	})
	switch {
	case err == nil:
		logger.Info("paging", "number", number, "ref", ref)
	case errors.Is(err, context.Canceled):
	default:
		router.Rejected(ref, err)
	}
}

func logStatus(ctx context.Context, st *station.Station, logger *log.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := st.Status(ctx)
			if err != nil {
				return
			}
			for _, s := range status {
				logger.Info("channel", "id", s.Channel, "state", s.State, "station", s.StationID, "ref", s.CallRef, "dsp", s.DSPMode)
			}
		}
	}
}

func listDevices(cmd *cobra.Command, device *audio.Duplex) error {
	out := cmd.OutOrStdout()
	kinds := []struct {
		name string
		kind malgo.DeviceType
	}{
		{"capture", malgo.Capture},
		{"playback", malgo.Playback},
	}
	for _, k := range kinds {
		devices, err := device.ListDevices(k.kind)
		if err != nil {
			return fmt.Errorf("audio: %w", err)
		}
		fmt.Fprintf(out, "%s devices:\n", k.name)
		for i, d := range devices {
			fmt.Fprintf(out, "  [%d] %s\n", i, d.Name())
		}
	}
	return nil
}
