package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ColonelBlimp/anetz/internal/callctl"
	"github.com/ColonelBlimp/anetz/internal/config"
	"github.com/ColonelBlimp/anetz/internal/routing"
	"github.com/ColonelBlimp/anetz/internal/sim"
	"github.com/ColonelBlimp/anetz/internal/station"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a call against a simulated mobile",
	Long: `Connects a simulated mobile to the first channel of a station built from
the configuration and runs one complete call through it: the network pages the
mobile (or, with --radio, the mobile calls), both sides talk, the mobile hangs
up and the channel returns to idle. Prints the state timeline and the final
sessions as YAML.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().String("number", "01234", "number of the simulated mobile")
	simulateCmd.Flags().Bool("radio", false, "let the mobile originate the call")
	simulateCmd.Flags().Duration("talk", 3*time.Second, "time spent connected")
	rootCmd.AddCommand(simulateCmd)
}

type transition struct {
	At      string `yaml:"at"`
	Channel int    `yaml:"channel"`
	State   string `yaml:"state"`
}

type simulation struct {
	Number   string                  `yaml:"number"`
	Timeline []transition            `yaml:"timeline"`
	Channels []callctl.ChannelStatus `yaml:"channels"`
	Sessions []routing.Session       `yaml:"sessions"`
}

// simStep is how often the timeline is sampled
const simStep = 50 * time.Millisecond

// simRun drives a loopback and records channel state changes.
type simRun struct {
	loop   *sim.Loopback
	st     *station.Station
	last   []callctl.State
	result *simulation
}

func (r *simRun) record() {
	for i, c := range r.st.Network().Channels() {
		if s := c.State(); s != r.last[i] {
			r.last[i] = s
			r.result.Timeline = append(r.result.Timeline, transition{
				At:      r.loop.Elapsed().Truncate(time.Millisecond).String(),
				Channel: c.ID(),
				State:   s.String(),
			})
		}
	}
}

// until runs the loopback until done holds or limit has passed.
func (r *simRun) until(limit time.Duration, done func() bool) (bool, error) {
	end := r.loop.Elapsed() + limit
	for r.loop.Elapsed() < end {
		if err := r.loop.Run(simStep); err != nil {
			return false, err
		}
		r.record()
		if done != nil && done() {
			return true, nil
		}
	}
	return false, nil
}

// newStation builds a station with every configured channel.
func newStation(settings *config.Settings, router callctl.Router, logger *log.Logger) (*station.Station, error) {
	cfg := station.Config{
		SampleRate: settings.SampleRate,
		ChunkSize:  settings.ChunkSize(),
	}
	for i := 1; i <= settings.Channels; i++ {
		cfg.Channels = append(cfg.Channels, settings.Channel(i))
	}
	return station.New(cfg, router, logger)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	number, _ := cmd.Flags().GetString("number")
	radio, _ := cmd.Flags().GetBool("radio")
	talk, _ := cmd.Flags().GetDuration("talk")

	router := routing.New(logger)
	st, err := newStation(settings, router, logger)
	if err != nil {
		return err
	}

	mcfg := sim.DefaultConfig(settings.SampleRate, number)
	mcfg.GuardTone = settings.GuardTone
	mcfg.CallTone = settings.CallTone
	mobile, err := sim.New(mcfg)
	if err != nil {
		return err
	}

	// Only the first channel has a mobile in range
	mobiles := make([]*sim.Mobile, settings.Channels)
	mobiles[0] = mobile

	run := &simRun{
		loop:   sim.NewLoopback(st, settings.SampleRate, settings.ChunkSize(), mobiles...),
		st:     st,
		last:   make([]callctl.State, settings.Channels),
		result: &simulation{Number: number},
	}
	ch := st.Network().Channels()[0]
	connected := func() bool { return ch.State() == callctl.StateConnected && ch.Machine().CallRef != 0 }
	idle := func() bool { return ch.State() == callctl.StateIdle }

	if _, err := run.until(500*time.Millisecond, nil); err != nil {
		return err
	}

	if radio {
		logger.Info("mobile calls", "number", number)
		mobile.Call()
	} else {
		ref := router.Dial("operator", number)
		if err := st.Network().Setup(ref, "operator", number); err != nil {
			router.Rejected(ref, err)
			return err
		}
		logger.Info("paging", "number", number, "ref", ref)
	}

	ok, err := run.until(settings.PagingTimeout+time.Second, connected)
	if err != nil {
		return err
	}
	if ok {
		logger.Info("connected", "channel", ch.ID(), "station", ch.Machine().StationID)
		if _, err := run.until(talk, nil); err != nil {
			return err
		}
		mobile.Hangup()
	} else {
		logger.Warn("call not connected", "state", ch.State())
	}

	if _, err := run.until(mcfg.ToneTime+settings.LossDuration+settings.ReleaseHoldoff+time.Second, idle); err != nil {
		return err
	}

	run.result.Channels = st.Network().Status()
	run.result.Sessions = router.Sessions()

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(run.result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return enc.Close()
}
