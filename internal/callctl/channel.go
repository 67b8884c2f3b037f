package callctl

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/anetz/internal/dsp"
	"github.com/ColonelBlimp/anetz/internal/paging"
	"github.com/ColonelBlimp/anetz/internal/timer"
)

// ChannelConfig holds everything one radio channel needs.
type ChannelConfig struct {
	ID int
	// Detector classifies the receive path. Frequencies[0] is the guard
	// tone, Frequencies[1] the call tone.
	Detector  dsp.DetectorConfig
	Generator dsp.GeneratorConfig
	Params    Params
}

// Channel runs the state machine of one radio channel and performs its
// effects. All methods must be called from the owning loop.
type Channel struct {
	id        int
	params    Params
	guardTone float64

	machine   Machine
	detector  *dsp.Detector
	generator *dsp.Generator
	timer     *timer.Timer
	router    Router
	logger    *log.Logger
}

// NewChannel creates a channel on the given clock and puts it into service.
// The channel starts transmitting the guard tone.
func NewChannel(cfg ChannelConfig, wheel *timer.Wheel, router Router, logger *log.Logger) (*Channel, error) {
	detector, err := dsp.NewDetector(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("channel %d: %w", cfg.ID, err)
	}
	generator, err := dsp.NewGenerator(cfg.Generator)
	if err != nil {
		return nil, fmt.Errorf("channel %d: %w", cfg.ID, err)
	}
	guard := cfg.Detector.Frequencies[GuardTone-1]
	if err := generator.SetTone(guard); err != nil {
		return nil, fmt.Errorf("channel %d: guard tone: %w", cfg.ID, err)
	}
	generator.SetSilence()

	c := &Channel{
		id:        cfg.ID,
		params:    cfg.Params,
		guardTone: guard,
		detector:  detector,
		generator: generator,
		router:    router,
		logger:    logger.With("channel", cfg.ID),
	}
	c.timer = wheel.NewTimer(func() { c.handle(TimerExpired{}) })
	detector.SetCallback(c.onToneEvent)

	c.handle(Enable{})
	return c, nil
}

// Process consumes one receive buffer and fills one transmit buffer.
// Either may be nil.
func (c *Channel) Process(rx, tx []float32) {
	if rx != nil {
		c.detector.Process(rx)
	}
	if tx != nil {
		c.generator.Generate(tx)
	}
}

func (c *Channel) onToneEvent(ev dsp.ToneEvent) {
	switch ev.Kind {
	case dsp.EventToneDetected:
		c.logger.Debug("tone detected", "tone", ev.Tone, "level", ev.Level, "quality", ev.Quality, "at", ev.Offset)
		if ev.Tone == GuardTone {
			c.logger.Debug("guard tone on receive ignored")
			return
		}
		c.handle(ToneDetected{Tone: ev.Tone})
	case dsp.EventToneLost:
		c.logger.Debug("tone lost", "tone", ev.Tone, "level", ev.Level, "at", ev.Offset)
		c.handle(ToneLost{Tone: ev.Tone})
	case dsp.EventCarrierLost:
		c.logger.Debug("carrier lost", "level", ev.Level, "at", ev.Offset)
		c.handle(CarrierLost{})
	}
}

func (c *Channel) handle(ev Event) {
	prev := c.machine
	next, effects := Step(prev, ev, c.params)
	c.machine = next
	if prev.State != next.State {
		c.logger.Info("state change", "from", prev.State, "to", next.State,
			"station", next.StationID, "ref", next.CallRef)
	}
	c.apply(effects)
}

func (c *Channel) apply(effects []Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case TransmitGuard:
			// Validated in NewChannel
			_ = c.generator.SetTone(c.guardTone)
		case TransmitSilence:
			c.generator.SetSilence()
		case TransmitPaging:
			if err := c.generator.SetPaging(e.Frequencies); err != nil {
				c.logger.Error("paging tones rejected", "err", err)
			}
		case StartTimer:
			c.timer.Start(e.Duration)
		case StopTimer:
			c.timer.Stop()
		case RequestSession:
			c.requestSession(e)
		case NotifyAlerting:
			c.router.Alerting(e.Ref)
		case NotifyAnswer:
			c.logger.Info("answered", "station", e.StationID, "ref", e.Ref)
			c.router.Answer(e.Ref, e.StationID)
		case NotifyRelease:
			c.logger.Info("release", "ref", e.Ref, "cause", e.Cause)
			c.router.Release(e.Ref, e.Cause)
		}
	}
}

func (c *Channel) requestSession(e RequestSession) {
	ref, err := c.router.Setup(e.CallerID, e.Number)
	if err == nil && ref == 0 {
		err = reject(CauseTemporaryFailure, ErrUnknownReference)
	}
	if err != nil {
		cause := CauseOf(err)
		if cause == 0 {
			cause = CauseTemporaryFailure
		}
		c.logger.Warn("session setup rejected", "number", e.Number, "cause", cause, "err", err)
		c.handle(SessionRejected{Cause: cause})
		return
	}
	c.handle(SessionEstablished{Ref: ref})
}

// page starts paging. A channel that is not idle, or cannot transmit
// freqs, is left untouched.
func (c *Channel) page(ref uint64, stationID string, freqs [paging.Tones]float64) error {
	if c.machine.State != StateIdle {
		return reject(CauseNoChannel, fmt.Errorf("channel %d is %v: %w", c.id, c.machine.State, ErrNoChannel))
	}
	if err := c.generator.CheckPaging(freqs); err != nil {
		return reject(CauseInvalidNumber, fmt.Errorf("channel %d: %w", c.id, err))
	}
	c.handle(Page{Ref: ref, StationID: stationID, Frequencies: freqs})
	return nil
}

// ID returns the channel number
func (c *Channel) ID() int {
	return c.id
}

// State returns the protocol state
func (c *Channel) State() State {
	return c.machine.State
}

// Machine returns a copy of the protocol state
func (c *Channel) Machine() Machine {
	return c.machine
}

// Mode returns the transmit mode of the generator
func (c *Channel) Mode() dsp.Mode {
	return c.generator.Mode()
}

// TimerRemaining returns the time left on the channel timer, zero when stopped
func (c *Channel) TimerRemaining() time.Duration {
	return c.timer.Remaining()
}

// Status returns a snapshot for display.
func (c *Channel) Status() ChannelStatus {
	return ChannelStatus{
		Channel:   c.id,
		State:     c.machine.State.String(),
		StationID: c.machine.StationID,
		CallRef:   c.machine.CallRef,
		DSPMode:   c.generator.Mode().String(),
	}
}
