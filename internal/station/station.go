// Package station runs the channels of one base station from a single loop.
//
// The loop is whoever calls Process, normally the audio device callback.
// Tone detection, generation and timer expiry all happen there, one chunk at
// a time. Other goroutines reach the network through Do.
package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/anetz/internal/callctl"
	"github.com/ColonelBlimp/anetz/internal/timer"
)

var (
	// ErrNoChannels indicates a station needs at least one channel
	ErrNoChannels = errors.New("station needs at least one channel")
	// ErrChannelCount indicates the buffers passed to Process do not match the channels
	ErrChannelCount = errors.New("buffer count does not match channel count")
)

// Config describes a station.
type Config struct {
	SampleRate float64
	// ChunkSize is the largest number of samples processed between two
	// clock advances
	ChunkSize int
	Channels  []callctl.ChannelConfig
}

type command struct {
	fn   func(*callctl.Network) error
	done chan error
}

// Station owns the clock, the channels and the network.
type Station struct {
	config  Config
	wheel   *timer.Wheel
	network *callctl.Network
	samples int64
	cmds    chan command
	logger  *log.Logger
}

// New creates a station with all channels in service.
func New(cfg Config, router callctl.Router, logger *log.Logger) (*Station, error) {
	if len(cfg.Channels) == 0 {
		return nil, ErrNoChannels
	}
	if cfg.SampleRate <= 0 || cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("station: sample rate %v, chunk size %d: must be positive", cfg.SampleRate, cfg.ChunkSize)
	}

	s := &Station{
		config: cfg,
		wheel:  timer.NewWheel(),
		cmds:   make(chan command, 16),
		logger: logger,
	}
	channels := make([]*callctl.Channel, 0, len(cfg.Channels))
	for _, cc := range cfg.Channels {
		ch, err := callctl.NewChannel(cc, s.wheel, router, logger)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	s.network = callctl.NewNetwork(logger, channels...)
	return s, nil
}

// Network returns the network. Only the loop may use it directly.
func (s *Station) Network() *callctl.Network {
	return s.network
}

// Now returns the station clock
func (s *Station) Now() time.Duration {
	return s.wheel.Now()
}

// Config returns the station configuration
func (s *Station) Config() Config {
	return s.config
}

// Process runs one audio period: rx[i] and tx[i] belong to channel i and
// have the same length. Pending commands run first, then the buffers are
// handled in chunks, advancing the clock after each chunk so timers expire
// between chunks.
func (s *Station) Process(rx, tx [][]float32) error {
	channels := s.network.Channels()
	if len(rx) != len(channels) || len(tx) != len(channels) {
		return fmt.Errorf("%w: %d rx, %d tx, %d channels", ErrChannelCount, len(rx), len(tx), len(channels))
	}
	s.drain()

	n := len(rx[0])
	for off := 0; off < n; off += s.config.ChunkSize {
		end := min(off+s.config.ChunkSize, n)
		for i, ch := range channels {
			ch.Process(rx[i][off:end], tx[i][off:end])
		}
		s.advance(end - off)
	}
	return nil
}

// advance moves the clock by whole samples without accumulating rounding.
func (s *Station) advance(samples int) {
	s.samples += int64(samples)
	now := time.Duration(float64(s.samples) * float64(time.Second) / s.config.SampleRate)
	s.wheel.Advance(now - s.wheel.Now())
}

func (s *Station) drain() {
	for {
		select {
		case cmd := <-s.cmds:
			cmd.done <- cmd.fn(s.network)
		default:
			return
		}
	}
}

// Do runs fn in the loop at the start of the next Process call and returns
// its result. It must not be called from the loop itself.
func (s *Station) Do(ctx context.Context, fn func(*callctl.Network) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a channel snapshot taken in the loop.
func (s *Station) Status(ctx context.Context) ([]callctl.ChannelStatus, error) {
	snapshot := make(chan []callctl.ChannelStatus, 1)
	err := s.Do(ctx, func(n *callctl.Network) error {
		snapshot <- n.Status()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return <-snapshot, nil
}
