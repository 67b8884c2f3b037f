package callctl

import (
	"errors"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/anetz/internal/paging"
)

// ErrReferenceInUse indicates a setup reused the reference of an ongoing call
var ErrReferenceInUse = errors.New("session reference already in use")

// ChannelStatus is a display snapshot of one channel.
type ChannelStatus struct {
	Channel   int    `yaml:"channel"`
	State     string `yaml:"state"`
	StationID string `yaml:"station_id,omitempty"`
	CallRef   uint64 `yaml:"call_ref,omitempty"`
	DSPMode   string `yaml:"dsp_mode"`
}

// Directory finds channels for a network-originated call.
type Directory interface {
	// FindBusy returns the channel serving the station, nil if none.
	FindBusy(stationID string) *Channel
	// FindIdle returns a channel free for paging, nil if none.
	FindIdle() *Channel
}

// Network is the set of channels of one base station and the entry point for
// the call routing. Like Channel it must be used from the owning loop.
type Network struct {
	channels []*Channel
	dir      Directory
	logger   *log.Logger
}

// NewNetwork creates a network that scans its own channels.
func NewNetwork(logger *log.Logger, channels ...*Channel) *Network {
	n := &Network{channels: channels, logger: logger}
	n.dir = n
	return n
}

// SetDirectory replaces the channel lookup used by Setup.
func (n *Network) SetDirectory(dir Directory) {
	n.dir = dir
}

// Channels returns the channels in configuration order
func (n *Network) Channels() []*Channel {
	return n.channels
}

// FindBusy returns the channel whose call involves the station.
func (n *Network) FindBusy(stationID string) *Channel {
	for _, c := range n.channels {
		switch c.State() {
		case StateNull, StateIdle:
			continue
		}
		if c.machine.StationID == stationID {
			return c
		}
	}
	return nil
}

// FindIdle returns the first idle channel.
func (n *Network) FindIdle() *Channel {
	for _, c := range n.channels {
		if c.State() == StateIdle {
			return c
		}
	}
	return nil
}

// FindRef returns the channel serving the session, nil if none.
func (n *Network) FindRef(ref uint64) *Channel {
	if ref == 0 {
		return nil
	}
	for _, c := range n.channels {
		if c.machine.CallRef == ref {
			return c
		}
	}
	return nil
}

// Setup starts paging the station dialed by number. The number is validated
// before any channel is touched; a rejection leaves all channels unchanged.
func (n *Network) Setup(ref uint64, callerID, number string) error {
	if ref == 0 {
		return reject(CauseInvalidReference, ErrUnknownReference)
	}
	if n.FindRef(ref) != nil {
		return reject(CauseInvalidReference, ErrReferenceInUse)
	}

	freqs, err := paging.Frequencies(number)
	if err != nil {
		n.logger.Warn("setup rejected", "ref", ref, "number", number, "err", err)
		return reject(CauseInvalidNumber, err)
	}
	station, err := paging.Suffix(number)
	if err != nil {
		return reject(CauseInvalidNumber, err)
	}

	if c := n.dir.FindBusy(station); c != nil {
		n.logger.Warn("setup rejected", "ref", ref, "station", station, "busy_on", c.ID())
		return reject(CauseBusy, ErrBusy)
	}
	c := n.dir.FindIdle()
	if c == nil {
		n.logger.Warn("setup rejected", "ref", ref, "station", station, "cause", CauseNoChannel)
		return reject(CauseNoChannel, ErrNoChannel)
	}

	if err := c.page(ref, station, freqs); err != nil {
		n.logger.Warn("setup rejected", "ref", ref, "station", station, "channel", c.ID(), "err", err)
		return err
	}
	n.logger.Info("paging", "ref", ref, "caller", callerID, "station", station, "channel", c.ID(), "tones", freqs)
	return nil
}

// Disconnect is a soft teardown: paging stops, a connected call is left to
// the radio side.
func (n *Network) Disconnect(ref uint64, cause Cause) error {
	c := n.FindRef(ref)
	if c == nil {
		return reject(CauseInvalidReference, ErrUnknownReference)
	}
	n.logger.Info("disconnect", "ref", ref, "cause", cause, "channel", c.ID())
	c.handle(Disconnect{Cause: cause})
	return nil
}

// Release tears the call down. Nothing is reported back upstream.
func (n *Network) Release(ref uint64, cause Cause) error {
	c := n.FindRef(ref)
	if c == nil {
		return reject(CauseInvalidReference, ErrUnknownReference)
	}
	n.logger.Info("release", "ref", ref, "cause", cause, "channel", c.ID())
	c.handle(Release{Cause: cause})
	return nil
}

// Status returns a snapshot of every channel.
func (n *Network) Status() []ChannelStatus {
	out := make([]ChannelStatus, 0, len(n.channels))
	for _, c := range n.channels {
		out = append(out, c.Status())
	}
	return out
}
