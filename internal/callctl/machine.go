package callctl

import (
	"fmt"
	"time"

	"github.com/ColonelBlimp/anetz/internal/dsp"
	"github.com/ColonelBlimp/anetz/internal/paging"
)

// Supervisory tones as classified by the detector.
const (
	// GuardTone is sent by the base station while a channel is free or releasing
	GuardTone = dsp.ToneA
	// CallTone is sent by the mobile to call, to answer and to release
	CallTone = dsp.ToneB
)

// PlaceholderStationID is shown for a radio-originated call; the mobile does
// not identify itself.
const PlaceholderStationID = "unknown"

// State is the protocol state of a channel.
type State int

const (
	StateNull State = iota
	StateIdle
	StatePaging
	StateConnected
	StateReleasing
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateIdle:
		return "idle"
	case StatePaging:
		return "paging"
	case StateConnected:
		return "connected"
	case StateReleasing:
		return "releasing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Machine is the protocol state of one channel.
type Machine struct {
	State     State
	CallRef   uint64
	StationID string
}

// Params are the fixed protocol parameters of a channel.
type Params struct {
	PagingTimeout  time.Duration
	ReleaseHoldoff time.Duration
	// OperatorNumber is dialed for radio-originated calls
	OperatorNumber string
}

// Event is an input to Step.
type Event interface{ event() }

type (
	// Enable brings a configured channel into service.
	Enable struct{}
	// ToneDetected is a confirmed supervisory tone.
	ToneDetected struct{ Tone dsp.Tone }
	// ToneLost is the disappearance of a confirmed tone.
	ToneLost struct{ Tone dsp.Tone }
	// CarrierLost reports that the radio signal has been missing too long.
	CarrierLost struct{}
	// TimerExpired is the expiry of the channel timer.
	TimerExpired struct{}
	// Page starts a network-originated call on an idle channel.
	Page struct {
		Ref         uint64
		StationID   string
		Frequencies [paging.Tones]float64
	}
	// Disconnect is a soft teardown from the network.
	Disconnect struct{ Cause Cause }
	// Release is a hard teardown from the network.
	Release struct{ Cause Cause }
	// SessionEstablished answers a RequestSession effect.
	SessionEstablished struct{ Ref uint64 }
	// SessionRejected answers a RequestSession effect.
	SessionRejected struct{ Cause Cause }
)

func (Enable) event()             {}
func (ToneDetected) event()       {}
func (ToneLost) event()           {}
func (CarrierLost) event()        {}
func (TimerExpired) event()       {}
func (Page) event()               {}
func (Disconnect) event()         {}
func (Release) event()            {}
func (SessionEstablished) event() {}
func (SessionRejected) event()    {}

// Effect is an action the caller of Step must perform, in order.
type Effect interface{ effect() }

type (
	// TransmitGuard switches the generator to the guard tone.
	TransmitGuard struct{}
	// TransmitSilence hands the transmit path to the voice bridge.
	TransmitSilence struct{}
	// TransmitPaging switches the generator to the paging tones.
	TransmitPaging struct{ Frequencies [paging.Tones]float64 }
	// StartTimer arms the channel timer, cancelling a pending one.
	StartTimer struct{ Duration time.Duration }
	// StopTimer cancels the channel timer.
	StopTimer struct{}
	// RequestSession asks the router for a session; the result must be fed
	// back as SessionEstablished or SessionRejected.
	RequestSession struct{ CallerID, Number string }
	// NotifyAlerting forwards Router.Alerting.
	NotifyAlerting struct{ Ref uint64 }
	// NotifyAnswer forwards Router.Answer.
	NotifyAnswer struct {
		Ref       uint64
		StationID string
	}
	// NotifyRelease forwards Router.Release.
	NotifyRelease struct {
		Ref   uint64
		Cause Cause
	}
)

func (TransmitGuard) effect()   {}
func (TransmitSilence) effect() {}
func (TransmitPaging) effect()  {}
func (StartTimer) effect()      {}
func (StopTimer) effect()       {}
func (RequestSession) effect()  {}
func (NotifyAlerting) effect()  {}
func (NotifyAnswer) effect()    {}
func (NotifyRelease) effect()   {}

// Step is the transition function. It never performs I/O; events that do
// not apply to the current state leave it unchanged with no effects.
func Step(m Machine, ev Event, p Params) (Machine, []Effect) {
	switch ev := ev.(type) {
	case Enable:
		if m.State == StateNull {
			return toIdle(m, nil)
		}

	case Page:
		if m.State == StateIdle {
			m.State = StatePaging
			m.StationID = ev.StationID
			m.CallRef = ev.Ref
			return m, []Effect{
				TransmitPaging{Frequencies: ev.Frequencies},
				StartTimer{Duration: p.PagingTimeout},
				NotifyAlerting{Ref: ev.Ref},
			}
		}

	case ToneDetected:
		if ev.Tone != CallTone {
			break
		}
		switch m.State {
		case StateIdle:
			// Radio-originated call
			m.State = StateConnected
			m.StationID = PlaceholderStationID
			return m, []Effect{TransmitSilence{}}
		case StatePaging:
			// Station answers the page; the connect follows when it drops the tone
			m.State = StateConnected
			return m, []Effect{StopTimer{}, TransmitSilence{}}
		case StateConnected:
			// Tone reappears: the mobile hangs up
			return toReleasing(m, CauseNormalClearing, true, p)
		}

	case ToneLost:
		if ev.Tone != CallTone || m.State != StateConnected {
			break
		}
		if m.CallRef == 0 {
			return m, []Effect{RequestSession{CallerID: m.StationID, Number: p.OperatorNumber}}
		}
		return m, []Effect{NotifyAnswer{Ref: m.CallRef, StationID: m.StationID}}

	case CarrierLost:
		if m.State == StateConnected {
			return toReleasing(m, CauseTemporaryFailure, true, p)
		}

	case TimerExpired:
		switch m.State {
		case StatePaging:
			return toIdle(m, []Effect{NotifyRelease{Ref: m.CallRef, Cause: CauseNoAnswer}})
		case StateReleasing:
			return toIdle(m, nil)
		}

	case Disconnect:
		// Soft: paging is cancelled, a connected radio side may continue
		if m.State == StatePaging {
			return toIdle(m, []Effect{StopTimer{}, NotifyRelease{Ref: m.CallRef, Cause: ev.Cause}})
		}

	case Release:
		switch m.State {
		case StatePaging:
			return toIdle(m, []Effect{StopTimer{}})
		case StateConnected:
			return toReleasing(m, ev.Cause, false, p)
		}

	case SessionEstablished:
		if m.State == StateConnected && m.CallRef == 0 {
			m.CallRef = ev.Ref
			return m, nil
		}

	case SessionRejected:
		if m.State == StateConnected && m.CallRef == 0 {
			return toReleasing(m, ev.Cause, false, p)
		}
	}

	return m, nil
}

func toIdle(m Machine, effects []Effect) (Machine, []Effect) {
	m.StationID = ""
	m.State = StateIdle
	m.CallRef = 0
	return m, append(effects, TransmitGuard{})
}

// toReleasing sends the guard tone for the hold-off. The session is released
// upstream only when the radio side ended it.
func toReleasing(m Machine, cause Cause, notify bool, p Params) (Machine, []Effect) {
	var effects []Effect
	if notify && m.CallRef != 0 {
		effects = append(effects, NotifyRelease{Ref: m.CallRef, Cause: cause})
	}
	m.State = StateReleasing
	m.CallRef = 0
	return m, append(effects, TransmitGuard{}, StartTimer{Duration: p.ReleaseHoldoff})
}
