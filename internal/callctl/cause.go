// Package callctl implements the call-control state machine of a tone
// signaled radio channel and the network of channels it belongs to.
package callctl

import (
	"errors"
	"fmt"
)

// Cause tells the call routing why a session ends or was refused.
type Cause int

const (
	CauseNormalClearing Cause = iota + 1
	CauseNoAnswer
	CauseTemporaryFailure
	CauseBusy
	CauseInvalidNumber
	CauseNoChannel
	CauseInvalidReference
)

func (c Cause) String() string {
	switch c {
	case CauseNormalClearing:
		return "normal-clearing"
	case CauseNoAnswer:
		return "no-answer"
	case CauseTemporaryFailure:
		return "temporary-failure"
	case CauseBusy:
		return "busy"
	case CauseInvalidNumber:
		return "invalid-number"
	case CauseNoChannel:
		return "no-channel-available"
	case CauseInvalidReference:
		return "invalid-session-reference"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

var (
	// ErrBusy indicates the station is already in a call on some channel
	ErrBusy = errors.New("station is busy")
	// ErrNoChannel indicates no channel is idle
	ErrNoChannel = errors.New("no idle channel")
	// ErrUnknownReference indicates no channel serves the session reference
	ErrUnknownReference = errors.New("unknown session reference")
)

// CauseError is a rejection returned synchronously to the call routing.
type CauseError struct {
	Cause Cause
	Err   error
}

func (e *CauseError) Error() string {
	if e.Err == nil {
		return e.Cause.String()
	}
	return e.Cause.String() + ": " + e.Err.Error()
}

func (e *CauseError) Unwrap() error {
	return e.Err
}

func reject(cause Cause, err error) error {
	return &CauseError{Cause: cause, Err: err}
}

// CauseOf extracts the cause of a rejection, zero if err carries none.
func CauseOf(err error) Cause {
	var ce *CauseError
	if errors.As(err, &ce) {
		return ce.Cause
	}
	return 0
}

// Router is the call-routing side a channel reports to.
// Calls are made from the channel's loop and must not block.
type Router interface {
	// Setup requests a new session for a radio-originated call.
	Setup(callerID, number string) (uint64, error)
	// Alerting tells that the called station is being paged.
	Alerting(ref uint64)
	// Answer tells that the station answered.
	Answer(ref uint64, stationID string)
	// Release ends the session from the radio side.
	Release(ref uint64, cause Cause)
}
