// Package routing is a minimal call routing for a standalone base station.
// It hands out session references and records what the channels report.
package routing

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/anetz/internal/callctl"
)

// Session states
const (
	StateSetup    = "setup"
	StateAlerting = "alerting"
	StateActive   = "active"
	StateReleased = "released"
)

// Session is one call as seen by the routing.
type Session struct {
	Ref       uint64        `yaml:"ref"`
	CallerID  string        `yaml:"caller_id,omitempty"`
	Number    string        `yaml:"number,omitempty"`
	StationID string        `yaml:"station_id,omitempty"`
	State     string        `yaml:"state"`
	Cause     callctl.Cause `yaml:"-"`
	CauseText string        `yaml:"cause,omitempty"`
}

// Router implements callctl.Router by logging.
type Router struct {
	mu       sync.Mutex
	next     uint64
	sessions map[uint64]*Session
	order    []uint64
	logger   *log.Logger
}

var _ callctl.Router = (*Router)(nil)

// New creates a router.
func New(logger *log.Logger) *Router {
	return &Router{
		sessions: make(map[uint64]*Session),
		logger:   logger.With("component", "routing"),
	}
}

// Dial allocates a reference for a network-originated call. The call only
// exists once callctl.Network.Setup accepted it.
func (r *Router) Dial(callerID, number string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(callerID, number)
}

// Rejected records a setup refused by the network.
func (r *Router) Rejected(ref uint64, err error) {
	cause := callctl.CauseOf(err)
	r.logger.Warn("call rejected", "ref", ref, "cause", cause, "err", err)
	r.update(ref, func(s *Session) { r.release(s, cause) })
}

func (r *Router) add(callerID, number string) uint64 {
	r.next++
	ref := r.next
	r.sessions[ref] = &Session{Ref: ref, CallerID: callerID, Number: number, State: StateSetup}
	r.order = append(r.order, ref)
	return ref
}

func (r *Router) update(ref uint64, fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[ref]; ok {
		fn(s)
		return
	}
	r.logger.Warn("unknown session", "ref", ref)
}

func (r *Router) release(s *Session, cause callctl.Cause) {
	s.State = StateReleased
	s.Cause = cause
	s.CauseText = cause.String()
}

// Setup accepts every radio-originated call.
func (r *Router) Setup(callerID, number string) (uint64, error) {
	r.mu.Lock()
	ref := r.add(callerID, number)
	r.sessions[ref].State = StateActive
	r.mu.Unlock()

	r.logger.Info("call from radio", "ref", ref, "caller", callerID, "number", number)
	return ref, nil
}

// Alerting records that the station is paged.
func (r *Router) Alerting(ref uint64) {
	r.logger.Info("alerting", "ref", ref)
	r.update(ref, func(s *Session) { s.State = StateAlerting })
}

// Answer records that the station answered.
func (r *Router) Answer(ref uint64, stationID string) {
	r.logger.Info("answer", "ref", ref, "station", stationID)
	r.update(ref, func(s *Session) {
		s.State = StateActive
		s.StationID = stationID
	})
}

// Release records the end of a call from the radio side.
func (r *Router) Release(ref uint64, cause callctl.Cause) {
	r.logger.Info("release", "ref", ref, "cause", cause)
	r.update(ref, func(s *Session) { r.release(s, cause) })
}

// Session returns a copy of the session, false if unknown.
func (r *Router) Session(ref uint64) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ref]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Sessions returns all sessions in creation order.
func (r *Router) Sessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.order))
	for _, ref := range r.order {
		out = append(out, *r.sessions[ref])
	}
	return out
}
