package callctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/ColonelBlimp/anetz/internal/dsp"
)

var testParams = Params{
	PagingTimeout:  time.Second,
	ReleaseHoldoff: 300 * time.Millisecond,
	OperatorNumber: "01010",
}

var testFreqs = [4]float64{352.5, 367.5, 382.5, 397.5}

func TestStep(t *testing.T) {
	idle := Machine{State: StateIdle}
	paging := Machine{State: StatePaging, CallRef: 7, StationID: "01234"}
	connected := Machine{State: StateConnected, CallRef: 7, StationID: "01234"}
	originating := Machine{State: StateConnected, StationID: PlaceholderStationID}
	releasing := Machine{State: StateReleasing, StationID: "01234"}

	tests := []struct {
		name    string
		from    Machine
		event   Event
		to      Machine
		effects []Effect
	}{
		{
			name:    "enable",
			from:    Machine{},
			event:   Enable{},
			to:      idle,
			effects: []Effect{TransmitGuard{}},
		},
		{
			name:  "page idle channel",
			from:  idle,
			event: Page{Ref: 7, StationID: "01234", Frequencies: testFreqs},
			to:    paging,
			effects: []Effect{
				TransmitPaging{Frequencies: testFreqs},
				StartTimer{Duration: time.Second},
				NotifyAlerting{Ref: 7},
			},
		},
		{
			name:    "page ignored when not idle",
			from:    connected,
			event:   Page{Ref: 8, StationID: "55555", Frequencies: testFreqs},
			to:      connected,
			effects: nil,
		},
		{
			name:    "call tone in idle starts radio call",
			from:    idle,
			event:   ToneDetected{Tone: CallTone},
			to:      originating,
			effects: []Effect{TransmitSilence{}},
		},
		{
			name:    "guard tone in idle ignored",
			from:    idle,
			event:   ToneDetected{Tone: GuardTone},
			to:      idle,
			effects: nil,
		},
		{
			name:    "call tone answers page",
			from:    paging,
			event:   ToneDetected{Tone: CallTone},
			to:      connected,
			effects: []Effect{StopTimer{}, TransmitSilence{}},
		},
		{
			name:    "call tone lost after answer",
			from:    connected,
			event:   ToneLost{Tone: CallTone},
			to:      connected,
			effects: []Effect{NotifyAnswer{Ref: 7, StationID: "01234"}},
		},
		{
			name:    "call tone lost on radio call requests session",
			from:    originating,
			event:   ToneLost{Tone: CallTone},
			to:      originating,
			effects: []Effect{RequestSession{CallerID: PlaceholderStationID, Number: "01010"}},
		},
		{
			name:  "call tone in connected releases",
			from:  connected,
			event: ToneDetected{Tone: CallTone},
			to:    releasing,
			effects: []Effect{
				NotifyRelease{Ref: 7, Cause: CauseNormalClearing},
				TransmitGuard{},
				StartTimer{Duration: 300 * time.Millisecond},
			},
		},
		{
			name:  "carrier loss in connected",
			from:  connected,
			event: CarrierLost{},
			to:    releasing,
			effects: []Effect{
				NotifyRelease{Ref: 7, Cause: CauseTemporaryFailure},
				TransmitGuard{},
				StartTimer{Duration: 300 * time.Millisecond},
			},
		},
		{
			name:  "carrier loss before session has nothing to release",
			from:  originating,
			event: CarrierLost{},
			to:    Machine{State: StateReleasing, StationID: PlaceholderStationID},
			effects: []Effect{
				TransmitGuard{},
				StartTimer{Duration: 300 * time.Millisecond},
			},
		},
		{
			name:    "carrier loss in paging ignored",
			from:    paging,
			event:   CarrierLost{},
			to:      paging,
			effects: nil,
		},
		{
			name:    "paging timeout",
			from:    paging,
			event:   TimerExpired{},
			to:      idle,
			effects: []Effect{NotifyRelease{Ref: 7, Cause: CauseNoAnswer}, TransmitGuard{}},
		},
		{
			name:    "hold-off expiry",
			from:    releasing,
			event:   TimerExpired{},
			to:      idle,
			effects: []Effect{TransmitGuard{}},
		},
		{
			name:    "releasing ignores call tone",
			from:    releasing,
			event:   ToneDetected{Tone: CallTone},
			to:      releasing,
			effects: nil,
		},
		{
			name:    "releasing ignores tone loss",
			from:    releasing,
			event:   ToneLost{Tone: CallTone},
			to:      releasing,
			effects: nil,
		},
		{
			name:    "disconnect while paging",
			from:    paging,
			event:   Disconnect{Cause: CauseNormalClearing},
			to:      idle,
			effects: []Effect{StopTimer{}, NotifyRelease{Ref: 7, Cause: CauseNormalClearing}, TransmitGuard{}},
		},
		{
			name:    "disconnect while connected ignored",
			from:    connected,
			event:   Disconnect{Cause: CauseNormalClearing},
			to:      connected,
			effects: nil,
		},
		{
			name:    "release while paging",
			from:    paging,
			event:   Release{Cause: CauseNormalClearing},
			to:      idle,
			effects: []Effect{StopTimer{}, TransmitGuard{}},
		},
		{
			name:    "release while connected",
			from:    connected,
			event:   Release{Cause: CauseNormalClearing},
			to:      releasing,
			effects: []Effect{TransmitGuard{}, StartTimer{Duration: 300 * time.Millisecond}},
		},
		{
			name:    "session established",
			from:    originating,
			event:   SessionEstablished{Ref: 42},
			to:      Machine{State: StateConnected, CallRef: 42, StationID: PlaceholderStationID},
			effects: nil,
		},
		{
			name:    "session rejected",
			from:    originating,
			event:   SessionRejected{Cause: CauseBusy},
			to:      Machine{State: StateReleasing, StationID: PlaceholderStationID},
			effects: []Effect{TransmitGuard{}, StartTimer{Duration: 300 * time.Millisecond}},
		},
		{
			name:    "late session result ignored",
			from:    connected,
			event:   SessionEstablished{Ref: 42},
			to:      connected,
			effects: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects := Step(tt.from, tt.event, testParams)
			assert.Equal(t, tt.to, got)
			assert.Equal(t, tt.effects, effects)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "releasing", StateReleasing.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func drawEvent(t *rapid.T) Event {
	tones := []dsp.Tone{GuardTone, CallTone}
	causes := []Cause{CauseNormalClearing, CauseBusy, CauseTemporaryFailure}
	switch rapid.IntRange(0, 9).Draw(t, "kind") {
	case 0:
		return Enable{}
	case 1:
		return ToneDetected{Tone: rapid.SampledFrom(tones).Draw(t, "tone")}
	case 2:
		return ToneLost{Tone: rapid.SampledFrom(tones).Draw(t, "tone")}
	case 3:
		return CarrierLost{}
	case 4:
		return TimerExpired{}
	case 5:
		return Page{
			Ref:         rapid.Uint64Range(1, 1000).Draw(t, "ref"),
			StationID:   rapid.StringMatching(`[0-9]{5}`).Draw(t, "station"),
			Frequencies: testFreqs,
		}
	case 6:
		return Disconnect{Cause: rapid.SampledFrom(causes).Draw(t, "cause")}
	case 7:
		return Release{Cause: rapid.SampledFrom(causes).Draw(t, "cause")}
	case 8:
		return SessionEstablished{Ref: rapid.Uint64Range(1, 1000).Draw(t, "ref")}
	default:
		return SessionRejected{Cause: rapid.SampledFrom(causes).Draw(t, "cause")}
	}
}

// Any event sequence keeps the per-state bookkeeping consistent.
func TestStep_Invariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := Machine{}
		events := rapid.SliceOfN(rapid.Custom(drawEvent), 1, 60).Draw(t, "events")
		for _, ev := range events {
			prev := m
			var effects []Effect
			m, effects = Step(m, ev, testParams)

			switch m.State {
			case StateNull, StateIdle:
				if m.StationID != "" || m.CallRef != 0 {
					t.Fatalf("%v carries a call: %+v", m.State, m)
				}
			case StatePaging:
				if m.CallRef == 0 || m.StationID == "" {
					t.Fatalf("paging without call: %+v", m)
				}
			case StateReleasing:
				if m.CallRef != 0 {
					t.Fatalf("releasing keeps reference: %+v", m)
				}
			}

			for _, e := range effects {
				if r, ok := e.(NotifyRelease); ok && (r.Ref == 0 || r.Ref != prev.CallRef) {
					t.Fatalf("release of %d from %+v", r.Ref, prev)
				}
			}

			// Releasing only leaves through its timer
			if prev.State == StateReleasing && m.State != StateReleasing {
				if _, ok := ev.(TimerExpired); !ok {
					t.Fatalf("left releasing on %T", ev)
				}
			}
		}
	})
}
