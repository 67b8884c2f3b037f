package callctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ColonelBlimp/anetz/internal/paging"
)

func TestNetwork_Setup_InvalidNumber(t *testing.T) {
	h := newHarness(t, 1)

	for _, number := range []string{"1234", "12a45", "01134"} {
		err := h.network.Setup(7, "operator", number)
		require.Error(t, err, number)
		assert.Equal(t, CauseInvalidNumber, CauseOf(err), number)
	}
	assert.ErrorIs(t, h.network.Setup(7, "operator", "01134"), paging.ErrDuplicateTone)

	assert.Equal(t, StateIdle, h.channel().State())
	assert.Empty(t, h.router.calls)
}

func TestNetwork_Setup_Busy(t *testing.T) {
	h := newHarness(t, 2)
	require.NoError(t, h.network.Setup(7, "operator", "01234"))

	// Re-dial while paging, long form with prefix
	err := h.network.Setup(8, "operator", "4401234")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, CauseBusy, CauseOf(err))

	chs := h.network.Channels()
	assert.Equal(t, StatePaging, chs[0].State())
	assert.Equal(t, StateIdle, chs[1].State(), "second channel untouched")

	// Still busy once connected
	h.send(testCallTone, 50*time.Millisecond)
	assert.ErrorIs(t, h.network.Setup(9, "operator", "01234"), ErrBusy)

	// A different station gets the second channel
	require.NoError(t, h.network.Setup(10, "operator", "91112"))
	assert.Equal(t, StatePaging, chs[1].State())
	assert.Equal(t, uint64(10), chs[1].Machine().CallRef)
}

func TestNetwork_Setup_NoChannel(t *testing.T) {
	h := newHarness(t, 1)
	require.NoError(t, h.network.Setup(7, "operator", "01234"))

	err := h.network.Setup(8, "operator", "91112")
	assert.ErrorIs(t, err, ErrNoChannel)
	assert.Equal(t, CauseNoChannel, CauseOf(err))
}

func TestNetwork_Setup_Reference(t *testing.T) {
	h := newHarness(t, 2)

	assert.Equal(t, CauseInvalidReference, CauseOf(h.network.Setup(0, "operator", "01234")))

	require.NoError(t, h.network.Setup(7, "operator", "01234"))
	err := h.network.Setup(7, "operator", "91112")
	assert.ErrorIs(t, err, ErrReferenceInUse)
}

func TestNetwork_DoubleRelease(t *testing.T) {
	h := newHarness(t, 1)
	c := h.channel()
	h.answerPage(7, "01234")
	calls := len(h.router.calls)

	require.NoError(t, h.network.Release(7, CauseNormalClearing))
	assert.Equal(t, StateReleasing, c.State())
	assert.Len(t, h.router.calls, calls, "no upstream release for network teardown")
	remaining := c.TimerRemaining()

	err := h.network.Release(7, CauseNormalClearing)
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Equal(t, CauseInvalidReference, CauseOf(err))
	assert.Equal(t, StateReleasing, c.State())
	assert.Equal(t, remaining, c.TimerRemaining(), "hold-off not restarted")
	assert.Len(t, h.router.calls, calls)
}

func TestNetwork_ReleaseWhilePaging(t *testing.T) {
	h := newHarness(t, 1)
	require.NoError(t, h.network.Setup(7, "operator", "01234"))

	require.NoError(t, h.network.Release(7, CauseNormalClearing))
	assert.Equal(t, StateIdle, h.channel().State())
	assert.Zero(t, h.channel().TimerRemaining())
	assert.Equal(t, []string{"alerting"}, h.verbs())
}

func TestNetwork_Disconnect(t *testing.T) {
	t.Run("paging", func(t *testing.T) {
		h := newHarness(t, 1)
		require.NoError(t, h.network.Setup(7, "operator", "01234"))

		require.NoError(t, h.network.Disconnect(7, CauseBusy))
		assert.Equal(t, StateIdle, h.channel().State())
		assert.Equal(t, routerCall{Verb: "release", Ref: 7, Cause: CauseBusy}, h.router.calls[1])

		// Nothing left to time out
		h.send(0, 2*time.Second)
		assert.Len(t, h.router.calls, 2)
	})

	t.Run("connected", func(t *testing.T) {
		h := newHarness(t, 1)
		h.answerPage(7, "01234")
		calls := len(h.router.calls)

		require.NoError(t, h.network.Disconnect(7, CauseNormalClearing))
		assert.Equal(t, StateConnected, h.channel().State())
		assert.Len(t, h.router.calls, calls)
	})

	t.Run("unknown reference", func(t *testing.T) {
		h := newHarness(t, 1)
		assert.Equal(t, CauseInvalidReference, CauseOf(h.network.Disconnect(99, CauseNormalClearing)))
	})
}

type stubDirectory struct {
	busy, idle *Channel
}

func (d stubDirectory) FindBusy(string) *Channel { return d.busy }
func (d stubDirectory) FindIdle() *Channel       { return d.idle }

func TestNetwork_SetDirectory(t *testing.T) {
	h := newHarness(t, 2)
	second := h.network.Channels()[1]

	h.network.SetDirectory(stubDirectory{idle: second})
	require.NoError(t, h.network.Setup(7, "operator", "01234"))
	assert.Equal(t, StatePaging, second.State())
	assert.Equal(t, StateIdle, h.channel().State())

	h.network.SetDirectory(stubDirectory{busy: second})
	assert.ErrorIs(t, h.network.Setup(8, "operator", "91112"), ErrBusy)
}

func TestNetwork_Setup_DirectoryReturnsBusyChannel(t *testing.T) {
	h := newHarness(t, 1)
	c := h.channel()
	require.NoError(t, h.network.Setup(7, "operator", "01234"))
	calls := len(h.router.calls)

	h.network.SetDirectory(stubDirectory{idle: c})
	err := h.network.Setup(8, "operator", "91112")
	assert.ErrorIs(t, err, ErrNoChannel)
	assert.Equal(t, CauseNoChannel, CauseOf(err))

	assert.Equal(t, StatePaging, c.State())
	assert.Equal(t, uint64(7), c.Machine().CallRef)
	assert.Equal(t, "01234", c.Machine().StationID)
	assert.Len(t, h.router.calls, calls)
}

func TestNetwork_Status(t *testing.T) {
	h := newHarness(t, 2)
	require.NoError(t, h.network.Setup(7, "operator", "01234"))

	status := h.network.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "paging", status[0].State)
	assert.Equal(t, ChannelStatus{Channel: 2, State: "idle", DSPMode: "tone"}, status[1])
}

func TestCauseError(t *testing.T) {
	err := reject(CauseBusy, ErrBusy)
	assert.Equal(t, "busy: station is busy", err.Error())
	assert.Equal(t, "no-answer", (&CauseError{Cause: CauseNoAnswer}).Error())
	assert.Equal(t, Cause(0), CauseOf(assert.AnError))
	assert.Equal(t, "cause(42)", Cause(42).String())
}
