package illusion

import (
	"errors"
	"testing"
	"time"

	"github.com/shadowd/server/internal/core/timer"
	"github.com/shadowd/server/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var spot = geom.Vec3{X: -12, Y: 40, Z: 25}

func TestOpenIllusionMessageOrderWithRoster(t *testing.T) {
	tr := &recordingTransport{roster: true}
	f := newSequencerFixture(tr, &scriptedRand{ints: []int{0, 2}}, testSettings())

	h, err := f.seq.OpenIllusion(observerAt(1, geom.Vec3{Y: 40}), spot)
	require.NoError(t, err)
	assert.Equal(t, StateVisible, h.State)
	assert.True(t, h.RosterPublished)
	assert.Equal(t, []string{"roster_add", "spawn", "metadata", "head"}, tr.ops())
	for _, c := range tr.calls {
		assert.Equal(t, ObserverID(1), c.To, "messages only go to the owning observer")
	}

	got, ok := f.reg.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().Add(3*time.Second), got.DestroyAt)

	f.advance(750 * time.Millisecond)
	assert.Equal(t, "roster_remove", tr.ops()[4], "roster entry lingers briefly")
	_, ok = f.reg.Lookup(1)
	assert.True(t, ok)

	f.advance(2250 * time.Millisecond)
	assert.Equal(t, []string{"roster_add", "spawn", "metadata", "head", "roster_remove", "destroy"}, tr.ops())
	_, ok = f.reg.Lookup(1)
	assert.False(t, ok)
	assert.Equal(t, []string{
		"Inactive>Announced", "Announced>Visible", "Visible>Withdrawing", "Withdrawing>Destroyed",
	}, f.log.list())
}

func TestOpenIllusionWithoutRosterSkipsIdentityMessages(t *testing.T) {
	tr := &recordingTransport{}
	f := newSequencerFixture(tr, &scriptedRand{}, testSettings())

	_, err := f.seq.OpenIllusion(observerAt(1, geom.Vec3{}), spot)
	require.NoError(t, err)
	f.advance(time.Second)

	assert.Equal(t, []string{"spawn", "metadata", "head", "destroy"}, tr.ops())
}

func TestCloseIllusionTwiceEmitsOneRemoval(t *testing.T) {
	tr := &recordingTransport{roster: true}
	f := newSequencerFixture(tr, &scriptedRand{}, testSettings())

	_, err := f.seq.OpenIllusion(observerAt(2, geom.Vec3{}), spot)
	require.NoError(t, err)

	assert.True(t, f.seq.CloseIllusion(2))
	assert.False(t, f.seq.CloseIllusion(2))
	assert.Equal(t, 1, tr.count("destroy"))
	assert.Equal(t, 1, tr.count("roster_remove"))
}

func TestRevealBeforeScheduledRemoval(t *testing.T) {
	tr := &recordingTransport{roster: true}
	f := newSequencerFixture(tr, &scriptedRand{ints: []int{0, 2}}, testSettings())

	_, err := f.seq.OpenIllusion(observerAt(3, geom.Vec3{}), spot)
	require.NoError(t, err)

	f.advance(500 * time.Millisecond)
	require.True(t, f.seq.CloseIllusion(3))
	_, ok := f.reg.Lookup(3)
	assert.False(t, ok, "reveal clears the session immediately")
	assert.Equal(t, 1, tr.count("destroy"))
	assert.Equal(t, 1, tr.count("roster_remove"))

	f.advance(5 * time.Second)
	assert.Equal(t, 1, tr.count("destroy"), "the scheduled removal finds nothing to do")
	assert.Equal(t, 1, tr.count("roster_remove"))
	assert.Zero(t, f.timers.Len())
}

func TestScheduledRemovalIgnoresNewerSession(t *testing.T) {
	tr := &recordingTransport{}
	f := newSequencerFixture(tr, &scriptedRand{ints: []int{0, 2, 1, 2}}, testSettings())
	obs := observerAt(4, geom.Vec3{})

	_, err := f.seq.OpenIllusion(obs, spot) // removal due at +3s
	require.NoError(t, err)
	f.advance(time.Second)
	require.True(t, f.seq.CloseIllusion(4))

	second, err := f.seq.OpenIllusion(obs, spot) // removal due at +1s+3s
	require.NoError(t, err)

	f.advance(2 * time.Second) // first removal fires here
	got, ok := f.reg.Lookup(4)
	require.True(t, ok)
	assert.Equal(t, second.Serial, got.Serial)
	assert.Equal(t, 1, tr.count("destroy"))

	f.advance(time.Second)
	_, ok = f.reg.Lookup(4)
	assert.False(t, ok)
	assert.Equal(t, 2, tr.count("destroy"))
}

func TestDegradedModeMatchesFullTransitions(t *testing.T) {
	full := newSequencerFixture(&recordingTransport{roster: true}, &scriptedRand{}, testSettings())
	degraded := newSequencerFixture(nil, &scriptedRand{}, testSettings())
	require.True(t, degraded.seq.Degraded())
	require.False(t, full.seq.Degraded())

	for _, f := range []*sequencerFixture{full, degraded} {
		h, err := f.seq.OpenIllusion(observerAt(5, geom.Vec3{}), spot)
		require.NoError(t, err)
		assert.Equal(t, StateVisible, h.State)
		_, err = f.seq.OpenIllusion(observerAt(5, geom.Vec3{}), spot)
		require.ErrorIs(t, err, ErrAlreadyActive)
		f.advance(time.Second)
		_, ok := f.reg.Lookup(5)
		assert.False(t, ok)
	}
	assert.Equal(t, full.log.list(), degraded.log.list())
	assert.False(t, degraded.seq.CloseIllusion(5))
}

func TestDegradedModeRevealClosesSession(t *testing.T) {
	f := newSequencerFixture(nil, &scriptedRand{ints: []int{0, 2}}, testSettings())

	_, err := f.seq.OpenIllusion(observerAt(9, geom.Vec3{}), spot)
	require.NoError(t, err)
	assert.True(t, f.seq.CloseIllusion(9))
	f.advance(5 * time.Second)
	assert.Equal(t, 0, f.reg.Len())
}

func TestSendFailureForceClosesSession(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		failOp  string
		failErr error
		want    []string
	}{
		{"roster gone", "roster_add", ErrObserverGone, []string{}},
		{"spawn fails", "spawn", boom, []string{"roster_add", "roster_remove"}},
		{"metadata gone", "metadata", ErrObserverGone, []string{"roster_add", "spawn"}},
		{"head fails", "head", boom, []string{"roster_add", "spawn", "metadata", "destroy", "roster_remove"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &recordingTransport{roster: true, failOp: tt.failOp, failEr: tt.failErr}
			f := newSequencerFixture(tr, &scriptedRand{}, testSettings())

			_, err := f.seq.OpenIllusion(observerAt(6, geom.Vec3{}), spot)
			require.ErrorIs(t, err, tt.failErr)

			_, ok := f.reg.Lookup(6)
			assert.False(t, ok, "no session stuck half-open")
			assert.Equal(t, tt.want, tr.ops())

			f.advance(10 * time.Second)
			assert.Equal(t, tt.want, tr.ops(), "nothing left scheduled")
			assert.Zero(t, f.timers.Len())
		})
	}
}

func TestAbortLogsCleanupFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tr := &recordingTransport{roster: true, failOp: "head", failEr: errors.New("boom"), cleanupErr: errors.New("reset")}
	c := newClock()
	q := timer.NewQueue(c.Now)
	rng := &scriptedRand{}
	reg := NewRegistry(rng, c.Now)
	settings := testSettings()
	seq := NewSequencer(reg, tr, q, rng, func() Settings { return settings }, c.Now, zap.New(core))

	_, err := seq.OpenIllusion(observerAt(6, geom.Vec3{}), spot)
	require.Error(t, err)
	_, ok := reg.Lookup(6)
	assert.False(t, ok)

	destroy := logs.FilterMessage("幻影清除失敗").All()
	require.Len(t, destroy, 1)
	assert.Equal(t, zap.DebugLevel, destroy[0].Level)
	assert.Equal(t, "reset", destroy[0].ContextMap()["error"])
	assert.Equal(t, 1, logs.FilterMessage("幻影名單撤回失敗").Len())
}
