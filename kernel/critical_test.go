package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnableSchedulerUnbalanced(t *testing.T) {
	ts := newTestSystem(t)
	require.True(t, ts.s.Enabled())
	require.ErrorIs(t, ts.s.EnableScheduler(), ErrNotDisabled)

	ts.s.DisableScheduler()
	ts.s.DisableScheduler()
	require.NoError(t, ts.s.EnableScheduler())
	require.False(t, ts.s.Enabled())
	require.NoError(t, ts.s.EnableScheduler())
	require.True(t, ts.s.Enabled())
}

func TestCriticalSectionExitIsIdempotent(t *testing.T) {
	ts := newTestSystem(t)
	cs := ts.s.Enter()
	require.False(t, ts.s.Enabled())
	cs.Exit()
	cs.Exit()
	require.True(t, ts.s.Enabled())
}

func TestTimerDefersWhileDisabled(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("pair")
	u := ts.spawn(p, PriorityHigh)
	v := ts.spawn(p, PriorityHigh)

	ts.tick()
	require.Same(t, u, ts.s.Current())
	require.NoError(t, ts.s.SleepThread(v, 3))
	ts.tick()
	require.Equal(t, StateSleeping, v.State())
	count := ts.s.Queues().Count()

	ts.s.DisableScheduler()
	ts.tick()
	ts.tick()
	require.Same(t, u, ts.s.Current())
	require.Equal(t, count, ts.s.Queues().Count())
	require.Equal(t, int64(3), v.SleepRemaining())
	require.NoError(t, ts.s.EnableScheduler())

	// The carried-over ticks are charged together.
	ts.tick()
	require.Same(t, v, ts.s.Current())
	require.Equal(t, StateReady, u.State())
}

func TestYieldIgnoresDisabledScheduler(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("pair")
	u := ts.spawn(p, PriorityHigh)
	v := ts.spawn(p, PriorityHigh)

	ts.tick()
	require.Same(t, u, ts.s.Current())

	cs := ts.s.Enter()
	ts.s.Yield()
	cs.Exit()
	require.Same(t, v, ts.s.Current())
}
