package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// requireSingleHome checks that every live thread sits in exactly one
// of: a run queue, the pending list, the sleep list, or the processor.
func requireSingleHome(t *testing.T, s *Scheduler) {
	t.Helper()
	for _, th := range s.Threads() {
		homes := 0
		for class := range s.queues.queues {
			if s.queues.queues[class].Contains(th) {
				homes++
			}
		}
		if s.pending.Contains(th) {
			homes++
		}
		if s.sleeping.Contains(th) {
			homes++
		}
		if s.current == th {
			homes++
		}
		require.Equal(t, 1, homes, "thread %d (%s)", th.ID, th.State())
	}
}

func TestSleepNegativeDefersToNextSwitch(t *testing.T) {
	ts := newTestSystem(t)
	u := ts.spawn(ts.userProcess("sleeper"), PriorityHigh)

	ts.tick()
	require.Same(t, u, ts.s.Current())

	require.NoError(t, ts.s.Sleep(-3))
	require.Same(t, u, ts.s.Current(), "negative sleep must not yield")
	require.Equal(t, StatePendingSleep, u.State())
	committed, pending := ts.s.Sleepers()
	require.Equal(t, 0, committed)
	require.Equal(t, 1, pending)
	requireSingleHome(t, ts.s)

	// The switch commits the sleep; the tick before it is not charged.
	ts.tick()
	require.Equal(t, StateSleeping, u.State())
	require.Equal(t, int64(3), u.SleepRemaining())
	require.NotSame(t, u, ts.s.Current())
	requireSingleHome(t, ts.s)

	for want := int64(2); want >= 1; want-- {
		ts.tick()
		require.Equal(t, StateSleeping, u.State())
		require.Equal(t, want, u.SleepRemaining())
	}

	ts.tick()
	require.Same(t, u, ts.s.Current())
	require.Equal(t, StateRunning, u.State())
	require.Zero(t, u.SleepRemaining())
	committed, pending = ts.s.Sleepers()
	require.Zero(t, committed+pending)
	requireSingleHome(t, ts.s)
}

func TestSleepPositiveYields(t *testing.T) {
	ts := newTestSystem(t)
	u := ts.spawn(ts.userProcess("sleeper"), PriorityHigh)

	ts.tick()
	require.NoError(t, ts.s.Sleep(5))

	require.NotSame(t, u, ts.s.Current())
	require.Equal(t, StateSleeping, u.State())
	require.Equal(t, int64(5), u.SleepRemaining())

	for i := 0; i < 4; i++ {
		ts.tick()
		require.Equal(t, StateSleeping, u.State())
	}
	ts.tick()
	require.Same(t, u, ts.s.Current())
}

func TestSleepZeroIsYield(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("pair")
	u := ts.spawn(p, PriorityHigh)
	v := ts.spawn(p, PriorityHigh)

	ts.tick()
	require.Same(t, u, ts.s.Current())

	require.NoError(t, ts.s.Sleep(0))
	require.Same(t, v, ts.s.Current())
	require.Equal(t, StateReady, u.State())
	committed, pending := ts.s.Sleepers()
	require.Zero(t, committed+pending)
}

func TestSleepWithoutCurrentThread(t *testing.T) {
	ts := newTestSystem(t)
	require.ErrorIs(t, ts.s.Sleep(10), ErrNoCurrentThread)
}

func TestTickWakesEachSleeperOnce(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("sleepers")
	a := ts.spawn(p, PriorityNormal)
	b := ts.spawn(p, PriorityHigh)

	require.NoError(t, ts.s.SleepThread(a, 2))
	require.NoError(t, ts.s.SleepThread(b, 2))
	ts.s.commitPending()
	requireSingleHome(t, ts.s)

	ts.s.Tick(1)
	require.Equal(t, StateSleeping, a.State())

	ts.s.Tick(5)
	require.Equal(t, StateReady, a.State())
	require.Equal(t, StateReady, b.State())
	require.Equal(t, 1, ts.s.Queues().Len(PriorityHigh))
	require.Equal(t, 1, ts.s.Queues().Len(PriorityNormal))

	// Already woken threads are not charged again.
	ts.s.Tick(5)
	require.Equal(t, 1, ts.s.Queues().Len(PriorityHigh))
	requireSingleHome(t, ts.s)
}

func TestSleepThreadRestartsTimer(t *testing.T) {
	ts := newTestSystem(t)
	u := ts.spawn(ts.userProcess("sleeper"), PriorityNormal)

	require.NoError(t, ts.s.SleepThread(u, 10))
	ts.s.commitPending()
	ts.s.Tick(4)
	require.Equal(t, int64(6), u.SleepRemaining())

	require.NoError(t, ts.s.SleepThread(u, 20))
	require.Equal(t, StatePendingSleep, u.State())
	require.Equal(t, int64(20), u.SleepRemaining())
	requireSingleHome(t, ts.s)
}

func TestSleepThreadRejectsDeadThread(t *testing.T) {
	ts := newTestSystem(t)
	u := ts.spawn(ts.userProcess("gone"), PriorityNormal)
	ts.s.ExitThread(u)

	require.ErrorIs(t, ts.s.SleepThread(u, 5), ErrThreadDead)
}
