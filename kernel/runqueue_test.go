package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newBareThread(id ThreadID) *Thread {
	return &Thread{ID: id}
}

func queued(q *RunQueues) int {
	return q.Len(PriorityLow) + q.Len(PriorityNormal) + q.Len(PriorityHigh)
}

func TestSelectNextStarvationSchedule(t *testing.T) {
	q := NewRunQueues(1024, 128)
	a, b, c := newBareThread(1), newBareThread(2), newBareThread(3)
	q.Enqueue(a, PriorityHigh)
	q.Enqueue(b, PriorityNormal)
	q.Enqueue(c, PriorityLow)

	var cur *Thread
	var sawB, sawC bool
	for n := uint64(1); n <= 2048; n++ {
		cur = q.SelectNext(cur)
		require.NotNil(t, cur)
		require.Equal(t, StateRunning, cur.State())
		require.Equal(t, 2, queued(&q), "decision %d", n)

		switch {
		case n%1024 == 0:
			require.Same(t, c, cur, "decision %d", n)
			sawC = true
		case n%128 == 0:
			require.Same(t, b, cur, "decision %d", n)
			sawB = true
		default:
			require.Same(t, a, cur, "decision %d", n)
		}
		if n == 128 {
			require.True(t, sawB)
		}
		if n == 1024 {
			require.True(t, sawC)
		}
	}
	require.Equal(t, uint64(2048), q.Count())
}

func TestSelectNextLowWinsOverNormal(t *testing.T) {
	q := NewRunQueues(4, 2)
	b, c := newBareThread(1), newBareThread(2)
	q.Enqueue(b, PriorityNormal)
	q.Enqueue(c, PriorityLow)

	var cur *Thread
	for n := 1; n <= 3; n++ {
		cur = q.SelectNext(cur)
	}
	require.Same(t, c, q.SelectNext(cur), "both thresholds hit at 4")
}

func TestSelectNextCurrentContinues(t *testing.T) {
	q := NewRunQueues(0, 0)
	a := newBareThread(1)
	q.Enqueue(a, PriorityNormal)

	cur := q.SelectNext(nil)
	require.Same(t, a, cur)
	for i := 0; i < 300; i++ {
		cur = q.SelectNext(cur)
		require.Same(t, a, cur)
		require.Zero(t, queued(&q))
	}
}

func TestSelectNextFallsBackWhenCurrentStops(t *testing.T) {
	q := NewRunQueues(1024, 128)
	a, c := newBareThread(1), newBareThread(2)
	q.Enqueue(a, PriorityHigh)
	q.Enqueue(c, PriorityLow)

	cur := q.SelectNext(nil)
	require.Same(t, a, cur)

	// a goes to sleep; nothing qualifies by schedule but c is ready.
	a.state = StateSleeping
	require.Same(t, c, q.SelectNext(a))
	require.Zero(t, queued(&q))

	c.state = StateDead
	require.Nil(t, q.SelectNext(c))
}

func TestSelectNextRoundRobinWithinClass(t *testing.T) {
	q := NewRunQueues(1024, 128)
	a, b := newBareThread(1), newBareThread(2)
	q.Enqueue(a, PriorityHigh)
	q.Enqueue(b, PriorityHigh)

	cur := q.SelectNext(nil)
	var got []ThreadID
	for i := 0; i < 4; i++ {
		got = append(got, cur.ID)
		cur = q.SelectNext(cur)
	}
	require.Equal(t, []ThreadID{1, 2, 1, 2}, got)
}

func TestRunQueuesRemove(t *testing.T) {
	q := NewRunQueues(1024, 128)
	threads := []*Thread{newBareThread(1), newBareThread(2), newBareThread(3)}
	for _, th := range threads {
		q.Enqueue(th, PriorityNormal)
	}

	require.True(t, q.Remove(threads[1]))
	require.False(t, q.Remove(threads[1]))
	require.Equal(t, 2, q.Len(PriorityNormal))

	require.Same(t, threads[0], q.queues[PriorityNormal].PopFront())
	require.Same(t, threads[2], q.queues[PriorityNormal].PopFront())
}

func TestEnqueueAdoptsClass(t *testing.T) {
	q := NewRunQueues(1024, 128)
	th := newBareThread(1)
	th.state = StateSleeping
	q.Enqueue(th, PriorityLow)

	require.Equal(t, PriorityLow, th.Priority)
	require.Equal(t, StateReady, th.State())
	require.Equal(t, 1, q.Len(PriorityLow))
	require.Zero(t, q.Len(numPriorities))
}

func TestThreadListDoubleLinkPanics(t *testing.T) {
	var l, other threadList
	th := newBareThread(1)
	l.PushBack(th)
	require.True(t, l.Contains(th))
	require.Panics(t, func() { other.PushBack(th) })
	require.False(t, other.Remove(th))
	require.Equal(t, 1, l.Len())
}
