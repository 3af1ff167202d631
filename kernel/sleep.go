package kernel

import "github.com/pkg/errors"

// Sleep suspends the running thread for ms milliseconds.
//
// A negative duration means the caller is already inside an interrupt
// or syscall path: the thread is parked but keeps the processor until
// the next timer switch. A positive duration yields immediately. Zero
// is a plain yield.
func (s *Scheduler) Sleep(ms int64) error {
	t := s.current
	if t == nil {
		return ErrNoCurrentThread
	}
	if ms == 0 {
		s.Yield()
		return nil
	}
	if err := s.SleepThread(t, ms); err != nil {
		return err
	}
	if ms > 0 {
		s.cpu.Yield()
	}
	return nil
}

// SleepThread parks t on the pending-sleep list. Insertion into the
// active sleep list happens at the next context switch, together with
// the snapshot of t's registers.
func (s *Scheduler) SleepThread(t *Thread, ms int64) error {
	if t == nil || t.state == StateDead {
		return errors.Wrap(ErrThreadDead, "sleep")
	}
	if ms < 0 {
		ms = -ms
	}

	cs := s.Enter()
	defer cs.Exit()

	if t.state == StatePendingSleep || t.state == StateSleeping {
		s.log.Debug("thread already asleep, restarting timer", "tid", t.ID, "remaining_ms", t.sleep)
	}
	s.unlink(t)

	t.sleep = ms
	t.state = StatePendingSleep
	s.pending.PushBack(t)
	return nil
}

// Yield gives up the processor voluntarily.
func (s *Scheduler) Yield() { s.cpu.Yield() }

// commitPending moves every pending sleeper to the active sleep list.
func (s *Scheduler) commitPending() {
	for t := s.pending.PopFront(); t != nil; t = s.pending.PopFront() {
		t.state = StateSleeping
		s.sleeping.PushBack(t)
	}
}

// Tick charges elapsed milliseconds to every committed sleeper and
// re-enqueues those that ran out at their own priority.
func (s *Scheduler) Tick(elapsedMs int64) {
	var woken []*Thread
	s.sleeping.Each(func(t *Thread) {
		t.sleep -= elapsedMs
		if t.sleep <= 0 {
			woken = append(woken, t)
		}
	})
	for _, t := range woken {
		s.sleeping.Remove(t)
		t.sleep = 0
		s.queues.Enqueue(t, t.Priority)
		s.log.Trace("thread woke", "tid", t.ID)
	}
}

// wake forces a sleeping thread back onto its run queue.
func (s *Scheduler) wake(t *Thread) {
	switch t.state {
	case StatePendingSleep:
		s.pending.Remove(t)
	case StateSleeping:
		s.sleeping.Remove(t)
	default:
		return
	}
	t.sleep = 0
	s.queues.Enqueue(t, t.Priority)
}

// Sleepers returns the committed and pending sleep list lengths.
func (s *Scheduler) Sleepers() (committed, pending int) {
	return s.sleeping.Len(), s.pending.Len()
}
