package kernel

// DisableScheduler defers timer-driven preemption until the matching
// EnableScheduler. Calls nest.
func (s *Scheduler) DisableScheduler() { s.disabled++ }

// EnableScheduler undoes one DisableScheduler.
func (s *Scheduler) EnableScheduler() error {
	if s.disabled == 0 {
		return ErrNotDisabled
	}
	s.disabled--
	return nil
}

// Enabled reports whether timer interrupts may reschedule.
func (s *Scheduler) Enabled() bool { return s.disabled == 0 }

// CriticalSection keeps the scheduler disabled between Enter and Exit.
//
//	cs := s.Enter()
//	defer cs.Exit()
type CriticalSection struct {
	s    *Scheduler
	done bool
}

// Enter disables the scheduler and returns the guard that re-enables it.
func (s *Scheduler) Enter() *CriticalSection {
	s.DisableScheduler()
	return &CriticalSection{s: s}
}

// Exit re-enables the scheduler. Repeated calls are no-ops.
func (cs *CriticalSection) Exit() {
	if cs.done {
		return
	}
	cs.done = true
	_ = cs.s.EnableScheduler()
}
