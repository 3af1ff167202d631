package kernel

import "github.com/dustin/go-humanize"

// Timer is the timer interrupt entry. It charges the elapsed tick to
// sleepers and switches threads. While the scheduler is disabled the
// interrupted frame resumes untouched and the tick is carried over.
func (s *Scheduler) Timer(frame uint64) uint64 {
	if s.disabled > 0 {
		s.deferredTicks++
		return frame
	}

	ticks := 1 + s.deferredTicks
	s.deferredTicks = 0
	s.Tick(ticks * s.cfg.TickMs)

	return s.Switch(frame)
}

// Switch records the interrupted frame of the running thread, picks the
// next thread and publishes it through the hand-off record. It returns
// the saved frame the trampoline must resume.
//
// The very first call runs on the boot stack; its frame is discarded.
func (s *Scheduler) Switch(frame uint64) uint64 {
	l := s.cfg.Layout

	out := s.current
	live := out != nil && out.state != StateDead
	if live {
		out.StackPointer = frame
		out.syscallSeq = s.syscallSeq(out)
		if r := out.redirect; r != nil && r.entrySeq != 0 && r.entrySeq != out.syscallSeq {
			// The patched syscall has returned.
			out.redirect = nil
		}
	}
	s.commitPending()

	if live {
		s.checkStack(out, frame)

		acc := s.access(s.activeRoot)
		out.ResumeAddress = acc.load(frame + l.Resume)
		if err := acc.close(); err != nil {
			s.Halt("read resume address of thread %d: %v", out.ID, err)
		}
	}

	next := s.queues.SelectNext(out)
	if next == nil {
		s.Halt("no runnable thread")
	}
	s.current = next
	next.Selections++
	if r := next.redirect; r != nil && r.entrySeq == 0 {
		// The patched interrupt frame is about to be loaded.
		next.redirect = nil
	}
	s.switchInSeq = s.handoff.EntrySeq

	p := next.Process
	s.handoff.ReturnToUser = p.UserMode()

	if p.Root != s.activeRoot {
		s.handoff.RequestedRoot = p.Root
		s.mmu.Switch(p.Root)
		s.activeRoot = p.Root
		s.reapZombies()
	} else {
		s.handoff.RequestedRoot = 0
	}

	s.handoff.StackTop = next.TopOfStack
	s.handoff.TLSBase = next.TLSBase
	s.handoff.TLSSize = s.cfg.TLSSize

	if next != out {
		s.log.Trace("switch", "count", s.queues.Count(), "from", threadIDOf(out), "to", next.ID, "pid", p.ID)
	}
	return next.StackPointer
}

// syscallSeq identifies the syscall the running thread t is inside, 0
// when it is in user mode. Only t enters syscalls while it runs, so an
// entry sequence that moved since t was selected belongs to t.
func (s *Scheduler) syscallSeq(t *Thread) uint64 {
	switch {
	case s.handoff.EntryFrame == 0:
		return 0
	case s.handoff.EntrySeq != s.switchInSeq:
		return s.handoff.EntrySeq
	default:
		return t.syscallSeq
	}
}

// checkStack halts at the critical watermark and warns at the low one.
func (s *Scheduler) checkStack(t *Thread, frame uint64) {
	bottom := t.stackBottom()
	var headroom uint64
	if frame > bottom {
		headroom = frame - bottom
	}

	switch {
	case headroom <= s.cfg.CriticalWatermark:
		s.Halt("thread %d of process %s (%d) overflowed its stack: %s left",
			t.ID, t.Process.Name, t.Process.ID, humanize.IBytes(headroom))
	case headroom <= s.cfg.LowWatermark:
		s.log.Warn("stack nearly exhausted",
			"tid", t.ID, "process", t.Process.Name, "pid", t.Process.ID,
			"headroom", humanize.IBytes(headroom))
	}
}

func (s *Scheduler) reapZombies() {
	kept := s.zombies[:0]
	for _, root := range s.zombies {
		if root == s.activeRoot {
			kept = append(kept, root)
			continue
		}
		s.mmu.Release(root)
	}
	s.zombies = kept
}

func threadIDOf(t *Thread) any {
	if t == nil {
		return "boot"
	}
	return t.ID
}
