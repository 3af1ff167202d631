package kernel

import "github.com/pkg/errors"

// redirect remembers what a signal delivery overwrote, so a second
// delivery before the handler runs can replace the first.
type redirect struct {
	sig Signal
	// entrySeq identifies the syscall whose entry frame was patched, 0
	// when the interrupt frame was patched instead. An entry-frame
	// record stays valid until that syscall returns.
	entrySeq uint64
	frame    uint64

	resume uint64
	arg0   uint64
	userSP uint64
}

// InstallHandler sets the disposition of sig for a process and returns
// the previous one. SIGKILL and SIGSTOP only accept SigDefault.
func (s *Scheduler) InstallHandler(pid ProcessID, sig Signal, d Disposition) (Disposition, error) {
	if !sig.Valid() {
		s.log.Warn("install handler: invalid signal", "signal", int(sig))
		return SigDefault, errors.Wrapf(ErrInvalidSignal, "signal %d", sig)
	}
	if !sig.Overridable() && d != SigDefault {
		s.log.Warn("install handler: signal cannot be overridden", "signal", sig)
		return SigDefault, errors.Wrapf(ErrSignalNotOverridable, "%s", sig)
	}
	p, ok := s.processes[pid]
	if !ok {
		return SigDefault, errors.Wrapf(ErrNoSuchTarget, "process %d", pid)
	}

	prev := p.handlers[sig]
	p.handlers[sig] = d
	s.log.Debug("handler installed", "pid", pid, "signal", sig, "disposition", hexAddr(uint64(d)))
	return prev, nil
}

// EffectiveHandler resolves the disposition signal delivery uses: the
// process table entry, falling back to the process-wide default.
func (s *Scheduler) EffectiveHandler(p *Process, sig Signal) Disposition {
	if d := p.Handler(sig); d != SigDefault {
		return d
	}
	return s.DefaultDisposition(sig)
}

// DeliverSignalToProcess signals the first thread of a process.
func (s *Scheduler) DeliverSignalToProcess(pid ProcessID, sig Signal) error {
	if !sig.Valid() {
		s.log.Warn("invalid signal number, ignoring", "signal", int(sig))
		return errors.Wrapf(ErrInvalidSignal, "signal %d", sig)
	}
	p, ok := s.processes[pid]
	if !ok || len(p.threads) == 0 {
		s.log.Warn("invalid target process", "pid", pid)
		return errors.Wrapf(ErrNoSuchTarget, "process %d", pid)
	}
	return s.DeliverSignal(p.threads[0].ID, sig)
}

// DeliverSignal redirects a thread into its handler for sig.
//
// The handler does not run here. The target's saved frame (or, when the
// target is the caller, its live syscall-entry frame) is rewritten so
// that the next return to user mode enters the handler with sig as its
// argument, and returning from the handler resumes the interrupted code.
// A delivery that has not run yet is replaced, not queued.
func (s *Scheduler) DeliverSignal(tid ThreadID, sig Signal) error {
	if !sig.Valid() {
		s.log.Warn("invalid signal number, ignoring", "signal", int(sig))
		return errors.Wrapf(ErrInvalidSignal, "signal %d", sig)
	}
	t, ok := s.threads[tid]
	if !ok || t.Process == nil || t.state == StateDead {
		s.log.Warn("invalid target thread", "tid", tid)
		return errors.Wrapf(ErrNoSuchTarget, "thread %d", tid)
	}

	// Kernel threads cannot be signalled.
	if tid < s.cfg.ProtectedThreads {
		return nil
	}
	handler := s.EffectiveHandler(t.Process, sig)
	switch handler {
	case SigIgnore:
		return nil
	case SigDefault:
		s.log.Debug("no handler for signal", "tid", tid, "signal", sig)
		return nil
	}

	if t == s.current {
		s.redirectLive(t, sig, handler)
	} else {
		s.redirectSaved(t, sig, handler)
	}
	s.log.Debug("signal delivered", "tid", tid, "signal", sig, "handler", hexAddr(uint64(handler)), "self", t == s.current)
	return nil
}

// redirectSaved patches a suspended thread's saved context and wakes it.
//
// A thread preempted in user mode has its interrupt frame patched. A
// thread preempted inside a syscall has the syscall-entry frame above
// its interrupt frame patched instead, so the handler runs when the
// syscall returns.
func (s *Scheduler) redirectSaved(t *Thread, sig Signal, handler Disposition) {
	l := s.cfg.Layout

	cs := s.Enter()
	defer cs.Exit()

	acc := s.access(t.Process.Root)
	ctx := savedContext{acc: acc, base: t.StackPointer, off: interruptFrame(l)}
	inSyscall := false
	if t.Process.UserMode() && acc.load(t.StackPointer+l.CodeSeg) == l.KernelCS {
		entry := t.StackPointer + l.Size
		if acc.load(entry+l.EntryMarker) == l.EntryMarkerValue {
			ctx = savedContext{acc: acc, base: entry, off: entryFrame(l)}
			inSyscall = true
		}
	}

	var seq uint64
	if inSyscall {
		seq = t.syscallSeq
	}
	if r := t.redirect; r != nil && r.frame == ctx.base && r.entrySeq == seq {
		r.undo(ctx)
	}
	r := s.patch(ctx, sig, handler, inSyscall)
	r.entrySeq = seq

	if err := acc.close(); err != nil {
		s.Halt("redirect thread %d into %s handler: %v", t.ID, sig, err)
	}

	t.redirect = r
	t.ResumeAddress = uint64(handler)
	s.wake(t)
}

// redirectLive patches the running thread's own syscall-entry frame,
// located through the hand-off record.
func (s *Scheduler) redirectLive(t *Thread, sig Signal, handler Disposition) {
	l := s.cfg.Layout
	frame := s.handoff.EntryFrame
	if frame == 0 {
		s.Halt("self-signal %s from thread %d outside a syscall", sig, t.ID)
	}

	acc := s.access(s.activeRoot)
	if marker := acc.load(frame + l.EntryMarker); acc.err == nil && marker != l.EntryMarkerValue {
		s.Halt("syscall entry frame %#x of thread %d has no marker (found %#x)", frame, t.ID, marker)
	}
	ctx := savedContext{acc: acc, base: frame, off: entryFrame(l)}

	seq := s.syscallSeq(t)
	if r := t.redirect; r != nil && r.frame == frame && r.entrySeq == seq {
		r.undo(ctx)
	}
	r := s.patch(ctx, sig, handler, true)
	r.entrySeq = seq

	if err := acc.close(); err != nil {
		s.Halt("redirect live frame of thread %d into %s handler: %v", t.ID, sig, err)
	}
	t.redirect = r
}

// patch points ctx at handler with sig as its argument and makes a
// plain return from the handler land on the interrupted instruction.
//
// With viaRestorer the first argument register is preserved too: the
// user stack receives the original resume address, the original
// argument and the restorer address, so the handler returns into the
// restorer, which pops the argument back and returns.
func (s *Scheduler) patch(ctx savedContext, sig Signal, handler Disposition, viaRestorer bool) *redirect {
	r := &redirect{
		sig:    sig,
		frame:  ctx.base,
		resume: ctx.Resume(),
		arg0:   ctx.Arg0(),
		userSP: ctx.UserSP(),
	}

	ctx.SetResume(uint64(handler))
	ctx.Push(r.resume)
	if viaRestorer {
		ctx.Push(r.arg0)
		ctx.Push(s.cfg.SignalRestorer)
	}
	ctx.SetArg0(uint64(sig))
	return r
}

// undo puts back what the delivery recorded in r overwrote.
func (r *redirect) undo(ctx savedContext) {
	ctx.SetResume(r.resume)
	ctx.SetArg0(r.arg0)
	ctx.SetUserSP(r.userSP)
}
