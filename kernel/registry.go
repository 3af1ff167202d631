package kernel

import (
	"sort"

	"spindle/hal"

	"github.com/pkg/errors"
)

// CreateProcess registers a process over an existing address space.
func (s *Scheduler) CreateProcess(name string, parent ProcessID, flags ProcessFlags, root uint64) *Process {
	p := &Process{
		ID:     s.nextPID,
		Parent: parent,
		Name:   name,
		Root:   root,
		Flags:  flags,
	}
	s.nextPID++
	s.processes[p.ID] = p

	s.log.Debug("process created", "pid", p.ID, "name", name, "root", hexAddr(root), "user", p.UserMode())
	return p
}

// CreateThread builds the initial interrupt frame of a new thread on its
// kernel stack, so that the first resume enters spec.Entry, and makes
// the thread ready.
func (s *Scheduler) CreateThread(p *Process, spec ThreadSpec) (*Thread, error) {
	if p == nil || s.processes[p.ID] != p {
		return nil, errors.Wrap(ErrNoSuchTarget, "create thread")
	}

	l := s.cfg.Layout
	stackSize := spec.StackSize
	if stackSize == 0 {
		stackSize = s.cfg.StackSize
	}
	if spec.KernelStack < l.Size || stackSize < l.Size {
		return nil, errors.Errorf("kernel stack %#x too small for a %d byte frame", spec.KernelStack, l.Size)
	}

	t := &Thread{
		Process:       p,
		Priority:      spec.Priority,
		StackPointer:  spec.KernelStack - l.Size,
		ResumeAddress: spec.Entry,
		TopOfStack:    spec.KernelStack,
		StackSize:     stackSize,
		TLSBase:       spec.TLSBase,
		Entry:         spec.Entry,
	}

	cs, usp := l.KernelCS, spec.KernelStack
	if p.UserMode() {
		cs, usp = l.UserCS, spec.UserStack
	}

	acc := s.access(p.Root)
	for off := uint64(0); off < l.Size; off += hal.WordSize {
		acc.store(t.StackPointer+off, 0)
	}
	acc.store(t.StackPointer+l.Arg0, spec.InitialArg)
	acc.store(t.StackPointer+l.Resume, spec.Entry)
	acc.store(t.StackPointer+l.CodeSeg, cs)
	acc.store(t.StackPointer+l.UserSP, usp)
	if err := acc.close(); err != nil {
		return nil, errors.Wrap(err, "write initial frame")
	}

	cst := s.Enter()
	defer cst.Exit()

	t.ID = s.nextTID
	s.nextTID++
	s.threads[t.ID] = t
	p.threads = append(p.threads, t)
	s.queues.Enqueue(t, spec.Priority)

	s.log.Debug("thread created", "tid", t.ID, "pid", p.ID, "priority", t.Priority, "entry", hexAddr(spec.Entry))
	return t, nil
}

// ExitThread removes t from scheduling. A running thread keeps the
// processor until the next switch; its process goes away with its last
// thread.
func (s *Scheduler) ExitThread(t *Thread) {
	if t == nil || t.state == StateDead {
		return
	}

	cs := s.Enter()
	defer cs.Exit()

	s.unlink(t)
	t.state = StateDead
	t.redirect = nil
	delete(s.threads, t.ID)

	p := t.Process
	p.removeThread(t)
	s.log.Debug("thread exited", "tid", t.ID, "pid", p.ID)

	if len(p.threads) == 0 && p != s.kernel {
		s.destroyProcess(p)
	}
}

// KillProcess exits every thread of the process.
func (s *Scheduler) KillProcess(pid ProcessID) error {
	p, ok := s.processes[pid]
	if !ok {
		return errors.Wrapf(ErrNoSuchTarget, "process %d", pid)
	}
	for _, t := range p.Threads() {
		s.ExitThread(t)
	}
	return nil
}

func (s *Scheduler) destroyProcess(p *Process) {
	delete(s.processes, p.ID)
	switch p.Root {
	case s.kernel.Root:
	case s.activeRoot:
		// Still loaded; release once the next switch moves off it.
		s.zombies = append(s.zombies, p.Root)
	default:
		s.mmu.Release(p.Root)
	}
	s.log.Debug("process destroyed", "pid", p.ID, "name", p.Name)
}

// unlink takes t out of whichever queue or sleep list holds it.
func (s *Scheduler) unlink(t *Thread) {
	switch t.state {
	case StateReady:
		s.queues.Remove(t)
	case StatePendingSleep:
		s.pending.Remove(t)
	case StateSleeping:
		s.sleeping.Remove(t)
	}
}

// Thread looks up a live thread.
func (s *Scheduler) Thread(id ThreadID) (*Thread, bool) {
	t, ok := s.threads[id]
	return t, ok
}

// Process looks up a live process.
func (s *Scheduler) Process(id ProcessID) (*Process, bool) {
	p, ok := s.processes[id]
	return p, ok
}

// KernelProcess returns PID 0.
func (s *Scheduler) KernelProcess() *Process { return s.kernel }

// Current returns the running thread, nil before the first switch.
func (s *Scheduler) Current() *Thread { return s.current }

// CurrentProcess returns the running thread's process, or the kernel
// process before scheduling has started.
func (s *Scheduler) CurrentProcess() *Process {
	if s.current == nil {
		return s.kernel
	}
	return s.current.Process
}

// Threads returns every live thread ordered by ID.
func (s *Scheduler) Threads() []*Thread {
	out := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
