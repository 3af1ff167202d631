package kernel

// Context provides thread-local access to kernel operations. It is the
// surface the syscall layer calls into on behalf of the running thread.
type Context struct {
	s *Scheduler
	t *Thread
}

// Context returns a Context bound to the running thread.
func (s *Scheduler) Context() (*Context, error) {
	if s.current == nil || s.current.state == StateDead {
		return nil, ErrNoCurrentThread
	}
	return &Context{s: s, t: s.current}, nil
}

func (c *Context) valid() bool { return c.s != nil && c.s.current == c.t }

// Thread returns the thread the context is bound to.
func (c *Context) Thread() *Thread { return c.t }

// ThreadID returns the calling thread's ID.
func (c *Context) ThreadID() ThreadID { return c.t.ID }

// PID returns the calling thread's process ID.
func (c *Context) PID() ProcessID { return c.t.Process.ID }

// ParentPID returns the calling process's parent ID.
func (c *Context) ParentPID() ProcessID { return c.t.Process.Parent }

// Sleep suspends the calling thread; see Scheduler.Sleep for the sign convention.
func (c *Context) Sleep(ms int64) error {
	if !c.valid() {
		return ErrNoCurrentThread
	}
	return c.s.Sleep(ms)
}

// Yield gives up the processor.
func (c *Context) Yield() {
	if !c.valid() {
		return
	}
	c.s.Yield()
}

// Signal delivers sig to a thread, possibly the caller.
func (c *Context) Signal(tid ThreadID, sig Signal) error {
	return c.s.DeliverSignal(tid, sig)
}

// SignalProcess delivers sig to the first thread of a process.
func (c *Context) SignalProcess(pid ProcessID, sig Signal) error {
	return c.s.DeliverSignalToProcess(pid, sig)
}

// InstallHandler sets the calling process's disposition for sig.
func (c *Context) InstallHandler(sig Signal, d Disposition) (Disposition, error) {
	return c.s.InstallHandler(c.t.Process.ID, sig, d)
}

// CreateThread starts another thread in the calling process.
func (c *Context) CreateThread(spec ThreadSpec) (*Thread, error) {
	return c.s.CreateThread(c.t.Process, spec)
}

// Exit terminates the calling thread and yields.
func (c *Context) Exit() {
	if !c.valid() {
		return
	}
	c.s.ExitThread(c.t)
	c.s.Yield()
}
