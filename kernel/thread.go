package kernel

// Thread is a schedulable context. Its owning Process never changes.
type Thread struct {
	ID       ThreadID
	Process  *Process
	Priority Priority

	// StackPointer addresses the saved interrupt frame on the thread's
	// kernel stack. It is valid whenever the thread is not running.
	StackPointer uint64
	// ResumeAddress caches the instruction the thread was interrupted at.
	ResumeAddress uint64
	TopOfStack    uint64
	StackSize     uint64
	TLSBase       uint64
	Entry         uint64

	// Selections counts how often the thread was picked to run.
	Selections uint64

	state    ThreadState
	sleep    int64
	link     threadEntry
	redirect *redirect

	// syscallSeq is the entry sequence of the syscall the thread was
	// inside when it was last switched out, 0 in user mode.
	syscallSeq uint64
}

// State reports where the thread currently lives.
func (t *Thread) State() ThreadState { return t.state }

// SleepRemaining is the number of milliseconds left before a sleeping thread wakes.
func (t *Thread) SleepRemaining() int64 { return t.sleep }

// PendingSignal reports the signal whose handler the thread will enter
// on its next return to user mode, if any.
func (t *Thread) PendingSignal() (Signal, bool) {
	if t.redirect == nil {
		return 0, false
	}
	return t.redirect.sig, true
}

func (t *Thread) stackBottom() uint64 { return t.TopOfStack - t.StackSize }

// ThreadSpec describes a thread to create. Stack and TLS regions must
// already be mapped in the owning process's address space.
type ThreadSpec struct {
	Entry       uint64
	Priority    Priority
	KernelStack uint64
	// UserStack is ignored for kernel-mode processes.
	UserStack  uint64
	TLSBase    uint64
	InitialArg uint64
	// StackSize of the kernel stack, 0 selects Config.StackSize.
	StackSize uint64
}
