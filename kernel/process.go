package kernel

// Process owns an address space and the threads running in it.
type Process struct {
	ID     ProcessID
	Parent ProcessID
	Name   string
	// Root is the address-space root, shared by every thread of the process.
	Root  uint64
	Flags ProcessFlags

	threads  []*Thread
	handlers [NumSignals]Disposition
}

// UserMode reports whether threads of p resume in user mode.
func (p *Process) UserMode() bool { return p.Flags&FlagUserMode != 0 }

// Threads returns the live threads of p in creation order.
func (p *Process) Threads() []*Thread {
	out := make([]*Thread, len(p.threads))
	copy(out, p.threads)
	return out
}

// Handler returns the installed disposition for sig, SigDefault when
// sig is out of range.
func (p *Process) Handler(sig Signal) Disposition {
	if !sig.Valid() {
		return SigDefault
	}
	return p.handlers[sig]
}

func (p *Process) removeThread(t *Thread) {
	for i, x := range p.threads {
		if x == t {
			p.threads = append(p.threads[:i], p.threads[i+1:]...)
			return
		}
	}
}
