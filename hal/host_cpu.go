package hal

import "github.com/pkg/errors"

const (
	hostBootStackTop  = 0xFFFF_FE00_0001_0000
	hostBootStackSize = 0x4000
)

// InterruptHandler receives the address of the saved interrupt frame
// and returns the address of the frame to resume.
type InterruptHandler func(frame uint64) uint64

// HostCPU simulates the resume trampoline: it owns the live register
// file, spills it to the active kernel stack on interrupt, calls the
// handler and reloads whatever frame the handler returns.
type HostCPU struct {
	mmu     *HostMMU
	handoff *HandOff
	layout  FrameLayout

	regs []uint64
	user bool
	sp   uint64

	yield InterruptHandler

	Interrupts  int
	UserReturns int
	Flushes     int
}

// NewHostCPU maps a boot stack into the kernel address space and
// returns a CPU running on it in kernel mode.
func NewHostCPU(mmu *HostMMU, h *HandOff, layout FrameLayout) (*HostCPU, error) {
	if err := mmu.MapRange(mmu.KernelRoot(), hostBootStackTop-hostBootStackSize, hostBootStackSize); err != nil {
		return nil, errors.Wrap(err, "map boot stack")
	}
	return &HostCPU{
		mmu:     mmu,
		handoff: h,
		layout:  layout,
		regs:    make([]uint64, layout.Size/WordSize),
		sp:      hostBootStackTop,
	}, nil
}

// OnYield installs the handler run by Yield.
func (c *HostCPU) OnYield(fn InterruptHandler) { c.yield = fn }

// Yield raises the reschedule interrupt synchronously.
func (c *HostCPU) Yield() {
	if c.yield == nil {
		return
	}
	if err := c.Interrupt(c.yield); err != nil {
		panic(err)
	}
}

// Interrupt spills the live registers, runs fn and resumes the frame it returns.
func (c *HostCPU) Interrupt(fn InterruptHandler) error {
	c.Interrupts++

	sp := c.sp
	cs := c.layout.KernelCS
	if c.user {
		sp = c.handoff.StackTop
		cs = c.layout.UserCS
	}
	c.regs[c.layout.CodeSeg/WordSize] = cs

	frame := sp - c.layout.Size
	for i, v := range c.regs {
		if err := c.mmu.Store(frame+uint64(i)*WordSize, v); err != nil {
			return errors.Wrap(err, "spill interrupt frame")
		}
	}

	return c.resume(fn(frame))
}

func (c *HostCPU) resume(frame uint64) error {
	if root := c.handoff.RequestedRoot; root != 0 {
		if root != c.mmu.ActiveRoot() {
			c.mmu.Switch(root)
		}
		c.Flushes++
		c.handoff.RequestedRoot = 0
	}

	for i := range c.regs {
		v, err := c.mmu.Load(frame + uint64(i)*WordSize)
		if err != nil {
			return errors.Wrap(err, "reload interrupt frame")
		}
		c.regs[i] = v
	}

	c.sp = frame + c.layout.Size
	c.user = c.regs[c.layout.CodeSeg/WordSize] == c.layout.UserCS
	c.handoff.EntryFrame = 0

	if c.user {
		if c.handoff.ReturnToUser {
			c.UserReturns++
		}
		return nil
	}

	// Preempted inside a syscall: the entry frame sits right above.
	if v, err := c.mmu.Load(c.sp + c.layout.EntryMarker); err == nil && v == c.layout.EntryMarkerValue {
		c.handoff.EntryFrame = c.sp
	}
	return nil
}

// EnterSyscall builds the syscall-entry frame on the privilege stack
// and publishes it through the hand-off record.
func (c *HostCPU) EnterSyscall() (uint64, error) {
	if !c.user {
		return 0, errors.New("syscall entry from kernel mode")
	}

	frame := c.handoff.StackTop - c.layout.EntrySize
	words := []struct{ off, val uint64 }{
		{c.layout.EntryMarker, c.layout.EntryMarkerValue},
		{c.layout.EntryArg0, c.Reg(c.layout.Arg0)},
		{c.layout.EntryResume, c.Reg(c.layout.Resume)},
		{c.layout.EntryUserSP, c.Reg(c.layout.UserSP)},
	}
	for _, w := range words {
		if err := c.mmu.Store(frame+w.off, w.val); err != nil {
			return 0, errors.Wrap(err, "build entry frame")
		}
	}

	c.user = false
	c.sp = frame
	c.handoff.EntryFrame = frame
	c.handoff.EntrySeq++
	return frame, nil
}

// ExitSyscall reloads the registers the entry frame holds and drops to user mode.
func (c *HostCPU) ExitSyscall() error {
	frame := c.handoff.EntryFrame
	if c.user || frame == 0 {
		return errors.New("syscall exit outside a syscall")
	}

	for _, w := range []struct{ frameOff, regOff uint64 }{
		{c.layout.EntryArg0, c.layout.Arg0},
		{c.layout.EntryResume, c.layout.Resume},
		{c.layout.EntryUserSP, c.layout.UserSP},
	} {
		v, err := c.mmu.Load(frame + w.frameOff)
		if err != nil {
			return errors.Wrap(err, "reload entry frame")
		}
		c.SetReg(w.regOff, v)
	}

	c.user = true
	c.sp = c.handoff.StackTop
	c.handoff.EntryFrame = 0
	c.UserReturns++
	return nil
}

// Pop removes one word from the user stack, as a user-mode pop would.
func (c *HostCPU) Pop() (uint64, error) {
	usp := c.Reg(c.layout.UserSP)
	v, err := c.mmu.Load(usp)
	if err != nil {
		return 0, errors.Wrap(err, "pop user stack")
	}
	c.SetReg(c.layout.UserSP, usp+WordSize)
	return v, nil
}

// Return executes a user-mode ret: the resume address is popped off the user stack.
func (c *HostCPU) Return() error {
	v, err := c.Pop()
	if err != nil {
		return err
	}
	c.SetReg(c.layout.Resume, v)
	return nil
}

// User reports whether the CPU is executing in user mode.
func (c *HostCPU) User() bool { return c.user }

// Reg reads the live register stored at byte offset off of the interrupt frame.
func (c *HostCPU) Reg(off uint64) uint64 { return c.regs[off/WordSize] }

// SetReg writes the live register stored at byte offset off of the interrupt frame.
func (c *HostCPU) SetReg(off, v uint64) { c.regs[off/WordSize] = v }
