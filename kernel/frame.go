package kernel

import (
	"spindle/hal"

	"github.com/pkg/errors"
)

// window is one page of a foreign address space mapped into the active one.
type window struct {
	page  uint64
	local uint64
}

// accessor reads and writes words of the address space rooted at root.
// When root is already active it goes straight through the MMU;
// otherwise it maps each touched page into a temporary window.
//
// The first failure sticks: later operations are skipped and Err
// reports it. close must run before the active address space changes.
type accessor struct {
	mmu     hal.MMU
	root    uint64
	direct  bool
	windows []window
	err     error
}

func (s *Scheduler) access(root uint64) *accessor {
	return &accessor{
		mmu:    s.mmu,
		root:   root,
		direct: root == s.mmu.ActiveRoot(),
	}
}

func (a *accessor) localize(virt uint64) (uint64, bool) {
	if a.err != nil {
		return 0, false
	}
	if a.direct {
		return virt, true
	}

	page := virt & hal.PageMask
	for _, w := range a.windows {
		if w.page == page {
			return w.local | (virt &^ hal.PageMask), true
		}
	}

	phys, err := a.mmu.Translate(a.root, page)
	if err != nil {
		a.err = errors.Wrapf(err, "translate %#x", virt)
		return 0, false
	}
	local, err := a.mmu.AllocateVirtual()
	if err != nil {
		a.err = errors.Wrap(err, "allocate window")
		return 0, false
	}
	if err := a.mmu.Map(local, phys, hal.PagePresent|hal.PageWrite); err != nil {
		a.mmu.FreeVirtual(local)
		a.err = errors.Wrapf(err, "map window for %#x", virt)
		return 0, false
	}
	a.windows = append(a.windows, window{page: page, local: local})
	return local | (virt &^ hal.PageMask), true
}

func (a *accessor) load(virt uint64) uint64 {
	local, ok := a.localize(virt)
	if !ok {
		return 0
	}
	v, err := a.mmu.Load(local)
	if err != nil {
		a.err = errors.Wrapf(err, "load %#x", virt)
		return 0
	}
	return v
}

func (a *accessor) store(virt, v uint64) {
	local, ok := a.localize(virt)
	if !ok {
		return
	}
	if err := a.mmu.Store(local, v); err != nil {
		a.err = errors.Wrapf(err, "store %#x", virt)
	}
}

// close tears down every temporary window and returns the first error seen.
func (a *accessor) close() error {
	for _, w := range a.windows {
		if err := a.mmu.Unmap(w.local); err != nil && a.err == nil {
			a.err = errors.Wrapf(err, "unmap window %#x", w.local)
		}
		a.mmu.FreeVirtual(w.local)
	}
	a.windows = nil
	return a.err
}

// frameOffsets locates the registers signal delivery rewrites.
type frameOffsets struct {
	arg0   uint64
	resume uint64
	userSP uint64
}

func interruptFrame(l hal.FrameLayout) frameOffsets {
	return frameOffsets{arg0: l.Arg0, resume: l.Resume, userSP: l.UserSP}
}

func entryFrame(l hal.FrameLayout) frameOffsets {
	return frameOffsets{arg0: l.EntryArg0, resume: l.EntryResume, userSP: l.EntryUserSP}
}

// savedContext is a register snapshot in memory: a suspended thread's
// interrupt frame, or the running thread's syscall-entry frame.
type savedContext struct {
	acc  *accessor
	base uint64
	off  frameOffsets
}

func (c savedContext) Resume() uint64 { return c.acc.load(c.base + c.off.resume) }
func (c savedContext) SetResume(v uint64) { c.acc.store(c.base+c.off.resume, v) }
func (c savedContext) Arg0() uint64 { return c.acc.load(c.base + c.off.arg0) }
func (c savedContext) SetArg0(v uint64) { c.acc.store(c.base+c.off.arg0, v) }
func (c savedContext) UserSP() uint64 { return c.acc.load(c.base + c.off.userSP) }
func (c savedContext) SetUserSP(v uint64) { c.acc.store(c.base+c.off.userSP, v) }

// Push stores v one word below the saved user stack pointer and
// lowers the pointer, as a user-mode push would.
func (c savedContext) Push(v uint64) {
	sp := c.UserSP() - hal.WordSize
	c.acc.store(sp, v)
	c.SetUserSP(sp)
}
