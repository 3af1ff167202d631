package app

import (
	"spindle/hal"
	"spindle/kernel"

	"github.com/pkg/errors"
)

const (
	kernelStackBase = 0xFFFF_8000_1000_0000
	userStackTop    = 0x7FFF_F000_0000
	userStackSize   = 0x4000
	tlsBase         = 0x7000_0000_0000
)

// stackAllocator hands out kernel stacks, user stacks and TLS blocks
// from fixed regions, one slot per thread, separated by an unmapped
// guard page.
type stackAllocator struct {
	mmu       *hal.HostMMU
	stackSize uint64
	tlsSize   uint64
	tlsStride uint64
	next      uint64
}

func newStackAllocator(mmu *hal.HostMMU, stackSize, tlsSize uint64) *stackAllocator {
	stride := (tlsSize + hal.PageSize - 1) &^ (hal.PageSize - 1)
	if stride == 0 {
		stride = hal.PageSize
	}
	return &stackAllocator{
		mmu:       mmu,
		stackSize: stackSize,
		tlsSize:   tlsSize,
		tlsStride: stride + hal.PageSize,
	}
}

func (a *stackAllocator) AllocStacks(p *kernel.Process) (kernel.ThreadSpec, error) {
	n := a.next
	a.next++

	kstack := kernelStackBase + (n+1)*(a.stackSize+hal.PageSize)
	if err := a.mmu.MapRange(p.Root, kstack-a.stackSize, a.stackSize); err != nil {
		return kernel.ThreadSpec{}, errors.Wrap(err, "map kernel stack")
	}
	spec := kernel.ThreadSpec{KernelStack: kstack}
	if !p.UserMode() {
		return spec, nil
	}

	ustack := userStackTop - n*(userStackSize+hal.PageSize)
	if err := a.mmu.MapRange(p.Root, ustack-userStackSize, userStackSize); err != nil {
		return kernel.ThreadSpec{}, errors.Wrap(err, "map user stack")
	}
	tls := tlsBase + n*a.tlsStride
	if a.tlsSize > 0 {
		if err := a.mmu.MapRange(p.Root, tls, a.tlsSize); err != nil {
			return kernel.ThreadSpec{}, errors.Wrap(err, "map tls")
		}
	}
	spec.UserStack = ustack
	spec.TLSBase = tls
	return spec, nil
}
