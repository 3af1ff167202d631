package hal

import "github.com/pkg/errors"

var (
	ErrNotMapped        = errors.New("address not mapped")
	ErrNoSuchSpace      = errors.New("no such address space")
	ErrWindowsExhausted = errors.New("temporary mapping windows exhausted")
)

// PageSize is the granularity of Map/Unmap and temporary windows.
const PageSize = 0x1000

// PageMask clears the offset bits of an address.
const PageMask = ^uint64(PageSize - 1)

// WordSize is the machine word in bytes.
const WordSize = 8

// PageFlags control a mapping's permissions.
type PageFlags uint8

const (
	PagePresent PageFlags = 1 << iota
	PageWrite
	PageUser
)

// PageDefault is present, writable and user-accessible.
const PageDefault = PagePresent | PageWrite | PageUser

// MMU is the memory manager surface consumed by the scheduler.
//
// Load, Store, Map and Unmap act on the active address space only.
// Reaching into another address space requires mapping its physical
// page into the active one first (see Translate).
type MMU interface {
	// ActiveRoot returns the root of the address space currently loaded.
	ActiveRoot() uint64
	// Switch loads another address space. It flushes translation caches.
	Switch(root uint64)
	// Translate resolves virt inside the address space rooted at root.
	Translate(root, virt uint64) (phys uint64, err error)
	// AllocateVirtual reserves a page-sized window in the temporary region.
	AllocateVirtual() (uint64, error)
	FreeVirtual(virt uint64)
	Map(virt, phys uint64, flags PageFlags) error
	Unmap(virt uint64) error
	Load(virt uint64) (uint64, error)
	Store(virt, val uint64) error
	// Release tears down an address space once its process is gone.
	Release(root uint64)
}

// CPU is the resume trampoline as seen from portable code.
type CPU interface {
	// Yield raises the reschedule interrupt. On return the caller has
	// been switched out and back in.
	Yield()
}

// HandOff is the machine hand-off record shared with the resume trampoline.
//
// The scheduler writes everything except EntryFrame and EntrySeq, which
// the syscall entry path fills before dispatching into the kernel.
type HandOff struct {
	// RequestedRoot is the address-space root to load on resume, or 0.
	RequestedRoot uint64
	// ReturnToUser tells the trampoline to drop to user mode on resume.
	ReturnToUser bool
	// StackTop is the privilege-transition stack top (TSS rsp0).
	StackTop uint64
	TLSBase  uint64
	TLSSize  uint64

	// EntryFrame is the base of the live syscall-entry frame of the
	// running thread, 0 outside a syscall.
	EntryFrame uint64
	// EntrySeq increments on every syscall entry.
	EntrySeq uint64
}

// FrameLayout describes where the interrupt and syscall entry paths
// store the registers the scheduler needs. Offsets are in bytes.
type FrameLayout struct {
	// Interrupt frame, addressed by a thread's saved stack pointer.
	Arg0    uint64
	Resume  uint64
	CodeSeg uint64
	UserSP  uint64
	Size    uint64

	// Code segment selectors stored at CodeSeg.
	KernelCS uint64
	UserCS   uint64

	// Syscall-entry frame, addressed by HandOff.EntryFrame.
	EntryMarkerValue uint64
	EntryMarker      uint64
	EntryArg0        uint64
	EntryResume      uint64
	EntryUserSP      uint64
	EntrySize        uint64
}

// AMD64 is the x86-64 layout: fifteen general purpose registers
// (rdi first, r15 last) followed by the iret frame for interrupts, and
// marker, r9..rdi, r10, rbp, iret frame for syscall entry.
var AMD64 = FrameLayout{
	Arg0:    0,
	Resume:  15 * WordSize,
	CodeSeg: 16 * WordSize,
	UserSP:  18 * WordSize,
	Size:    20 * WordSize,

	KernelCS: 0x08,
	UserCS:   0x1B,

	EntryMarkerValue: 0xFFFFFFFFFFFFFFFF,
	EntryMarker:      0,
	EntryArg0:        6 * WordSize,
	EntryResume:      9 * WordSize,
	EntryUserSP:      12 * WordSize,
	EntrySize:        14 * WordSize,
}

// Time provides a base tick stream.
//
// The tick duration is platform-defined.
type Time interface {
	Ticks() <-chan uint64
}
