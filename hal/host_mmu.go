package hal

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const (
	hostWindowBase  = 0xFFFF_FF00_0000_0000
	hostWindowCount = 64
	hostPhysBase    = 0x10_0000
	hostTLBEntries  = 64
)

type hostFrame [PageSize / WordSize]uint64

type tlbKey struct {
	root, page uint64
}

type hostMapping struct {
	phys  uint64
	flags PageFlags
}

// HostMMU simulates paged memory for the host build: a pool of
// physical frames, one page table per root and a small region of
// temporary windows used for cross address-space access.
type HostMMU struct {
	frames   map[uint64]*hostFrame
	nextPhys uint64

	spaces map[uint64]map[uint64]hostMapping
	active uint64
	kernel uint64

	windows [hostWindowCount]bool

	// tlb caches page walks until the next Switch.
	tlb       *lru.ARCCache
	tlbHits   int
	tlbMisses int
	switches  int
}

// NewHostMMU returns a simulated MMU with the kernel address space active.
func NewHostMMU() *HostMMU {
	m := &HostMMU{
		frames:   make(map[uint64]*hostFrame),
		nextPhys: hostPhysBase,
		spaces:   make(map[uint64]map[uint64]hostMapping),
	}
	m.tlb, _ = lru.NewARC(hostTLBEntries)
	m.kernel = m.NewSpace()
	m.active = m.kernel
	return m
}

func (m *HostMMU) allocFrame() uint64 {
	phys := m.nextPhys
	m.nextPhys += PageSize
	m.frames[phys] = &hostFrame{}
	return phys
}

// NewSpace creates an empty address space and returns its root.
func (m *HostMMU) NewSpace() uint64 {
	root := m.allocFrame()
	m.spaces[root] = make(map[uint64]hostMapping)
	return root
}

// KernelRoot returns the root created at boot.
func (m *HostMMU) KernelRoot() uint64 { return m.kernel }

// MapRange backs [virt, virt+size) in root with fresh zeroed frames.
func (m *HostMMU) MapRange(root, virt, size uint64) error {
	pt, ok := m.spaces[root]
	if !ok {
		return errors.Wrapf(ErrNoSuchSpace, "root %#x", root)
	}
	for page := virt & PageMask; page < virt+size; page += PageSize {
		if _, mapped := pt[page]; mapped {
			continue
		}
		pt[page] = hostMapping{phys: m.allocFrame(), flags: PageDefault}
	}
	return nil
}

// Peek reads a word from any address space without touching the active one.
func (m *HostMMU) Peek(root, virt uint64) (uint64, error) {
	f, idx, err := m.resolve(root, virt)
	if err != nil {
		return 0, err
	}
	return f[idx], nil
}

// Poke writes a word into any address space without touching the active one.
func (m *HostMMU) Poke(root, virt, val uint64) error {
	f, idx, err := m.resolve(root, virt)
	if err != nil {
		return err
	}
	f[idx] = val
	return nil
}

// Switches reports how many address-space switches were performed.
func (m *HostMMU) Switches() int { return m.switches }

// TLBStats reports translation cache hits and misses.
func (m *HostMMU) TLBStats() (hits, misses int) { return m.tlbHits, m.tlbMisses }

// Spaces reports how many address spaces are live.
func (m *HostMMU) Spaces() int { return len(m.spaces) }

// Frames reports how many physical frames are allocated.
func (m *HostMMU) Frames() int { return len(m.frames) }

// WindowsInUse reports how many temporary windows are allocated.
func (m *HostMMU) WindowsInUse() int {
	n := 0
	for _, used := range m.windows {
		if used {
			n++
		}
	}
	return n
}

func (m *HostMMU) resolve(root, virt uint64) (*hostFrame, uint64, error) {
	if virt%WordSize != 0 {
		return nil, 0, errors.Errorf("unaligned word access at %#x", virt)
	}
	phys, err := m.Translate(root, virt)
	if err != nil {
		return nil, 0, err
	}
	f, ok := m.frames[phys&PageMask]
	if !ok {
		return nil, 0, errors.Wrapf(ErrNotMapped, "physical %#x", phys)
	}
	return f, (phys &^ PageMask) / WordSize, nil
}

func (m *HostMMU) ActiveRoot() uint64 { return m.active }

func (m *HostMMU) Switch(root uint64) {
	m.active = root
	m.switches++
	m.tlb.Purge()
}

func (m *HostMMU) Translate(root, virt uint64) (uint64, error) {
	key := tlbKey{root, virt & PageMask}
	if phys, ok := m.tlb.Get(key); ok {
		m.tlbHits++
		return phys.(uint64) | (virt &^ PageMask), nil
	}
	m.tlbMisses++

	pt, ok := m.spaces[root]
	if !ok {
		return 0, errors.Wrapf(ErrNoSuchSpace, "root %#x", root)
	}
	mp, ok := pt[virt&PageMask]
	if !ok || mp.flags&PagePresent == 0 {
		return 0, errors.Wrapf(ErrNotMapped, "virtual %#x in root %#x", virt, root)
	}
	m.tlb.Add(key, mp.phys)
	return mp.phys | (virt &^ PageMask), nil
}

func (m *HostMMU) AllocateVirtual() (uint64, error) {
	for i, used := range m.windows {
		if !used {
			m.windows[i] = true
			return hostWindowBase + uint64(i)*PageSize, nil
		}
	}
	return 0, ErrWindowsExhausted
}

func (m *HostMMU) FreeVirtual(virt uint64) {
	i := (virt - hostWindowBase) / PageSize
	if virt < hostWindowBase || i >= hostWindowCount {
		return
	}
	m.windows[i] = false
}

func (m *HostMMU) Map(virt, phys uint64, flags PageFlags) error {
	pt, ok := m.spaces[m.active]
	if !ok {
		return errors.Wrapf(ErrNoSuchSpace, "root %#x", m.active)
	}
	if _, ok := m.frames[phys&PageMask]; !ok {
		return errors.Wrapf(ErrNotMapped, "physical %#x", phys)
	}
	pt[virt&PageMask] = hostMapping{phys: phys & PageMask, flags: flags | PagePresent}
	m.tlb.Remove(tlbKey{m.active, virt & PageMask})
	return nil
}

func (m *HostMMU) Unmap(virt uint64) error {
	pt, ok := m.spaces[m.active]
	if !ok {
		return errors.Wrapf(ErrNoSuchSpace, "root %#x", m.active)
	}
	if _, ok := pt[virt&PageMask]; !ok {
		return errors.Wrapf(ErrNotMapped, "virtual %#x", virt)
	}
	delete(pt, virt&PageMask)
	m.tlb.Remove(tlbKey{m.active, virt & PageMask})
	return nil
}

func (m *HostMMU) Load(virt uint64) (uint64, error) {
	return m.Peek(m.active, virt)
}

func (m *HostMMU) Store(virt, val uint64) error {
	return m.Poke(m.active, virt, val)
}

func (m *HostMMU) Release(root uint64) {
	if root == m.kernel || root == m.active {
		return
	}
	pt, ok := m.spaces[root]
	if !ok {
		return
	}
	for _, mp := range pt {
		delete(m.frames, mp.phys)
	}
	delete(m.spaces, root)
	delete(m.frames, root)
	m.tlb.Purge()
}
