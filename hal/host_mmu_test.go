package hal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostMMUTranslateAndWindows(t *testing.T) {
	m := NewHostMMU()
	root := m.NewSpace()
	require.NotEqual(t, m.KernelRoot(), root)
	require.Equal(t, 2, m.Spaces())

	require.NoError(t, m.MapRange(root, 0x7000, 0x2000))
	require.NoError(t, m.Poke(root, 0x7ff8, 0xFEED))

	_, err := m.Load(0x7ff8)
	require.ErrorIs(t, err, ErrNotMapped, "not visible from the kernel space")

	phys, err := m.Translate(root, 0x7ff8)
	require.NoError(t, err)

	win, err := m.AllocateVirtual()
	require.NoError(t, err)
	require.NoError(t, m.Map(win, phys&PageMask, PagePresent|PageWrite))
	require.Equal(t, 1, m.WindowsInUse())

	v, err := m.Load(win | 0xff8)
	require.NoError(t, err)
	require.Equal(t, uint64(0xFEED), v)
	require.NoError(t, m.Store(win|0xff8, 0xBEEF))

	require.NoError(t, m.Unmap(win))
	m.FreeVirtual(win)
	require.Zero(t, m.WindowsInUse())

	v, err = m.Peek(root, 0x7ff8)
	require.NoError(t, err)
	require.Equal(t, uint64(0xBEEF), v)
}

func TestHostMMUWindowsExhausted(t *testing.T) {
	m := NewHostMMU()
	for i := 0; i < hostWindowCount; i++ {
		_, err := m.AllocateVirtual()
		require.NoError(t, err)
	}
	_, err := m.AllocateVirtual()
	require.ErrorIs(t, err, ErrWindowsExhausted)
}

func TestHostMMUErrors(t *testing.T) {
	m := NewHostMMU()
	_, err := m.Translate(0xdead000, 0)
	require.ErrorIs(t, err, ErrNoSuchSpace)
	require.ErrorIs(t, m.MapRange(0xdead000, 0, PageSize), ErrNoSuchSpace)

	require.NoError(t, m.MapRange(m.KernelRoot(), 0x1000, PageSize))
	_, err = m.Load(0x1004)
	require.Error(t, err, "unaligned")
	require.ErrorIs(t, m.Unmap(0x9000), ErrNotMapped)
}

func TestHostMMUReleaseSkipsLiveSpaces(t *testing.T) {
	m := NewHostMMU()
	a := m.NewSpace()
	b := m.NewSpace()
	require.NoError(t, m.MapRange(a, 0x1000, PageSize))

	m.Switch(a)
	m.Release(a)
	m.Release(m.KernelRoot())
	require.Equal(t, 3, m.Spaces())

	m.Switch(b)
	m.Release(a)
	require.Equal(t, 2, m.Spaces())
	_, err := m.Translate(a, 0x1000)
	require.ErrorIs(t, err, ErrNoSuchSpace)
	require.Equal(t, 2, m.Switches())
}

func TestHostMMUTranslationCache(t *testing.T) {
	m := NewHostMMU()
	root := m.NewSpace()
	require.NoError(t, m.MapRange(root, 0x7000, PageSize))

	a, err := m.Translate(root, 0x7008)
	require.NoError(t, err)
	b, err := m.Translate(root, 0x7010)
	require.NoError(t, err)
	require.Equal(t, a+8, b)

	hits, misses := m.TLBStats()
	require.Equal(t, 1, hits)
	require.Equal(t, 1, misses)

	m.Switch(root)
	_, err = m.Translate(root, 0x7000)
	require.NoError(t, err)
	_, misses = m.TLBStats()
	require.Equal(t, 2, misses, "switch flushes cached walks")

	require.NoError(t, m.Unmap(0x7000))
	_, err = m.Translate(root, 0x7000)
	require.ErrorIs(t, err, ErrNotMapped)
}
