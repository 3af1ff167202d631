package kernel

import (
	"testing"

	"spindle/hal"

	"github.com/stretchr/testify/require"
)

func TestSwitchPublishesHandOff(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("user")
	u := ts.spawn(p, PriorityHigh)
	usp := ts.frameWord(u, hal.AMD64.UserSP)

	ts.tick()

	h := ts.m.HandOff
	require.Same(t, u, ts.s.Current())
	require.True(t, h.ReturnToUser)
	require.Equal(t, u.TopOfStack, h.StackTop)
	require.Equal(t, u.TLSBase, h.TLSBase)
	require.Equal(t, ts.s.Config().TLSSize, h.TLSSize)
	require.Zero(t, h.RequestedRoot, "trampoline consumes the request")

	require.Equal(t, p.Root, ts.m.MMU.ActiveRoot())
	require.Equal(t, p.Root, ts.s.ActiveRoot())
	require.Equal(t, 1, ts.m.MMU.Switches())
	require.Equal(t, 1, ts.m.CPU.Flushes)
	require.Equal(t, 1, ts.m.CPU.UserReturns)

	require.True(t, ts.m.CPU.User())
	require.Equal(t, u.Entry, ts.m.CPU.Reg(hal.AMD64.Resume))
	require.Equal(t, usp, ts.m.CPU.Reg(hal.AMD64.UserSP))
	require.Equal(t, uint64(1), u.Selections)

	// Same address space: no reload requested.
	ts.tick()
	require.Same(t, u, ts.s.Current())
	require.Equal(t, 1, ts.m.MMU.Switches())
	require.Equal(t, 1, ts.m.CPU.Flushes)
}

func TestSwitchWithinProcessKeepsAddressSpace(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("pair")
	u := ts.spawn(p, PriorityHigh)
	v := ts.spawn(p, PriorityHigh)

	ts.tick()
	require.Same(t, u, ts.s.Current())
	ts.tick()
	require.Same(t, v, ts.s.Current())
	ts.tick()
	require.Same(t, u, ts.s.Current())

	require.Equal(t, 1, ts.m.MMU.Switches())
	require.Equal(t, v.TopOfStack, v.StackPointer+hal.AMD64.Size)
}

func TestSwitchRecordsOutgoingContext(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("pair")
	u := ts.spawn(p, PriorityHigh)
	v := ts.spawn(p, PriorityHigh)

	ts.tick()
	ts.m.CPU.SetReg(hal.AMD64.Resume, 0x40_0777)
	ts.tick()

	require.Same(t, v, ts.s.Current())
	require.Equal(t, StateReady, u.State())
	require.Equal(t, uint64(0x40_0777), u.ResumeAddress)
	require.Equal(t, u.TopOfStack-hal.AMD64.Size, u.StackPointer)
	require.Equal(t, uint64(0x40_0777), ts.frameWord(u, hal.AMD64.Resume))

	ts.tick()
	require.Same(t, u, ts.s.Current())
	require.Equal(t, uint64(0x40_0777), ts.m.CPU.Reg(hal.AMD64.Resume))
}

func TestSwitchDiscardsBootFrame(t *testing.T) {
	ts := newTestSystem(t)
	k0, ok := ts.s.Thread(0)
	require.True(t, ok)
	before := k0.StackPointer

	ts.tick()
	require.Same(t, k0, ts.s.Current())
	require.Equal(t, before, k0.StackPointer)
	require.False(t, ts.m.HandOff.ReturnToUser)
	require.Zero(t, ts.m.MMU.Switches())
	require.False(t, ts.m.CPU.User())
}

func TestSwitchWarnsAtLowWatermark(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("deep")
	spec := ts.spec(p, PriorityHigh)
	spec.StackSize = hal.AMD64.Size + 0x80
	u, err := ts.s.CreateThread(p, spec)
	require.NoError(t, err)

	ts.tick()
	ts.tick()
	require.Same(t, u, ts.s.Current())
	require.False(t, ts.s.Halted())
	require.Contains(t, ts.log.String(), "stack nearly exhausted")
	require.Contains(t, ts.log.String(), "128 B")
}

func TestSwitchHaltsAtCriticalWatermark(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("overflow")
	spec := ts.spec(p, PriorityHigh)
	spec.StackSize = hal.AMD64.Size + 8
	_, err := ts.s.CreateThread(p, spec)
	require.NoError(t, err)

	var calls int
	ts.s.SetHaltHandler(func(HaltInfo) { calls++ })

	ts.tick()
	h := requireHalt(t, ts.tick)
	require.Contains(t, h.Info.Reason, "overflowed its stack")
	require.True(t, ts.s.Halted())
	require.Equal(t, 1, calls)
	require.NotContains(t, ts.log.String(), "stack nearly exhausted")
}

func TestSwitchHaltsWithNothingToRun(t *testing.T) {
	m, err := hal.New(hal.AMD64)
	require.NoError(t, err)
	s := New(DefaultConfig(), m.MMU, m.CPU, m.HandOff, nil)

	var calls int
	s.SetHaltHandler(func(info HaltInfo) {
		calls++
		require.Equal(t, "no runnable thread", info.Reason)
	})

	h := requireHalt(t, func() { _ = m.CPU.Interrupt(s.Timer) })
	require.Contains(t, h.Error(), "no runnable thread")

	requireHalt(t, func() { _ = m.CPU.Interrupt(s.Timer) })
	require.Equal(t, 1, calls)
}

func TestSwitchReleasesExitedAddressSpace(t *testing.T) {
	ts := newTestSystem(t)
	p := ts.userProcess("short")
	u := ts.spawn(p, PriorityHigh)
	spaces := ts.m.MMU.Spaces()

	ts.tick()
	require.Same(t, u, ts.s.Current())

	ts.s.ExitThread(u)
	_, ok := ts.s.Process(p.ID)
	require.False(t, ok)
	require.Equal(t, spaces, ts.m.MMU.Spaces(), "active space survives until the switch")

	ts.tick()
	require.NotSame(t, u, ts.s.Current())
	require.Equal(t, ts.m.MMU.KernelRoot(), ts.m.MMU.ActiveRoot())
	require.Equal(t, spaces-1, ts.m.MMU.Spaces())
}
