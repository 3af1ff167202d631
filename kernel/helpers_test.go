package kernel

import (
	"bytes"
	"testing"

	"spindle/hal"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

const (
	testCodeBase    = 0x40_0000
	testKernelStack = 0xFFFF_8000_0010_0000
	testUserStack   = 0x7FFF_0000_0000
	testTLSBase     = 0x7000_0000
	testUserStackSz = 0x2000

	testDefaultHandler = 0x50_0000
	testRestorer       = 0x40_1000
)

type testSystem struct {
	t   *testing.T
	m   *hal.Machine
	s   *Scheduler
	log *bytes.Buffer
	n   uint64
}

// newTestSystem boots a scheduler on a host machine with the two
// protected kernel threads (0 and 1) already created at low priority.
func newTestSystem(t *testing.T, mutate ...func(*Config)) *testSystem {
	t.Helper()

	m, err := hal.New(hal.AMD64)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DefaultHandler = testDefaultHandler
	cfg.SignalRestorer = testRestorer
	for _, fn := range mutate {
		fn(&cfg)
	}

	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Debug})

	s := New(cfg, m.MMU, m.CPU, m.HandOff, logger)
	m.CPU.OnYield(s.Switch)

	ts := &testSystem{t: t, m: m, s: s, log: &buf}
	ts.spawn(s.KernelProcess(), PriorityLow)
	ts.spawn(s.KernelProcess(), PriorityLow)
	return ts
}

func (ts *testSystem) userProcess(name string) *Process {
	return ts.s.CreateProcess(name, 0, FlagUserMode, ts.m.MMU.NewSpace())
}

func (ts *testSystem) spec(p *Process, prio Priority) ThreadSpec {
	ts.n++
	kstack := testKernelStack + ts.n*0x10000
	ustack := testUserStack + ts.n*0x10000
	size := ts.s.Config().StackSize

	require.NoError(ts.t, ts.m.MMU.MapRange(p.Root, kstack-size, size))
	if p.UserMode() {
		require.NoError(ts.t, ts.m.MMU.MapRange(p.Root, ustack-testUserStackSz, testUserStackSz))
	}
	return ThreadSpec{
		Entry:       testCodeBase + ts.n*0x100,
		Priority:    prio,
		KernelStack: kstack,
		UserStack:   ustack,
		TLSBase:     testTLSBase + ts.n*0x1000,
	}
}

func (ts *testSystem) spawn(p *Process, prio Priority) *Thread {
	th, err := ts.s.CreateThread(p, ts.spec(p, prio))
	require.NoError(ts.t, err)
	return th
}

// AllocStacks lets the system double as the CreateThread stack allocator.
func (ts *testSystem) AllocStacks(p *Process) (ThreadSpec, error) {
	return ts.spec(p, PriorityNormal), nil
}

func (ts *testSystem) tick() {
	ts.t.Helper()
	require.NoError(ts.t, ts.m.CPU.Interrupt(ts.s.Timer))
}

func (ts *testSystem) peek(p *Process, virt uint64) uint64 {
	ts.t.Helper()
	v, err := ts.m.MMU.Peek(p.Root, virt)
	require.NoError(ts.t, err)
	return v
}

func (ts *testSystem) frameWord(th *Thread, off uint64) uint64 {
	return ts.peek(th.Process, th.StackPointer+off)
}

// requireHalt runs fn and returns the halt it must raise.
func requireHalt(t *testing.T, fn func()) (h *HaltError) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected halt")
		var ok bool
		h, ok = r.(*HaltError)
		require.True(t, ok, "unexpected panic value %v", r)
	}()
	fn()
	return nil
}
