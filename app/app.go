package app

import (
	"context"
	"time"

	"spindle/hal"
	"spindle/internal/config"
	"spindle/kernel"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const kernelEntryBase = 0xFFFF_8000_0000_1000

// System is a booted simulated machine: the scheduler, the host
// hardware it drives and the scripted workload.
type System struct {
	cfg config.Config
	log hclog.Logger

	m      *hal.Machine
	s      *kernel.Scheduler
	stacks *stackAllocator

	procs   map[string]kernel.ProcessID
	events  []config.Event
	handled map[kernel.ThreadID]int
	ticks   uint64
	halt    *kernel.HaltInfo
}

// New boots a machine from cfg: the kernel idle and main threads, then
// every configured process with its threads.
func New(cfg config.Config, logger hclog.Logger) (*System, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	m, err := hal.New(hal.AMD64)
	if err != nil {
		return nil, errors.Wrap(err, "boot machine")
	}
	m.SetTickPeriod(time.Duration(cfg.Scheduler.TickMs) * time.Millisecond)
	kcfg := cfg.Kernel()
	kcfg.Layout = m.Layout

	sys := &System{
		cfg:     cfg,
		log:     logger,
		m:       m,
		s:       kernel.New(kcfg, m.MMU, m.CPU, m.HandOff, logger),
		stacks:  newStackAllocator(m.MMU, kcfg.StackSize, kcfg.TLSSize),
		procs:   make(map[string]kernel.ProcessID),
		events:  cfg.SortedEvents(),
		handled: make(map[kernel.ThreadID]int),
	}
	m.CPU.OnYield(sys.s.Switch)
	sys.s.SetStackAllocator(sys.stacks)
	sys.installHaltHandler()

	if err := sys.boot(); err != nil {
		return nil, err
	}
	return sys, nil
}

func (sys *System) boot() error {
	kp := sys.s.KernelProcess()
	for i, name := range []string{"idle", "kmain"} {
		spec, err := sys.stacks.AllocStacks(kp)
		if err != nil {
			return errors.Wrapf(err, "kernel thread %s", name)
		}
		spec.Entry = kernelEntryBase + uint64(i)*0x100
		spec.Priority = kernel.PriorityLow
		if _, err := sys.s.CreateThread(kp, spec); err != nil {
			return errors.Wrapf(err, "kernel thread %s", name)
		}
	}

	for _, pc := range sys.cfg.Sim.Processes {
		if err := sys.spawnProcess(pc); err != nil {
			return errors.Wrapf(err, "process %s", pc.Name)
		}
	}

	sys.log.Info("machine booted",
		"processes", len(sys.cfg.Sim.Processes)+1,
		"threads", len(sys.s.Threads()),
		"events", len(sys.events))
	return nil
}

func (sys *System) spawnProcess(pc config.Process) error {
	root, flags := sys.m.MMU.KernelRoot(), kernel.ProcessFlags(0)
	if !pc.Kernel {
		root, flags = sys.m.MMU.NewSpace(), kernel.FlagUserMode
	}
	var parent kernel.ProcessID
	if pc.Parent != "" {
		parent = sys.procs[pc.Parent]
	}

	p := sys.s.CreateProcess(pc.Name, parent, flags, root)
	sys.procs[pc.Name] = p.ID

	for name, addr := range pc.Handlers {
		sig, _ := kernel.ParseSignal(name)
		if _, err := sys.s.InstallHandler(p.ID, sig, kernel.Disposition(addr)); err != nil {
			return err
		}
	}
	for _, tc := range pc.Threads {
		spec, err := sys.stacks.AllocStacks(p)
		if err != nil {
			return err
		}
		spec.Priority, _ = kernel.ParsePriority(tc.Priority)
		spec.Entry = tc.Entry
		spec.InitialArg = tc.Arg
		if _, err := sys.s.CreateThread(p, spec); err != nil {
			return err
		}
	}
	return nil
}

// Run drives timer ticks until the configured tick count is reached,
// ctx ends, or the kernel halts.
func (sys *System) Run(ctx context.Context) error {
	return hal.RunHeadless(ctx, sys.m, sys.Step, hal.HeadlessConfig{
		Hz:    sys.cfg.Sim.Hz,
		Ticks: sys.cfg.Sim.Ticks,
	})
}

// Step applies the events due at tick seq and then raises the timer
// interrupt. A kernel halt is returned as a *kernel.HaltError.
func (sys *System) Step(seq uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h, ok := r.(*kernel.HaltError)
			if !ok {
				panic(r)
			}
			err = h
		}
	}()
	if sys.s.Halted() {
		return errors.New("kernel halted")
	}
	sys.ticks = seq

	for len(sys.events) > 0 && sys.events[0].Tick <= seq {
		ev := sys.events[0]
		sys.events = sys.events[1:]
		if err := sys.apply(ev); err != nil {
			sys.log.Warn("event failed", "tick", seq, "kind", ev.Kind, "error", err)
		}
	}

	if err := sys.m.CPU.Interrupt(sys.s.Timer); err != nil {
		return errors.Wrap(err, "timer interrupt")
	}
	return sys.resume()
}

// Scheduler exposes the booted scheduler.
func (sys *System) Scheduler() *kernel.Scheduler { return sys.s }

// Machine exposes the simulated hardware.
func (sys *System) Machine() *hal.Machine { return sys.m }

// Handled reports how many signal handlers thread tid has run to completion.
func (sys *System) Handled(tid kernel.ThreadID) int { return sys.handled[tid] }

// Halt returns the recorded halt, if the kernel halted.
func (sys *System) Halt() (kernel.HaltInfo, bool) {
	if sys.halt == nil {
		return kernel.HaltInfo{}, false
	}
	return *sys.halt, true
}
