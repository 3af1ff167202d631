package app

import (
	"spindle/internal/config"
	"spindle/kernel"

	"github.com/pkg/errors"
)

func (sys *System) apply(ev config.Event) error {
	sig, _ := kernel.ParseSignal(ev.Signal)
	sys.log.Debug("event", "tick", sys.ticks, "kind", ev.Kind)

	switch ev.Kind {
	case config.EventSleep:
		if ev.Thread == nil {
			return sys.syscall(kernel.SysSleep, kernel.SysArgs{uint64(ev.Ms)})
		}
		t, err := sys.thread(*ev.Thread)
		if err != nil {
			return err
		}
		return sys.s.SleepThread(t, ev.Ms)

	case config.EventSignal:
		return sys.syscall(kernel.SysSignalThread, kernel.SysArgs{*ev.Thread, uint64(sig)})

	case config.EventSignalProcess:
		pid, err := sys.process(ev.Process)
		if err != nil {
			return err
		}
		return sys.syscall(kernel.SysSignalProcess, kernel.SysArgs{uint64(pid), uint64(sig)})

	case config.EventYield:
		return sys.syscall(kernel.SysYield, kernel.SysArgs{})

	case config.EventSpawn:
		return sys.syscall(kernel.SysCreateThread, kernel.SysArgs{ev.Entry})

	case config.EventInstall:
		pid, err := sys.process(ev.Process)
		if err != nil {
			return err
		}
		_, err = sys.s.InstallHandler(pid, sig, kernel.Disposition(ev.Handler))
		return err

	case config.EventExit:
		t, err := sys.thread(*ev.Thread)
		if err != nil {
			return err
		}
		sys.s.ExitThread(t)
		return nil

	case config.EventKill:
		pid, err := sys.process(ev.Process)
		if err != nil {
			return err
		}
		return sys.s.KillProcess(pid)
	}
	return errors.Errorf("unknown event kind %q", ev.Kind)
}

func (sys *System) thread(id uint64) (*kernel.Thread, error) {
	t, ok := sys.s.Thread(kernel.ThreadID(id))
	if !ok {
		return nil, errors.Wrapf(kernel.ErrNoSuchTarget, "thread %d", id)
	}
	return t, nil
}

func (sys *System) process(name string) (kernel.ProcessID, error) {
	pid, ok := sys.procs[name]
	if !ok {
		return 0, errors.Wrapf(kernel.ErrNoSuchTarget, "process %q", name)
	}
	if _, live := sys.s.Process(pid); !live {
		return 0, errors.Wrapf(kernel.ErrNoSuchTarget, "process %q has exited", name)
	}
	return pid, nil
}

// syscall issues a system call from the running thread. User threads
// go through the syscall entry path; kernel threads call straight in.
func (sys *System) syscall(num uint64, args kernel.SysArgs) error {
	ctx, err := sys.s.Context()
	if err != nil {
		return err
	}

	cpu := sys.m.CPU
	if !cpu.User() {
		_, err := ctx.Syscall(num, args)
		return err
	}

	if _, err := cpu.EnterSyscall(); err != nil {
		return errors.Wrap(err, "syscall entry")
	}
	ret, callErr := ctx.Syscall(num, args)
	sys.log.Trace("syscall returned", "tid", ctx.ThreadID(), "num", num, "ret", ret)

	// The caller may have yielded inside the call; whoever runs now
	// finishes its own syscall.
	if err := sys.resume(); err != nil {
		return err
	}
	return callErr
}

// resume completes the syscall of a thread resumed inside one and runs
// any signal handler the thread was redirected into.
func (sys *System) resume() error {
	cpu := sys.m.CPU
	if !cpu.User() && sys.m.HandOff.EntryFrame != 0 {
		if err := cpu.ExitSyscall(); err != nil {
			return errors.Wrap(err, "syscall exit")
		}
	}
	if cpu.User() {
		return sys.runHandler()
	}
	return nil
}

// runHandler simulates a signal handler that returns immediately: the
// return address pushed at delivery is popped, going through the
// restorer when one was pushed.
func (sys *System) runHandler() error {
	t := sys.s.Current()
	if t == nil {
		return nil
	}
	cpu, l := sys.m.CPU, sys.m.Layout

	sig := kernel.Signal(cpu.Reg(l.Arg0))
	if !sig.Valid() {
		return nil
	}
	h := sys.s.EffectiveHandler(t.Process, sig)
	if h == kernel.SigDefault || h == kernel.SigIgnore || cpu.Reg(l.Resume) != uint64(h) {
		return nil
	}

	if err := cpu.Return(); err != nil {
		return errors.Wrap(err, "return from handler")
	}
	if cpu.Reg(l.Resume) == sys.s.Config().SignalRestorer {
		arg0, err := cpu.Pop()
		if err != nil {
			return errors.Wrap(err, "restore argument")
		}
		cpu.SetReg(l.Arg0, arg0)
		if err := cpu.Return(); err != nil {
			return errors.Wrap(err, "return from restorer")
		}
	}

	sys.handled[t.ID]++
	sys.log.Debug("signal handled", "tid", t.ID, "signal", sig, "resume", hexAddr(cpu.Reg(l.Resume)))
	return nil
}
