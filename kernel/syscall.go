package kernel

import "github.com/pkg/errors"

// System call numbers.
const (
	SysCreateThread      = 4000
	SysSignalProcess     = 4002
	SysSignalThread      = 4003
	SysSleep             = 4006
	SysYield             = 4007
	SysInstallSigHandler = 4009
	SysGetPID            = 4010
	SysGetParentPID      = 4011
)

// SigErr is returned in place of a disposition when installing a handler fails.
const SigErr = ^uint64(0)

// SysArgs carries the raw argument registers of a system call.
type SysArgs [2]uint64

type sysFunc func(c *Context, args SysArgs) (uint64, error)

var syscalls = map[uint64]sysFunc{
	SysCreateThread:      sysCreateThread,
	SysSignalProcess:     sysSignalProcess,
	SysSignalThread:      sysSignalThread,
	SysSleep:             sysSleep,
	SysYield:             sysYield,
	SysInstallSigHandler: sysInstallSigHandler,
	SysGetPID:            sysGetPID,
	SysGetParentPID:      sysGetParentPID,
}

// Syscall dispatches a system call made by the calling thread.
func (c *Context) Syscall(num uint64, args SysArgs) (uint64, error) {
	fn, ok := syscalls[num]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownSyscall, "%d", num)
	}
	c.s.log.Trace("syscall", "tid", c.t.ID, "num", num, "a0", args[0], "a1", args[1])
	return fn(c, args)
}

func sysCreateThread(c *Context, args SysArgs) (uint64, error) {
	if c.s.stacks == nil {
		return 0, errors.New("create thread: no stack allocator")
	}
	spec, err := c.s.stacks.AllocStacks(c.t.Process)
	if err != nil {
		return 0, errors.Wrap(err, "create thread")
	}
	spec.Entry = args[0]
	spec.Priority = c.t.Priority
	t, err := c.CreateThread(spec)
	if err != nil {
		return 0, err
	}
	return uint64(t.ID), nil
}

func sysSignalProcess(c *Context, args SysArgs) (uint64, error) {
	return 0, c.SignalProcess(ProcessID(args[0]), Signal(args[1]))
}

func sysSignalThread(c *Context, args SysArgs) (uint64, error) {
	return 0, c.Signal(ThreadID(args[0]), Signal(args[1]))
}

// Sleep from a syscall must not yield inside the syscall path, so the
// duration is passed negated.
func sysSleep(c *Context, args SysArgs) (uint64, error) {
	ms := int64(args[0])
	switch {
	case ms < 0:
		return 0, errors.Wrapf(ErrInvalidDuration, "%d ms", args[0])
	case ms == 0:
		return 0, nil
	}
	return 0, c.Sleep(-ms)
}

func sysYield(c *Context, _ SysArgs) (uint64, error) {
	c.Yield()
	return 0, nil
}

func sysInstallSigHandler(c *Context, args SysArgs) (uint64, error) {
	prev, err := c.InstallHandler(Signal(args[0]), Disposition(args[1]))
	if err != nil {
		return SigErr, err
	}
	return uint64(prev), nil
}

func sysGetPID(c *Context, _ SysArgs) (uint64, error) {
	return uint64(c.PID()), nil
}

func sysGetParentPID(c *Context, _ SysArgs) (uint64, error) {
	return uint64(c.ParentPID()), nil
}
