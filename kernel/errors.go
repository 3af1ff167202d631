package kernel

import "github.com/pkg/errors"

var (
	ErrInvalidSignal        = errors.New("invalid signal number")
	ErrSignalNotOverridable = errors.New("signal handler cannot be overridden")
	ErrNoSuchTarget         = errors.New("no such thread or process")
	ErrNotDisabled          = errors.New("scheduler is not disabled")
	ErrNoCurrentThread      = errors.New("no current thread")
	ErrThreadDead           = errors.New("thread has exited")
	ErrUnknownSyscall       = errors.New("unknown system call")
	ErrInvalidDuration      = errors.New("sleep duration out of range")
)
