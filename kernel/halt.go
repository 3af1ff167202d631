package kernel

import "fmt"

// HaltInfo describes an unrecoverable invariant violation.
type HaltInfo struct {
	Thread ThreadID
	Reason string
	Stack  []byte
}

// HaltError is the panic value raised when the scheduler halts.
type HaltError struct {
	Info HaltInfo
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("kernel halt (thread %d): %s", e.Info.Thread, e.Info.Reason)
}

type haltState struct {
	active  bool
	handler func(HaltInfo)
}

// Halted reports whether the scheduler has halted.
func (s *Scheduler) Halted() bool { return s.halt.active }

// SetHaltHandler installs the function run when the scheduler halts.
//
// The handler is invoked at most once (on the first halt). It must not panic.
func (s *Scheduler) SetHaltHandler(fn func(HaltInfo)) { s.halt.handler = fn }

// Halt stops the machine. It never returns: after the handler runs the
// scheduler panics with a *HaltError.
func (s *Scheduler) Halt(format string, args ...any) {
	info := HaltInfo{Reason: fmt.Sprintf(format, args...)}
	if s.current != nil {
		info.Thread = s.current.ID
	}

	if !s.halt.active {
		s.halt.active = true
		info.Stack = captureStack()
		s.log.Error("halt", "thread", info.Thread, "reason", info.Reason)
		if fn := s.halt.handler; fn != nil {
			fn(info)
		}
	}
	panic(&HaltError{Info: info})
}
