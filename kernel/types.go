package kernel

type (
	ThreadID  uint64
	ProcessID uint64
)

// Priority selects one of the three run queues.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh

	numPriorities
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParsePriority maps a name back to its Priority.
func ParsePriority(s string) (Priority, bool) {
	for p := PriorityLow; p < numPriorities; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// ThreadState records which container holds a thread. A thread is in
// exactly one of them at a time.
type ThreadState uint8

const (
	StateReady ThreadState = iota
	StateRunning
	StatePendingSleep
	StateSleeping
	StateDead
)

func (s ThreadState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePendingSleep:
		return "pending-sleep"
	case StateSleeping:
		return "sleeping"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ProcessFlags carry a process's execution mode.
type ProcessFlags uint8

const (
	// FlagUserMode marks a process whose threads resume in user mode.
	FlagUserMode ProcessFlags = 1 << iota
)

// Signal numbers. Valid signals are 0 to NumSignals-1.
type Signal int

const (
	SIGHUP Signal = iota
	SIGINT
	SIGQUIT
	SIGILL
	SIGTRAP
	SIGABRT
	SIGKILL
	SIGSTOP
	SIGTERM

	NumSignals
)

var signalNames = [NumSignals]string{
	"SIGHUP", "SIGINT", "SIGQUIT", "SIGILL", "SIGTRAP",
	"SIGABRT", "SIGKILL", "SIGSTOP", "SIGTERM",
}

func (s Signal) String() string {
	if !s.Valid() {
		return "SIG?"
	}
	return signalNames[s]
}

// ParseSignal accepts a name such as "SIGTERM" or "TERM".
func ParseSignal(name string) (Signal, bool) {
	for i, n := range signalNames {
		if n == name || n[3:] == name {
			return Signal(i), true
		}
	}
	return 0, false
}

// Valid reports whether s is below NumSignals.
func (s Signal) Valid() bool { return s >= 0 && s < NumSignals }

// Overridable reports whether a process may install a handler for s.
func (s Signal) Overridable() bool { return s != SIGKILL && s != SIGSTOP }

// Disposition is a handler-table entry: SigDefault, SigIgnore or the
// entry address of a handler.
type Disposition uint64

const (
	SigDefault Disposition = 0
	SigIgnore  Disposition = 1
)
