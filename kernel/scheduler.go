package kernel

import (
	"fmt"

	"spindle/hal"

	"github.com/hashicorp/go-hclog"
)

// Config tunes the scheduler. DefaultConfig returns the stock values.
type Config struct {
	// LowStarveThreshold and NormStarveThreshold bound how many
	// scheduling decisions may pass before the low and normal queues
	// get a turn.
	LowStarveThreshold  uint64
	NormStarveThreshold uint64

	// TickMs is the timer period used for sleep accounting.
	TickMs int64

	// StackSize is the default kernel stack size; together with a
	// thread's TopOfStack it locates the stack bottom.
	StackSize         uint64
	LowWatermark      uint64
	CriticalWatermark uint64

	TLSSize uint64

	// Threads with IDs below ProtectedThreads never receive signals.
	ProtectedThreads ThreadID

	// DefaultHandler is the disposition of every signal a process did
	// not install a handler for, except those listed in Ignored.
	DefaultHandler Disposition
	Ignored        []Signal
	// SignalRestorer is the user-mode stub that restores the first
	// argument register after a handler delivered to a live frame returns.
	SignalRestorer uint64

	Layout hal.FrameLayout
}

// DefaultConfig returns the stock tuning for the AMD64 frame layout.
func DefaultConfig() Config {
	return Config{
		LowStarveThreshold:  1024,
		NormStarveThreshold: 128,
		TickMs:              1,
		StackSize:           0x4000,
		LowWatermark:        0x100,
		CriticalWatermark:   0x10,
		TLSSize:             0x100,
		ProtectedThreads:    2,
		Layout:              hal.AMD64,
	}
}

// StackAllocator prepares stacks and TLS for threads created through
// the CreateThread system call.
type StackAllocator interface {
	AllocStacks(p *Process) (ThreadSpec, error)
}

// Scheduler is the single owner of all scheduling state: registry, run
// queues, sleep lists and the machine hand-off record.
type Scheduler struct {
	cfg     Config
	log     hclog.Logger
	mmu     hal.MMU
	cpu     hal.CPU
	handoff *hal.HandOff
	stacks  StackAllocator

	processes map[ProcessID]*Process
	threads   map[ThreadID]*Thread
	nextPID   ProcessID
	nextTID   ThreadID
	kernel    *Process

	queues   RunQueues
	pending  threadList
	sleeping threadList

	current    *Thread
	activeRoot uint64
	zombies    []uint64

	// switchInSeq is HandOff.EntrySeq when current was selected.
	switchInSeq uint64

	defaults [NumSignals]Disposition

	disabled      int
	deferredTicks int64

	halt haltState
}

// New creates a scheduler with the kernel process (PID 0) registered
// on the address space currently active in mmu.
func New(cfg Config, mmu hal.MMU, cpu hal.CPU, handoff *hal.HandOff, logger hclog.Logger) *Scheduler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Scheduler{
		cfg:        cfg,
		log:        logger.Named("sched"),
		mmu:        mmu,
		cpu:        cpu,
		handoff:    handoff,
		processes:  make(map[ProcessID]*Process),
		threads:    make(map[ThreadID]*Thread),
		activeRoot: mmu.ActiveRoot(),
		queues:     NewRunQueues(cfg.LowStarveThreshold, cfg.NormStarveThreshold),
	}

	for i := range s.defaults {
		s.defaults[i] = cfg.DefaultHandler
	}
	for _, sig := range cfg.Ignored {
		if sig.Valid() {
			s.defaults[sig] = SigIgnore
		}
	}

	s.kernel = s.CreateProcess("kernel", 0, 0, s.activeRoot)
	return s
}

// SetStackAllocator installs the allocator used by the CreateThread system call.
func (s *Scheduler) SetStackAllocator(a StackAllocator) { s.stacks = a }

// Config returns the configuration the scheduler runs with.
func (s *Scheduler) Config() Config { return s.cfg }

// HandOff returns the machine hand-off record the scheduler publishes to.
func (s *Scheduler) HandOff() *hal.HandOff { return s.handoff }

// Queues exposes the run queue set for inspection.
func (s *Scheduler) Queues() *RunQueues { return &s.queues }

// ActiveRoot is the cached root of the loaded address space.
func (s *Scheduler) ActiveRoot() uint64 { return s.activeRoot }

// DefaultDisposition returns the process-wide fallback for sig.
func (s *Scheduler) DefaultDisposition(sig Signal) Disposition {
	if !sig.Valid() {
		return SigDefault
	}
	return s.defaults[sig]
}

func hexAddr(v uint64) string { return fmt.Sprintf("%#x", v) }
