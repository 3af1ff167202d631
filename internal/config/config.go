package config

import (
	"os"
	"sort"
	"strings"

	"spindle/kernel"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the full simulator configuration.
type Config struct {
	Scheduler Scheduler `yaml:"scheduler"`
	Stack     Stack     `yaml:"stack"`
	Signals   Signals   `yaml:"signals"`
	Log       Log       `yaml:"log"`
	Sim       Sim       `yaml:"sim"`
}

type Scheduler struct {
	LowStarveThreshold  uint64 `yaml:"low_starve_threshold"`
	NormStarveThreshold uint64 `yaml:"norm_starve_threshold"`
	TickMs              int64  `yaml:"tick_ms"`
	TLSSize             uint64 `yaml:"tls_size"`
	ProtectedThreads    uint64 `yaml:"protected_threads"`
}

type Stack struct {
	Size              uint64 `yaml:"size"`
	LowWatermark      uint64 `yaml:"low_watermark"`
	CriticalWatermark uint64 `yaml:"critical_watermark"`
}

type Signals struct {
	// DefaultHandler is the handler of every signal a process did not
	// install one for. 0 leaves such signals undelivered.
	DefaultHandler uint64   `yaml:"default_handler"`
	Restorer       uint64   `yaml:"restorer"`
	Ignore         []string `yaml:"ignore"`
}

type Log struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Sim describes the simulated workload.
type Sim struct {
	Hz        int       `yaml:"hz"`    // 0 runs ticks back to back
	Ticks     uint64    `yaml:"ticks"` // 0 runs until interrupted
	Processes []Process `yaml:"processes"`
	Events    []Event   `yaml:"events"`
}

type Process struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
	// Kernel processes run in kernel mode on the kernel address space.
	Kernel   bool              `yaml:"kernel,omitempty"`
	Handlers map[string]uint64 `yaml:"handlers,omitempty"`
	Threads  []Thread          `yaml:"threads"`
}

type Thread struct {
	Priority string `yaml:"priority"`
	Entry    uint64 `yaml:"entry"`
	Arg      uint64 `yaml:"arg,omitempty"`
}

// Event kinds.
const (
	EventSleep         = "sleep"
	EventSignal        = "signal"
	EventSignalProcess = "signal-process"
	EventYield         = "yield"
	EventSpawn         = "spawn"
	EventInstall       = "install"
	EventExit          = "exit"
	EventKill          = "kill"
)

var eventKinds = []string{
	EventSleep, EventSignal, EventSignalProcess, EventYield,
	EventSpawn, EventInstall, EventExit, EventKill,
}

// Event is a scripted action applied just before timer tick Tick.
// Actions without an explicit target are system calls made by the
// thread that is running at that moment.
type Event struct {
	Tick    uint64  `yaml:"tick"`
	Kind    string  `yaml:"kind"`
	Thread  *uint64 `yaml:"thread,omitempty"`
	Process string  `yaml:"process,omitempty"`
	Signal  string  `yaml:"signal,omitempty"`
	Ms      int64   `yaml:"ms,omitempty"`
	Entry   uint64  `yaml:"entry,omitempty"`
	Handler uint64  `yaml:"handler,omitempty"`
}

// Default returns the stock configuration with an empty workload.
func Default() Config {
	k := kernel.DefaultConfig()
	return Config{
		Scheduler: Scheduler{
			LowStarveThreshold:  k.LowStarveThreshold,
			NormStarveThreshold: k.NormStarveThreshold,
			TickMs:              k.TickMs,
			TLSSize:             k.TLSSize,
			ProtectedThreads:    uint64(k.ProtectedThreads),
		},
		Stack: Stack{
			Size:              k.StackSize,
			LowWatermark:      k.LowWatermark,
			CriticalWatermark: k.CriticalWatermark,
		},
		Signals: Signals{
			DefaultHandler: 0,
			Restorer:       0x40_0f00,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Sim: Sim{
			Ticks: 2048,
		},
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the kernel cannot run with.
func (c Config) Validate() error {
	s := c.Scheduler
	if s.LowStarveThreshold == 0 || s.NormStarveThreshold == 0 {
		return errors.New("scheduler: starvation thresholds must be positive")
	}
	if s.TickMs <= 0 {
		return errors.Errorf("scheduler: tick_ms must be positive, got %d", s.TickMs)
	}

	st := c.Stack
	if st.CriticalWatermark >= st.LowWatermark || st.LowWatermark >= st.Size {
		return errors.Errorf("stack: need critical_watermark < low_watermark < size, got %d, %d, %d",
			st.CriticalWatermark, st.LowWatermark, st.Size)
	}
	if c.Signals.DefaultHandler == uint64(kernel.SigIgnore) {
		return errors.New("signals: default_handler 1 is the ignore disposition, use the ignore list")
	}
	for _, name := range c.Signals.Ignore {
		if _, ok := kernel.ParseSignal(name); !ok {
			return errors.Errorf("signals: unknown signal %q", name)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.Errorf("log: unknown format %q", c.Log.Format)
	}

	if c.Sim.Hz < 0 {
		return errors.Errorf("sim: hz must not be negative, got %d", c.Sim.Hz)
	}
	names := make(map[string]bool, len(c.Sim.Processes))
	for i, p := range c.Sim.Processes {
		if p.Name == "" {
			return errors.Errorf("sim: process %d has no name", i)
		}
		if names[p.Name] {
			return errors.Errorf("sim: duplicate process %q", p.Name)
		}
		names[p.Name] = true
		if p.Parent != "" && !names[p.Parent] {
			return errors.Errorf("sim: process %q: parent %q must be declared before it", p.Name, p.Parent)
		}
		for sig := range p.Handlers {
			if _, ok := kernel.ParseSignal(sig); !ok {
				return errors.Errorf("sim: process %q: unknown signal %q", p.Name, sig)
			}
		}
		for j, t := range p.Threads {
			if _, ok := kernel.ParsePriority(t.Priority); !ok {
				return errors.Errorf("sim: process %q thread %d: unknown priority %q", p.Name, j, t.Priority)
			}
		}
	}
	for i, ev := range c.Sim.Events {
		if err := ev.validate(names); err != nil {
			return errors.Wrapf(err, "sim: event %d", i)
		}
	}
	return nil
}

func (ev Event) validate(processes map[string]bool) error {
	known := false
	for _, k := range eventKinds {
		known = known || k == ev.Kind
	}
	if !known {
		return errors.Errorf("unknown kind %q", ev.Kind)
	}

	needSignal := ev.Kind == EventSignal || ev.Kind == EventSignalProcess || ev.Kind == EventInstall
	if needSignal {
		if _, ok := kernel.ParseSignal(ev.Signal); !ok {
			return errors.Errorf("%s: unknown signal %q", ev.Kind, ev.Signal)
		}
	}
	needThread := ev.Kind == EventSignal || ev.Kind == EventExit
	if needThread && ev.Thread == nil {
		return errors.Errorf("%s: thread is required", ev.Kind)
	}
	needProcess := ev.Kind == EventSignalProcess || ev.Kind == EventInstall || ev.Kind == EventKill
	if needProcess && !processes[ev.Process] {
		return errors.Errorf("%s: unknown process %q", ev.Kind, ev.Process)
	}
	if ev.Kind == EventSleep && ev.Ms < 0 {
		return errors.Errorf("sleep: ms must not be negative, got %d", ev.Ms)
	}
	return nil
}

// Kernel converts the validated configuration to scheduler tuning.
func (c Config) Kernel() kernel.Config {
	k := kernel.DefaultConfig()
	k.LowStarveThreshold = c.Scheduler.LowStarveThreshold
	k.NormStarveThreshold = c.Scheduler.NormStarveThreshold
	k.TickMs = c.Scheduler.TickMs
	k.TLSSize = c.Scheduler.TLSSize
	k.ProtectedThreads = kernel.ThreadID(c.Scheduler.ProtectedThreads)
	k.StackSize = c.Stack.Size
	k.LowWatermark = c.Stack.LowWatermark
	k.CriticalWatermark = c.Stack.CriticalWatermark
	k.DefaultHandler = kernel.Disposition(c.Signals.DefaultHandler)
	k.SignalRestorer = c.Signals.Restorer
	for _, name := range c.Signals.Ignore {
		if sig, ok := kernel.ParseSignal(name); ok {
			k.Ignored = append(k.Ignored, sig)
		}
	}
	return k
}

// SortedEvents returns the scripted events ordered by tick, keeping
// file order for events on the same tick.
func (c Config) SortedEvents() []Event {
	evs := append([]Event(nil), c.Sim.Events...)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Tick < evs[j].Tick })
	return evs
}
