package hal

import (
	"time"

	"github.com/pkg/errors"
)

// Machine bundles the host simulations of everything the scheduler
// consumes from below.
type Machine struct {
	MMU     *HostMMU
	CPU     *HostCPU
	HandOff *HandOff
	Layout  FrameLayout

	t *hostTime
}

// New returns a host machine with the kernel address space active and
// the CPU parked on the boot stack.
func New(layout FrameLayout) (*Machine, error) {
	mmu := NewHostMMU()
	h := &HandOff{}
	cpu, err := NewHostCPU(mmu, h, layout)
	if err != nil {
		return nil, errors.Wrap(err, "host cpu")
	}
	return &Machine{
		MMU:     mmu,
		CPU:     cpu,
		HandOff: h,
		Layout:  layout,
		t:       newHostTime(time.Millisecond),
	}, nil
}

// Time returns the host tick source.
func (m *Machine) Time() Time { return m.t }

// SetTickPeriod sets how much wall time one timer tick stands for when
// the headless runner is paced. It must be called before the first tick.
func (m *Machine) SetTickPeriod(d time.Duration) { m.t = newHostTime(d) }

// DroppedTicks reports ticks lost because the step function fell behind.
func (m *Machine) DroppedTicks() uint64 { return m.t.dropped }
