package hal

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// HeadlessConfig controls the host runner.
type HeadlessConfig struct {
	// Hz paces the runner against wall time. Zero runs ticks back to
	// back as fast as the step function allows.
	Hz int
	// Ticks stops the runner after N ticks (0 = run until ctx ends).
	Ticks uint64
}

// RunHeadless feeds host timer ticks to step, one call per tick.
func RunHeadless(ctx context.Context, m *Machine, step func(seq uint64) error, cfg HeadlessConfig) error {
	if cfg.Hz < 0 {
		return errors.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	var wake <-chan time.Time
	if cfg.Hz > 0 {
		t := time.NewTicker(time.Second / time.Duration(cfg.Hz))
		defer t.Stop()
		wake = t.C
	}

	var done uint64
	for {
		if wake != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-wake:
				m.t.advance(now)
			}
		} else {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.t.emit(1)
		}

	drain:
		for {
			select {
			case seq := <-m.t.Ticks():
				if err := step(seq); err != nil {
					return err
				}
				done++
				if cfg.Ticks > 0 && done >= cfg.Ticks {
					return nil
				}
			default:
				break drain
			}
		}
	}
}
