package hal

import "time"

const hostTickBacklog = 1024

// hostTime turns elapsed wall time into timer ticks of a fixed period.
// Ticks that find the backlog full are counted and lost.
type hostTime struct {
	ch      chan uint64
	seq     uint64
	period  time.Duration
	dropped uint64

	last time.Time
	acc  time.Duration
}

func newHostTime(period time.Duration) *hostTime {
	if period <= 0 {
		period = time.Millisecond
	}
	return &hostTime{ch: make(chan uint64, hostTickBacklog), period: period}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// advance converts the wall time elapsed since the previous call into
// ticks. The first call always produces one.
func (t *hostTime) advance(now time.Time) {
	if t.last.IsZero() {
		t.last = now
		t.emit(1)
		return
	}
	t.acc += now.Sub(t.last)
	t.last = now

	n := uint64(t.acc / t.period)
	t.acc %= t.period
	t.emit(n)
}

func (t *hostTime) emit(n uint64) {
	for ; n > 0; n-- {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
			t.dropped++
		}
	}
}
