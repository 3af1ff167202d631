package app

import (
	"fmt"
	"io"

	"spindle/hal"
	"spindle/internal/buildinfo"

	"github.com/dustin/go-humanize"
)

// Summary prints the per-thread scheduling report followed by machine totals.
func (sys *System) Summary(w io.Writer) {
	fmt.Fprintf(w, "spindle %s: %d threads\n\n", buildinfo.Get().Short(), len(sys.s.Threads()))
	fmt.Fprintf(w, "%-5s  %-5s  %-12s  %-8s  %-14s  %10s  %7s\n",
		"TID", "PID", "PROCESS", "PRIORITY", "STATE", "SELECTED", "SIGNALS")
	for _, t := range sys.s.Threads() {
		fmt.Fprintf(w, "%-5d  %-5d  %-12s  %-8s  %-14s  %10s  %7d\n",
			t.ID, t.Process.ID, t.Process.Name, t.Priority, t.State(),
			humanize.Comma(int64(t.Selections)), sys.handled[t.ID])
	}

	mmu, cpu := sys.m.MMU, sys.m.CPU
	fmt.Fprintln(w)
	fmt.Fprintf(w, "ticks: %s  dropped: %s  decisions: %s  interrupts: %s\n",
		humanize.Comma(int64(sys.ticks)),
		humanize.Comma(int64(sys.m.DroppedTicks())),
		humanize.Comma(int64(sys.s.Queues().Count())),
		humanize.Comma(int64(cpu.Interrupts)))
	fmt.Fprintf(w, "address-space switches: %s  user returns: %s\n",
		humanize.Comma(int64(mmu.Switches())),
		humanize.Comma(int64(cpu.UserReturns)))
	fmt.Fprintf(w, "address spaces: %d  memory: %s  windows in use: %d\n",
		mmu.Spaces(), humanize.IBytes(uint64(mmu.Frames())*hal.PageSize), mmu.WindowsInUse())
	hits, misses := mmu.TLBStats()
	fmt.Fprintf(w, "translation cache: %s hits  %s misses\n",
		humanize.Comma(int64(hits)), humanize.Comma(int64(misses)))

	if h, ok := sys.Halt(); ok {
		fmt.Fprintf(w, "halted on thread %d: %s\n", h.Thread, h.Reason)
	}
}
