package app

import (
	"fmt"
	"strings"

	"spindle/kernel"

	"github.com/davecgh/go-spew/spew"
)

func (sys *System) installHaltHandler() {
	sys.s.SetHaltHandler(func(info kernel.HaltInfo) {
		sys.halt = &info

		l := sys.log.Named("halt")
		l.Error("Spindle halt", "tick", sys.ticks, "thread", info.Thread, "reason", info.Reason)
		if l.IsTrace() {
			l.Trace("hand-off record", "state", spew.Sdump(*sys.m.HandOff))
		}
		if len(info.Stack) == 0 {
			l.Error("stack: unavailable")
			return
		}
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line == "" {
				continue
			}
			l.Debug(line)
		}
	})
}

func hexAddr(v uint64) string { return fmt.Sprintf("%#x", v) }
