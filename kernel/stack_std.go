package kernel

import "runtime/debug"

const maxHaltStack = 16 << 10

func captureStack() []byte {
	st := debug.Stack()
	if len(st) > maxHaltStack {
		st = st[:maxHaltStack]
	}
	return st
}
