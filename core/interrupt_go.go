//go:build !tinygo

package core

// State stands in for the saved interrupt mask on host builds
type State uintptr

// disableInterrupts is a no-op on host builds. The simulator drives the
// step timer and limit sampling from a single goroutine.
func disableInterrupts() State {
	return 0
}

func restoreInterrupts(State) {}
