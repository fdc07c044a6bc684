package core

import (
	"sync/atomic"
	"time"
)

// Timer frequencies
const (
	TimerFreq       = 12000000 // 12MHz step timer frequency
	PlannerTickFreq = 24000000 // Segment periods arrive in 24MHz planner ticks
)

// systemTicks is advanced by the platform tick source and read from any context
var systemTicks atomic.Uint32

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return systemTicks.Load()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	systemTicks.Store(ticks)
}

// AdvanceTime moves the clock forward and runs due timers
func AdvanceTime(ticks uint32) {
	systemTicks.Add(ticks)
	ProcessTimers()
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// PlannerToTimerTicks converts a planner period to step timer ticks
func PlannerToTimerTicks(ticks uint32) uint32 {
	return ticks / (PlannerTickFreq / TimerFreq)
}

// SpinDelayUS busy-waits. Used for direction settle where sleeping is not
// allowed; keep delays to a few microseconds.
func SpinDelayUS(us uint32) {
	if us == 0 {
		return
	}
	deadline := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

// ProcessTimers processes scheduled timers
func ProcessTimers() {
	TimerDispatch(GetTime())
}
