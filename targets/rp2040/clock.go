//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"gostep/core"
	"gostep/targets/rp2040/hwtimer"
)

var rawHigh, rawLow *volatile.Register32

// ticksPerUS scales the 1MHz hardware timer to the step timer clock
const ticksPerUS = core.TimerFreq / 1000000

// InitClock maps the timer registers of the running chip
func InitClock() {
	h, l := hwtimer.RawAddrs(chip)
	rawHigh = (*volatile.Register32)(unsafe.Pointer(h))
	rawLow = (*volatile.Register32)(unsafe.Pointer(l))
}

// GetHardwareUptime reads the full 64-bit microsecond counter
func GetHardwareUptime() uint64 {
	return hwtimer.Uptime(rawHigh.Get, rawLow.Get)
}

// UpdateSystemTime updates the core clock from the hardware timer.
// Called from the main loop.
func UpdateSystemTime() {
	core.SetTime(uint32(GetHardwareUptime() * ticksPerUS))
}
