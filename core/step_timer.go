package core

import "sync/atomic"

// StepTimer is the periodic interrupt that drives the pulse callback.
// Start, Stop and SetTicks may be called from the foreground or from inside
// the callback.
type StepTimer interface {
	Init(pulse func())
	SetTicks(ticks uint32)
	Start()
	Stop()
}

// DefaultStepTicks is the period used until SetTicks is called (1kHz)
const DefaultStepTicks = TimerFreq / 1000

// SchedTimer implements StepTimer on the sorted timer list. It is the
// platform timer on targets without a dedicated step timer peripheral and in
// host simulation.
type SchedTimer struct {
	timer   Timer
	pulse   func()
	ticks   atomic.Uint32
	running atomic.Bool
	firing  bool
}

// NewSchedTimer creates a stopped timer
func NewSchedTimer() *SchedTimer {
	t := &SchedTimer{}
	t.ticks.Store(DefaultStepTicks)
	t.timer.Handler = t.fire
	return t
}

// Init registers the pulse callback
func (t *SchedTimer) Init(pulse func()) {
	t.pulse = pulse
}

// SetTicks sets the period used for the next firing
func (t *SchedTimer) SetTicks(ticks uint32) {
	if ticks == 0 {
		ticks = 1
	}
	t.ticks.Store(ticks)
}

// Ticks returns the current period
func (t *SchedTimer) Ticks() uint32 {
	return t.ticks.Load()
}

// Running reports whether the timer is armed
func (t *SchedTimer) Running() bool {
	return t.running.Load()
}

// Start arms the timer one period from now. Starting a running timer is a no-op.
func (t *SchedTimer) Start() {
	if t.running.Swap(true) {
		return
	}
	if t.firing {
		// fire reschedules on return
		return
	}
	DeleteTimer(&t.timer)
	t.timer.WakeTime = GetTime() + t.ticks.Load()
	ScheduleTimer(&t.timer)
}

// Stop disarms the timer. A pending firing is unlinked; a firing in
// progress completes and is not rescheduled.
func (t *SchedTimer) Stop() {
	t.running.Store(false)
	DeleteTimer(&t.timer)
}

func (t *SchedTimer) fire(tm *Timer) uint8 {
	if !t.running.Load() {
		return SF_DONE
	}
	t.firing = true
	if t.pulse != nil {
		t.pulse()
	}
	t.firing = false
	if !t.running.Load() {
		return SF_DONE
	}
	tm.WakeTime += t.ticks.Load()
	return SF_RESCHEDULE
}
