package core

// Stepping engine dispatcher
// Turns per-tick step and direction masks into pulses through the selected
// backend. Configuration happens on a Builder; Build consumes it and returns
// the run-phase Stepping whose Step and Unstep are called from the step timer.

import (
	"strconv"
	"sync/atomic"
)

// dirMaskUnknown is outside the range of any uint8 direction mask
const dirMaskUnknown uint16 = 0xFFFF

// Builder holds the configuration phase of the stepping core
type Builder struct {
	*MotorTable

	cfg     SteppingConfig
	engine  Engine
	pulseUS uint32
	built   bool
}

// NewBuilder resolves the configured engine from the registry and initializes
// it with the configured pulse timing. A nil registry means the process-wide one.
func NewBuilder(cfg SteppingConfig, engines *EngineRegistry) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engines == nil {
		engines = Engines()
	}

	engine, err := engines.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	LogInfo("Stepping:" + cfg.Engine.String() +
		" Pulse:" + utoa(cfg.PulseUS) + "us" +
		" Dsbl Delay:" + utoa(cfg.DisableDelayUS) + "us" +
		" Dir Delay:" + utoa(cfg.DirDelayUS) + "us" +
		" Idle Delay:" + utoa(cfg.IdleMS) + "ms")

	actual, err := engine.Init(cfg.DirDelayUS, cfg.PulseUS)
	if err != nil {
		return nil, &ConfigError{Op: "init engine", Name: cfg.Engine.String(), Err: err}
	}
	if actual != cfg.PulseUS {
		LogWarn("stepping/pulse_us adjusted to " + utoa(actual))
	}

	return &Builder{
		MotorTable: &MotorTable{},
		cfg:        cfg,
		engine:     engine,
		pulseUS:    actual,
	}, nil
}

// Engine returns the selected backend
func (b *Builder) Engine() Engine {
	return b.engine
}

// AssignMotor places a motor in the table. The step pin is converted by the
// backend, which may allocate a hardware channel for it. Reassigning a slot
// with the same step pin and polarity keeps its handle; a different step pin
// gets a new handle and the old channel is not reclaimed.
func (b *Builder) AssignMotor(axis, motor int, stepPin GPIOPin, stepInvert bool, dirPin GPIOPin, dirInvert bool) error {
	if b.built {
		return ErrConfigClosed
	}
	if axis < 0 || axis >= MaxAxes {
		return &ConfigError{Op: "assign motor", Name: "axis " + strconv.Itoa(axis), Err: ErrAxisRange}
	}
	if motor < 0 || motor >= MaxMotorsPerAxis {
		return &ConfigError{Op: "assign motor", Name: "motor " + strconv.Itoa(motor), Err: ErrMotorRange}
	}

	handle, ok := b.stepHandle(axis, motor, stepPin, stepInvert)
	if !ok {
		var err error
		if handle, err = b.engine.InitStepPin(stepPin, stepInvert); err != nil {
			return &ConfigError{Op: "init step pin", Name: "gpio" + utoa(uint32(stepPin)), Err: err}
		}
	}
	dirHandle := PinHandle(dirPin)
	if di, ok := b.engine.(DirPinInitializer); ok {
		var err error
		if dirHandle, err = di.InitDirPin(dirPin, dirInvert); err != nil {
			return &ConfigError{Op: "init dir pin", Name: "gpio" + utoa(uint32(dirPin)), Err: err}
		}
	}
	b.assign(axis, motor, stepPin, handle, stepInvert, dirHandle, dirInvert)
	return nil
}

// Build ends the configuration phase. The timer is initialized with the pulse
// callback of the motion scheduler but not started.
func (b *Builder) Build(timer StepTimer, pulse func()) (*Stepping, error) {
	if b.built {
		return nil, ErrConfigClosed
	}
	if timer == nil {
		return nil, &ConfigError{Op: "build", Name: "step timer", Err: ErrValueRange}
	}
	b.built = true

	s := &Stepping{
		MotorTable: b.MotorTable,
		cfg:        b.cfg,
		engine:     b.engine,
		timer:      timer,
		pulseUS:    b.pulseUS,
		prevDir:    dirMaskUnknown,
	}
	if pulse == nil {
		pulse = func() {}
	}
	timer.Init(pulse)
	return s, nil
}

// Stepping is the run-phase dispatcher. The pin table and backend are fixed.
type Stepping struct {
	*MotorTable

	cfg     SteppingConfig
	engine  Engine
	timer   StepTimer
	pulseUS uint32

	// Owned by the step timer context
	prevDir uint16
	steps   [MaxAxes]atomic.Int32
}

// Step sets direction outputs for axes whose direction changed, then asserts
// step outputs for every axis in stepMask. Called from the step timer.
func (s *Stepping) Step(stepMask, dirMask uint8) {
	prev := s.prevDir
	if prev == dirMaskUnknown {
		// Force every axis to be written on the first call
		prev = uint16(^dirMask)
	}

	if uint16(dirMask) != prev {
		changed := dirMask ^ uint8(prev)
		for axis := 0; axis < s.nAxes; axis++ {
			if changed&(1<<axis) == 0 {
				continue
			}
			dir := dirMask&(1<<axis) != 0
			for motor := 0; motor < MaxMotorsPerAxis; motor++ {
				slot := &s.slots[axis][motor]
				if slot.present {
					s.engine.SetDirPin(slot.motor.DirPin, dir != slot.motor.DirInvert)
				}
			}
			// Some drivers need time between a direction change and a pulse
			s.engine.FinishDir()
		}
		s.prevDir = uint16(dirMask)
		RecordTiming(EvtDirChange, GetTime(), uint32(dirMask), uint32(changed))
	}

	for axis := 0; axis < s.nAxes; axis++ {
		if stepMask&(1<<axis) == 0 {
			continue
		}
		if dirMask&(1<<axis) != 0 {
			s.steps[axis].Add(-1)
		} else {
			s.steps[axis].Add(1)
		}
		for motor := 0; motor < MaxMotorsPerAxis; motor++ {
			slot := &s.slots[axis][motor]
			if slot.present && slot.motor.canStep() {
				s.engine.SetStepPin(slot.motor.StepPin, !slot.motor.StepInvert)
			}
		}
	}
	s.engine.FinishStep()
	RecordTiming(EvtStep, GetTime(), uint32(stepMask), uint32(dirMask))
}

// Unstep returns every step output to its inactive level
func (s *Stepping) Unstep() {
	if s.engine.StartUnstep() {
		return
	}
	for axis := 0; axis < s.nAxes; axis++ {
		for motor := 0; motor < MaxMotorsPerAxis; motor++ {
			slot := &s.slots[axis][motor]
			if slot.present {
				s.engine.SetStepPin(slot.motor.StepPin, slot.motor.StepInvert)
			}
		}
	}
	s.engine.FinishUnstep()
	RecordTiming(EvtUnstep, GetTime(), 0, 0)
}

// AxisSteps returns the step accumulator of an axis.
// Reads from outside the step timer are for reporting only.
func (s *Stepping) AxisSteps(axis int) int32 {
	if axis < 0 || axis >= MaxAxes {
		return 0
	}
	return s.steps[axis].Load()
}

// SetAxisSteps overwrites an axis accumulator, e.g. after homing.
// Only call while the step timer is stopped.
func (s *Stepping) SetAxisSteps(axis int, steps int32) {
	if axis >= 0 && axis < MaxAxes {
		s.steps[axis].Store(steps)
	}
}

// StartTimer starts the periodic step interrupt.
// Called from the foreground when motion resumes.
func (s *Stepping) StartTimer() {
	RecordTiming(EvtTimerStart, GetTime(), 0, 0)
	s.timer.Start()
}

// StopTimer stops the step interrupt. Safe from both contexts; no Step call
// begins after it returns.
func (s *Stepping) StopTimer() {
	s.timer.Stop()
	RecordTiming(EvtTimerStop, GetTime(), 0, 0)
}

// SetTimerPeriod converts a period in planner ticks to step timer ticks.
// Called from the pulse callback when a new segment is loaded.
func (s *Stepping) SetTimerPeriod(plannerTicks uint16) {
	s.timer.SetTicks(PlannerToTimerTicks(uint32(plannerTicks)))
}

// MaxPulsesPerSec returns the backend step rate ceiling
func (s *Stepping) MaxPulsesPerSec() uint32 {
	return s.engine.MaxPulsesPerSec()
}

// PulseUS returns the pulse width the backend achieved
func (s *Stepping) PulseUS() uint32 {
	return s.pulseUS
}

// Config returns the stepping configuration in effect
func (s *Stepping) Config() SteppingConfig {
	return s.cfg
}

// Engine returns the active backend
func (s *Stepping) Engine() Engine {
	return s.engine
}

// Reset is a hook for backends that keep state between motion sessions
func (s *Stepping) Reset() {}

// BeginLowLatency and EndLowLatency bracket work that needs immediate pin
// updates, such as probing. No current backend buffers across them.
func (s *Stepping) BeginLowLatency() {}
func (s *Stepping) EndLowLatency()   {}
