package core

import "sync/atomic"

// Table capacity
const (
	MaxAxes          = 6
	MaxMotorsPerAxis = 2
)

// Motor is one physical stepper driver attached to an axis
type Motor struct {
	StepPin    PinHandle // Backend handle returned by Engine.InitStepPin
	StepInvert bool      // Step output is active low
	DirPin     PinHandle // Raw direction pin
	DirInvert  bool      // Direction output is inverted

	// blocked is written by foreground code and limited by limit switch
	// handlers; the step interrupt reads both. Each is a single word with
	// lock-free loads and stores, repeated writes are harmless.
	blocked atomic.Bool
	limited atomic.Bool
}

// Blocked reports whether pulses are suppressed by an operator or driver
func (m *Motor) Blocked() bool {
	return m.blocked.Load()
}

// Limited reports whether pulses are suppressed by a limit switch
func (m *Motor) Limited() bool {
	return m.limited.Load()
}

// canStep is true when neither suppression flag is set
func (m *Motor) canStep() bool {
	return !m.blocked.Load() && !m.limited.Load()
}

// MotorRef addresses one motor slot. Limit switch handlers keep a MotorRef
// and toggle the limited flag through SetLimited without any other lookup.
type MotorRef struct {
	Axis  uint8
	Motor uint8
}

type motorSlot struct {
	present bool
	rawStep GPIOPin // Pin the step handle was created for
	motor   Motor
}

// stepHandle returns the existing step handle of a slot if it was created
// for the same pin and polarity
func (t *MotorTable) stepHandle(axis, motor int, pin GPIOPin, invert bool) (PinHandle, bool) {
	s := &t.slots[axis][motor]
	if !s.present || s.rawStep != pin || s.motor.StepInvert != invert {
		return 0, false
	}
	return s.motor.StepPin, true
}

// MotorTable is the fixed axis by motor-slot pin table.
// Slots are filled during configuration and never removed.
type MotorTable struct {
	slots [MaxAxes][MaxMotorsPerAxis]motorSlot
	nAxes int
}

// assign stores a complete motor record, replacing any previous one
func (t *MotorTable) assign(axis, motor int, rawStep GPIOPin, stepPin PinHandle, stepInvert bool, dirPin PinHandle, dirInvert bool) {
	if axis >= t.nAxes {
		t.nAxes = axis + 1
	}
	s := &t.slots[axis][motor]
	s.rawStep = rawStep
	s.motor.StepPin = stepPin
	s.motor.StepInvert = stepInvert
	s.motor.DirPin = dirPin
	s.motor.DirInvert = dirInvert
	s.motor.blocked.Store(false)
	s.motor.limited.Store(false)
	s.present = true
}

// ActiveAxes returns the number of axes that have been assigned motors,
// counting from axis 0
func (t *MotorTable) ActiveAxes() int {
	return t.nAxes
}

// Motor returns the motor in a slot, or nil if the slot is empty
func (t *MotorTable) Motor(axis, motor int) *Motor {
	if axis < 0 || axis >= MaxAxes || motor < 0 || motor >= MaxMotorsPerAxis {
		return nil
	}
	s := &t.slots[axis][motor]
	if !s.present {
		return nil
	}
	return &s.motor
}

// Block suppresses pulses for a motor
func (t *MotorTable) Block(axis, motor int) {
	if m := t.Motor(axis, motor); m != nil {
		m.blocked.Store(true)
	}
}

// Unblock re-enables pulses for a motor
func (t *MotorTable) Unblock(axis, motor int) {
	if m := t.Motor(axis, motor); m != nil {
		m.blocked.Store(false)
	}
}

// Limit suppresses pulses for a motor because its limit switch tripped
func (t *MotorTable) Limit(axis, motor int) {
	if m := t.Motor(axis, motor); m != nil {
		m.limited.Store(true)
	}
}

// Unlimit clears limit switch suppression for a motor
func (t *MotorTable) Unlimit(axis, motor int) {
	if m := t.Motor(axis, motor); m != nil {
		m.limited.Store(false)
	}
}

// LimitVar returns the handle for a motor's limited flag.
// ok is false if the slot is empty.
func (t *MotorTable) LimitVar(axis, motor int) (ref MotorRef, ok bool) {
	if t.Motor(axis, motor) == nil {
		return MotorRef{}, false
	}
	return MotorRef{Axis: uint8(axis), Motor: uint8(motor)}, true
}

// SetLimited sets or clears the limited flag behind a handle.
// Safe to call from a limit switch interrupt.
func (t *MotorTable) SetLimited(ref MotorRef, limited bool) {
	if m := t.Motor(int(ref.Axis), int(ref.Motor)); m != nil {
		m.limited.Store(limited)
	}
}

// AxisMotors returns handles for every occupied slot on an axis
func (t *MotorTable) AxisMotors(axis int) []MotorRef {
	var refs []MotorRef
	for motor := 0; motor < MaxMotorsPerAxis; motor++ {
		if ref, ok := t.LimitVar(axis, motor); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}
