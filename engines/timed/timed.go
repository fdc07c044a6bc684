// Package timed drives step and direction pins directly from the step timer
// interrupt. The pulse width is held by busy-waiting in the unstep pass.
package timed

import (
	"time"

	"gostep/core"
)

// Name is the registry name of the engine
const Name = "Timed"

// Engine implements core.Engine on a core.GPIODriver
type Engine struct {
	gpio       core.GPIODriver
	dirDelayUS uint32
	pulseUS    uint32
	stepStart  time.Time
}

// New creates a timed engine on the given pins
func New(gpio core.GPIODriver) *Engine {
	return &Engine{gpio: gpio}
}

// Register adds the engine to reg. A nil gpio falls back to the
// process-wide driver at build time.
func Register(reg *core.EngineRegistry, gpio core.GPIODriver) {
	reg.Register(Name, func(core.SteppingConfig) (core.Engine, error) {
		g := gpio
		if g == nil {
			g = core.GPIO()
		}
		if g == nil {
			return nil, core.ErrNoGPIO
		}
		return New(g), nil
	})
}

// Init implements core.Engine. Any width is achievable.
func (e *Engine) Init(dirDelayUS, pulseUS uint32) (uint32, error) {
	e.dirDelayUS = dirDelayUS
	e.pulseUS = pulseUS
	return pulseUS, nil
}

// InitStepPin implements core.Engine
func (e *Engine) InitStepPin(pin core.GPIOPin, invert bool) (core.PinHandle, error) {
	if err := e.gpio.ConfigureOutput(pin); err != nil {
		return 0, err
	}
	// Idle level
	if err := e.gpio.SetPin(pin, invert); err != nil {
		return 0, err
	}
	return core.PinHandle(pin), nil
}

// InitDirPin implements core.DirPinInitializer
func (e *Engine) InitDirPin(pin core.GPIOPin, invert bool) (core.PinHandle, error) {
	if err := e.gpio.ConfigureOutput(pin); err != nil {
		return 0, err
	}
	return core.PinHandle(pin), nil
}

// SetDirPin implements core.Engine
func (e *Engine) SetDirPin(pin core.PinHandle, level bool) {
	_ = e.gpio.SetPin(core.GPIOPin(pin), level)
}

// FinishDir implements core.Engine
func (e *Engine) FinishDir() {
	core.SpinDelayUS(e.dirDelayUS)
}

// SetStepPin implements core.Engine
func (e *Engine) SetStepPin(pin core.PinHandle, level bool) {
	_ = e.gpio.SetPin(core.GPIOPin(pin), level)
}

// FinishStep implements core.Engine. Marks the start of the pulse.
func (e *Engine) FinishStep() {
	e.stepStart = time.Now()
}

// StartUnstep implements core.Engine. Waits out the rest of the pulse width.
func (e *Engine) StartUnstep() bool {
	if e.pulseUS == 0 || e.stepStart.IsZero() {
		return false
	}
	end := e.stepStart.Add(time.Duration(e.pulseUS) * time.Microsecond)
	for time.Now().Before(end) {
	}
	return false
}

// FinishUnstep implements core.Engine
func (e *Engine) FinishUnstep() {}

// MaxPulsesPerSec implements core.Engine. A step period is at least twice the pulse width.
func (e *Engine) MaxPulsesPerSec() uint32 {
	width := e.pulseUS
	if width == 0 {
		width = 1
	}
	return 1000000 / (2 * width)
}
