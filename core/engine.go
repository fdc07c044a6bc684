package core

import "strings"

// PinHandle is a backend-specific pin reference.
// For direct GPIO backends it is the GPIO number; other backends map it to a
// peripheral channel or an output bit of a serialized stream.
type PinHandle uint32

// Engine is the capability contract every pulse generation backend implements.
// Everything except Init and InitStepPin runs in the step timer interrupt and
// must return in bounded time without allocating or blocking.
type Engine interface {
	// Init applies the direction setup time and step pulse width (both in
	// microseconds) and returns the pulse width the hardware actually uses.
	Init(dirDelayUS, pulseUS uint32) (uint32, error)

	// InitStepPin converts a raw pin number into a handle usable with
	// SetStepPin. The backend may allocate a hardware channel here.
	InitStepPin(pin GPIOPin, invert bool) (PinHandle, error)

	// SetDirPin drives a direction output.
	SetDirPin(pin PinHandle, level bool)

	// FinishDir waits until direction outputs are stable enough for a step
	// edge. Called once per axis whose direction changed.
	FinishDir()

	// SetStepPin drives a step output.
	SetStepPin(pin PinHandle, level bool)

	// FinishStep is called once after all step outputs of a tick are set.
	FinishStep()

	// StartUnstep returns true when the backend ends the pulses by itself,
	// in which case the dispatcher skips its own deassert pass.
	StartUnstep() bool

	// FinishUnstep is called once after all step outputs are deasserted.
	FinishUnstep()

	// MaxPulsesPerSec reports the step rate ceiling of the backend.
	MaxPulsesPerSec() uint32
}

// DirPinInitializer is implemented by backends that must prepare direction
// outputs during configuration. Other backends receive the raw pin number as
// the direction handle.
type DirPinInitializer interface {
	InitDirPin(pin GPIOPin, invert bool) (PinHandle, error)
}

// EngineType selects the pulse generation strategy.
type EngineType uint8

const (
	EngineTimed EngineType = iota
	EngineRMT
	EngineI2SStatic
	EngineI2SStream
)

var engineTypeNames = [...]string{
	EngineTimed:     "Timed",
	EngineRMT:       "RMT",
	EngineI2SStatic: "I2S_static",
	EngineI2SStream: "I2S_stream",
}

// String returns the configuration name of the engine type
func (e EngineType) String() string {
	if int(e) < len(engineTypeNames) {
		return engineTypeNames[e]
	}
	return "unknown"
}

// ParseEngineType maps a configuration name to an engine type, ignoring case
func ParseEngineType(name string) (EngineType, bool) {
	for i, n := range engineTypeNames {
		if strings.EqualFold(n, name) {
			return EngineType(i), true
		}
	}
	return EngineRMT, false
}
