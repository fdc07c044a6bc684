package core

import "errors"

// Fatal configuration errors. Motion must not start when any of these is
// returned while building the stepping configuration.
var (
	ErrEngineNotFound    = errors.New("stepping engine not found")
	ErrBusNotConfigured  = errors.New("companion bus not configured for stepping engine")
	ErrAxisRange         = errors.New("axis out of range")
	ErrMotorRange        = errors.New("motor slot out of range")
	ErrConfigClosed      = errors.New("stepping configuration already built")
	ErrChannelsExhausted = errors.New("no free pulse channel")
	ErrPinUnsupported    = errors.New("pin not supported by stepping engine")
	ErrValueRange        = errors.New("value out of range")
	ErrNoGPIO            = errors.New("gpio driver not configured")
)

// ErrQueueFull is returned by PulseQueue.Push when the ring has no free slot
var ErrQueueFull = errors.New("pulse queue full")

// ConfigError reports which configuration step failed
type ConfigError struct {
	Op   string
	Name string
	Err  error
}

// Error implements error
func (e *ConfigError) Error() string {
	msg := e.Op
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying sentinel error
func (e *ConfigError) Unwrap() error {
	return e.Err
}
