package core

// SteppingConfig is the stepping section of the machine configuration
type SteppingConfig struct {
	Engine         EngineType
	IdleMS         uint32 // Delay before motors are disabled after motion stops
	PulseUS        uint32 // Step pulse width
	DirDelayUS     uint32 // Direction setup time before a step edge
	DisableDelayUS uint32 // Delay after enable changes before stepping
	Segments       uint32 // Segment buffer depth used by the motion scheduler
}

// Configuration ranges
const (
	MaxIdleMS         = 10000000
	MaxPulseUS        = 30
	MaxDirDelayUS     = 10
	MaxDisableDelayUS = 1000000
	MinSegments       = 6
	MaxSegments       = 20
)

// DefaultSteppingConfig returns the stepping defaults
func DefaultSteppingConfig() SteppingConfig {
	return SteppingConfig{
		Engine:         EngineRMT,
		IdleMS:         255,
		PulseUS:        4,
		DirDelayUS:     0,
		DisableDelayUS: 0,
		Segments:       12,
	}
}

// Validate checks every value against its allowed range
func (c SteppingConfig) Validate() error {
	if int(c.Engine) >= len(engineTypeNames) {
		return &ConfigError{Op: "stepping", Name: "engine", Err: ErrValueRange}
	}
	if c.IdleMS > MaxIdleMS {
		return &ConfigError{Op: "stepping", Name: "idle_ms", Err: ErrValueRange}
	}
	if c.PulseUS > MaxPulseUS {
		return &ConfigError{Op: "stepping", Name: "pulse_us", Err: ErrValueRange}
	}
	if c.DirDelayUS > MaxDirDelayUS {
		return &ConfigError{Op: "stepping", Name: "dir_delay_us", Err: ErrValueRange}
	}
	if c.DisableDelayUS > MaxDisableDelayUS {
		return &ConfigError{Op: "stepping", Name: "disable_delay_us", Err: ErrValueRange}
	}
	if c.Segments < MinSegments || c.Segments > MaxSegments {
		return &ConfigError{Op: "stepping", Name: "segments", Err: ErrValueRange}
	}
	return nil
}
