// Package config loads the JSON machine description: the stepping section,
// the motors of each axis with their driver chips and limit switches, and
// the buses they sit on.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"gostep/core"
	"gostep/tmc"
)

// Machine is the complete machine configuration
type Machine struct {
	Name     string           `json:"name"`
	Stepping Stepping         `json:"stepping"`
	Axes     map[string]*Axis `json:"axes"`
	Limits   Sampling         `json:"limits"`
	ShiftBus *ShiftBus        `json:"shift_bus,omitempty"`
	SPI      *SPIBus          `json:"spi,omitempty"`
}

// Stepping is the stepping section. Unset values take the core defaults;
// an empty engine lets the target pick one with SetDefaultEngine.
type Stepping struct {
	Engine         string  `json:"engine"`
	IdleMS         *uint32 `json:"idle_ms,omitempty"`
	PulseUS        *uint32 `json:"pulse_us,omitempty"`
	DirDelayUS     *uint32 `json:"dir_delay_us,omitempty"`
	DisableDelayUS *uint32 `json:"disable_delay_us,omitempty"`
	Segments       *uint32 `json:"segments,omitempty"`
}

// Axis holds up to two motors
type Axis struct {
	Motors []Motor `json:"motors"`
}

// Motor is one motor slot
type Motor struct {
	StepPin    string `json:"step_pin"`
	DirPin     string `json:"direction_pin"`
	DisablePin string `json:"disable_pin,omitempty"`
	LimitPin   string `json:"limit_pin,omitempty"`
	TMC        *TMC   `json:"tmc,omitempty"`
}

// TMC configures a Trinamic SPI driver chip
type TMC struct {
	Chip            string  `json:"chip"`
	CSPin           string  `json:"cs_pin"`
	SPIIndex        *int    `json:"spi_index,omitempty"`
	RSenseOhms      float64 `json:"r_sense_ohms"`
	RunAmps         float64 `json:"run_amps"`
	HoldAmps        float64 `json:"hold_amps"`
	Microsteps      int     `json:"microsteps"`
	RunMode         string  `json:"run_mode"`
	StallGuard      int     `json:"stallguard"`
	TPWMThrs        uint32  `json:"tpwmthrs"`
	TCoolThrs       uint32  `json:"tcoolthrs"`
	ToffDisable     *uint8  `json:"toff_disable,omitempty"`
	ToffStealthChop *uint8  `json:"toff_stealthchop,omitempty"`
	ToffCoolStep    *uint8  `json:"toff_coolstep,omitempty"`
}

// Sampling sets the limit switch debounce for all switches
type Sampling struct {
	SampleUS    uint32 `json:"sample_us"`
	SampleCount uint8  `json:"sample_count"`
	RestUS      uint32 `json:"rest_us"`
}

// ShiftBus is the SPI bus feeding the shift register chain
type ShiftBus struct {
	Bus      int    `json:"bus"`
	RateHz   uint32 `json:"rate_hz"`
	LatchPin string `json:"latch_pin,omitempty"`
}

// SPIBus is the bus shared by the driver chips
type SPIBus struct {
	Bus    int    `json:"bus"`
	RateHz uint32 `json:"rate_hz"`
}

// Bus defaults
const (
	DefaultShiftRateHz = 4000000
	DefaultSPIRateHz   = 4000000
	TMCSPIMode         = 3
)

// AxisNames orders the axis letters by table index
var AxisNames = [core.MaxAxes]string{"x", "y", "z", "a", "b", "c"}

var (
	ErrAxisName  = errors.New("config: unknown axis")
	ErrNoSPI     = errors.New("config: tmc drivers need an spi section")
	ErrPinBank   = errors.New("config: pin bank does not match the stepping engine")
	ErrChipModel = errors.New("config: unknown tmc chip")
	ErrRunMode   = errors.New("config: unknown run_mode")
)

// AxisIndex maps an axis letter to its table index, ignoring case
func AxisIndex(name string) (int, bool) {
	for i, n := range AxisNames {
		if strings.EqualFold(n, name) {
			return i, true
		}
	}
	return 0, false
}

// LoadFile reads and loads a configuration file
func LoadFile(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load parses a JSON configuration, applies defaults and validates it.
// Unknown fields are rejected.
func Load(jsonData []byte) (*Machine, error) {
	var m Machine

	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}

	applyDefaults(&m)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// applyDefaults fills in missing values
func applyDefaults(m *Machine) {
	if m.Name == "" {
		m.Name = "None"
	}
	if m.Limits.SampleUS == 0 {
		m.Limits.SampleUS = 100
	}
	if m.Limits.SampleCount == 0 {
		m.Limits.SampleCount = 4
	}
	if m.Limits.RestUS == 0 {
		m.Limits.RestUS = 1000
	}

	if m.ShiftBus != nil && m.ShiftBus.RateHz == 0 {
		m.ShiftBus.RateHz = DefaultShiftRateHz
	}
	if m.SPI != nil && m.SPI.RateHz == 0 {
		m.SPI.RateHz = DefaultSPIRateHz
	}

	for _, axis := range m.Axes {
		if axis == nil {
			continue
		}
		for i := range axis.Motors {
			t := axis.Motors[i].TMC
			if t == nil {
				continue
			}
			if t.Chip == "" {
				t.Chip = tmc.TMC2130.String()
			}
			if t.RSenseOhms == 0 {
				t.RSenseOhms = float64(tmc.DefaultRSenseMilliOhm) / 1000
			}
			if t.RunAmps == 0 {
				t.RunAmps = float64(tmc.DefaultRunCurrentMA) / 1000
			}
			if t.HoldAmps == 0 {
				t.HoldAmps = float64(tmc.DefaultHoldCurrentMA) / 1000
			}
			if t.Microsteps == 0 {
				t.Microsteps = tmc.DefaultMicrosteps
			}
			if t.RunMode == "" {
				t.RunMode = tmc.StealthChop.String()
			}
		}
	}
}

// SteppingConfig converts the stepping section
func (m *Machine) SteppingConfig() (core.SteppingConfig, error) {
	cfg := core.DefaultSteppingConfig()
	if m.Stepping.Engine != "" {
		engine, ok := core.ParseEngineType(m.Stepping.Engine)
		if !ok {
			return cfg, &core.ConfigError{Op: "stepping", Name: "engine " + m.Stepping.Engine, Err: core.ErrEngineNotFound}
		}
		cfg.Engine = engine
	}

	set := func(dst *uint32, src *uint32) {
		if src != nil {
			*dst = *src
		}
	}
	set(&cfg.IdleMS, m.Stepping.IdleMS)
	set(&cfg.PulseUS, m.Stepping.PulseUS)
	set(&cfg.DirDelayUS, m.Stepping.DirDelayUS)
	set(&cfg.DisableDelayUS, m.Stepping.DisableDelayUS)
	set(&cfg.Segments, m.Stepping.Segments)

	return cfg, cfg.Validate()
}

// SetDefaultEngine selects the engine when the configuration leaves it
// unset. Reports whether the engine was changed.
func (m *Machine) SetDefaultEngine(e core.EngineType) bool {
	if m.Stepping.Engine != "" {
		return false
	}
	m.Stepping.Engine = e.String()
	return true
}

// SampleTicks converts the limit switch sampling to timer ticks
func (s Sampling) SampleTicks() (sample, rest uint32) {
	return core.TimerFromUS(s.SampleUS), core.TimerFromUS(s.RestUS)
}
