package config

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gostep/core"
	"gostep/tmc"
)

// MotorSpec is a motor slot with its pins parsed
type MotorSpec struct {
	Name    string // Axis letter and slot, e.g. x_motor0
	Axis    int
	Motor   int
	Step    Pin
	Dir     Pin
	Disable Pin
	Limit   Pin
	TMC     *tmc.Config
}

// Motors resolves every motor slot, ordered by axis then slot
func (m *Machine) Motors() ([]MotorSpec, error) {
	var specs []MotorSpec
	for name, axis := range m.Axes {
		idx, ok := AxisIndex(name)
		if !ok {
			return nil, &core.ConfigError{Op: "axes", Name: name, Err: ErrAxisName}
		}
		if axis == nil {
			continue
		}
		if len(axis.Motors) > core.MaxMotorsPerAxis {
			return nil, &core.ConfigError{Op: "axes", Name: name + " motors " + strconv.Itoa(len(axis.Motors)), Err: core.ErrMotorRange}
		}
		for slot, mc := range axis.Motors {
			spec, err := resolveMotor(strings.ToLower(name), idx, slot, mc)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Axis != specs[j].Axis {
			return specs[i].Axis < specs[j].Axis
		}
		return specs[i].Motor < specs[j].Motor
	})
	return specs, nil
}

func resolveMotor(axisName string, axis, slot int, mc Motor) (MotorSpec, error) {
	spec := MotorSpec{
		Name:  axisName + "_motor" + strconv.Itoa(slot),
		Axis:  axis,
		Motor: slot,
	}
	pins := []struct {
		key string
		src string
		dst *Pin
	}{
		{"step_pin", mc.StepPin, &spec.Step},
		{"direction_pin", mc.DirPin, &spec.Dir},
		{"disable_pin", mc.DisablePin, &spec.Disable},
		{"limit_pin", mc.LimitPin, &spec.Limit},
	}
	for _, p := range pins {
		pin, err := ParsePin(p.src)
		if err != nil {
			return spec, &core.ConfigError{Op: spec.Name, Name: p.key, Err: err}
		}
		*p.dst = pin
	}
	if !spec.Step.Defined() {
		return spec, &core.ConfigError{Op: spec.Name, Name: "step_pin", Err: ErrPinSyntax}
	}
	if !spec.Dir.Defined() {
		return spec, &core.ConfigError{Op: spec.Name, Name: "direction_pin", Err: ErrPinSyntax}
	}
	if mc.TMC != nil {
		t, err := resolveTMC(spec, mc.TMC)
		if err != nil {
			return spec, err
		}
		spec.TMC = t
	}
	return spec, nil
}

// ParseChip maps a chip name to its model, ignoring case
func ParseChip(name string) (tmc.Chip, bool) {
	for _, c := range []tmc.Chip{tmc.TMC2130, tmc.TMC5160, tmc.TMC5240} {
		if strings.EqualFold(c.String(), name) {
			return c, true
		}
	}
	return 0, false
}

// ParseRunMode maps a run mode name to its value, ignoring case
func ParseRunMode(name string) (tmc.Mode, bool) {
	for _, m := range []tmc.Mode{tmc.StealthChop, tmc.CoolStep, tmc.StallGuard} {
		if strings.EqualFold(m.String(), name) {
			return m, true
		}
	}
	return 0, false
}

func resolveTMC(spec MotorSpec, t *TMC) (*tmc.Config, error) {
	fail := func(key string, err error) error {
		return &core.ConfigError{Op: spec.Name + " tmc", Name: key, Err: err}
	}

	cfg := tmc.DefaultConfig()
	cfg.Name = spec.Name
	cfg.Axis, cfg.Motor = spec.Axis, spec.Motor
	cfg.StepPin, cfg.StepInvert = spec.Step.Num, spec.Step.Invert
	cfg.DirPin, cfg.DirInvert = spec.Dir.Num, spec.Dir.Invert
	if spec.Disable.Defined() {
		cfg.DisablePin, cfg.DisableInvert, cfg.HasDisable = spec.Disable.Num, spec.Disable.Invert, true
	}

	chip, ok := ParseChip(t.Chip)
	if !ok {
		return nil, fail("chip", ErrChipModel)
	}
	cfg.Chip = chip

	cs, err := ParsePin(t.CSPin)
	if err != nil {
		return nil, fail("cs_pin", err)
	}
	if cs.Defined() {
		if cs.Kind != PinGPIO {
			return nil, fail("cs_pin", ErrPinBank)
		}
		cfg.CSPin, cfg.HasCS = cs.Num, true
	}
	if t.SPIIndex != nil {
		cfg.SPIIndex = *t.SPIIndex
	}

	if t.RSenseOhms <= 0 || t.RunAmps < 0 || t.HoldAmps < 0 {
		return nil, fail("current", core.ErrValueRange)
	}
	cfg.RSenseMilliOhm = uint32(math.Round(t.RSenseOhms * 1000))
	cfg.RunCurrentMA = uint32(math.Round(t.RunAmps * 1000))
	cfg.HoldCurrentMA = uint32(math.Round(t.HoldAmps * 1000))

	if t.Microsteps < 1 || t.Microsteps > 256 {
		return nil, fail("microsteps", core.ErrValueRange)
	}
	cfg.Microsteps = uint16(t.Microsteps)

	mode, ok := ParseRunMode(t.RunMode)
	if !ok {
		return nil, fail("run_mode", ErrRunMode)
	}
	cfg.Mode = mode

	if t.StallGuard < -64 || t.StallGuard > 63 {
		return nil, fail("stallguard", core.ErrValueRange)
	}
	cfg.StallThreshold = int8(t.StallGuard)
	cfg.TPWMThrs = t.TPWMThrs
	cfg.TCoolThrs = t.TCoolThrs

	if t.ToffDisable != nil {
		cfg.ToffDisable = *t.ToffDisable
	}
	if t.ToffStealthChop != nil {
		cfg.ToffStealthChop = *t.ToffStealthChop
	}
	if t.ToffCoolStep != nil {
		cfg.ToffCoolStep = *t.ToffCoolStep
	}
	return &cfg, nil
}

// usesShiftRegister reports whether the engine drives step and direction
// through the shift register chain
func usesShiftRegister(e core.EngineType) bool {
	return e == core.EngineI2SStatic || e == core.EngineI2SStream
}

// Validate checks the stepping section, pins and bus requirements
func (m *Machine) Validate() error {
	sc, err := m.SteppingConfig()
	if err != nil {
		return err
	}
	specs, err := m.Motors()
	if err != nil {
		return err
	}

	shift := usesShiftRegister(sc.Engine)
	if shift && m.ShiftBus == nil {
		return &core.ConfigError{Op: "stepping", Name: "engine " + sc.Engine.String(), Err: core.ErrBusNotConfigured}
	}
	outKind := PinGPIO
	if shift {
		outKind = PinShift
	}

	for _, s := range specs {
		if s.Step.Kind != outKind {
			return &core.ConfigError{Op: s.Name, Name: "step_pin " + s.Step.String(), Err: ErrPinBank}
		}
		if s.Dir.Kind != outKind {
			return &core.ConfigError{Op: s.Name, Name: "direction_pin " + s.Dir.String(), Err: ErrPinBank}
		}
		if s.Disable.Defined() && s.Disable.Kind != PinGPIO {
			return &core.ConfigError{Op: s.Name, Name: "disable_pin " + s.Disable.String(), Err: ErrPinBank}
		}
		if s.Limit.Defined() && s.Limit.Kind != PinGPIO {
			return &core.ConfigError{Op: s.Name, Name: "limit_pin " + s.Limit.String(), Err: ErrPinBank}
		}
		if s.TMC != nil && m.SPI == nil {
			return &core.ConfigError{Op: s.Name, Name: "tmc", Err: ErrNoSPI}
		}
	}

	if m.ShiftBus != nil && m.ShiftBus.LatchPin != "" {
		p, err := ParsePin(m.ShiftBus.LatchPin)
		if err != nil {
			return err
		}
		if p.Kind != PinGPIO {
			return &core.ConfigError{Op: "shift_bus", Name: "latch_pin", Err: ErrPinBank}
		}
	}
	if m.Limits.SampleCount == 0 {
		return &core.ConfigError{Op: "limits", Name: "sample_count", Err: core.ErrValueRange}
	}
	return nil
}

// Default returns a three axis machine on RP2040 GPIO. The engine is left to
// the target, the core default being the pulse train engine.
func Default() *Machine {
	m := &Machine{
		Name: "Default",
		Axes: map[string]*Axis{
			"x": {Motors: []Motor{{StepPin: "gpio.0", DirPin: "gpio.1", LimitPin: "gpio.20:low:pu"}}},
			"y": {Motors: []Motor{{StepPin: "gpio.2", DirPin: "gpio.3", LimitPin: "gpio.21:low:pu"}}},
			"z": {Motors: []Motor{{StepPin: "gpio.4", DirPin: "gpio.5", LimitPin: "gpio.22:low:pu"}}},
		},
	}
	applyDefaults(m)
	return m
}
