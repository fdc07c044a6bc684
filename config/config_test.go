package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostep/core"
	"gostep/tmc"
)

func TestLoadFile(t *testing.T) {
	m, err := LoadFile("testdata/machine.json")
	require.NoError(t, err)
	assert.Equal(t, "Bench", m.Name)

	sc, err := m.SteppingConfig()
	require.NoError(t, err)
	assert.Equal(t, core.EngineTimed, sc.Engine)
	assert.Equal(t, uint32(250), sc.IdleMS)
	assert.Equal(t, uint32(2), sc.PulseUS)
	assert.Equal(t, uint32(1), sc.DirDelayUS)
	assert.Equal(t, uint32(12), sc.Segments)

	assert.Equal(t, uint32(DefaultSPIRateHz), m.SPI.RateHz)
	assert.Equal(t, uint8(3), m.Limits.SampleCount)
	assert.Equal(t, uint32(100), m.Limits.SampleUS)

	specs, err := m.Motors()
	require.NoError(t, err)
	require.Len(t, specs, 3)

	x := specs[0]
	assert.Equal(t, "x_motor0", x.Name)
	assert.Equal(t, Pin{Kind: PinGPIO, Num: 3, Invert: true}, x.Dir)
	assert.Equal(t, Pin{Kind: PinGPIO, Num: 20, Invert: true, PullUp: true}, x.Limit)
	require.NotNil(t, x.TMC)
	assert.Equal(t, tmc.TMC5160, x.TMC.Chip)
	assert.Equal(t, tmc.CoolStep, x.TMC.Mode)
	assert.Equal(t, uint32(75), x.TMC.RSenseMilliOhm)
	assert.Equal(t, uint32(1200), x.TMC.RunCurrentMA)
	assert.Equal(t, uint32(tmc.DefaultHoldCurrentMA), x.TMC.HoldCurrentMA)
	assert.Equal(t, uint16(32), x.TMC.Microsteps)
	assert.True(t, x.TMC.HasCS)
	assert.True(t, x.TMC.DirInvert)

	y0, y1 := specs[1], specs[2]
	assert.Equal(t, 1, y0.Axis)
	assert.Equal(t, 0, y0.Motor)
	assert.False(t, y0.TMC.HasCS)
	assert.Equal(t, 2, y0.TMC.SPIIndex)
	assert.Equal(t, "y_motor1", y1.Name)
	assert.Nil(t, y1.TMC)
	assert.False(t, y1.Limit.Defined())
}

func TestDefaults(t *testing.T) {
	m, err := Load([]byte(`{"axes": {"x": {"motors": [{"step_pin": "gpio0", "direction_pin": "gpio1"}]}}}`))
	require.NoError(t, err)

	sc, err := m.SteppingConfig()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultSteppingConfig(), sc)

	sample, rest := m.Limits.SampleTicks()
	assert.Equal(t, core.TimerFromUS(100), sample)
	assert.Equal(t, core.TimerFromUS(1000), rest)
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		json string
		err  error
	}{
		{"engine", `{"stepping": {"engine": "stepstick"}}`, core.ErrEngineNotFound},
		{"pulse range", `{"stepping": {"pulse_us": 31}}`, core.ErrValueRange},
		{"segments range", `{"stepping": {"segments": 5}}`, core.ErrValueRange},
		{"axis", `{"axes": {"w": {"motors": []}}}`, ErrAxisName},
		{"motor count", `{"axes": {"x": {"motors": [
			{"step_pin": "gpio.0", "direction_pin": "gpio.1"},
			{"step_pin": "gpio.2", "direction_pin": "gpio.3"},
			{"step_pin": "gpio.4", "direction_pin": "gpio.5"}]}}}`, core.ErrMotorRange},
		{"missing step", `{"axes": {"x": {"motors": [{"direction_pin": "gpio.1"}]}}}`, ErrPinSyntax},
		{"bad pin", `{"axes": {"x": {"motors": [{"step_pin": "pin7", "direction_pin": "gpio.1"}]}}}`, ErrPinSyntax},
		{"shift bus missing", `{"stepping": {"engine": "I2S_static"}}`, core.ErrBusNotConfigured},
		{"bank", `{"stepping": {"engine": "i2s_stream"}, "shift_bus": {},
			"axes": {"x": {"motors": [{"step_pin": "gpio.0", "direction_pin": "i2so.1"}]}}}`, ErrPinBank},
		{"tmc without spi", `{"axes": {"x": {"motors": [{"step_pin": "gpio.0", "direction_pin": "gpio.1",
			"tmc": {"cs_pin": "gpio.9"}}]}}}`, ErrNoSPI},
		{"chip", `{"spi": {}, "axes": {"x": {"motors": [{"step_pin": "gpio.0", "direction_pin": "gpio.1",
			"tmc": {"chip": "TMC9999"}}]}}}`, ErrChipModel},
		{"stallguard", `{"spi": {}, "axes": {"x": {"motors": [{"step_pin": "gpio.0", "direction_pin": "gpio.1",
			"tmc": {"stallguard": 64}}]}}}`, core.ErrValueRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.json))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	_, err := Load([]byte(`{"stepping": {"pulse": 3}}`))
	assert.Error(t, err)
}

func TestShiftRegisterMachine(t *testing.T) {
	m, err := Load([]byte(`{
		"stepping": {"engine": "I2S_STATIC"},
		"shift_bus": {"bus": 1, "latch_pin": "gpio.9"},
		"axes": {"z": {"motors": [{"step_pin": "i2so.0", "direction_pin": "i2so.1", "disable_pin": "gpio.8"}]}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultShiftRateHz), m.ShiftBus.RateHz)

	specs, err := m.Motors()
	require.NoError(t, err)
	assert.Equal(t, 2, specs[0].Axis)
	assert.Equal(t, PinShift, specs[0].Step.Kind)
}

func TestParsePin(t *testing.T) {
	p, err := ParsePin("GPIO.12:low")
	require.NoError(t, err)
	assert.Equal(t, Pin{Kind: PinGPIO, Num: 12, Invert: true}, p)
	assert.Equal(t, "gpio.12:low", p.String())

	p, err = ParsePin("i2so.31")
	require.NoError(t, err)
	assert.Equal(t, Pin{Kind: PinShift, Num: 31}, p)

	p, err = ParsePin("NO_PIN")
	require.NoError(t, err)
	assert.False(t, p.Defined())
	assert.Equal(t, "NO_PIN", p.String())

	for _, bad := range []string{"gpio.", "gpio.x", "gpio.1:fast", "gpio.1:pu:pd", "adc.1"} {
		_, err := ParsePin(bad)
		assert.ErrorIs(t, err, ErrPinSyntax, bad)
	}
}

func TestAxisIndex(t *testing.T) {
	i, ok := AxisIndex("Z")
	assert.True(t, ok)
	assert.Equal(t, 2, i)
	_, ok = AxisIndex("e")
	assert.False(t, ok)
}

func TestDefaultMachine(t *testing.T) {
	m := Default()
	require.NoError(t, m.Validate())
	specs, err := m.Motors()
	require.NoError(t, err)
	assert.Len(t, specs, 3)

	sc, err := m.SteppingConfig()
	require.NoError(t, err)
	assert.Equal(t, core.EngineRMT, sc.Engine)
}

func TestSetDefaultEngine(t *testing.T) {
	m := Default()
	assert.True(t, m.SetDefaultEngine(core.EngineTimed))
	sc, err := m.SteppingConfig()
	require.NoError(t, err)
	assert.Equal(t, core.EngineTimed, sc.Engine)

	m, err = Load([]byte(`{"stepping": {"engine": "i2s_static"}, "shift_bus": {}}`))
	require.NoError(t, err)
	assert.False(t, m.SetDefaultEngine(core.EngineTimed))
	assert.Equal(t, "i2s_static", m.Stepping.Engine)
}
