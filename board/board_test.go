package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"
	"tinygo.org/x/drivers"

	"gostep/config"
	"gostep/core"
	"gostep/engines/shiftreg"
	"gostep/targets/linux"
	"gostep/targets/sim"
	"gostep/tmc"
)

const timedMachine = `{
	"stepping": {"engine": "Timed", "pulse_us": 2, "disable_delay_us": 1},
	"axes": {
		"x": {"motors": [{"step_pin": "gpio.2", "direction_pin": "gpio.3", "disable_pin": "gpio.8:low", "limit_pin": "gpio.20:low:pu"}]},
		"y": {"motors": [{"step_pin": "gpio.4", "direction_pin": "gpio.5"}]}
	}
}`

func load(t *testing.T, js string) *config.Machine {
	t.Helper()
	m, err := config.Load([]byte(js))
	require.NoError(t, err)
	return m
}

func assemble(t *testing.T, js string, hw Hardware) *Board {
	t.Helper()
	core.ResetTimers()
	core.SetTime(0)
	bd, err := Assemble(load(t, js), hw)
	require.NoError(t, err)
	t.Cleanup(func() {
		bd.Stop()
		core.ResetTimers()
	})
	return bd
}

func runUntilIdle(t *testing.T, bd *Board) {
	t.Helper()
	st := bd.Timer.(*core.SchedTimer)
	for i := 0; i < 100000 && st.Running(); i++ {
		core.AdvanceTime(1)
	}
	require.False(t, st.Running())
	core.AdvanceTime(core.TimerFromUS(core.MaxPulseUS))
}

// fakeSPIDriver hands out one bus for every ConfigureBus call
type fakeSPIDriver struct {
	bus     drivers.SPI
	configs []core.SPIConfig
}

func (f *fakeSPIDriver) ConfigureBus(cfg core.SPIConfig) (drivers.SPI, error) {
	f.configs = append(f.configs, cfg)
	return f.bus, nil
}

// fakeChip answers register reads of a single driver chip
type fakeChip struct {
	regs    map[uint8]uint32
	pending uint32
}

func (f *fakeChip) Tx(w, r []byte) error {
	if len(r) >= tmc.PacketBytes {
		in := r[len(r)-tmc.PacketBytes:]
		in[1], in[2], in[3], in[4] = byte(f.pending>>24), byte(f.pending>>16), byte(f.pending>>8), byte(f.pending)
	}
	data := uint32(w[1])<<24 | uint32(w[2])<<16 | uint32(w[3])<<8 | uint32(w[4])
	if w[0]&tmc.WriteBit != 0 {
		f.regs[w[0]&^tmc.WriteBit] = data
	} else {
		f.pending = f.regs[w[0]]
	}
	return nil
}

func (f *fakeChip) Transfer(b byte) (byte, error) { return 0, nil }

func TestTimedMachineMoves(t *testing.T) {
	g := sim.NewGPIO(32)
	bd := assemble(t, timedMachine, Hardware{GPIO: g})
	bd.Start()

	assert.Equal(t, 2, bd.Stepping.ActiveAxes())
	require.NoError(t, bd.Move(core.PulseTick{StepMask: 0b11, DirMask: 0b10, Ticks: 20, Count: 3}))
	runUntilIdle(t, bd)

	assert.Equal(t, int32(3), bd.Stepping.AxisSteps(0))
	assert.Equal(t, int32(-3), bd.Stepping.AxisSteps(1))
	assert.Equal(t, 3, g.RisingEdges(2))
	assert.Equal(t, 3, g.RisingEdges(4))
	assert.False(t, g.Level(2))
	assert.False(t, g.Level(3))
	assert.True(t, g.Level(5))
	assert.True(t, bd.Queue.Idle())
}

func TestMoveRejectsWholeBatch(t *testing.T) {
	g := sim.NewGPIO(32)
	bd := assemble(t, timedMachine, Hardware{GPIO: g})
	bd.Start()

	batch := make([]core.PulseTick, core.PulseQueueSize)
	for i := range batch {
		batch[i] = core.PulseTick{StepMask: 0b01, Ticks: 20, Count: 1}
	}
	require.ErrorIs(t, bd.Move(batch...), core.ErrQueueFull)
	assert.Equal(t, 0, bd.Queue.Len())
	assert.False(t, bd.Timer.(*core.SchedTimer).Running())

	require.NoError(t, bd.Move(batch[:2]...))
	runUntilIdle(t, bd)
	assert.Equal(t, int32(2), bd.Stepping.AxisSteps(0))
	assert.Equal(t, 2, g.RisingEdges(2))
}

func TestLimitSwitchStopsMotor(t *testing.T) {
	g := sim.NewGPIO(32)
	bd := assemble(t, timedMachine, Hardware{GPIO: g})
	bd.Start()
	require.Len(t, bd.Limits.Switches(), 1)
	assert.Equal(t, "x_motor0_limit", bd.Limits.Switches()[0].Name())

	g.Drive(20, false)
	core.AdvanceTime(core.TimerFromUS(1000) + 4*core.TimerFromUS(100))
	assert.True(t, bd.Stepping.Motor(0, 0).Limited())
	assert.False(t, bd.Stepping.Motor(1, 0).Limited())

	require.NoError(t, bd.Move(core.PulseTick{StepMask: 0b11, Ticks: 20, Count: 2}))
	runUntilIdle(t, bd)
	assert.Equal(t, 0, g.RisingEdges(2))
	assert.Equal(t, 2, g.RisingEdges(4))
	// The accumulator follows commanded steps
	assert.Equal(t, int32(2), bd.Stepping.AxisSteps(0))
}

func TestDisablePins(t *testing.T) {
	g := sim.NewGPIO(32)
	bd := assemble(t, timedMachine, Hardware{GPIO: g})
	assert.Equal(t, sim.ModeOutput, g.Mode(8))

	require.NoError(t, bd.SetMotorsDisabled(true))
	assert.True(t, bd.MotorsDisabled())
	assert.False(t, g.Level(8))

	require.NoError(t, bd.SetMotorsDisabled(false))
	assert.True(t, g.Level(8))
}

func TestTMCMachine(t *testing.T) {
	g := sim.NewGPIO(32)
	chip := &fakeChip{regs: map[uint8]uint32{tmc.IOIN: uint32(tmc.TMC2130) << tmc.IOIN_VERSION_SHFT}}
	spi := &fakeSPIDriver{bus: chip}
	bd := assemble(t, `{
		"stepping": {"engine": "timed"},
		"spi": {"bus": 1},
		"axes": {"x": {"motors": [{"step_pin": "gpio.2", "direction_pin": "gpio.3", "tmc": {"cs_pin": "gpio.9", "run_mode": "CoolStep"}}]}}
	}`, Hardware{GPIO: g, SPI: spi})

	require.Len(t, spi.configs, 1)
	assert.Equal(t, core.SPIConfig{BusID: 1, Mode: config.TMCSPIMode, Rate: config.DefaultSPIRateHz}, spi.configs[0])
	require.Len(t, bd.Drivers, 1)
	assert.Equal(t, uint32(tmc.DefaultToffCoolStep), chip.regs[tmc.CHOPCONF]&tmc.CHOPCONF_TOFF_MASK)

	require.NoError(t, bd.SetMotorsDisabled(true))
	assert.True(t, bd.Stepping.Motor(0, 0).Blocked())
	assert.Equal(t, uint32(0), chip.regs[tmc.CHOPCONF]&tmc.CHOPCONF_TOFF_MASK)

	require.NoError(t, bd.SetMotorsDisabled(false))
	assert.False(t, bd.Stepping.Motor(0, 0).Blocked())
}

func TestTMCNeedsSPIDriver(t *testing.T) {
	m := load(t, `{
		"stepping": {"engine": "timed"},
		"spi": {},
		"axes": {"x": {"motors": [{"step_pin": "gpio.2", "direction_pin": "gpio.3", "tmc": {"cs_pin": "gpio.9"}}]}}
	}`)
	_, err := Assemble(m, Hardware{GPIO: sim.NewGPIO(32)})
	assert.ErrorIs(t, err, core.ErrBusNotConfigured)
}

func TestShiftRegisterMachine(t *testing.T) {
	g := sim.NewGPIO(32)
	rec := &conntest.Record{}
	spi := &fakeSPIDriver{bus: linux.ConnSPI{Conn: rec}}
	bd := assemble(t, `{
		"stepping": {"engine": "I2S_static", "pulse_us": 1},
		"shift_bus": {"bus": 0, "latch_pin": "gpio.12"},
		"axes": {"z": {"motors": [{"step_pin": "i2so.0", "direction_pin": "i2so.1"}]}}
	}`, Hardware{GPIO: g, SPI: spi})

	static, ok := bd.Stepping.Engine().(*shiftreg.Static)
	require.True(t, ok)
	assert.Equal(t, sim.ModeOutput, g.Mode(12))

	require.NoError(t, bd.Move(core.PulseTick{StepMask: 0b100, Ticks: 200, Count: 1}))
	runUntilIdle(t, bd)
	assert.Equal(t, int32(1), bd.Stepping.AxisSteps(2))
	assert.Equal(t, uint32(0), static.Word())
	assert.NotEmpty(t, rec.Ops)
}

func TestMissingShiftBusDriver(t *testing.T) {
	m := load(t, `{"stepping": {"engine": "I2S_static"}, "shift_bus": {}}`)
	_, err := Assemble(m, Hardware{GPIO: sim.NewGPIO(8)})
	assert.ErrorIs(t, err, core.ErrBusNotConfigured)
}

func TestAssembleNeedsGPIO(t *testing.T) {
	m := load(t, timedMachine)
	_, err := Assemble(m, Hardware{})
	assert.ErrorIs(t, err, core.ErrNoGPIO)
}

func TestTargetEnginesKept(t *testing.T) {
	reg := core.NewEngineRegistry()
	reg.Register("RMT", func(core.SteppingConfig) (core.Engine, error) {
		return nil, core.ErrChannelsExhausted
	})
	m := load(t, `{"axes": {}}`)
	_, err := Assemble(m, Hardware{GPIO: sim.NewGPIO(8), Engines: reg})
	assert.ErrorIs(t, err, core.ErrChannelsExhausted)
	assert.ElementsMatch(t, []string{"RMT", "Timed", "I2S"}, reg.Names())
}
