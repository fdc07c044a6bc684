package tmc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"

	"gostep/core"
	"gostep/engines/timed"
	"gostep/targets/sim"
)

// fakeChip is a single chip that answers reads on the following transfer
type fakeChip struct {
	regs    map[uint8]uint32
	pending uint32
	writes  []uint8
}

func newFakeChip(version Chip) *fakeChip {
	return &fakeChip{regs: map[uint8]uint32{IOIN: uint32(version) << IOIN_VERSION_SHFT}}
}

func (f *fakeChip) Tx(w, r []byte) error {
	if len(r) >= PacketBytes {
		in := r[len(r)-PacketBytes:]
		in[0] = 0x01
		in[1] = byte(f.pending >> 24)
		in[2] = byte(f.pending >> 16)
		in[3] = byte(f.pending >> 8)
		in[4] = byte(f.pending)
	}
	reg := w[0]
	data := uint32(w[1])<<24 | uint32(w[2])<<16 | uint32(w[3])<<8 | uint32(w[4])
	if reg&WriteBit != 0 {
		f.regs[reg&^WriteBit] = data
		f.writes = append(f.writes, reg&^WriteBit)
	} else {
		f.pending = f.regs[reg]
	}
	return nil
}

func chipConfig(name string, cs core.GPIOPin, hasCS bool, index int) Config {
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.CSPin = cs
	cfg.HasCS = hasCS
	cfg.SPIIndex = index
	return cfg
}

func TestChainRules(t *testing.T) {
	g := sim.NewGPIO(16)
	c := NewChain(&conntest.Record{}, g)

	_, err := c.Add(chipConfig("x", 0, false, NotChained))
	assert.ErrorIs(t, err, ErrCSRequired)

	first, err := c.Add(chipConfig("x", 10, true, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Index())

	_, err = c.Add(chipConfig("y", 11, true, 2))
	assert.ErrorIs(t, err, ErrCSDuplicate)

	_, err = c.Add(chipConfig("y", 0, false, NotChained))
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = c.Add(chipConfig("y", 0, false, 1))
	assert.ErrorIs(t, err, ErrIndexConflict)

	second, err := c.Add(chipConfig("y", 0, false, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, second.Index())
	assert.Equal(t, 3, c.lastIndex(first))
	assert.Len(t, c.Drivers(), 2)

	// Chip select idles high
	assert.Equal(t, sim.ModeOutput, g.Mode(10))
	assert.True(t, g.Level(10))
}

func TestNotChainedUsesIndexOne(t *testing.T) {
	c := NewChain(&conntest.Record{}, sim.NewGPIO(16))
	d, err := c.Add(chipConfig("x", 4, true, NotChained))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Index())
	assert.Equal(t, 1, c.lastIndex(d))
}

func TestAddRequiresBusAndGPIO(t *testing.T) {
	_, err := NewChain(nil, sim.NewGPIO(4)).Add(chipConfig("x", 1, true, NotChained))
	assert.ErrorIs(t, err, core.ErrBusNotConfigured)

	_, err = NewChain(&conntest.Record{}, nil).Add(chipConfig("x", 1, true, NotChained))
	assert.ErrorIs(t, err, core.ErrNoGPIO)
}

func TestConfigValidation(t *testing.T) {
	c := NewChain(&conntest.Record{}, sim.NewGPIO(16))

	cfg := chipConfig("x", 1, true, 16)
	_, err := c.Add(cfg)
	assert.ErrorIs(t, err, core.ErrValueRange)

	cfg = chipConfig("x", 1, true, NotChained)
	cfg.Microsteps = 12
	_, err = c.Add(cfg)
	assert.ErrorIs(t, err, core.ErrValueRange)

	cfg = chipConfig("x", 1, true, NotChained)
	cfg.ToffCoolStep = 16
	_, err = c.Add(cfg)
	assert.ErrorIs(t, err, core.ErrValueRange)
}

func TestWriteFraming(t *testing.T) {
	g := sim.NewGPIO(16)
	rec := &conntest.Record{}
	c := NewChain(rec, g)
	_, err := c.Add(chipConfig("x", 5, true, 1))
	require.NoError(t, err)
	d, err := c.Add(chipConfig("y", 0, false, 2))
	require.NoError(t, err)

	edges := g.RisingEdges(5)
	require.NoError(t, d.WriteRegister(CHOPCONF, 0x12345678))

	require.Len(t, rec.Ops, 1)
	assert.Equal(t, []byte{0xEC, 0x12, 0x34, 0x56, 0x78, 0, 0, 0, 0, 0}, rec.Ops[0].W)
	assert.Equal(t, edges+1, g.RisingEdges(5))
	assert.True(t, g.Level(5))
}

func TestReadSkipsLaterChips(t *testing.T) {
	play := &conntest.Playback{
		DontPanic: true,
		Ops: []conntest.IO{
			{W: []byte{DRV_STATUS, 0, 0, 0, 0}},
			{
				W: make([]byte, 15),
				R: []byte{
					0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
					0xBB, 0xBB, 0xBB, 0xBB, 0xBB,
					0x03, 0x81, 0x02, 0x43, 0x04,
				},
			},
		},
	}
	c := NewChain(play, sim.NewGPIO(16))
	d, err := c.Add(chipConfig("x", 5, true, 1))
	require.NoError(t, err)
	_, err = c.Add(chipConfig("y", 0, false, 2))
	require.NoError(t, err)
	_, err = c.Add(chipConfig("z", 0, false, 3))
	require.NoError(t, err)

	v, err := d.ReadRegister(DRV_STATUS)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x81024304), v)
	assert.Equal(t, uint8(0x03), d.LastSPIStatus())
	assert.NoError(t, play.Close())
}

func TestReadLastChip(t *testing.T) {
	play := &conntest.Playback{
		DontPanic: true,
		Ops: []conntest.IO{
			{W: []byte{IOIN, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
			{W: make([]byte, 5), R: []byte{0, 0x30, 0, 0, 0}},
		},
	}
	c := NewChain(play, sim.NewGPIO(16))
	_, err := c.Add(chipConfig("x", 5, true, 1))
	require.NoError(t, err)
	cfg := chipConfig("y", 0, false, 2)
	cfg.Chip = TMC5160
	d, err := c.Add(cfg)
	require.NoError(t, err)

	v, err := d.Version()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x30), v)
}

func TestBusErrorPropagates(t *testing.T) {
	play := &conntest.Playback{DontPanic: true}
	c := NewChain(play, sim.NewGPIO(16))
	d, err := c.Add(chipConfig("x", 5, true, NotChained))
	require.NoError(t, err)
	assert.Error(t, d.WriteRegister(GCONF, 0))
	_, err = d.ReadRegister(GCONF)
	assert.Error(t, err)
}

func TestRegisterValues(t *testing.T) {
	c := NewChain(&conntest.Record{}, sim.NewGPIO(16))
	d, err := c.Add(chipConfig("x", 1, true, NotChained))
	require.NoError(t, err)

	assert.Equal(t, uint32(0x040100C5), d.chopconf(DefaultToffStealth))
	assert.Equal(t, uint32(0x000A1108), d.iholdIrun())
	assert.Equal(t, uint8(0), currentScale(0, 110))
	assert.Equal(t, uint8(31), currentScale(5000, 110))
}

func TestInit(t *testing.T) {
	chip := newFakeChip(TMC2130)
	c := NewChain(chip, sim.NewGPIO(16))
	d, err := c.Add(chipConfig("x", 1, true, NotChained))
	require.NoError(t, err)

	require.NoError(t, d.Init())
	assert.Equal(t, []uint8{GCONF, CHOPCONF, IHOLD_IRUN, TPOWERDOWN, TPWMTHRS}, chip.writes)
	assert.Equal(t, uint32(GCONF_EN_PWM_MODE), chip.regs[GCONF])
	assert.Equal(t, uint32(DefaultToffStealth), chip.regs[CHOPCONF]&CHOPCONF_TOFF_MASK)
}

func TestInitStallGuard(t *testing.T) {
	chip := newFakeChip(TMC5160)
	c := NewChain(chip, sim.NewGPIO(16))
	cfg := chipConfig("x", 1, true, NotChained)
	cfg.Chip = TMC5160
	cfg.Mode = StallGuard
	cfg.StallThreshold = -2
	cfg.TCoolThrs = 500
	d, err := c.Add(cfg)
	require.NoError(t, err)

	require.NoError(t, d.Init())
	assert.Equal(t, uint32(DefaultToffCoolStep), chip.regs[CHOPCONF]&CHOPCONF_TOFF_MASK)
	assert.Equal(t, uint32(500), chip.regs[TCOOLTHRS])
	assert.Equal(t, uint32(0x7E)<<COOLCONF_SGT_SHFT, chip.regs[COOLCONF])
}

func TestInitWrongVersion(t *testing.T) {
	chip := newFakeChip(TMC5160)
	c := NewChain(chip, sim.NewGPIO(16))
	d, err := c.Add(chipConfig("x", 1, true, NotChained))
	require.NoError(t, err)

	err = d.Init()
	assert.True(t, errors.Is(err, ErrVersion))
	assert.Empty(t, chip.writes)
}

func TestSetDisableBlocksMotor(t *testing.T) {
	g := sim.NewGPIO(16)
	reg := core.NewEngineRegistry()
	timed.Register(reg, g)
	scfg := core.DefaultSteppingConfig()
	scfg.Engine = core.EngineTimed
	b, err := core.NewBuilder(scfg, reg)
	require.NoError(t, err)

	chip := newFakeChip(TMC2130)
	c := NewChain(chip, g)
	cfg := chipConfig("x", 9, true, NotChained)
	cfg.Axis, cfg.Motor = 1, 0
	cfg.StepPin, cfg.DirPin = 2, 3
	cfg.DisablePin, cfg.HasDisable = 8, true
	d, err := c.Add(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Assign(b))

	s, err := b.Build(core.NewSchedTimer(), nil)
	require.NoError(t, err)

	require.NoError(t, d.SetDisable(true))
	assert.True(t, d.Disabled())
	assert.True(t, s.Motor(1, 0).Blocked())
	assert.True(t, g.Level(8))
	assert.Equal(t, uint32(DefaultToffDisable), chip.regs[CHOPCONF]&CHOPCONF_TOFF_MASK)

	s.Step(0b10, 0)
	assert.False(t, g.Level(2))

	require.NoError(t, d.SetDisable(false))
	assert.False(t, s.Motor(1, 0).Blocked())
	assert.False(t, g.Level(8))
	assert.Equal(t, uint32(DefaultToffStealth), chip.regs[CHOPCONF]&CHOPCONF_TOFF_MASK)

	s.Step(0b10, 0)
	assert.True(t, g.Level(2))
}

func TestStallGuard(t *testing.T) {
	chip := newFakeChip(TMC2130)
	chip.regs[DRV_STATUS] = DRV_STATUS_STALLGUARD | DRV_STATUS_STST | 0x1F5
	c := NewChain(chip, sim.NewGPIO(16))
	d, err := c.Add(chipConfig("x", 1, true, NotChained))
	require.NoError(t, err)

	sg, stalled, err := d.StallGuard()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1F5), sg)
	assert.True(t, stalled)

	st, err := d.ReadStatus()
	require.NoError(t, err)
	assert.True(t, st.Standstill)
	assert.False(t, st.OverTemp)
}

func TestAssignLogsConfig(t *testing.T) {
	var lines []string
	core.SetLogWriter(func(level core.LogLevel, msg string) { lines = append(lines, msg) })
	defer core.SetLogWriter(nil)

	g := sim.NewGPIO(16)
	reg := core.NewEngineRegistry()
	timed.Register(reg, g)
	scfg := core.DefaultSteppingConfig()
	scfg.Engine = core.EngineTimed
	b, err := core.NewBuilder(scfg, reg)
	require.NoError(t, err)

	c := NewChain(&conntest.Record{}, g)
	cfg := chipConfig("x_motor0", 9, true, NotChained)
	cfg.StepPin, cfg.DirPin = 2, 3
	d, err := c.Add(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Assign(b))

	assert.Contains(t, lines, "    TMC2130 x_motor0 Step:gpio.2 Dir:gpio.3 CS:gpio.9 Index:1 R:0.110")
}
