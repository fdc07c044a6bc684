package tmc

import (
	"math"
	"math/bits"
	"strconv"

	"gostep/core"
)

// Mode selects the chopper behavior of a chip
type Mode uint8

const (
	StealthChop Mode = iota
	CoolStep
	StallGuard
)

var modeNames = [...]string{"StealthChop", "CoolStep", "StallGuard"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// Chip identifies the driver model and the IOIN version it reports
type Chip uint8

const (
	TMC2130 Chip = 0x11
	TMC5160 Chip = 0x30
	TMC5240 Chip = 0x40
)

func (c Chip) String() string {
	switch c {
	case TMC2130:
		return "TMC2130"
	case TMC5160:
		return "TMC5160"
	case TMC5240:
		return "TMC5240"
	}
	return "TMC?"
}

// Config describes one chip and the motor it drives
type Config struct {
	Name string
	Chip Chip

	Axis, Motor int

	StepPin    core.GPIOPin
	StepInvert bool
	DirPin     core.GPIOPin
	DirInvert  bool

	CSPin    core.GPIOPin
	HasCS    bool
	SPIIndex int // NotChained or 1..MaxIndex

	DisablePin    core.GPIOPin
	HasDisable    bool
	DisableInvert bool

	RSenseMilliOhm uint32
	RunCurrentMA   uint32
	HoldCurrentMA  uint32
	Microsteps     uint16
	Mode           Mode
	StallThreshold int8 // StallGuard sensitivity, -64..63
	TPWMThrs       uint32
	TCoolThrs      uint32

	ToffDisable     uint8
	ToffStealthChop uint8
	ToffCoolStep    uint8
}

// DefaultConfig returns a chip config with the usual current and toff values
func DefaultConfig() Config {
	return Config{
		Chip:            TMC2130,
		SPIIndex:        NotChained,
		RSenseMilliOhm:  DefaultRSenseMilliOhm,
		RunCurrentMA:    DefaultRunCurrentMA,
		HoldCurrentMA:   DefaultHoldCurrentMA,
		Microsteps:      DefaultMicrosteps,
		Mode:            StealthChop,
		ToffDisable:     DefaultToffDisable,
		ToffStealthChop: DefaultToffStealth,
		ToffCoolStep:    DefaultToffCoolStep,
	}
}

func (cfg *Config) validate() error {
	fail := func(name string) error {
		return &core.ConfigError{Op: "tmc " + cfg.Name, Name: name, Err: core.ErrValueRange}
	}
	if cfg.SPIIndex != NotChained && (cfg.SPIIndex < 1 || cfg.SPIIndex > MaxIndex) {
		return fail("spi_index")
	}
	if cfg.Microsteps == 0 || cfg.Microsteps > 256 || cfg.Microsteps&(cfg.Microsteps-1) != 0 {
		return fail("microsteps")
	}
	if cfg.RSenseMilliOhm == 0 {
		return fail("r_sense_ohms")
	}
	if cfg.Mode > StallGuard {
		return fail("run_mode")
	}
	if cfg.StallThreshold < -64 || cfg.StallThreshold > 63 {
		return fail("stallguard")
	}
	if cfg.ToffDisable > CHOPCONF_TOFF_MASK || cfg.ToffStealthChop > CHOPCONF_TOFF_MASK || cfg.ToffCoolStep > CHOPCONF_TOFF_MASK {
		return fail("toff")
	}
	return nil
}

// Status is the decoded DRV_STATUS register
type Status struct {
	SGResult     uint16
	CurrentScale uint8
	Stalled      bool
	OverTemp     bool
	OverTempWarn bool
	ShortA       bool
	ShortB       bool
	OpenLoadA    bool
	OpenLoadB    bool
	Standstill   bool
}

// DecodeStatus splits a DRV_STATUS value into its flags
func DecodeStatus(v uint32) Status {
	return Status{
		SGResult:     uint16(v & DRV_STATUS_SG_RESULT),
		CurrentScale: uint8((v & DRV_STATUS_CS_ACTUAL) >> 16),
		Stalled:      v&DRV_STATUS_STALLGUARD != 0,
		OverTemp:     v&DRV_STATUS_OT != 0,
		OverTempWarn: v&DRV_STATUS_OTPW != 0,
		ShortA:       v&DRV_STATUS_S2GA != 0,
		ShortB:       v&DRV_STATUS_S2GB != 0,
		OpenLoadA:    v&DRV_STATUS_OLA != 0,
		OpenLoadB:    v&DRV_STATUS_OLB != 0,
		Standstill:   v&DRV_STATUS_STST != 0,
	}
}

// Driver is one chip on a chain
type Driver struct {
	c     *Chain
	cfg   Config
	cs    core.GPIOPin
	index int

	motors   *core.MotorTable
	disabled bool
	status   uint8 // SPI status byte of the last read
}

// Name returns the configured name
func (d *Driver) Name() string { return d.cfg.Name }

// Index returns the position in the daisy chain, 1 for the first chip
func (d *Driver) Index() int { return d.index }

// Config returns the chip configuration
func (d *Driver) Config() Config { return d.cfg }

// LastSPIStatus returns the status byte returned with the last read
func (d *Driver) LastSPIStatus() uint8 { return d.status }

// Assign places the motor in the stepping table. The driver keeps the table
// to block and unblock its motor.
func (d *Driver) Assign(b *core.Builder) error {
	if err := b.AssignMotor(d.cfg.Axis, d.cfg.Motor, d.cfg.StepPin, d.cfg.StepInvert, d.cfg.DirPin, d.cfg.DirInvert); err != nil {
		return err
	}
	d.motors = b.MotorTable
	if d.cfg.HasDisable {
		if err := d.c.gpio.ConfigureOutput(d.cfg.DisablePin); err != nil {
			return err
		}
	}
	d.logConfig()
	return nil
}

func (d *Driver) logConfig() {
	msg := "    " + d.cfg.Chip.String() + " " + d.cfg.Name +
		" Step:gpio." + strconv.Itoa(int(d.cfg.StepPin)) +
		" Dir:gpio." + strconv.Itoa(int(d.cfg.DirPin)) +
		" CS:gpio." + strconv.Itoa(int(d.cs))
	if d.cfg.HasDisable {
		msg += " Disable:gpio." + strconv.Itoa(int(d.cfg.DisablePin))
	}
	msg += " Index:" + strconv.Itoa(d.index) +
		" R:" + strconv.FormatFloat(float64(d.cfg.RSenseMilliOhm)/1000, 'f', 3, 64)
	core.LogInfo(msg)
}

// WriteRegister writes a 32-bit register
func (d *Driver) WriteRegister(reg uint8, data uint32) error {
	return d.c.send(d, reg|WriteBit, data)
}

// ReadRegister reads a 32-bit register. The reply to a request arrives
// during the next chip select cycle.
func (d *Driver) ReadRegister(reg uint8) (uint32, error) {
	if err := d.c.send(d, reg&^WriteBit, 0); err != nil {
		return 0, err
	}
	status, data, err := d.c.receive(d)
	if err != nil {
		return 0, err
	}
	d.status = status
	return data, nil
}

// Version reads the chip version from IOIN
func (d *Driver) Version() (uint8, error) {
	v, err := d.ReadRegister(IOIN)
	if err != nil {
		return 0, err
	}
	return uint8(v >> IOIN_VERSION_SHFT), nil
}

// Init checks the chip version and writes the configured registers.
// The chip is left enabled unless it was disabled before.
func (d *Driver) Init() error {
	version, err := d.Version()
	if err != nil {
		return err
	}
	if Chip(version) != d.cfg.Chip {
		core.LogError(d.cfg.Name + " " + d.cfg.Chip.String() + " version 0x" +
			strconv.FormatUint(uint64(version), 16) + " not detected")
		return &core.ConfigError{Op: "tmc init", Name: d.cfg.Name, Err: ErrVersion}
	}

	var gconf uint32
	switch d.cfg.Mode {
	case StealthChop:
		gconf |= GCONF_EN_PWM_MODE
	case StallGuard:
		gconf |= GCONF_DIAG1_STALL
	}

	writes := []regWrite{
		{GCONF, gconf},
		{CHOPCONF, d.chopconf(d.toff())},
		{IHOLD_IRUN, d.iholdIrun()},
		{TPOWERDOWN, DefaultTPowerDown},
		{TPWMTHRS, d.cfg.TPWMThrs},
	}
	if d.cfg.Mode == StallGuard {
		sgt := uint32(uint8(d.cfg.StallThreshold)&0x7F) << COOLCONF_SGT_SHFT
		writes = append(writes, regWrite{TCOOLTHRS, d.cfg.TCoolThrs}, regWrite{COOLCONF, sgt})
	}
	for _, w := range writes {
		if err := d.WriteRegister(w.reg, w.data); err != nil {
			return err
		}
	}
	return nil
}

type regWrite struct {
	reg  uint8
	data uint32
}

// toff picks the off time for the current state
func (d *Driver) toff() uint8 {
	if d.disabled {
		return d.cfg.ToffDisable
	}
	if d.cfg.Mode == StealthChop {
		return d.cfg.ToffStealthChop
	}
	return d.cfg.ToffCoolStep
}

func (d *Driver) chopconf(toff uint8) uint32 {
	mres := uint32(8 - bits.TrailingZeros16(d.cfg.Microsteps))
	return uint32(toff)&CHOPCONF_TOFF_MASK |
		chopHSTRT<<CHOPCONF_HSTRT_SHFT |
		chopHEND<<CHOPCONF_HEND_SHFT |
		chopTBL<<CHOPCONF_TBL_SHFT |
		mres<<CHOPCONF_MRES_SHFT
}

func (d *Driver) iholdIrun() uint32 {
	irun := currentScale(d.cfg.RunCurrentMA, d.cfg.RSenseMilliOhm)
	ihold := currentScale(d.cfg.HoldCurrentMA, d.cfg.RSenseMilliOhm)
	return uint32(ihold)<<IHOLD_SHFT | uint32(irun)<<IRUN_SHFT | DefaultIHoldDelay<<IHOLDDELAY_SHFT
}

// currentScale converts an RMS current to the 5-bit CS value for vsense=0
func currentScale(mA, rsenseMilliOhm uint32) uint8 {
	rs := float64(rsenseMilliOhm)/1000 + 0.02
	cs := 32*math.Sqrt2*float64(mA)/1000*rs/0.325 - 1
	if cs < 0 {
		return 0
	}
	if cs > 31 {
		return 31
	}
	return uint8(cs)
}

// SetDisable turns the output stage off or on. A disabled chip ignores steps
// so its motor is also blocked in the stepping table.
func (d *Driver) SetDisable(disable bool) error {
	if d.cfg.HasDisable {
		if err := d.c.gpio.SetPin(d.cfg.DisablePin, disable != d.cfg.DisableInvert); err != nil {
			return err
		}
	}
	d.disabled = disable
	if err := d.WriteRegister(CHOPCONF, d.chopconf(d.toff())); err != nil {
		return err
	}
	if d.motors != nil {
		if disable {
			d.motors.Block(d.cfg.Axis, d.cfg.Motor)
		} else {
			d.motors.Unblock(d.cfg.Axis, d.cfg.Motor)
		}
	}
	return nil
}

// Disabled reports the last SetDisable state
func (d *Driver) Disabled() bool { return d.disabled }

// ReadStatus reads and decodes DRV_STATUS
func (d *Driver) ReadStatus() (Status, error) {
	v, err := d.ReadRegister(DRV_STATUS)
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(v), nil
}

// StallGuard reads the StallGuard load value and stall flag
func (d *Driver) StallGuard() (sg uint16, stalled bool, err error) {
	st, err := d.ReadStatus()
	if err != nil {
		return 0, false, err
	}
	return st.SGResult, st.Stalled, nil
}

// ReportStallGuard logs the StallGuard reading, as the periodic debug task does
func (d *Driver) ReportStallGuard() {
	sg, stalled, err := d.StallGuard()
	if err != nil {
		core.LogWarn(d.cfg.Name + " stallguard read failed: " + err.Error())
		return
	}
	msg := d.cfg.Name + " SG_Val: " + strconv.Itoa(int(sg))
	if stalled {
		msg += " Stalled"
	}
	core.DebugPrintln(msg)
}
