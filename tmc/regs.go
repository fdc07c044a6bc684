package tmc

// Trinamic SPI register map shared by the TMC2130, TMC5160 and TMC5240.
// Based on the TMC5240 datasheet Rev. 1.09.

// Register addresses
const (
	GCONF      = 0x00 // Global configuration flags
	GSTAT      = 0x01 // Global status flags
	IFCNT      = 0x02 // Interface transmission counter
	IOIN       = 0x04 // Input pin states and chip version
	IHOLD_IRUN = 0x10 // Driver current control
	TPOWERDOWN = 0x11 // Delay after standstill
	TSTEP      = 0x12 // Measured time between two steps (read only)
	TPWMTHRS   = 0x13 // Upper velocity for StealthChop
	TCOOLTHRS  = 0x14 // Lower threshold velocity for CoolStep and StallGuard
	THIGH      = 0x15 // High velocity threshold
	CHOPCONF   = 0x6C // Chopper configuration
	COOLCONF   = 0x6D // CoolStep and StallGuard configuration
	DRV_STATUS = 0x6F // Driver status flags and StallGuard result
	PWMCONF    = 0x70 // StealthChop PWM configuration
)

// SPI access
const (
	WriteBit = 0x80 // Set in the address byte for writes
)

// GCONF bits
const (
	GCONF_EN_PWM_MODE = 1 << 2 // Enable StealthChop PWM mode
	GCONF_SHAFT       = 1 << 4 // Inverse motor direction
	GCONF_DIAG1_STALL = 1 << 8 // DIAG1 active on stall
)

// CHOPCONF fields
const (
	CHOPCONF_TOFF_MASK  = 0xF
	CHOPCONF_HSTRT_SHFT = 4
	CHOPCONF_HEND_SHFT  = 7
	CHOPCONF_TBL_SHFT   = 15
	CHOPCONF_MRES_SHFT  = 24
	CHOPCONF_MRES_MASK  = 0xF << CHOPCONF_MRES_SHFT
)

// IHOLD_IRUN fields
const (
	IHOLD_SHFT      = 0
	IRUN_SHFT       = 8
	IHOLDDELAY_SHFT = 16
)

// COOLCONF fields
const (
	COOLCONF_SGT_SHFT = 16
	COOLCONF_SGT_MASK = 0x7F << COOLCONF_SGT_SHFT
)

// DRV_STATUS bits
const (
	DRV_STATUS_SG_RESULT  = 0x3FF   // StallGuard result mask (bits 0-9)
	DRV_STATUS_CS_ACTUAL  = 0x1F << 16
	DRV_STATUS_STALLGUARD = 1 << 24 // StallGuard status
	DRV_STATUS_OT         = 1 << 25 // Overtemperature flag
	DRV_STATUS_OTPW       = 1 << 26 // Overtemperature pre-warning
	DRV_STATUS_S2GA       = 1 << 27 // Short to ground phase A
	DRV_STATUS_S2GB       = 1 << 28 // Short to ground phase B
	DRV_STATUS_OLA        = 1 << 29 // Open load phase A
	DRV_STATUS_OLB        = 1 << 30 // Open load phase B
	DRV_STATUS_STST       = 1 << 31 // Standstill indicator
)

// IOIN version field
const (
	IOIN_VERSION_SHFT = 24
)

// Defaults
const (
	DefaultRSenseMilliOhm = 110
	DefaultRunCurrentMA   = 1000
	DefaultHoldCurrentMA  = 500
	DefaultMicrosteps     = 16
	DefaultIHoldDelay     = 10
	DefaultTPowerDown     = 10
	DefaultToffDisable    = 0
	DefaultToffStealth    = 5
	DefaultToffCoolStep   = 3

	chopHSTRT = 4
	chopHEND  = 1
	chopTBL   = 2
)
