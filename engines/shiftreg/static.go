package shiftreg

import (
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"

	"gostep/core"
)

// DefaultFreq is the SPI clock assumed when Bus.Freq is unset
const DefaultFreq = 4 * physic.MegaHertz

// Static writes the register word on every direction, step and unstep pass
type Static struct {
	bus        Bus
	word       uint32
	buf        [4]byte
	dirDelayUS uint32
	pulseUS    uint32
	stepStart  time.Time
	txErrors   atomic.Uint32
}

// NewStatic creates the engine and clears the register chain
func NewStatic(bus Bus) (*Static, error) {
	if bus.Freq == 0 {
		bus.Freq = DefaultFreq
	}
	if bus.LatchGPIO != nil {
		if err := bus.LatchGPIO.ConfigureOutput(bus.Latch); err != nil {
			return nil, err
		}
	}
	s := &Static{bus: bus}
	if err := s.write(); err != nil {
		return nil, err
	}
	return s, nil
}

// Word returns the last value written to the chain
func (s *Static) Word() uint32 {
	return s.word
}

// TxErrors returns the number of failed bus writes during stepping
func (s *Static) TxErrors() uint32 {
	return s.txErrors.Load()
}

func (s *Static) write() error {
	putWord(s.buf[:], s.word)
	if err := s.bus.SPI.Tx(s.buf[:], nil); err != nil {
		return err
	}
	if s.bus.LatchGPIO != nil {
		_ = s.bus.LatchGPIO.SetPin(s.bus.Latch, true)
		_ = s.bus.LatchGPIO.SetPin(s.bus.Latch, false)
	}
	return nil
}

func (s *Static) flush() {
	if s.write() != nil {
		s.txErrors.Add(1)
	}
}

// Init implements core.Engine
func (s *Static) Init(dirDelayUS, pulseUS uint32) (uint32, error) {
	s.dirDelayUS = dirDelayUS
	s.pulseUS = pulseUS
	return pulseUS, nil
}

// InitStepPin implements core.Engine. The pin is a register bit.
func (s *Static) InitStepPin(pin core.GPIOPin, invert bool) (core.PinHandle, error) {
	if err := checkPin(pin); err != nil {
		return 0, err
	}
	setBit(&s.word, core.PinHandle(pin), invert)
	return core.PinHandle(pin), s.write()
}

// InitDirPin implements core.DirPinInitializer
func (s *Static) InitDirPin(pin core.GPIOPin, invert bool) (core.PinHandle, error) {
	if err := checkPin(pin); err != nil {
		return 0, err
	}
	return core.PinHandle(pin), nil
}

// SetDirPin implements core.Engine
func (s *Static) SetDirPin(pin core.PinHandle, level bool) {
	setBit(&s.word, pin, level)
}

// FinishDir implements core.Engine
func (s *Static) FinishDir() {
	s.flush()
	core.SpinDelayUS(s.dirDelayUS)
}

// SetStepPin implements core.Engine
func (s *Static) SetStepPin(pin core.PinHandle, level bool) {
	setBit(&s.word, pin, level)
}

// FinishStep implements core.Engine
func (s *Static) FinishStep() {
	s.flush()
	s.stepStart = time.Now()
}

// StartUnstep implements core.Engine. Waits out the rest of the pulse width.
func (s *Static) StartUnstep() bool {
	if s.pulseUS != 0 && !s.stepStart.IsZero() {
		end := s.stepStart.Add(time.Duration(s.pulseUS) * time.Microsecond)
		for time.Now().Before(end) {
		}
	}
	return false
}

// FinishUnstep implements core.Engine
func (s *Static) FinishUnstep() {
	s.flush()
}

// MaxPulsesPerSec implements core.Engine. Every step needs two word writes
// and a pulse period of at least twice the pulse width.
func (s *Static) MaxPulsesPerSec() uint32 {
	busRate := uint32(s.bus.Freq/physic.Hertz) / (2 * NumBits)
	width := s.pulseUS
	if width == 0 {
		width = 1
	}
	if pulseRate := 1000000 / (2 * width); pulseRate < busRate {
		return pulseRate
	}
	return busRate
}
