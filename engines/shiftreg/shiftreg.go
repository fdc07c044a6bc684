// Package shiftreg implements the serialized-bus engine family. Step and
// direction outputs are bits of a 32 bit shift register chain. I2S_static
// rewrites the register word over an SPI bus on every change; I2S_stream
// renders each tick into a sample stream that carries the whole pulse.
package shiftreg

import (
	"strconv"

	"periph.io/x/conn/v3/gpio/gpiostream"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"gostep/core"
)

// Name is the registry name shared by both engines
const Name = "I2S"

// NumBits is the length of the output register chain
const NumBits = 32

// Bus describes the hardware behind the shift register chain.
// SPI is required by I2S_static and Stream by I2S_stream.
type Bus struct {
	SPI       drivers.SPI
	Freq      physic.Frequency // SPI clock, bounds the static engine rate
	LatchGPIO core.GPIODriver  // Optional storage register clock
	Latch     core.GPIOPin

	Stream gpiostream.PinOut
}

// Register adds the family entry to reg. The factory picks the static or
// stream engine from the configured engine type.
func Register(reg *core.EngineRegistry, bus Bus) {
	reg.Register(Name, func(cfg core.SteppingConfig) (core.Engine, error) {
		return New(cfg.Engine, bus)
	})
}

// New builds the engine for the given type
func New(engine core.EngineType, bus Bus) (core.Engine, error) {
	switch engine {
	case core.EngineI2SStatic:
		if bus.SPI == nil {
			return nil, core.ErrBusNotConfigured
		}
		e, err := NewStatic(bus)
		if err != nil {
			return nil, err
		}
		return e, nil
	case core.EngineI2SStream:
		if bus.Stream == nil {
			return nil, core.ErrBusNotConfigured
		}
		return NewStream(bus.Stream), nil
	}
	return nil, core.ErrEngineNotFound
}

func checkPin(pin core.GPIOPin) error {
	if pin >= NumBits {
		return &core.ConfigError{Op: "shift register", Name: "bit " + strconv.Itoa(int(pin)), Err: core.ErrPinUnsupported}
	}
	return nil
}

func setBit(word *uint32, pin core.PinHandle, level bool) {
	if level {
		*word |= 1 << pin
	} else {
		*word &^= 1 << pin
	}
}

func putWord(b []byte, w uint32) {
	b[0] = byte(w >> 24)
	b[1] = byte(w >> 16)
	b[2] = byte(w >> 8)
	b[3] = byte(w)
}
