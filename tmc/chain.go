// Package tmc drives Trinamic stepper driver chips over SPI. Chips may share
// one chip select in a daisy chain, addressed by their position in the chain.
// Each chip obtains its step and direction pins from the stepping core and
// afterwards only touches the core through block and unblock.
package tmc

import (
	"errors"
	"strconv"

	"gostep/core"
)

// Bus is the transaction interface the chips need. drivers.SPI and periph
// conn.Conn both satisfy it.
type Bus interface {
	Tx(w, r []byte) error
}

// NotChained marks a chip with its own chip select
const NotChained = -1

// Chain limits
const (
	MaxIndex    = 15
	PacketBytes = 5
	maxFrame    = (MaxIndex + 1) * PacketBytes
)

// Daisy chain configuration errors
var (
	ErrCSRequired    = errors.New("tmc: cs_pin must be configured")
	ErrCSDuplicate   = errors.New("tmc: for daisy-chained TMC, cs_pin must be configured only once")
	ErrIndexRequired = errors.New("tmc: spi_index must be configured on all daisy-chained TMCs")
	ErrIndexConflict = errors.New("tmc: spi_index must be unique among all daisy-chained TMCs")
	ErrVersion       = errors.New("tmc: unexpected chip version")
)

// Chain holds the chips sharing one SPI bus and the daisy chain bookkeeping
type Chain struct {
	bus  Bus
	gpio core.GPIODriver

	chained   bool
	chainCS   core.GPIOPin
	indexMask uint16
	maxIndex  int

	drivers []*Driver
	buf     [maxFrame]byte
}

// NewChain creates an empty chain on a bus. Chip selects are driven through gpio.
func NewChain(bus Bus, gpio core.GPIODriver) *Chain {
	return &Chain{bus: bus, gpio: gpio}
}

// Drivers returns the chips in configuration order
func (c *Chain) Drivers() []*Driver {
	return c.drivers
}

// Add validates the chip select and index rules and creates the driver.
// The first chip of a daisy chain carries the chip select; later chips must
// not, and every chained chip needs a unique index.
func (c *Chain) Add(cfg Config) (*Driver, error) {
	if c.bus == nil {
		return nil, &core.ConfigError{Op: "tmc", Name: cfg.Name, Err: core.ErrBusNotConfigured}
	}
	if c.gpio == nil {
		return nil, &core.ConfigError{Op: "tmc", Name: cfg.Name, Err: core.ErrNoGPIO}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d := &Driver{c: c, cfg: cfg, index: cfg.SPIIndex}
	if !c.chained {
		if !cfg.HasCS {
			return nil, &core.ConfigError{Op: "tmc", Name: cfg.Name, Err: ErrCSRequired}
		}
		if err := c.gpio.ConfigureOutput(cfg.CSPin); err != nil {
			return nil, err
		}
		// Chip select idles high
		if err := c.gpio.SetPin(cfg.CSPin, true); err != nil {
			return nil, err
		}
		d.cs = cfg.CSPin
		if cfg.SPIIndex != NotChained {
			c.chained = true
			c.chainCS = cfg.CSPin
			c.claimIndex(cfg.SPIIndex)
		} else {
			d.index = 1
		}
	} else {
		if cfg.HasCS {
			return nil, &core.ConfigError{Op: "tmc", Name: cfg.Name, Err: ErrCSDuplicate}
		}
		if cfg.SPIIndex == NotChained {
			return nil, &core.ConfigError{Op: "tmc", Name: cfg.Name, Err: ErrIndexRequired}
		}
		if c.indexMask&(1<<cfg.SPIIndex) != 0 {
			return nil, &core.ConfigError{Op: "tmc", Name: cfg.Name + " spi_index " + strconv.Itoa(cfg.SPIIndex), Err: ErrIndexConflict}
		}
		c.claimIndex(cfg.SPIIndex)
		d.cs = c.chainCS
	}

	c.drivers = append(c.drivers, d)
	return d, nil
}

func (c *Chain) claimIndex(index int) {
	c.indexMask |= 1 << index
	if index > c.maxIndex {
		c.maxIndex = index
	}
}

// lastIndex is the chain length a chip must read past
func (c *Chain) lastIndex(d *Driver) int {
	if d.cs == c.chainCS && c.chained {
		return c.maxIndex
	}
	return d.index
}

// transfer runs one chip select cycle
func (c *Chain) transfer(cs core.GPIOPin, w, r []byte) error {
	_ = c.gpio.SetPin(cs, false)
	err := c.bus.Tx(w, r)
	_ = c.gpio.SetPin(cs, true)
	return err
}

// send shifts a packet followed by enough zero packets to move it past the
// chips ahead of it in the chain. Index 1 is the first chip.
func (c *Chain) send(d *Driver, reg uint8, data uint32) error {
	n := d.index * PacketBytes
	frame := c.buf[:n]
	for i := range frame {
		frame[i] = 0
	}
	frame[0] = reg
	frame[1] = byte(data >> 24)
	frame[2] = byte(data >> 16)
	frame[3] = byte(data >> 8)
	frame[4] = byte(data)
	return c.transfer(d.cs, frame, nil)
}

// receive discards the packets of chips behind d, then assembles its reply
func (c *Chain) receive(d *Driver) (status uint8, data uint32, err error) {
	after := c.lastIndex(d) - d.index
	n := (after + 1) * PacketBytes
	w := make([]byte, n)
	r := make([]byte, n)
	if err := c.transfer(d.cs, w, r); err != nil {
		return 0, 0, err
	}
	in := r[after*PacketBytes:]
	status = in[0]
	data = uint32(in[1])<<24 | uint32(in[2])<<16 | uint32(in[3])<<8 | uint32(in[4])
	return status, data, nil
}
