package linux

import (
	"fmt"
	"strconv"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"tinygo.org/x/drivers"

	"gostep/core"
)

// ConnSPI adapts a periph connection to the drivers.SPI bus interface used
// by the shift register engine and the driver chips.
type ConnSPI struct {
	conn.Conn
}

var _ drivers.SPI = ConnSPI{}

// Transfer implements drivers.SPI
func (c ConnSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := c.Tx([]byte{b}, r[:])
	return r[0], err
}

// SPIDriver implements core.SPIDriver over the periph SPI registry.
// Bus n maps to port SPI<n>.0.
type SPIDriver struct {
	mu    sync.Mutex
	ports []spi.PortCloser
	open  func(name string) (spi.PortCloser, error)
}

// NewSPIDriver creates a driver backed by the periph SPI registry
func NewSPIDriver() *SPIDriver {
	return &SPIDriver{open: spireg.Open}
}

// ConfigureBus implements core.SPIDriver
func (d *SPIDriver) ConfigureBus(cfg core.SPIConfig) (drivers.SPI, error) {
	name := "SPI" + strconv.Itoa(int(cfg.BusID)) + ".0"
	port, err := d.open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	c, err := port.Connect(physic.Frequency(cfg.Rate)*physic.Hertz, spi.Mode(cfg.Mode), 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}

	d.mu.Lock()
	d.ports = append(d.ports, port)
	d.mu.Unlock()
	return ConnSPI{Conn: c}, nil
}

// Close releases every opened port
func (d *SPIDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for _, p := range d.ports {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.ports = nil
	return first
}
