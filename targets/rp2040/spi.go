//go:build rp2040 || rp2350

package main

import (
	"machine"
	"strconv"
	"sync"

	"tinygo.org/x/drivers"

	"gostep/core"
)

// spiBusConfig names the controller and pins behind a bus number
type spiBusConfig struct {
	spi  *machine.SPI
	sck  machine.Pin
	mosi machine.Pin
	miso machine.Pin
}

// Bus numbers follow the usual RP2040 pin groups
var spiBuses = map[core.SPIBusID]spiBusConfig{
	0: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0},
	1: {spi: machine.SPI0, sck: machine.GPIO6, mosi: machine.GPIO7, miso: machine.GPIO4},
	2: {spi: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16},
	3: {spi: machine.SPI0, sck: machine.GPIO22, mosi: machine.GPIO23, miso: machine.GPIO20},
	4: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO4},

	5: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8},
	6: {spi: machine.SPI1, sck: machine.GPIO14, mosi: machine.GPIO15, miso: machine.GPIO12},
	7: {spi: machine.SPI1, sck: machine.GPIO26, mosi: machine.GPIO27, miso: machine.GPIO24},
	8: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO12},
}

// spiDriver implements core.SPIDriver with the hardware controllers
type spiDriver struct {
	mu         sync.Mutex
	configured map[core.SPIBusID]core.SPIConfig
}

func newSPIDriver() *spiDriver {
	return &spiDriver{configured: make(map[core.SPIBusID]core.SPIConfig)}
}

// ConfigureBus sets up a controller. Reopening a bus with the same settings
// returns the running controller.
func (d *spiDriver) ConfigureBus(config core.SPIConfig) (drivers.SPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bus, ok := spiBuses[config.BusID]
	if !ok {
		return nil, &core.ConfigError{Op: "open spi", Name: "bus " + strconv.Itoa(int(config.BusID)), Err: core.ErrValueRange}
	}
	if prev, ok := d.configured[config.BusID]; ok && prev == config {
		return bus.spi, nil
	}
	err := bus.spi.Configure(machine.SPIConfig{
		Frequency: config.Rate,
		SCK:       bus.sck,
		SDO:       bus.mosi,
		SDI:       bus.miso,
		Mode:      uint8(config.Mode),
	})
	if err != nil {
		return nil, err
	}
	d.configured[config.BusID] = config
	return bus.spi, nil
}
