package sim

import (
	"sync"

	"periph.io/x/conn/v3/conntest"
	"tinygo.org/x/drivers"

	"gostep/core"
)

// SPIDriver implements core.SPIDriver with in-memory devices. Buses without
// an attached device get a RecordBus.
type SPIDriver struct {
	mu      sync.Mutex
	devices map[core.SPIBusID]drivers.SPI
	configs map[core.SPIBusID]core.SPIConfig
}

// NewSPIDriver creates a driver with no devices
func NewSPIDriver() *SPIDriver {
	return &SPIDriver{
		devices: make(map[core.SPIBusID]drivers.SPI),
		configs: make(map[core.SPIBusID]core.SPIConfig),
	}
}

// Attach places a device on a bus
func (d *SPIDriver) Attach(bus core.SPIBusID, dev drivers.SPI) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[bus] = dev
}

// Device returns the device on a bus, if any
func (d *SPIDriver) Device(bus core.SPIBusID) drivers.SPI {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices[bus]
}

// Config returns the last configuration of a bus
func (d *SPIDriver) Config(bus core.SPIBusID) (core.SPIConfig, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, ok := d.configs[bus]
	return cfg, ok
}

// ConfigureBus implements core.SPIDriver
func (d *SPIDriver) ConfigureBus(cfg core.SPIConfig) (drivers.SPI, error) {
	if cfg.Mode > 3 {
		return nil, core.ErrValueRange
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs[cfg.BusID] = cfg
	dev, ok := d.devices[cfg.BusID]
	if !ok {
		dev = &RecordBus{}
		d.devices[cfg.BusID] = dev
	}
	return dev, nil
}

// RecordBus is a write-only bus that keeps every transaction
type RecordBus struct {
	conntest.Record
}

// Transfer implements drivers.SPI
func (b *RecordBus) Transfer(w byte) (byte, error) {
	return 0, b.Tx([]byte{w}, nil)
}

// Writes returns the bytes of every transaction
func (b *RecordBus) Writes() [][]byte {
	b.Lock()
	defer b.Unlock()
	out := make([][]byte, len(b.Ops))
	for i, op := range b.Ops {
		out[i] = op.W
	}
	return out
}
