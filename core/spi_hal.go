package core

import "tinygo.org/x/drivers"

// SPIBusID identifies a hardware SPI bus
type SPIBusID uint8

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type SPIMode uint8

// SPIConfig holds the configuration for an SPI bus
type SPIConfig struct {
	BusID SPIBusID // Hardware bus identifier
	Mode  SPIMode  // SPI mode (0-3)
	Rate  uint32   // Clock rate in Hz
}

// SPIDriver opens SPI buses for the shift register engines and the driver
// chips. Chip select handling stays with the caller.
type SPIDriver interface {
	ConfigureBus(config SPIConfig) (drivers.SPI, error)
}

var spiDriver SPIDriver

// SetSPIDriver is called by target-specific code to register its SPI driver
func SetSPIDriver(d SPIDriver) {
	spiDriver = d
}

// SPIConfigured reports whether a target registered an SPI driver
func SPIConfigured() bool {
	return spiDriver != nil
}

// OpenSPI configures a bus through the registered driver
func OpenSPI(config SPIConfig) (drivers.SPI, error) {
	if spiDriver == nil {
		return nil, &ConfigError{Op: "open spi", Name: "bus " + utoa(uint32(config.BusID)), Err: ErrBusNotConfigured}
	}
	if config.Mode > 3 {
		return nil, &ConfigError{Op: "open spi", Name: "mode", Err: ErrValueRange}
	}
	return spiDriver.ConfigureBus(config)
}
