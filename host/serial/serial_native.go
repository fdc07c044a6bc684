//go:build !wasm

package serial

import (
	"errors"
	"fmt"

	"github.com/tarm/serial"
)

var errNoDevice = errors.New("no serial device")

// tarmPort wraps a tarm/serial port
type tarmPort struct {
	*serial.Port
	device string
}

// Open opens the port described by cfg
func Open(cfg Config) (Port, error) {
	if cfg.Device == "" {
		return nil, errNoDevice
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return &tarmPort{Port: p, device: cfg.Device}, nil
}

// Device returns the path the port was opened on
func (p *tarmPort) Device() string {
	return p.device
}
