// Package serial opens host serial ports and mirrors the stepping log and
// timing trace onto them, e.g. to a logic analyzer bridge or a second
// terminal.
package serial

import (
	"io"
	"time"
)

// Port is an open trace port
type Port interface {
	io.ReadWriteCloser
	Device() string
}

// Config selects the device and line settings of a trace port
type Config struct {
	Device      string // e.g. /dev/ttyUSB0 or COM3
	Baud        int
	ReadTimeout time.Duration // 0 blocks
}

// DefaultConfig returns 115200 baud with a short read timeout
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}
