// Package linux runs the stepping core on a Linux single board computer
// through periph drivers.
package linux

import (
	"fmt"

	"github.com/golang/glog"
	"periph.io/x/host/v3"

	"gostep/core"
)

// Init loads the periph host drivers and registers the GPIO and SPI drivers
// with core.
func Init() (*GPIO, *SPIDriver, error) {
	state, err := host.Init()
	if err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	for _, d := range state.Loaded {
		glog.V(1).Infof("periph driver loaded: %s", d)
	}
	for _, f := range state.Failed {
		glog.Warningf("periph driver failed: %v", f)
	}

	g := NewGPIO()
	s := NewSPIDriver()
	core.SetGPIODriver(g)
	core.SetSPIDriver(s)
	return g, s, nil
}
