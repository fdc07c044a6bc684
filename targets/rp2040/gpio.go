//go:build rp2040 || rp2350

package main

import (
	"machine"

	"gostep/core"
)

// pinDriver implements core.GPIODriver on machine pins. GPIO numbers map
// directly to machine.Pin values.
type pinDriver struct {
	// Track configured pins so repeated setup is a no-op
	configured map[core.GPIOPin]machine.Pin
}

func newPinDriver() *pinDriver {
	return &pinDriver{configured: make(map[core.GPIOPin]machine.Pin)}
}

func (d *pinDriver) configure(pin core.GPIOPin, mode machine.PinMode) {
	if _, ok := d.configured[pin]; ok {
		return
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: mode})
	d.configured[pin] = p
}

// ConfigureOutput configures a pin as a digital output
func (d *pinDriver) ConfigureOutput(pin core.GPIOPin) error {
	d.configure(pin, machine.PinOutput)
	return nil
}

// ConfigureInputPullUp configures a limit switch input
func (d *pinDriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	d.configure(pin, machine.PinInputPullup)
	return nil
}

// ConfigureInputPullDown configures a limit switch input
func (d *pinDriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	d.configure(pin, machine.PinInputPulldown)
	return nil
}

// SetPin drives an output. Unconfigured pins are ignored since the map must
// not grow from the step interrupt.
func (d *pinDriver) SetPin(pin core.GPIOPin, value bool) error {
	if p, ok := d.configured[pin]; ok {
		p.Set(value)
	}
	return nil
}

// GetPin reads the current pin state
func (d *pinDriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, ok := d.configured[pin]
	if !ok {
		return false, nil
	}
	return p.Get(), nil
}
