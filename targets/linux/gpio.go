package linux

import (
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"gostep/core"
)

// GPIO implements core.GPIODriver on periph pins named GPIO<n>
type GPIO struct {
	mu     sync.RWMutex
	pins   map[core.GPIOPin]gpio.PinIO
	lookup func(name string) gpio.PinIO
}

// NewGPIO creates a driver backed by the periph pin registry
func NewGPIO() *GPIO {
	return &GPIO{
		pins:   make(map[core.GPIOPin]gpio.PinIO),
		lookup: gpioreg.ByName,
	}
}

func (g *GPIO) resolve(p core.GPIOPin) (gpio.PinIO, error) {
	g.mu.RLock()
	pin, ok := g.pins[p]
	g.mu.RUnlock()
	if ok {
		return pin, nil
	}

	pin = g.lookup("GPIO" + strconv.Itoa(int(p)))
	if pin == nil {
		return nil, &core.ConfigError{Op: "linux gpio", Name: "GPIO" + strconv.Itoa(int(p)), Err: core.ErrPinUnsupported}
	}
	g.mu.Lock()
	g.pins[p] = pin
	g.mu.Unlock()
	return pin, nil
}

// ConfigureOutput implements core.GPIODriver
func (g *GPIO) ConfigureOutput(p core.GPIOPin) error {
	pin, err := g.resolve(p)
	if err != nil {
		return err
	}
	return pin.Out(gpio.Low)
}

// ConfigureInputPullUp implements core.GPIODriver
func (g *GPIO) ConfigureInputPullUp(p core.GPIOPin) error {
	pin, err := g.resolve(p)
	if err != nil {
		return err
	}
	return pin.In(gpio.PullUp, gpio.NoEdge)
}

// ConfigureInputPullDown implements core.GPIODriver
func (g *GPIO) ConfigureInputPullDown(p core.GPIOPin) error {
	pin, err := g.resolve(p)
	if err != nil {
		return err
	}
	return pin.In(gpio.PullDown, gpio.NoEdge)
}

// SetPin implements core.GPIODriver. Pins must have been configured first.
func (g *GPIO) SetPin(p core.GPIOPin, value bool) error {
	g.mu.RLock()
	pin, ok := g.pins[p]
	g.mu.RUnlock()
	if !ok {
		return core.ErrPinUnsupported
	}
	return pin.Out(gpio.Level(value))
}

// GetPin implements core.GPIODriver
func (g *GPIO) GetPin(p core.GPIOPin) (bool, error) {
	pin, err := g.resolve(p)
	if err != nil {
		return false, err
	}
	return bool(pin.Read()), nil
}
