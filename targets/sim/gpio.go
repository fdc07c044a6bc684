// Package sim provides in-memory hardware for running the stepping core on a
// host. Pins are periph gpiotest pins so tests can inspect and drive them.
package sim

import (
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"gostep/core"
)

// PinMode records how a simulated pin was configured
type PinMode uint8

const (
	ModeUnused PinMode = iota
	ModeOutput
	ModeInputPullUp
	ModeInputPullDown
)

// GPIO implements core.GPIODriver over gpiotest pins
type GPIO struct {
	mu    sync.Mutex
	pins  map[core.GPIOPin]*gpiotest.Pin
	modes map[core.GPIOPin]PinMode
	edges map[core.GPIOPin]int
	limit core.GPIOPin
}

// NewGPIO creates a simulated bank of numPins pins
func NewGPIO(numPins int) *GPIO {
	return &GPIO{
		pins:  make(map[core.GPIOPin]*gpiotest.Pin),
		modes: make(map[core.GPIOPin]PinMode),
		edges: make(map[core.GPIOPin]int),
		limit: core.GPIOPin(numPins),
	}
}

func (g *GPIO) pin(p core.GPIOPin) (*gpiotest.Pin, error) {
	if p >= g.limit {
		return nil, &core.ConfigError{Op: "sim gpio", Name: "gpio" + strconv.Itoa(int(p)), Err: core.ErrPinUnsupported}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	pin, ok := g.pins[p]
	if !ok {
		pin = &gpiotest.Pin{N: "GPIO" + strconv.Itoa(int(p)), Num: int(p)}
		g.pins[p] = pin
	}
	return pin, nil
}

func (g *GPIO) setMode(p core.GPIOPin, m PinMode) {
	g.mu.Lock()
	g.modes[p] = m
	g.mu.Unlock()
}

// ConfigureOutput implements core.GPIODriver
func (g *GPIO) ConfigureOutput(p core.GPIOPin) error {
	pin, err := g.pin(p)
	if err != nil {
		return err
	}
	g.setMode(p, ModeOutput)
	return pin.Out(gpio.Low)
}

// ConfigureInputPullUp implements core.GPIODriver
func (g *GPIO) ConfigureInputPullUp(p core.GPIOPin) error {
	pin, err := g.pin(p)
	if err != nil {
		return err
	}
	g.setMode(p, ModeInputPullUp)
	return pin.In(gpio.PullUp, gpio.NoEdge)
}

// ConfigureInputPullDown implements core.GPIODriver
func (g *GPIO) ConfigureInputPullDown(p core.GPIOPin) error {
	pin, err := g.pin(p)
	if err != nil {
		return err
	}
	g.setMode(p, ModeInputPullDown)
	return pin.In(gpio.PullDown, gpio.NoEdge)
}

// SetPin implements core.GPIODriver. Rising edges are counted.
func (g *GPIO) SetPin(p core.GPIOPin, value bool) error {
	pin, err := g.pin(p)
	if err != nil {
		return err
	}
	if value && pin.Read() == gpio.Low {
		g.mu.Lock()
		g.edges[p]++
		g.mu.Unlock()
	}
	return pin.Out(gpio.Level(value))
}

// GetPin implements core.GPIODriver
func (g *GPIO) GetPin(p core.GPIOPin) (bool, error) {
	pin, err := g.pin(p)
	if err != nil {
		return false, err
	}
	return bool(pin.Read()), nil
}

// Drive sets an input level as if an external signal changed it
func (g *GPIO) Drive(p core.GPIOPin, level bool) {
	if pin, err := g.pin(p); err == nil {
		pin.Lock()
		pin.L = gpio.Level(level)
		pin.Unlock()
	}
}

// Level returns the current level of a pin
func (g *GPIO) Level(p core.GPIOPin) bool {
	v, _ := g.GetPin(p)
	return v
}

// RisingEdges returns how many times a pin was driven from low to high
func (g *GPIO) RisingEdges(p core.GPIOPin) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges[p]
}

// Mode returns how a pin was configured
func (g *GPIO) Mode(p core.GPIOPin) PinMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.modes[p]
}

// Pin exposes the underlying gpiotest pin
func (g *GPIO) Pin(p core.GPIOPin) *gpiotest.Pin {
	pin, _ := g.pin(p)
	return pin
}
