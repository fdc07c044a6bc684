//go:build rp2040 || rp2350

package pio

import (
	"machine"
	"strconv"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"gostep/core"
)

var blocks = [NumBlocks]*rp2pio.PIO{rp2pio.PIO0, rp2pio.PIO1}

type channel struct {
	sm     rp2pio.StateMachine
	pin    machine.Pin
	invert bool
}

// Engine implements core.Engine on PIO state machines
type Engine struct {
	alloc    allocator
	channels [MaxChannels]channel

	// Program offsets per block, active high and active low
	offsets [NumBlocks][2]uint8
	loaded  [NumBlocks]bool

	loops      uint32
	pulseUS    uint32
	dirDelayUS uint32
}

// New creates the engine. No PIO resources are claimed until InitStepPin.
func New() *Engine {
	return &Engine{}
}

// Register adds the engine to reg
func Register(reg *core.EngineRegistry) {
	reg.Register(Name, func(core.SteppingConfig) (core.Engine, error) {
		return New(), nil
	})
}

// Init implements core.Engine
func (e *Engine) Init(dirDelayUS, pulseUS uint32) (uint32, error) {
	e.loops, e.pulseUS = pulseTiming(pulseUS)
	e.dirDelayUS = dirDelayUS
	return e.pulseUS, nil
}

func (e *Engine) loadPrograms(block uint8) error {
	if e.loaded[block] {
		return nil
	}
	p := blocks[block]
	high, err := p.AddProgram(pulseProgram(true), -1)
	if err != nil {
		return err
	}
	low, err := p.AddProgram(pulseProgram(false), -1)
	if err != nil {
		return err
	}
	e.offsets[block] = [2]uint8{high, low}
	e.loaded[block] = true
	return nil
}

// InitStepPin implements core.Engine. Claims the next free state machine.
func (e *Engine) InitStepPin(pin core.GPIOPin, invert bool) (core.PinHandle, error) {
	ch, err := e.alloc.next()
	if err != nil {
		return 0, err
	}
	block, smIdx := channelSlot(ch)
	if err := e.loadPrograms(block); err != nil {
		return 0, err
	}
	p := blocks[block]
	sm := p.StateMachine(smIdx)
	if !sm.TryClaim() {
		return 0, core.ErrChannelsExhausted
	}

	offset := e.offsets[block][0]
	if invert {
		offset = e.offsets[block][1]
	}
	mp := machine.Pin(pin)
	mp.Configure(machine.PinConfig{Mode: p.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(mp, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(programWrap(offset, pulseProgram(!invert)))
	whole, frac, err := rp2pio.ClkDivFromFrequency(ProgramClockHz, machine.CPUFrequency())
	if err != nil {
		return 0, err
	}
	cfg.SetClkDivIntFrac(whole, frac)

	sm.Init(offset, cfg)
	sm.SetPindirsConsecutive(mp, 1, true)
	sm.SetPinsConsecutive(mp, 1, invert)
	sm.SetEnabled(true)

	e.channels[ch] = channel{sm: sm, pin: mp, invert: invert}
	core.DebugPrintln("[PIO] step pin " + strconv.Itoa(int(pin)) + " on pio" + strconv.Itoa(int(block)) + " sm" + strconv.Itoa(int(smIdx)))
	return core.PinHandle(ch), nil
}

// InitDirPin implements core.DirPinInitializer
func (e *Engine) InitDirPin(pin core.GPIOPin, invert bool) (core.PinHandle, error) {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	return core.PinHandle(pin), nil
}

// SetDirPin implements core.Engine
func (e *Engine) SetDirPin(pin core.PinHandle, level bool) {
	machine.Pin(pin).Set(level)
}

// FinishDir implements core.Engine
func (e *Engine) FinishDir() {
	core.SpinDelayUS(e.dirDelayUS)
}

// SetStepPin implements core.Engine. Only the active level starts a pulse.
func (e *Engine) SetStepPin(pin core.PinHandle, level bool) {
	c := &e.channels[pin]
	if level == c.invert {
		return
	}
	// A full FIFO means pulses are already pending faster than the pulse width
	if !c.sm.IsTxFIFOFull() {
		c.sm.TxPut(e.loops)
	}
}

// FinishStep implements core.Engine
func (e *Engine) FinishStep() {}

// StartUnstep implements core.Engine. State machines end their own pulses.
func (e *Engine) StartUnstep() bool {
	return true
}

// FinishUnstep implements core.Engine
func (e *Engine) FinishUnstep() {}

// MaxPulsesPerSec implements core.Engine
func (e *Engine) MaxPulsesPerSec() uint32 {
	return maxRate(e.pulseUS)
}
