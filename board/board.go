// Package board assembles a running machine from its configuration: the
// stepping core with its engine, the driver chips, the limit switches and
// the pulse queue feeding the step timer.
package board

import (
	"strconv"

	"periph.io/x/conn/v3/gpio/gpiostream"
	"periph.io/x/conn/v3/physic"

	"gostep/config"
	"gostep/core"
	"gostep/engines/shiftreg"
	"gostep/engines/timed"
	"gostep/limits"
	"gostep/tmc"
)

// Hardware is what a target provides
type Hardware struct {
	GPIO   core.GPIODriver
	SPI    core.SPIDriver    // Driver chip and shift register buses
	Stream gpiostream.PinOut // Sample sink for I2S_stream

	// Engines may carry target specific engines. The portable engines are
	// added to it. nil means a fresh registry.
	Engines *core.EngineRegistry

	// Timer defaults to a scheduler driven timer
	Timer core.StepTimer
}

// Board is an assembled machine
type Board struct {
	Machine  *config.Machine
	Motors   []config.MotorSpec
	Stepping *core.Stepping
	Queue    *core.PulseQueue
	Timer    core.StepTimer
	Drivers  []*tmc.Driver
	Limits   *limits.Monitor

	gpio         core.GPIODriver
	disablePins  []config.Pin
	disabled     bool
	limitsActive bool
}

// Assemble builds the machine. Nothing runs until Start.
func Assemble(m *config.Machine, hw Hardware) (*Board, error) {
	if hw.GPIO == nil {
		hw.GPIO = core.GPIO()
	}
	if hw.GPIO == nil {
		return nil, core.ErrNoGPIO
	}

	sc, err := m.SteppingConfig()
	if err != nil {
		return nil, err
	}
	specs, err := m.Motors()
	if err != nil {
		return nil, err
	}

	reg := hw.Engines
	if reg == nil {
		reg = core.NewEngineRegistry()
	}
	timed.Register(reg, hw.GPIO)
	bus, err := shiftBus(m, hw)
	if err != nil {
		return nil, err
	}
	shiftreg.Register(reg, bus)

	core.LogInfo("Machine: " + m.Name)
	b, err := core.NewBuilder(sc, reg)
	if err != nil {
		return nil, err
	}

	bd := &Board{Machine: m, Motors: specs, gpio: hw.GPIO}

	var chain *tmc.Chain
	for _, spec := range specs {
		if spec.TMC != nil {
			if chain == nil {
				if chain, err = tmcChain(m, hw); err != nil {
					return nil, err
				}
			}
			d, err := chain.Add(*spec.TMC)
			if err != nil {
				return nil, err
			}
			if err := d.Assign(b); err != nil {
				return nil, err
			}
			bd.Drivers = append(bd.Drivers, d)
			continue
		}

		if err := b.AssignMotor(spec.Axis, spec.Motor, spec.Step.Num, spec.Step.Invert, spec.Dir.Num, spec.Dir.Invert); err != nil {
			return nil, err
		}
		if spec.Disable.Defined() {
			if err := hw.GPIO.ConfigureOutput(spec.Disable.Num); err != nil {
				return nil, &core.ConfigError{Op: spec.Name, Name: "disable_pin", Err: err}
			}
			bd.disablePins = append(bd.disablePins, spec.Disable)
		}
	}

	for _, d := range bd.Drivers {
		if err := d.Init(); err != nil {
			return nil, err
		}
	}

	bd.Timer = hw.Timer
	if bd.Timer == nil {
		bd.Timer = core.NewSchedTimer()
	}
	bd.Queue = core.NewPulseQueue()
	s, err := b.Build(bd.Timer, bd.Queue.Pulse)
	if err != nil {
		return nil, err
	}
	bd.Queue.Attach(s)
	bd.Stepping = s

	if err := bd.addLimits(hw.GPIO); err != nil {
		return nil, err
	}
	return bd, nil
}

func shiftBus(m *config.Machine, hw Hardware) (shiftreg.Bus, error) {
	bus := shiftreg.Bus{Stream: hw.Stream}
	sb := m.ShiftBus
	if sb == nil {
		return bus, nil
	}
	bus.Freq = physic.Frequency(sb.RateHz) * physic.Hertz
	if hw.SPI != nil {
		spi, err := hw.SPI.ConfigureBus(core.SPIConfig{BusID: core.SPIBusID(sb.Bus), Rate: sb.RateHz})
		if err != nil {
			return bus, &core.ConfigError{Op: "shift_bus", Name: "spi" + strconv.Itoa(sb.Bus), Err: err}
		}
		bus.SPI = spi
	}
	if sb.LatchPin != "" {
		p, err := config.ParsePin(sb.LatchPin)
		if err != nil {
			return bus, err
		}
		bus.LatchGPIO, bus.Latch = hw.GPIO, p.Num
	}
	return bus, nil
}

func tmcChain(m *config.Machine, hw Hardware) (*tmc.Chain, error) {
	if hw.SPI == nil {
		return nil, &core.ConfigError{Op: "tmc", Name: "spi", Err: core.ErrBusNotConfigured}
	}
	spi, err := hw.SPI.ConfigureBus(core.SPIConfig{
		BusID: core.SPIBusID(m.SPI.Bus),
		Mode:  config.TMCSPIMode,
		Rate:  m.SPI.RateHz,
	})
	if err != nil {
		return nil, &core.ConfigError{Op: "tmc", Name: "spi" + strconv.Itoa(m.SPI.Bus), Err: err}
	}
	return tmc.NewChain(spi, hw.GPIO), nil
}

func (bd *Board) addLimits(gpio core.GPIODriver) error {
	bd.Limits = limits.NewMonitor(gpio, bd.Stepping.MotorTable)
	sample, rest := bd.Machine.Limits.SampleTicks()
	for _, spec := range bd.Motors {
		if !spec.Limit.Defined() {
			continue
		}
		ref, ok := bd.Stepping.LimitVar(spec.Axis, spec.Motor)
		if !ok {
			continue
		}
		_, err := bd.Limits.Add(limits.Config{
			Name:        spec.Name + "_limit",
			Pin:         spec.Limit.Num,
			ActiveHigh:  !spec.Limit.Invert,
			PullUp:      spec.Limit.PullUp,
			Motors:      []core.MotorRef{ref},
			SampleTicks: sample,
			SampleCount: bd.Machine.Limits.SampleCount,
			RestTicks:   rest,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Start arms the limit switches. The step timer starts with the first move.
func (bd *Board) Start() {
	if len(bd.Limits.Switches()) > 0 {
		bd.Limits.Start()
		bd.limitsActive = true
	}
}

// Stop halts stepping and limit sampling
func (bd *Board) Stop() {
	bd.Stepping.StopTimer()
	if bd.limitsActive {
		bd.Limits.Stop()
		bd.limitsActive = false
	}
}

// Move queues pulse ticks and starts the step timer if it is idle. Either
// every tick is queued or none is.
func (bd *Board) Move(ticks ...core.PulseTick) error {
	if err := bd.Queue.PushAll(ticks...); err != nil {
		return err
	}
	if st, ok := bd.Timer.(*core.SchedTimer); !ok || !st.Running() {
		// First firing uses the period of the first entry
		if len(ticks) > 0 {
			bd.Stepping.SetTimerPeriod(ticks[0].Ticks)
		}
		bd.Stepping.StartTimer()
	}
	return nil
}

// SetMotorsDisabled drives every disable pin and driver chip. Enabling waits
// out the configured disable delay before returning.
func (bd *Board) SetMotorsDisabled(disable bool) error {
	for _, p := range bd.disablePins {
		if err := bd.gpio.SetPin(p.Num, disable != p.Invert); err != nil {
			return err
		}
	}
	for _, d := range bd.Drivers {
		if err := d.SetDisable(disable); err != nil {
			return err
		}
	}
	if !disable && bd.disabled {
		core.SpinDelayUS(bd.Stepping.Config().DisableDelayUS)
	}
	bd.disabled = disable
	return nil
}

// MotorsDisabled reports the last SetMotorsDisabled state
func (bd *Board) MotorsDisabled() bool {
	return bd.disabled
}
