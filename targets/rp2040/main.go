//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"gostep/board"
	"gostep/config"
	"gostep/core"
	"gostep/engines/pio"
)

// ledBlink signals boot failures when the console is not attached
func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		time.Sleep(150 * time.Millisecond)
		led.Low()
		time.Sleep(150 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)
}

func main() {
	// Disable the watchdog left running by a previous reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	core.SetDebugWriter(consoleLog)
	InitClock()
	UpdateSystemTime()

	gpio := newPinDriver()
	core.SetGPIODriver(gpio)
	spi := newSPIDriver()
	core.SetSPIDriver(spi)

	engines := core.NewEngineRegistry()
	pio.Register(engines)

	bd, err := board.Assemble(config.Default(), board.Hardware{
		GPIO:    gpio,
		SPI:     spi,
		Engines: engines,
	})
	if err != nil {
		core.LogError(err.Error())
		for {
			ledBlink(3)
		}
	}
	bd.Start()

	con := &console{bd: bd}
	for {
		UpdateSystemTime()
		core.ProcessTimers()
		con.poll()
	}
}
