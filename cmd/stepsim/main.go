// Command stepsim builds the stepping core from a machine configuration and
// runs scripted step commands against simulated or real pins.
//
//	stepsim -config machine.json [-hw] [-trace-port /dev/ttyUSB0] [-v 2] < script
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio/gpiostream/gpiostreamtest"

	"gostep/board"
	"gostep/config"
	"gostep/core"
	"gostep/host/serial"
	"gostep/targets/linux"
	"gostep/targets/sim"
	"gostep/tmc"
)

var (
	configPath = flag.String("config", "", "machine configuration file (JSON), built-in default if empty; an unset engine means Timed")
	useHW      = flag.Bool("hw", false, "drive real pins through periph instead of simulated ones")
	tracePort  = flag.String("trace-port", "", "serial device that mirrors the log and timing trace")
	traceBaud  = flag.Int("trace-baud", 115200, "trace port baud rate")
	scriptPath = flag.String("script", "", "read commands from a file instead of stdin")
	simPins    = flag.Int("sim-pins", 64, "number of simulated GPIO pins")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := run(); err != nil {
		glog.Errorf("stepsim: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}

// glogWriter routes core log levels to glog
func glogWriter(level core.LogLevel, msg string) {
	switch level {
	case core.LevelDebug:
		glog.V(2).Info(msg)
	case core.LevelInfo:
		glog.Info(msg)
	case core.LevelWarn:
		glog.Warning(msg)
	default:
		glog.Error(msg)
	}
}

func run() error {
	logWriter := core.LogWriter(glogWriter)
	var mirror *serial.Mirror
	if *tracePort != "" {
		cfg := serial.DefaultConfig(*tracePort)
		cfg.Baud = *traceBaud
		port, err := serial.Open(cfg)
		if err != nil {
			return err
		}
		defer port.Close()
		mirror = serial.NewMirror(port, glogWriter)
		logWriter = mirror.Log
	}
	core.SetLogWriter(logWriter)
	core.SetDebugEnabled(bool(glog.V(2)))

	m := config.Default()
	if *configPath != "" {
		var err error
		if m, err = config.LoadFile(*configPath); err != nil {
			return fmt.Errorf("load %s: %w", *configPath, err)
		}
	}

	bd, simGPIO, closeHW, err := assemble(m)
	if err != nil {
		return err
	}
	defer closeHW()
	bd.Start()
	defer bd.Stop()

	s := &session{
		bd:       bd,
		gpio:     simGPIO,
		out:      os.Stdout,
		realtime: *useHW,
	}
	if mirror != nil {
		s.trace = mirror.Events
	}

	in := io.Reader(os.Stdin)
	if *scriptPath != "" {
		f, err := os.Open(*scriptPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	return s.runScript(in)
}

// assemble builds the board. The host has no pulse train peripheral, so a
// machine that leaves the engine unset runs on the timed engine.
func assemble(m *config.Machine) (*board.Board, *sim.GPIO, func(), error) {
	if m.SetDefaultEngine(core.EngineTimed) {
		core.LogInfo("stepping/engine unset, using " + core.EngineTimed.String())
	}
	hw, simGPIO, closeHW, err := hardware(m)
	if err != nil {
		return nil, nil, nil, err
	}
	hw.Engines = core.NewEngineRegistry()
	bd, err := board.Assemble(m, hw)
	if err != nil {
		closeHW()
		if errors.Is(err, core.ErrEngineNotFound) {
			return nil, nil, nil, fmt.Errorf("assemble: %w (host engines: %s)", err, strings.Join(hw.Engines.Names(), ", "))
		}
		return nil, nil, nil, fmt.Errorf("assemble: %w", err)
	}
	return bd, simGPIO, closeHW, nil
}

// hardware picks periph host drivers or simulated devices
func hardware(m *config.Machine) (board.Hardware, *sim.GPIO, func(), error) {
	if *useHW {
		g, spi, err := linux.Init()
		if err != nil {
			return board.Hardware{}, nil, nil, err
		}
		return board.Hardware{GPIO: g, SPI: spi}, nil, func() { _ = spi.Close() }, nil
	}

	g := sim.NewGPIO(*simPins)
	spi := sim.NewSPIDriver()
	if m.SPI != nil {
		if chain := simulatedChips(m); chain != nil {
			spi.Attach(core.SPIBusID(m.SPI.Bus), chain)
		}
	}
	hw := board.Hardware{
		GPIO:   g,
		SPI:    spi,
		Stream: &gpiostreamtest.PinOutRecord{N: "shift_stream"},
	}
	return hw, g, func() {}, nil
}

// simulatedChips emulates the configured driver chips in chain order
func simulatedChips(m *config.Machine) *sim.TrinamicChain {
	specs, err := m.Motors()
	if err != nil {
		return nil
	}
	var chips []*tmc.Config
	maxIndex := 0
	for _, spec := range specs {
		if spec.TMC == nil {
			continue
		}
		chips = append(chips, spec.TMC)
		if spec.TMC.SPIIndex > maxIndex {
			maxIndex = spec.TMC.SPIIndex
		}
	}
	if len(chips) == 0 {
		return nil
	}
	if maxIndex == 0 {
		// The emulator ignores chip selects, so chips with their own select
		// all talk to one emulated chip of the first model
		return sim.NewTrinamicChain(uint8(chips[0].Chip))
	}
	versions := make([]uint8, maxIndex)
	for _, c := range chips {
		if c.SPIIndex >= 1 {
			versions[c.SPIIndex-1] = uint8(c.Chip)
		}
	}
	return sim.NewTrinamicChain(versions...)
}

func (s *session) runScript(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := s.exec(scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(s.out, "error:", err)
		}
	}
	return scanner.Err()
}
