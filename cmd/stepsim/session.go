package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"gostep/board"
	"gostep/config"
	"gostep/core"
	"gostep/targets/sim"
)

var errQuit = errors.New("quit")

// session runs commands against an assembled board
type session struct {
	bd       *board.Board
	gpio     *sim.GPIO // nil when driving real pins
	out      io.Writer
	realtime bool
	trace    func([]core.TimingEvent)
}

type command struct {
	usage string
	help  string
	run   func(s *session, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"step":    {"<step_mask> <dir_mask>", "issue one step tick", (*session).cmdStep},
		"unstep":  {"", "end the current pulse", (*session).cmdUnstep},
		"move":    {"<axis> <steps> [period_us]", "queue steps on one axis", (*session).cmdMove},
		"run":     {"[max_ms]", "run the step timer until the queue drains", (*session).cmdRun},
		"block":   {"<axis> [motor]", "suppress pulses to a motor", (*session).cmdBlock},
		"unblock": {"<axis> [motor]", "re-enable pulses to a motor", (*session).cmdBlock},
		"limit":   {"<axis> [motor]", "set the limited flag", (*session).cmdBlock},
		"unlimit": {"<axis> [motor]", "clear the limited flag", (*session).cmdBlock},
		"enable":  {"", "enable all motors", (*session).cmdEnable},
		"disable": {"", "disable all motors", (*session).cmdEnable},
		"status":  {"", "show engine, counters and flags", (*session).cmdStatus},
		"pins":    {"", "show simulated step and direction levels", (*session).cmdPins},
		"timing":  {"", "dump the timing ring", (*session).cmdTiming},
		"help":    {"", "list commands", (*session).cmdHelp},
		"quit":    {"", "exit", func(*session, []string) error { return errQuit }},
	}
}

// exec runs one command line. Blank lines and # comments are ignored.
func (s *session) exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return nil
	}
	name := strings.ToLower(args[0])
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	// Handlers shared by several names see the name as args[0]
	args[0] = name
	return cmd.run(s, args)
}

func parseUint(arg string, bits int) (uint64, error) {
	return strconv.ParseUint(arg, 0, bits)
}

func (s *session) cmdStep(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: step " + commands["step"].usage)
	}
	step, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	dir, err := parseUint(args[2], 8)
	if err != nil {
		return err
	}
	s.bd.Stepping.Step(uint8(step), uint8(dir))
	return nil
}

func (s *session) cmdUnstep([]string) error {
	s.bd.Stepping.Unstep()
	return nil
}

func parseAxis(arg string) (int, error) {
	if i, ok := config.AxisIndex(arg); ok {
		return i, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 || n >= core.MaxAxes {
		return 0, fmt.Errorf("bad axis %q", arg)
	}
	return n, nil
}

func (s *session) cmdMove(args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errors.New("usage: move " + commands["move"].usage)
	}
	axis, err := parseAxis(args[1])
	if err != nil {
		return err
	}
	steps, err := strconv.Atoi(args[2])
	if err != nil {
		return err
	}
	periodUS := uint64(1000)
	if len(args) == 4 {
		if periodUS, err = parseUint(args[3], 32); err != nil {
			return err
		}
	}
	ticks := periodUS * core.PlannerTickFreq / 1000000
	if ticks == 0 || ticks > 0xFFFF {
		return fmt.Errorf("period %dus out of range", periodUS)
	}

	tick := core.PulseTick{StepMask: 1 << axis, Ticks: uint16(ticks)}
	if steps < 0 {
		tick.DirMask = 1 << axis
		steps = -steps
	}
	var queued []core.PulseTick
	for steps > 0 {
		n := steps
		if n > 0xFFFF {
			n = 0xFFFF
		}
		tick.Count = uint16(n)
		queued = append(queued, tick)
		steps -= n
	}
	return s.bd.Move(queued...)
}

func (s *session) timer() *core.SchedTimer {
	st, _ := s.bd.Timer.(*core.SchedTimer)
	return st
}

// cmdRun advances the clock from timer to timer until the step timer stops
func (s *session) cmdRun(args []string) error {
	maxMS := uint64(10000)
	if len(args) > 1 {
		var err error
		if maxMS, err = parseUint(args[1], 32); err != nil {
			return err
		}
	}
	st := s.timer()
	if st == nil {
		return errors.New("run needs the scheduler step timer")
	}
	start := core.GetTime()
	limit := core.TimerFromUS(uint32(maxMS * 1000))
	wallStart := time.Now()

	for st.Running() {
		if core.GetTime()-start >= limit {
			return fmt.Errorf("still running after %dms", maxMS)
		}
		s.advanceToNextWake(start, wallStart)
	}
	// Let the last pulse end
	core.AdvanceTime(core.TimerFromUS(core.MaxPulseUS))
	fmt.Fprintf(s.out, "ran %dus\n", core.TimerToUS(core.GetTime()-start))
	return nil
}

func (s *session) advanceToNextWake(start uint32, wallStart time.Time) {
	wake, ok := core.NextWake()
	if !ok {
		core.AdvanceTime(1)
		return
	}
	delta := int32(wake - core.GetTime())
	if delta < 0 {
		delta = 0
	}
	if s.realtime {
		due := wallStart.Add(time.Duration(core.TimerToUS(wake-start)) * time.Microsecond)
		time.Sleep(time.Until(due))
	}
	core.AdvanceTime(uint32(delta))
}

func (s *session) motorArgs(args []string) (axis int, motors []int, err error) {
	if len(args) < 2 || len(args) > 3 {
		return 0, nil, errors.New("usage: " + args[0] + " " + commands[args[0]].usage)
	}
	if axis, err = parseAxis(args[1]); err != nil {
		return 0, nil, err
	}
	if len(args) == 3 {
		m, err := strconv.Atoi(args[2])
		if err != nil || m < 0 || m >= core.MaxMotorsPerAxis {
			return 0, nil, fmt.Errorf("bad motor %q", args[2])
		}
		return axis, []int{m}, nil
	}
	for m := 0; m < core.MaxMotorsPerAxis; m++ {
		motors = append(motors, m)
	}
	return axis, motors, nil
}

func (s *session) cmdBlock(args []string) error {
	axis, motors, err := s.motorArgs(args)
	if err != nil {
		return err
	}
	t := s.bd.Stepping
	for _, m := range motors {
		switch args[0] {
		case "block":
			t.Block(axis, m)
		case "unblock":
			t.Unblock(axis, m)
		case "limit":
			t.Limit(axis, m)
		case "unlimit":
			t.Unlimit(axis, m)
		}
	}
	return nil
}

func (s *session) cmdEnable(args []string) error {
	return s.bd.SetMotorsDisabled(args[0] == "disable")
}

func (s *session) cmdStatus([]string) error {
	st := s.bd.Stepping
	cfg := st.Config()
	fmt.Fprintf(s.out, "engine %s pulse %dus dir delay %dus max %d pulses/s queue %d\n",
		cfg.Engine, st.PulseUS(), cfg.DirDelayUS, st.MaxPulsesPerSec(), s.bd.Queue.Len())
	for _, spec := range s.bd.Motors {
		m := st.Motor(spec.Axis, spec.Motor)
		if m == nil {
			continue
		}
		fmt.Fprintf(s.out, "%-9s steps %-8d blocked %-5t limited %t\n",
			spec.Name, st.AxisSteps(spec.Axis), m.Blocked(), m.Limited())
	}
	return nil
}

func (s *session) cmdPins([]string) error {
	if s.gpio == nil {
		return errors.New("pins are only tracked in simulation")
	}
	for _, spec := range s.bd.Motors {
		if spec.Step.Kind != config.PinGPIO {
			continue
		}
		fmt.Fprintf(s.out, "%-9s step %s=%d (%d edges) dir %s=%d\n", spec.Name,
			spec.Step, level(s.gpio.Level(spec.Step.Num)), s.gpio.RisingEdges(spec.Step.Num),
			spec.Dir, level(s.gpio.Level(spec.Dir.Num)))
	}
	return nil
}

func level(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *session) cmdTiming([]string) error {
	events := core.TimingEvents()
	for _, evt := range events {
		fmt.Fprintf(s.out, "%-11s clock=%d v1=%#x v2=%#x\n", core.EventName(evt.EventType), evt.Clock, evt.Value1, evt.Value2)
	}
	if s.trace != nil {
		s.trace(events)
	}
	return nil
}

func (s *session) cmdHelp([]string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(s.out, "  %-8s %-26s %s\n", name, c.usage, c.help)
	}
	return nil
}
