// Package limits samples limit switch inputs on the scheduler and suppresses
// pulses to the motors each switch guards.
//
// A switch is polled every rest period. When the pin disagrees with the
// debounced state it is oversampled every sample period, and the new state is
// accepted after a run of consecutive agreeing samples. Any disagreeing sample
// drops back to polling.
package limits

import (
	"errors"

	"gostep/core"
)

var ErrUnknownMotor = errors.New("limits: motor slot not assigned")

// Config describes one switch
type Config struct {
	Name        string
	Pin         core.GPIOPin
	ActiveHigh  bool // Switch reads high when tripped
	PullUp      bool // Use the internal pull-up, otherwise pull-down
	Motors      []core.MotorRef
	SampleTicks uint32 // Oversample interval
	SampleCount uint8  // Consecutive samples required to change state
	RestTicks   uint32 // Poll interval while idle, SampleTicks if zero
}

// Default sampling: 100us oversampling, 4 samples, 1ms polling
var (
	DefaultSampleTicks = core.TimerFromUS(100)
	DefaultRestTicks   = core.TimerFromUS(1000)
)

const DefaultSampleCount = 4

// Switch is one sampled input
type Switch struct {
	cfg    Config
	gpio   core.GPIODriver
	motors *core.MotorTable
	timer  core.Timer

	active    bool
	remaining uint8
	nextWake  uint32
	running   bool
	onChange  func(*Switch, bool)
}

// Name returns the configured name
func (s *Switch) Name() string { return s.cfg.Name }

// Active reports the debounced state
func (s *Switch) Active() bool { return s.active }

// Motors returns the guarded motor handles
func (s *Switch) Motors() []core.MotorRef { return s.cfg.Motors }

func (s *Switch) tripped() bool {
	level, err := s.gpio.GetPin(s.cfg.Pin)
	if err != nil {
		return s.active
	}
	return level == s.cfg.ActiveHigh
}

// restEvent polls for a state change
func (s *Switch) restEvent(t *core.Timer) uint8 {
	if !s.running {
		return core.SF_DONE
	}
	if s.tripped() == s.active {
		t.WakeTime += s.cfg.RestTicks
		return core.SF_RESCHEDULE
	}

	// Possible change, start oversampling
	s.nextWake = t.WakeTime + s.cfg.RestTicks
	s.remaining = s.cfg.SampleCount
	t.Handler = s.oversampleEvent
	return s.oversampleEvent(t)
}

// oversampleEvent confirms a change with consecutive samples
func (s *Switch) oversampleEvent(t *core.Timer) uint8 {
	if !s.running {
		return core.SF_DONE
	}
	if s.tripped() == s.active {
		// Bounce, back to polling
		t.Handler = s.restEvent
		t.WakeTime = s.nextWake
		return core.SF_RESCHEDULE
	}

	s.remaining--
	if s.remaining > 0 {
		t.WakeTime += s.cfg.SampleTicks
		return core.SF_RESCHEDULE
	}

	s.setActive(!s.active)
	t.Handler = s.restEvent
	t.WakeTime += s.cfg.RestTicks
	return core.SF_RESCHEDULE
}

func (s *Switch) setActive(active bool) {
	s.active = active
	for _, ref := range s.cfg.Motors {
		s.motors.SetLimited(ref, active)
	}
	if s.onChange != nil {
		s.onChange(s, active)
	}
}

// Monitor owns the switches of one motor table
type Monitor struct {
	gpio     core.GPIODriver
	motors   *core.MotorTable
	switches []*Switch
	onChange func(*Switch, bool)
}

// NewMonitor creates a monitor. A nil gpio uses the process-wide driver.
func NewMonitor(gpio core.GPIODriver, motors *core.MotorTable) *Monitor {
	if gpio == nil {
		gpio = core.GPIO()
	}
	return &Monitor{gpio: gpio, motors: motors}
}

// OnChange sets a callback run from the timer context when a switch changes
// state. It must not block.
func (m *Monitor) OnChange(fn func(sw *Switch, active bool)) {
	m.onChange = fn
	for _, s := range m.switches {
		s.onChange = fn
	}
}

// Switches returns the configured switches
func (m *Monitor) Switches() []*Switch {
	return m.switches
}

// Add configures the input pin and validates the guarded motors
func (m *Monitor) Add(cfg Config) (*Switch, error) {
	if m.gpio == nil {
		return nil, &core.ConfigError{Op: "limit switch", Name: cfg.Name, Err: core.ErrNoGPIO}
	}
	if cfg.SampleCount == 0 || cfg.SampleTicks == 0 {
		return nil, &core.ConfigError{Op: "limit switch", Name: cfg.Name, Err: core.ErrValueRange}
	}
	if cfg.RestTicks == 0 {
		cfg.RestTicks = cfg.SampleTicks
	}
	for _, ref := range cfg.Motors {
		if m.motors.Motor(int(ref.Axis), int(ref.Motor)) == nil {
			return nil, &core.ConfigError{Op: "limit switch", Name: cfg.Name, Err: ErrUnknownMotor}
		}
	}

	var err error
	if cfg.PullUp {
		err = m.gpio.ConfigureInputPullUp(cfg.Pin)
	} else {
		err = m.gpio.ConfigureInputPullDown(cfg.Pin)
	}
	if err != nil {
		return nil, &core.ConfigError{Op: "limit switch", Name: cfg.Name, Err: err}
	}

	s := &Switch{cfg: cfg, gpio: m.gpio, motors: m.motors, onChange: m.onChange}
	m.switches = append(m.switches, s)
	return s, nil
}

// Start takes an initial reading of every switch and schedules sampling
func (m *Monitor) Start() {
	now := core.GetTime()
	for _, s := range m.switches {
		core.DeleteTimer(&s.timer)
		s.running = true
		if s.tripped() != s.active {
			s.setActive(!s.active)
		}
		s.timer.Handler = s.restEvent
		s.timer.WakeTime = now + s.cfg.RestTicks
		core.ScheduleTimer(&s.timer)
	}
}

// Stop cancels sampling. The limited flags keep their last value.
func (m *Monitor) Stop() {
	for _, s := range m.switches {
		s.running = false
		core.DeleteTimer(&s.timer)
	}
}
