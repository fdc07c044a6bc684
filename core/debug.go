package core

import "strconv"

// DebugWriter is a function type for writing log lines
type DebugWriter func(string)

// LogLevel orders log lines by severity
type LogLevel uint8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// LogWriter receives leveled log lines. Host programs route it to glog,
// firmware to the console UART.
type LogWriter func(level LogLevel, msg string)

// TimingEvent captures a timing-critical event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtStep       = 1 // Step pins asserted (v1=stepMask v2=dirMask)
	EvtDirChange  = 2 // Direction pins rewritten (v1=dirMask v2=changed)
	EvtUnstep     = 3 // Step pins deasserted
	EvtTimerStart = 4 // Step timer started
	EvtTimerStop  = 5 // Step timer stopped
	EvtQueueLoad  = 6 // Pulse queue entry loaded (v1=ticks v2=count)
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	logWriter LogWriter = func(LogLevel, string) {} // No-op by default

	// debugEnabled gates LevelDebug lines
	debugEnabled bool = false

	// Timing capture ring buffer (non-blocking, for post-mortem)
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8        // Next write position
	timingEnabled  bool  = true // Always capture timing events
)

// SetLogWriter sets the platform-specific log sink
func SetLogWriter(writer LogWriter) {
	if writer == nil {
		writer = func(LogLevel, string) {}
	}
	logWriter = writer
}

// SetDebugWriter routes every level to a plain line writer with a level prefix
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		SetLogWriter(nil)
		return
	}
	SetLogWriter(func(level LogLevel, msg string) {
		writer(level.Format(msg))
	})
}

// Format renders a console message line such as [MSG:INFO: text]
func (l LogLevel) Format(msg string) string {
	return l.prefix() + msg + "]"
}

func (l LogLevel) prefix() string {
	switch l {
	case LevelInfo:
		return "[MSG:INFO: "
	case LevelWarn:
		return "[MSG:WARN: "
	case LevelError:
		return "[MSG:ERR: "
	}
	return "[MSG:DBG: "
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug line when debug output is enabled.
// Never call it from the step interrupt.
func DebugPrintln(msg string) {
	if debugEnabled {
		logWriter(LevelDebug, msg)
	}
}

func LogInfo(msg string)  { logWriter(LevelInfo, msg) }
func LogWarn(msg string)  { logWriter(LevelWarn, msg) }
func LogError(msg string) { logWriter(LevelError, msg) }

// RecordTiming captures a timing event in the ring buffer.
// Non-blocking; safe from the step interrupt.
func RecordTiming(eventType uint8, clock, value1, value2 uint32) {
	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// SetTimingEnabled turns timing capture on or off
func SetTimingEnabled(enabled bool) {
	timingEnabled = enabled
}

// TimingEvents returns the captured events from oldest to newest
func TimingEvents() []TimingEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	events := make([]TimingEvent, 0, TimingRingSize)
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns a short name for a timing event code
func EventName(eventType uint8) string {
	switch eventType {
	case EvtStep:
		return "STEP"
	case EvtDirChange:
		return "DIR"
	case EvtUnstep:
		return "UNSTEP"
	case EvtTimerStart:
		return "TIMER_START"
	case EvtTimerStop:
		return "TIMER_STOP"
	case EvtQueueLoad:
		return "QUEUE_LOAD"
	}
	return "UNKNOWN"
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error)
func DumpTimingRing() {
	logWriter(LevelInfo, "[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		logWriter(LevelInfo, "[TIMING] "+EventName(evt.EventType)+
			" clock="+utoa(evt.Clock)+
			" v1="+utoa(evt.Value1)+
			" v2="+utoa(evt.Value2))
	}
	logWriter(LevelInfo, "[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}

func utoa(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}
