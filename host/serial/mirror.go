package serial

import (
	"io"
	"strconv"
	"sync"

	"gostep/core"
)

// Mirror writes log lines and timing events to a port as text lines.
// Write errors are counted, never returned to the logger.
type Mirror struct {
	mu     sync.Mutex
	w      io.Writer
	errors int
	next   core.LogWriter
}

// NewMirror creates a mirror on w. Lines are also passed to next if not nil.
func NewMirror(w io.Writer, next core.LogWriter) *Mirror {
	return &Mirror{w: w, next: next}
}

// Log implements core.LogWriter
func (m *Mirror) Log(level core.LogLevel, msg string) {
	if m.next != nil {
		m.next(level, msg)
	}
	m.writeLine(level.Format(msg))
}

// Events writes timing events, one per line
func (m *Mirror) Events(events []core.TimingEvent) {
	for _, evt := range events {
		m.writeLine("[TIMING] " + core.EventName(evt.EventType) +
			" clock=" + strconv.FormatUint(uint64(evt.Clock), 10) +
			" v1=" + strconv.FormatUint(uint64(evt.Value1), 10) +
			" v2=" + strconv.FormatUint(uint64(evt.Value2), 10))
	}
}

// Errors returns the number of failed writes
func (m *Mirror) Errors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors
}

func (m *Mirror) writeLine(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := io.WriteString(m.w, line+"\r\n"); err != nil {
		m.errors++
	}
}
