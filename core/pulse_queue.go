package core

// Pulse queue
// Bounded ring of precomputed step ticks feeding the step timer. The
// foreground pushes entries; the pulse callback consumes them.

import "sync/atomic"

// PulseQueueSize is the ring capacity. One slot stays empty.
const PulseQueueSize = 32

// PulseTick is one queued run of identical step ticks
type PulseTick struct {
	StepMask uint8  // Axes to pulse on each tick
	DirMask  uint8  // Direction bits (1 = negative)
	Ticks    uint16 // Tick period in planner ticks
	Count    uint16 // Number of ticks
}

// PulseQueue is a single-producer single-consumer ring
type PulseQueue struct {
	entries [PulseQueueSize]PulseTick
	head    atomic.Uint32 // Next entry to load, written by the consumer
	tail    atomic.Uint32 // Next free slot, written by the producer

	s         *Stepping
	cur       PulseTick
	remaining uint16
	unstep    Timer
}

// NewPulseQueue creates an empty queue.
// Pass q.Pulse as the pulse callback to Builder.Build, then Attach.
func NewPulseQueue() *PulseQueue {
	q := &PulseQueue{}
	q.unstep.Handler = q.unstepEvent
	return q
}

// Attach binds the queue to the run-phase dispatcher
func (q *PulseQueue) Attach(s *Stepping) {
	q.s = s
}

// Push appends an entry. Called from the foreground only.
func (q *PulseQueue) Push(p PulseTick) error {
	if p.Count == 0 || p.Ticks == 0 {
		return ErrValueRange
	}
	tail := q.tail.Load()
	next := (tail + 1) % PulseQueueSize
	if next == q.head.Load() {
		return ErrQueueFull
	}
	q.entries[tail] = p
	q.tail.Store(next)
	return nil
}

// PushAll appends every entry or none. Called from the foreground only.
func (q *PulseQueue) PushAll(ps ...PulseTick) error {
	for _, p := range ps {
		if p.Count == 0 || p.Ticks == 0 {
			return ErrValueRange
		}
	}
	if len(ps) > q.Free() {
		return ErrQueueFull
	}
	for _, p := range ps {
		if err := q.Push(p); err != nil {
			return err
		}
	}
	return nil
}

// Free returns the number of entries Push can still accept
func (q *PulseQueue) Free() int {
	return PulseQueueSize - 1 - q.Len()
}

// Len returns the number of entries not yet loaded
func (q *PulseQueue) Len() int {
	return int((q.tail.Load() + PulseQueueSize - q.head.Load()) % PulseQueueSize)
}

// Idle reports whether every queued tick has been issued
func (q *PulseQueue) Idle() bool {
	return q.remaining == 0 && q.Len() == 0
}

// Pulse is the step timer callback. It issues one tick of the current entry,
// loading the next entry when the current one is used up. An empty queue
// stops the timer.
func (q *PulseQueue) Pulse() {
	if q.s == nil {
		return
	}
	if q.remaining == 0 && !q.load() {
		q.s.StopTimer()
		return
	}
	q.remaining--

	// Period shorter than the pulse width: end the previous pulse first
	if DeleteTimer(&q.unstep) {
		q.s.Unstep()
	}

	q.s.Step(q.cur.StepMask, q.cur.DirMask)
	if q.cur.StepMask == 0 {
		return
	}
	width := q.s.PulseUS()
	if width == 0 {
		width = 1
	}
	q.unstep.WakeTime = GetTime() + TimerFromUS(width)
	ScheduleTimer(&q.unstep)
}

func (q *PulseQueue) load() bool {
	head := q.head.Load()
	if head == q.tail.Load() {
		return false
	}
	q.cur = q.entries[head]
	q.head.Store((head + 1) % PulseQueueSize)
	q.remaining = q.cur.Count
	q.s.SetTimerPeriod(q.cur.Ticks)
	RecordTiming(EvtQueueLoad, GetTime(), uint32(q.cur.Ticks), uint32(q.cur.Count))
	return true
}

func (q *PulseQueue) unstepEvent(t *Timer) uint8 {
	q.s.Unstep()
	return SF_DONE
}
