package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingTimer(wake uint32, fired *[]uint32) *Timer {
	return &Timer{
		WakeTime: wake,
		Handler: func(t *Timer) uint8 {
			*fired = append(*fired, t.WakeTime)
			return SF_DONE
		},
	}
}

func TestTimerDispatchOrder(t *testing.T) {
	ResetTimers()
	var fired []uint32
	ScheduleTimer(recordingTimer(300, &fired))
	ScheduleTimer(recordingTimer(100, &fired))
	ScheduleTimer(recordingTimer(200, &fired))

	TimerDispatch(250)
	assert.Equal(t, []uint32{100, 200}, fired)

	wake, ok := NextWake()
	require.True(t, ok)
	assert.Equal(t, uint32(300), wake)

	TimerDispatch(300)
	assert.Equal(t, []uint32{100, 200, 300}, fired)
	_, ok = NextWake()
	assert.False(t, ok)
}

func TestTimerWraparound(t *testing.T) {
	ResetTimers()
	var fired []uint32
	ScheduleTimer(recordingTimer(0x00000010, &fired))
	ScheduleTimer(recordingTimer(0xFFFFFFF0, &fired))

	TimerDispatch(0xFFFFFFF8)
	assert.Equal(t, []uint32{0xFFFFFFF0}, fired)

	TimerDispatch(0x00000020)
	assert.Equal(t, []uint32{0xFFFFFFF0, 0x10}, fired)
}

func TestDeleteTimer(t *testing.T) {
	ResetTimers()
	var fired []uint32
	a := recordingTimer(100, &fired)
	b := recordingTimer(200, &fired)
	c := recordingTimer(300, &fired)
	ScheduleTimer(a)
	ScheduleTimer(b)
	ScheduleTimer(c)

	assert.True(t, DeleteTimer(b))
	assert.False(t, DeleteTimer(b))
	assert.True(t, DeleteTimer(a))

	TimerDispatch(1000)
	assert.Equal(t, []uint32{300}, fired)
}

func TestTimerReschedule(t *testing.T) {
	ResetTimers()
	count := 0
	tm := &Timer{WakeTime: 10}
	tm.Handler = func(t *Timer) uint8 {
		count++
		if count == 3 {
			return SF_DONE
		}
		t.WakeTime += 10
		return SF_RESCHEDULE
	}
	ScheduleTimer(tm)
	TimerDispatch(100)
	assert.Equal(t, 3, count)
}

func TestSchedTimerStopFromCallback(t *testing.T) {
	ResetTimers()
	SetTime(0)
	timer := NewSchedTimer()
	calls := 0
	timer.Init(func() {
		calls++
		if calls == 2 {
			timer.Stop()
		}
	})
	timer.SetTicks(10)
	timer.Start()
	timer.Start() // already running

	for i := 0; i < 10; i++ {
		AdvanceTime(10)
	}
	assert.Equal(t, 2, calls)
	assert.False(t, timer.Running())
	_, ok := NextWake()
	assert.False(t, ok)
}

func TestSchedTimerRestartFromCallback(t *testing.T) {
	ResetTimers()
	SetTime(0)
	timer := NewSchedTimer()
	calls := 0
	timer.Init(func() {
		calls++
		timer.Stop()
		timer.Start()
	})
	timer.SetTicks(10)
	timer.Start()

	AdvanceTime(10)
	AdvanceTime(10)
	assert.Equal(t, 2, calls)
	assert.True(t, timer.Running())
}

func TestTimerUnits(t *testing.T) {
	assert.Equal(t, uint32(12), TimerFromUS(1))
	assert.Equal(t, uint32(1000000), TimerToUS(TimerFreq))
	assert.Equal(t, uint32(500), PlannerToTimerTicks(1000))
}
