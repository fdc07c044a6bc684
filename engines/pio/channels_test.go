package pio

import (
	"testing"

	"gostep/core"
)

func TestChannelSlots(t *testing.T) {
	tests := []struct {
		ch        int
		block, sm uint8
	}{
		{0, 0, 0},
		{3, 0, 3},
		{4, 1, 0},
		{7, 1, 3},
	}
	for _, tt := range tests {
		block, sm := channelSlot(tt.ch)
		if block != tt.block || sm != tt.sm {
			t.Errorf("channelSlot(%d) = %d,%d; want %d,%d", tt.ch, block, sm, tt.block, tt.sm)
		}
	}
}

func TestAllocatorExhausted(t *testing.T) {
	var a allocator
	for i := 0; i < MaxChannels; i++ {
		ch, err := a.next()
		if err != nil || ch != i {
			t.Fatalf("next() = %d, %v; want %d", ch, err, i)
		}
	}
	if _, err := a.next(); err != core.ErrChannelsExhausted {
		t.Errorf("expected ErrChannelsExhausted, got %v", err)
	}
}

func TestPulseTiming(t *testing.T) {
	tests := []struct {
		pulse, loops, actual uint32
	}{
		{0, 0, 2},
		{1, 0, 2},
		{2, 0, 2},
		{4, 2, 4},
		{30, 28, 30},
	}
	for _, tt := range tests {
		loops, actual := pulseTiming(tt.pulse)
		if loops != tt.loops || actual != tt.actual {
			t.Errorf("pulseTiming(%d) = %d,%d; want %d,%d", tt.pulse, loops, actual, tt.loops, tt.actual)
		}
	}
	if maxRate(4) != 125000 || maxRate(0) != 250000 {
		t.Errorf("maxRate: %d %d", maxRate(4), maxRate(0))
	}
}

func TestPulseProgram(t *testing.T) {
	high := pulseProgram(true)
	want := []uint16{0x80A0, 0x6020, 0xE001, 0x0043, 0xE000}
	if len(high) != len(want) {
		t.Fatalf("program length %d; want %d", len(high), len(want))
	}
	for i := range want {
		if high[i] != want[i] {
			t.Errorf("active high instr %d = %#04x; want %#04x", i, high[i], want[i])
		}
	}
	low := pulseProgram(false)
	if low[2] != 0xE000 || low[4] != 0xE001 {
		t.Errorf("active low set instrs = %#04x %#04x", low[2], low[4])
	}
}

func TestProgramWrap(t *testing.T) {
	prog := pulseProgram(true)
	tests := []struct {
		offset, target, top uint8
	}{
		{0, 0, 4},
		{27, 27, 31},
	}
	for _, tt := range tests {
		target, top := programWrap(tt.offset, prog)
		if target != tt.target || top != tt.top {
			t.Errorf("programWrap(%d) = %d,%d; want %d,%d", tt.offset, target, top, tt.target, tt.top)
		}
		if target > top {
			t.Errorf("wrap target %d after wrap top %d", target, top)
		}
	}
}
