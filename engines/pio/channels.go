// Package pio generates step pulses with the RP2040/RP2350 PIO blocks. Each
// step pin owns one state machine that emits a single pulse of fixed width
// per FIFO word, so pulses end without CPU involvement. The engine serves the
// pulse-train peripheral engine type and is registered as RMT.
package pio

import "gostep/core"

// Name is the registry name of the engine
const Name = "RMT"

// Channel layout
const (
	NumBlocks        = 2
	MachinesPerBlock = 4
	MaxChannels      = NumBlocks * MachinesPerBlock
)

// MinPulseUS is the shortest pulse the program can emit. The set instruction
// and the final loop pass take one state machine cycle each.
const MinPulseUS = 2

// ProgramClockHz runs state machines at one cycle per microsecond
const ProgramClockHz = 1000000

// Instruction words of the pulse program
const (
	instrPullBlock = 0x80A0 // pull block
	instrOutX32    = 0x6020 // out x, 32
	instrSetPins   = 0xE000 // set pins, <data>
	instrJmpXDec   = 0x0040 // jmp x--, <addr>
)

// pulseProgram emits one pulse per FIFO word. The word is the number of
// extra microseconds to hold the pin active. Jump targets are relative to
// the load offset.
func pulseProgram(active bool) []uint16 {
	var on, off uint16 = 1, 0
	if !active {
		on, off = 0, 1
	}
	return []uint16{
		// .wrap_target
		instrPullBlock,     // 0: pull block
		instrOutX32,        // 1: out x, 32
		instrSetPins | on,  // 2: set pins, on
		instrJmpXDec | 3,   // 3: jmp x--, 3
		instrSetPins | off, // 4: set pins, off
		// .wrap
	}
}

// programWrap returns the wrap target and wrap top of a program loaded at offset
func programWrap(offset uint8, prog []uint16) (target, top uint8) {
	return offset, offset + uint8(len(prog)) - 1
}

// channelSlot maps a channel index to its PIO block and state machine
func channelSlot(ch int) (block, sm uint8) {
	return uint8(ch / MachinesPerBlock), uint8(ch % MachinesPerBlock)
}

// pulseTiming returns the loop count pushed per pulse and the width it yields
func pulseTiming(pulseUS uint32) (loops, actualUS uint32) {
	if pulseUS < MinPulseUS {
		pulseUS = MinPulseUS
	}
	return pulseUS - MinPulseUS, pulseUS
}

// maxRate allows a pulse period of twice the pulse width
func maxRate(pulseUS uint32) uint32 {
	if pulseUS < MinPulseUS {
		pulseUS = MinPulseUS
	}
	return 1000000 / (2 * pulseUS)
}

// allocator hands out state machine channels in order
type allocator struct {
	used int
}

func (a *allocator) next() (int, error) {
	if a.used >= MaxChannels {
		return 0, core.ErrChannelsExhausted
	}
	ch := a.used
	a.used++
	return ch, nil
}
