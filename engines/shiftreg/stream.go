package shiftreg

import (
	"sync/atomic"

	"periph.io/x/conn/v3/gpio/gpiostream"
	"periph.io/x/conn/v3/physic"

	"gostep/core"
)

// Stream timing
const (
	SampleRate = 250000 // Register words per second
	SampleUS   = 4      // Microseconds per word

	maxSamples = 64
)

// Stream renders each tick into register words and pushes them as one bit
// stream. The frame ends with the step bits back at their idle level, so the
// dispatcher never runs its own unstep pass.
type Stream struct {
	out gpiostream.PinOut

	word     uint32
	idle     uint32 // Idle levels of the step bits
	stepBits uint32

	dirSamples   int
	pulseSamples int

	frame  [maxSamples]uint32
	n      int
	bytes  [maxSamples * 4]byte
	stream gpiostream.BitStream

	streamErrors atomic.Uint32
}

// NewStream creates the engine on a stream output
func NewStream(out gpiostream.PinOut) *Stream {
	return &Stream{
		out:    out,
		stream: gpiostream.BitStream{Freq: SampleRate * NumBits * physic.Hertz},
	}
}

// StreamErrors returns the number of frames the output rejected
func (s *Stream) StreamErrors() uint32 {
	return s.streamErrors.Load()
}

func samplesFor(us uint32) int {
	return int((us + SampleUS - 1) / SampleUS)
}

// Init implements core.Engine. The pulse width is rounded up to whole
// samples, at least one.
func (s *Stream) Init(dirDelayUS, pulseUS uint32) (uint32, error) {
	s.dirSamples = samplesFor(dirDelayUS)
	s.pulseSamples = samplesFor(pulseUS)
	if s.pulseSamples == 0 {
		s.pulseSamples = 1
	}
	return uint32(s.pulseSamples * SampleUS), nil
}

// InitStepPin implements core.Engine
func (s *Stream) InitStepPin(pin core.GPIOPin, invert bool) (core.PinHandle, error) {
	if err := checkPin(pin); err != nil {
		return 0, err
	}
	h := core.PinHandle(pin)
	setBit(&s.stepBits, h, true)
	setBit(&s.idle, h, invert)
	setBit(&s.word, h, invert)
	return h, nil
}

// InitDirPin implements core.DirPinInitializer
func (s *Stream) InitDirPin(pin core.GPIOPin, invert bool) (core.PinHandle, error) {
	if err := checkPin(pin); err != nil {
		return 0, err
	}
	return core.PinHandle(pin), nil
}

func (s *Stream) push(samples int) {
	for i := 0; i < samples && s.n < maxSamples; i++ {
		s.frame[s.n] = s.word
		s.n++
	}
}

// SetDirPin implements core.Engine
func (s *Stream) SetDirPin(pin core.PinHandle, level bool) {
	setBit(&s.word, pin, level)
}

// FinishDir implements core.Engine. The settle time becomes idle samples.
func (s *Stream) FinishDir() {
	s.push(s.dirSamples)
}

// SetStepPin implements core.Engine
func (s *Stream) SetStepPin(pin core.PinHandle, level bool) {
	setBit(&s.word, pin, level)
}

// FinishStep implements core.Engine. Emits the pulse and its trailing edge.
func (s *Stream) FinishStep() {
	s.push(s.pulseSamples)
	s.word = s.word&^s.stepBits | s.idle
	s.push(1)

	for i := 0; i < s.n; i++ {
		putWord(s.bytes[i*4:], s.frame[i])
	}
	s.stream.Bits = s.bytes[:s.n*4]
	s.n = 0
	if s.out.StreamOut(&s.stream) != nil {
		s.streamErrors.Add(1)
	}
}

// StartUnstep implements core.Engine. Pulses end inside the frame.
func (s *Stream) StartUnstep() bool {
	return true
}

// FinishUnstep implements core.Engine
func (s *Stream) FinishUnstep() {}

// MaxPulsesPerSec implements core.Engine
func (s *Stream) MaxPulsesPerSec() uint32 {
	if s.pulseSamples == 0 {
		return SampleRate / 2
	}
	return SampleRate / uint32(2*s.pulseSamples)
}
