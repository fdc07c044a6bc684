package config

import (
	"errors"
	"strconv"
	"strings"

	"gostep/core"
)

// PinKind tells which output bank a pin number belongs to
type PinKind uint8

const (
	PinNone  PinKind = iota
	PinGPIO          // MCU or host GPIO line
	PinShift         // Bit of the shift register chain
)

var ErrPinSyntax = errors.New("config: bad pin")

// Pin is a parsed pin specification such as "gpio.12:low" or "i2so.3"
type Pin struct {
	Kind     PinKind
	Num      core.GPIOPin
	Invert   bool // ":low", active low
	PullUp   bool // ":pu"
	PullDown bool // ":pd"
}

// Defined reports whether a pin was configured
func (p Pin) Defined() bool { return p.Kind != PinNone }

func (p Pin) String() string {
	if p.Kind == PinNone {
		return "NO_PIN"
	}
	s := "gpio."
	if p.Kind == PinShift {
		s = "i2so."
	}
	s += strconv.Itoa(int(p.Num))
	if p.Invert {
		s += ":low"
	}
	if p.PullUp {
		s += ":pu"
	}
	if p.PullDown {
		s += ":pd"
	}
	return s
}

// ParsePin parses a pin specification. The empty string and NO_PIN give an
// undefined pin. The dot after the bank name is optional.
func ParsePin(spec string) (Pin, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, "NO_PIN") {
		return Pin{}, nil
	}

	parts := strings.Split(spec, ":")
	name := strings.ToLower(parts[0])

	var p Pin
	switch {
	case strings.HasPrefix(name, "gpio"):
		p.Kind = PinGPIO
		name = name[len("gpio"):]
	case strings.HasPrefix(name, "i2so"):
		p.Kind = PinShift
		name = name[len("i2so"):]
	default:
		return Pin{}, &core.ConfigError{Op: "parse pin", Name: spec, Err: ErrPinSyntax}
	}
	name = strings.TrimPrefix(name, ".")
	n, err := strconv.ParseUint(name, 10, 16)
	if err != nil {
		return Pin{}, &core.ConfigError{Op: "parse pin", Name: spec, Err: ErrPinSyntax}
	}
	p.Num = core.GPIOPin(n)

	for _, attr := range parts[1:] {
		switch strings.ToLower(strings.TrimSpace(attr)) {
		case "low":
			p.Invert = true
		case "high":
		case "pu":
			p.PullUp = true
		case "pd":
			p.PullDown = true
		default:
			return Pin{}, &core.ConfigError{Op: "parse pin", Name: spec, Err: ErrPinSyntax}
		}
	}
	if p.PullUp && p.PullDown {
		return Pin{}, &core.ConfigError{Op: "parse pin", Name: spec, Err: ErrPinSyntax}
	}
	return p, nil
}
