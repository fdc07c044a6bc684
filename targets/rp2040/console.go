//go:build rp2040 || rp2350

package main

import (
	"machine"
	"strconv"
	"strings"

	"gostep/board"
	"gostep/core"
)

// InitUSB configures the USB CDC serial port used as the console
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// consoleLog writes log lines to the console
func consoleLog(line string) {
	machine.Serial.Write([]byte(line))
	machine.Serial.Write([]byte("\r\n"))
}

// console collects command lines from the USB serial port
type console struct {
	bd   *board.Board
	line []byte
}

// poll consumes buffered input without blocking the main loop
func (c *console) poll() {
	for machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return
		}
		switch b {
		case '\r', '\n':
			if len(c.line) > 0 {
				c.exec(string(c.line))
				c.line = c.line[:0]
			}
		default:
			if len(c.line) < 80 {
				c.line = append(c.line, b)
			}
		}
	}
}

// exec runs one line:
//
//	move <step_mask> <dir_mask> <ticks> <count>
//	stop | enable | disable | status
func (c *console) exec(line string) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return
	}
	switch f[0] {
	case "move":
		if len(f) != 5 {
			core.LogError("usage: move <step_mask> <dir_mask> <ticks> <count>")
			return
		}
		var v [4]uint64
		for i := range v {
			n, err := strconv.ParseUint(f[i+1], 0, 16)
			if err != nil {
				core.LogError("move: " + err.Error())
				return
			}
			v[i] = n
		}
		err := c.bd.Move(core.PulseTick{
			StepMask: uint8(v[0]),
			DirMask:  uint8(v[1]),
			Ticks:    uint16(v[2]),
			Count:    uint16(v[3]),
		})
		if err != nil {
			core.LogError("move: " + err.Error())
		}
	case "stop":
		c.bd.Stepping.StopTimer()
	case "enable", "disable":
		if err := c.bd.SetMotorsDisabled(f[0] == "disable"); err != nil {
			core.LogError(err.Error())
		}
	case "status":
		for _, m := range c.bd.Motors {
			core.LogInfo(m.Name + " steps " + strconv.Itoa(int(c.bd.Stepping.AxisSteps(m.Axis))))
		}
	default:
		core.LogError("unknown command " + f[0])
	}
}
