package sim

import "sync"

const (
	tmcPacket   = 5
	tmcWriteBit = 0x80
	tmcIOIN     = 0x04
)

// TrinamicChip is a register file answering like a Trinamic SPI driver
type TrinamicChip struct {
	Version uint8
	Regs    map[uint8]uint32
	Writes  int
}

func (c *TrinamicChip) read(reg uint8) uint32 {
	if reg == tmcIOIN {
		return uint32(c.Version)<<24 | c.Regs[reg]&0x00FFFFFF
	}
	return c.Regs[reg]
}

// TrinamicChain emulates chips sharing a chip select. Bytes enter the first
// chip and leave the last one; every chip latches its packet when the
// transfer ends and loads its reply for the next transfer.
type TrinamicChain struct {
	mu    sync.Mutex
	chips []*TrinamicChip
	shift []byte
}

// NewTrinamicChain creates a chain. Chip i of versions is chain index i+1.
func NewTrinamicChain(versions ...uint8) *TrinamicChain {
	c := &TrinamicChain{shift: make([]byte, len(versions)*tmcPacket)}
	for _, v := range versions {
		c.chips = append(c.chips, &TrinamicChip{Version: v, Regs: make(map[uint8]uint32)})
	}
	return c
}

// Chip returns the chip at a chain index, 1 for the first
func (c *TrinamicChain) Chip(index int) *TrinamicChip {
	if index < 1 || index > len(c.chips) {
		return nil
	}
	return c.chips[index-1]
}

// Tx implements drivers.SPI. One call is one chip select cycle.
func (c *TrinamicChain) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream := append(append([]byte{}, c.shift...), w...)
	if r != nil {
		copy(r, stream[:len(w)])
	}
	copy(c.shift, stream[len(stream)-len(c.shift):])

	// The last chip holds the oldest bytes
	n := len(c.chips)
	for i, chip := range c.chips {
		pkt := c.shift[(n-1-i)*tmcPacket : (n-i)*tmcPacket]
		reg := pkt[0] &^ tmcWriteBit
		if pkt[0]&tmcWriteBit != 0 {
			chip.Regs[reg] = uint32(pkt[1])<<24 | uint32(pkt[2])<<16 | uint32(pkt[3])<<8 | uint32(pkt[4])
			chip.Writes++
		}
		v := chip.read(reg)
		pkt[0] = 0x00
		pkt[1], pkt[2], pkt[3], pkt[4] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	}
	return nil
}

// Transfer implements drivers.SPI
func (c *TrinamicChain) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := c.Tx([]byte{b}, r[:])
	return r[0], err
}
