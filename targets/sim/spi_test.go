package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostep/core"
)

func TestSPIDriverRecordsByDefault(t *testing.T) {
	d := NewSPIDriver()
	bus, err := d.ConfigureBus(core.SPIConfig{BusID: 2, Mode: 3, Rate: 4000000})
	require.NoError(t, err)

	require.NoError(t, bus.Tx([]byte{1, 2, 3}, nil))
	_, err = bus.Transfer(9)
	require.NoError(t, err)

	rec, ok := bus.(*RecordBus)
	require.True(t, ok)
	assert.Equal(t, [][]byte{{1, 2, 3}, {9}}, rec.Writes())

	cfg, ok := d.Config(2)
	assert.True(t, ok)
	assert.Equal(t, core.SPIMode(3), cfg.Mode)

	_, err = d.ConfigureBus(core.SPIConfig{Mode: 4})
	assert.ErrorIs(t, err, core.ErrValueRange)
}

func TestSPIDriverAttach(t *testing.T) {
	d := NewSPIDriver()
	chain := NewTrinamicChain(0x11)
	d.Attach(0, chain)
	bus, err := d.ConfigureBus(core.SPIConfig{BusID: 0})
	require.NoError(t, err)
	assert.Same(t, chain, bus)
}

func TestTrinamicChainSingle(t *testing.T) {
	c := NewTrinamicChain(0x30)

	// Write, then read back on the following cycle
	require.NoError(t, c.Tx([]byte{0x80 | 0x6C, 0x01, 0x02, 0x03, 0x04}, nil))
	assert.Equal(t, uint32(0x01020304), c.Chip(1).Regs[0x6C])

	require.NoError(t, c.Tx([]byte{tmcIOIN, 0, 0, 0, 0}, nil))
	r := make([]byte, 5)
	require.NoError(t, c.Tx(make([]byte, 5), r))
	assert.Equal(t, byte(0x30), r[1])
}

func TestTrinamicChainAddressing(t *testing.T) {
	c := NewTrinamicChain(0x11, 0x30, 0x40)

	// Packet for index 2 is followed by one dummy packet
	w := []byte{0x80 | 0x10, 0, 0, 0x11, 0x08, 0, 0, 0, 0, 0}
	require.NoError(t, c.Tx(w, nil))
	assert.Equal(t, uint32(0x1108), c.Chip(2).Regs[0x10])
	assert.Equal(t, 1, c.Chip(2).Writes)
	assert.Equal(t, 0, c.Chip(1).Writes)
	assert.Equal(t, 0, c.Chip(3).Writes)

	// Read the version of index 1: request, then skip the two later chips
	require.NoError(t, c.Tx([]byte{tmcIOIN, 0, 0, 0, 0}, nil))
	r := make([]byte, 15)
	require.NoError(t, c.Tx(make([]byte, 15), r))
	assert.Equal(t, byte(0x11), r[11])
	assert.Nil(t, c.Chip(4))
}
