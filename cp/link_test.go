package cp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeDevice answers command packets the way the device firmware does.
type fakeDevice struct {
	regs     [100]uint16
	hardware map[uint16]uint16 // id -> type<<8 | config
	links    map[uint16]uint16 // id -> register
	rx       bytes.Buffer
	writes   int
	// hooks for error cases
	corrupt bool
	echoDev *uint16
	closed  bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		hardware: map[uint16]uint16{
			1: HardwareGPIO<<8 | ConfigDigitalInput,
			2: HardwareGPIO<<8 | ConfigDigitalOutput,
			3: HardwareDAC << 8,
		},
		links: map[uint16]uint16{},
	}
}

func (d *fakeDevice) Read(buf []byte) (int, error) {
	return d.rx.Read(buf)
}

func (d *fakeDevice) Write(buf []byte) (int, error) {
	d.writes++
	var p Packet
	if err := p.UnmarshalBinary(buf); err != nil {
		// the firmware drops bad packets without answering
		return len(buf), nil
	}
	rsp := d.process(&p)
	if d.echoDev != nil {
		rsp.DeviceID = *d.echoDev
	}
	out, _ := rsp.MarshalBinary()
	if d.corrupt {
		out[PacketSize-1] ^= 0xff
	}
	d.rx.Write(out)
	return len(buf), nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDevice) process(p *Packet) *Packet {
	reply := func(data uint16) *Packet {
		return NewPacket(p.Command, p.Address, data, p.DeviceID)
	}
	switch p.Command {
	case CmdReadRegister:
		if p.Address >= 100 {
			return reply(0)
		}
		return reply(d.regs[p.Address])
	case CmdWriteRegister:
		if p.Address >= 100 {
			return reply(RspFailure)
		}
		d.regs[p.Address] = p.Data
		return reply(0)
	case CmdReadHardwareConfig:
		if p.Address == 0 {
			return reply(uint16(len(d.hardware)))
		}
		hw, ok := d.hardware[p.Address]
		if !ok {
			return reply(RspFailure)
		}
		return reply(hw)
	case CmdConfigureHardware:
		hw, ok := d.hardware[p.Address]
		if !ok {
			return reply(RspFailure)
		}
		if hi(hw) == HardwareDAC {
			return reply(RspSuccess)
		}
		d.hardware[p.Address] = uint16(hi(hw))<<8 | p.Data&0xff
		return reply(RspSuccess)
	case CmdLinkHardware:
		if _, ok := d.hardware[p.Address]; !ok {
			return reply(RspFailure)
		}
		d.links[p.Address] = p.Data
		return reply(RspSuccess)
	case CmdRemoveLinkHardware:
		delete(d.links, p.Address)
		return reply(RspSuccess)
	}
	return reply(RspFailure)
}

func newTestLink(t *testing.T, dev *fakeDevice) *Link {
	l, err := NewLink(&Config{Port: dev, DeviceID: 0x0007, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return l
}

func TestNewLinkNoPort(t *testing.T) {
	_, err := NewLink(&Config{})
	assert.Error(t, err)
}

func TestRegisters(t *testing.T) {
	dev := newFakeDevice()
	l := newTestLink(t, dev)

	require.NoError(t, l.WriteRegister(10, 0x1234))
	v, err := l.ReadRegister(10)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)

	// RspFailure is a legal register value
	require.NoError(t, l.WriteRegister(11, RspFailure))
	v, err = l.ReadRegister(11)
	require.NoError(t, err)
	assert.Equal(t, uint16(RspFailure), v)

	assert.ErrorIs(t, l.WriteRegister(100, 1), ErrFailure)

	v, err = l.ReadRegister(500)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.Equal(t, 6, dev.writes)
}

func TestHardware(t *testing.T) {
	dev := newFakeDevice()
	l := newTestLink(t, dev)

	n, err := l.HardwareCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hwType, config, err := l.ReadHardwareConfig(2)
	require.NoError(t, err)
	assert.Equal(t, uint8(HardwareGPIO), hwType)
	assert.Equal(t, uint8(ConfigDigitalOutput), config)

	require.NoError(t, l.ConfigureHardware(2, ConfigPWM))
	_, config, err = l.ReadHardwareConfig(2)
	require.NoError(t, err)
	assert.Equal(t, uint8(ConfigPWM), config)

	hwType, config, err = l.ReadHardwareConfig(3)
	require.NoError(t, err)
	assert.Equal(t, uint8(HardwareDAC), hwType)
	assert.Zero(t, config)

	_, _, err = l.ReadHardwareConfig(9)
	assert.ErrorIs(t, err, ErrFailure)
	_, _, err = l.ReadHardwareConfig(0)
	assert.Error(t, err)

	assert.ErrorIs(t, l.ConfigureHardware(9, ConfigPWM), ErrFailure)
	before := dev.writes
	assert.Error(t, l.ConfigureHardware(2, 0x07))
	assert.Equal(t, before, dev.writes, "bad config byte must not be sent")
}

func TestLinks(t *testing.T) {
	dev := newFakeDevice()
	l := newTestLink(t, dev)

	require.NoError(t, l.LinkHardware(1, 20))
	assert.Equal(t, uint16(20), dev.links[1])
	assert.ErrorIs(t, l.LinkHardware(8, 20), ErrFailure)

	require.NoError(t, l.RemoveLink(1))
	assert.NotContains(t, dev.links, uint16(1))
	// removing a missing link is not an error
	require.NoError(t, l.RemoveLink(1))
}

func TestReceiveCRCError(t *testing.T) {
	dev := newFakeDevice()
	dev.corrupt = true
	core, logs := observer.New(zap.WarnLevel)
	l, err := NewLink(&Config{Port: dev, DeviceID: 0x0007, Logger: zap.New(core)})
	require.NoError(t, err)

	_, err = l.ReadRegister(1)
	assert.ErrorIs(t, err, ErrCRC)
	assert.Equal(t, 1, logs.FilterMessage("rx dropped").Len())
}

func TestReceiveShort(t *testing.T) {
	dev := newFakeDevice()
	l := newTestLink(t, dev)

	_, err := l.Receive()
	assert.ErrorIs(t, err, ErrShortPacket)

	dev.rx.Write([]byte{1, 2, 3})
	_, err = l.Receive()
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestTransactMismatch(t *testing.T) {
	dev := newFakeDevice()
	other := uint16(0x0009)
	dev.echoDev = &other
	l := newTestLink(t, dev)

	_, err := l.Transact(CmdReadRegister, 1, 0)
	assert.True(t, errors.Is(err, ErrMismatch))
}

func TestSendEncoding(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLink(&Config{Port: &buf, DeviceID: 0x0000})
	require.NoError(t, err)
	require.NoError(t, l.Send(NewPacket(0x05, 0x0002, 0x0001, 0x0000)))
	assert.Equal(t, []byte{0x05, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0xee}, buf.Bytes())
	// bytes.Buffer is not a Closer
	assert.NoError(t, l.Close())
}

func TestClose(t *testing.T) {
	dev := newFakeDevice()
	l := newTestLink(t, dev)
	require.NoError(t, l.Close())
	assert.True(t, dev.closed)
}
