//-----------------------------------------------------------------------------
/*

Command Packets

A command packet is 8 bytes on the wire:

  0: command
  1: address low byte
  2: address high byte
  3: data low byte
  4: data high byte
  5: device id low byte
  6: device id high byte
  7: crc8 of bytes 0..6

The device answers every command with a packet of the same shape that
echoes the command, address and device id.

*/
//-----------------------------------------------------------------------------

package cp

import (
	"errors"
	"fmt"

	"github.com/deadsy/cmdpkt/crc8"
)

//-----------------------------------------------------------------------------

// commands
const CmdReadRegister = 0x01
const CmdWriteRegister = 0x02
const CmdReadHardwareConfig = 0x03
const CmdConfigureHardware = 0x04
const CmdLinkHardware = 0x05
const CmdRemoveLinkHardware = 0x06

// response data for status commands
const RspSuccess = 0xaa
const RspFailure = 0xbb

// hardware configuration bytes
const ConfigDigitalInput = 0x01
const ConfigDigitalInputPullup = 0x02
const ConfigDigitalInputPulldown = 0x03
const ConfigDigitalOutput = 0x04
const ConfigPWM = 0x05
const ConfigAnalogRead = 0x06

// hardware types
const HardwareGPIO = 0x01
const HardwareDAC = 0x02

// FrameSize is the number of bytes covered by the crc.
const FrameSize = 7

// PacketSize is the number of bytes on the wire.
const PacketSize = FrameSize + 1

//-----------------------------------------------------------------------------

// ErrShortPacket is returned when decoding a buffer of the wrong length.
var ErrShortPacket = errors.New("short packet")

// ErrCRC matches any *CRCError.
var ErrCRC = errors.New("crc mismatch")

// CRCError reports a packet whose trailing crc byte is wrong.
type CRCError struct {
	Want uint8 // crc computed over the frame
	Got  uint8 // crc byte received
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("crc mismatch: want 0x%02x got 0x%02x", e.Want, e.Got)
}

// Is lets errors.Is(err, ErrCRC) match.
func (e *CRCError) Is(target error) bool {
	return target == ErrCRC
}

//-----------------------------------------------------------------------------

func lo(x uint16) byte {
	return byte(x & 0xff)
}

func hi(x uint16) byte {
	return byte((x >> 8) & 0xff)
}

func word(l, h byte) uint16 {
	return uint16(l) | uint16(h)<<8
}

//-----------------------------------------------------------------------------

// Packet is a device command or response.
type Packet struct {
	Command  uint8
	Address  uint16
	Data     uint16
	DeviceID uint16
}

// NewPacket returns a new command packet.
func NewPacket(command uint8, address, data, deviceID uint16) *Packet {
	return &Packet{
		Command:  command,
		Address:  address,
		Data:     data,
		DeviceID: deviceID,
	}
}

// Frame returns the crc covered bytes of the packet.
func (p *Packet) Frame() [FrameSize]byte {
	return [FrameSize]byte{
		p.Command,
		lo(p.Address), hi(p.Address),
		lo(p.Data), hi(p.Data),
		lo(p.DeviceID), hi(p.DeviceID),
	}
}

// CRC returns the crc of the packet frame.
func (p *Packet) CRC() uint8 {
	f := p.Frame()
	return crc8.Checksum(f[:])
}

// CRCTrace returns the crc of the packet frame, reporting each step to t.
func (p *Packet) CRCTrace(t crc8.Trace) uint8 {
	f := p.Frame()
	return crc8.ChecksumTrace(f[:], t)
}

// Compute returns the crc for a packet with the given fields.
func Compute(command uint8, address, data, deviceID uint16) uint8 {
	p := Packet{command, address, data, deviceID}
	return p.CRC()
}

// MarshalBinary returns the wire encoding of the packet.
func (p *Packet) MarshalBinary() ([]byte, error) {
	f := p.Frame()
	buf := make([]byte, 0, PacketSize)
	buf = append(buf, f[:]...)
	buf = append(buf, crc8.Checksum(f[:]))
	return buf, nil
}

// UnmarshalBinary decodes a wire packet and checks its crc.
// On a crc error the fields are still decoded.
func (p *Packet) UnmarshalBinary(buf []byte) error {
	if len(buf) != PacketSize {
		return fmt.Errorf("%w: %d bytes", ErrShortPacket, len(buf))
	}
	p.Command = buf[0]
	p.Address = word(buf[1], buf[2])
	p.Data = word(buf[3], buf[4])
	p.DeviceID = word(buf[5], buf[6])
	want := crc8.Checksum(buf[:FrameSize])
	if want != buf[FrameSize] {
		return &CRCError{Want: want, Got: buf[FrameSize]}
	}
	return nil
}

func (p *Packet) String() string {
	return fmt.Sprintf("cmd 0x%02x addr 0x%04x data 0x%04x dev 0x%04x crc 0x%02x",
		p.Command, p.Address, p.Data, p.DeviceID, p.CRC())
}

//-----------------------------------------------------------------------------
