//-----------------------------------------------------------------------------
/*

Command Link

Host side of the command protocol. Each command is one packet out and
one packet back on a serial port.

*/
//-----------------------------------------------------------------------------

package cp

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

//-----------------------------------------------------------------------------

// ErrFailure is returned when the device answers a status command with RspFailure.
var ErrFailure = errors.New("device reported failure")

// ErrMismatch is returned when a response does not echo the command.
var ErrMismatch = errors.New("response mismatch")

//-----------------------------------------------------------------------------
// Link

// Config is the command link configuration.
type Config struct {
	Port     io.ReadWriter // serial port
	DeviceID uint16        // device id put in outgoing packets
	Logger   *zap.Logger   // optional
}

// Link is a command link to a single device.
type Link struct {
	port   io.ReadWriter // serial port
	device uint16        // device id
	log    *zap.Logger
}

// NewLink returns a new command link.
func NewLink(cfg *Config) (*Link, error) {
	if cfg.Port == nil {
		return nil, errors.New("no serial port")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Link{
		port:   cfg.Port,
		device: cfg.DeviceID,
		log:    log,
	}, nil
}

// Close closes the serial port (if it can be closed).
func (l *Link) Close() error {
	if c, ok := l.port.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Send writes a packet to the serial port.
func (l *Link) Send(p *Packet) error {
	buf, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	l.log.Debug("tx", zap.Stringer("pkt", p), zap.Binary("raw", buf))
	_, err = l.port.Write(buf)
	return err
}

// Receive reads a packet from the serial port.
func (l *Link) Receive() (*Packet, error) {
	var buf [PacketSize]byte
	n, err := io.ReadFull(l.port, buf[:])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || (errors.Is(err, io.EOF) && n == 0) {
			return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, n)
		}
		return nil, err
	}
	p := &Packet{}
	err = p.UnmarshalBinary(buf[:])
	if err != nil {
		l.log.Warn("rx dropped", zap.Binary("raw", buf[:]), zap.Error(err))
		return nil, err
	}
	l.log.Debug("rx", zap.Stringer("pkt", p))
	return p, nil
}

// Transact sends a command and returns the device response.
func (l *Link) Transact(command uint8, address, data uint16) (*Packet, error) {
	err := l.Send(NewPacket(command, address, data, l.device))
	if err != nil {
		return nil, err
	}
	rsp, err := l.Receive()
	if err != nil {
		return nil, err
	}
	if rsp.Command != command || rsp.Address != address || rsp.DeviceID != l.device {
		return nil, fmt.Errorf("%w: sent cmd 0x%02x addr 0x%04x, got %s", ErrMismatch, command, address, rsp)
	}
	return rsp, nil
}

// status runs a command that answers with RspSuccess/RspFailure.
func (l *Link) status(command uint8, address, data uint16) error {
	rsp, err := l.Transact(command, address, data)
	if err != nil {
		return err
	}
	switch rsp.Data {
	case RspSuccess:
		return nil
	case RspFailure:
		return fmt.Errorf("%w: cmd 0x%02x addr 0x%04x", ErrFailure, command, address)
	}
	return fmt.Errorf("%w: unexpected status 0x%04x", ErrMismatch, rsp.Data)
}

//-----------------------------------------------------------------------------
// Registers

// ReadRegister returns the value of a device register.
// Out of range registers read as zero.
func (l *Link) ReadRegister(address uint16) (uint16, error) {
	rsp, err := l.Transact(CmdReadRegister, address, 0)
	if err != nil {
		return 0, err
	}
	return rsp.Data, nil
}

// WriteRegister writes a device register.
func (l *Link) WriteRegister(address, val uint16) error {
	rsp, err := l.Transact(CmdWriteRegister, address, val)
	if err != nil {
		return err
	}
	// a good write answers with zero data
	if rsp.Data == RspFailure {
		return fmt.Errorf("%w: write register 0x%04x", ErrFailure, address)
	}
	return nil
}

//-----------------------------------------------------------------------------
// Hardware

// HardwareCount returns the number of hardware items on the device.
func (l *Link) HardwareCount() (int, error) {
	rsp, err := l.Transact(CmdReadHardwareConfig, 0, 0)
	if err != nil {
		return 0, err
	}
	return int(rsp.Data), nil
}

// ReadHardwareConfig returns the type and configuration byte of a hardware item.
// Hardware ids start at 1, id 0 is reserved for HardwareCount.
func (l *Link) ReadHardwareConfig(id uint16) (hwType, config uint8, err error) {
	if id == 0 {
		return 0, 0, errors.New("hardware id 0 is reserved")
	}
	rsp, err := l.Transact(CmdReadHardwareConfig, id, 0)
	if err != nil {
		return 0, 0, err
	}
	if rsp.Data == RspFailure {
		return 0, 0, fmt.Errorf("%w: no hardware 0x%04x", ErrFailure, id)
	}
	return hi(rsp.Data), lo(rsp.Data), nil
}

// ConfigureHardware sets the mode of a hardware item.
func (l *Link) ConfigureHardware(id uint16, config uint8) error {
	if config < ConfigDigitalInput || config > ConfigAnalogRead {
		return fmt.Errorf("bad config byte 0x%02x", config)
	}
	return l.status(CmdConfigureHardware, id, uint16(config))
}

// LinkHardware binds a hardware item to a register.
func (l *Link) LinkHardware(id, register uint16) error {
	return l.status(CmdLinkHardware, id, register)
}

// RemoveLink removes any register binding from a hardware item.
func (l *Link) RemoveLink(id uint16) error {
	return l.status(CmdRemoveLinkHardware, id, 0)
}

//-----------------------------------------------------------------------------
