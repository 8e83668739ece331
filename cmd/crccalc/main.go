//-----------------------------------------------------------------------------
/*

Command Packet CRC Calculator

Computes the crc8 for a command packet and optionally sends the packet
to a device on a serial port.

  crccalc                               # sample packet, with trace
  crccalc --command 0x02 --address 10 --data 0x1234 --device-id 7
  crccalc --port /dev/ttyUSB0 --command 0x01 --address 10

*/
//-----------------------------------------------------------------------------

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/deadsy/cmdpkt/config"
	"github.com/deadsy/cmdpkt/cp"
	"github.com/deadsy/cmdpkt/crc8"
	"github.com/deadsy/cmdpkt/logging"
)

//-----------------------------------------------------------------------------

// printTrace returns a crc trace writing one line per stage to w.
func printTrace(w io.Writer, log *zap.Logger) crc8.Trace {
	return func(stage crc8.Stage, idx int, val, crc uint8) {
		switch stage {
		case crc8.Xor:
			fmt.Fprintf(w, "After XOR with byte %d (0x%02x): crc = 0x%02x\n", idx, val, crc)
		case crc8.Shift:
			fmt.Fprintf(w, "After bit processing: crc = 0x%02x\n", crc)
		}
		log.Debug("crc step", zap.Stringer("stage", stage), zap.Int("idx", idx), zap.Uint8("val", val), zap.Uint8("crc", crc))
	}
}

func calc(w io.Writer, cfg *config.Config, log *zap.Logger) (*cp.Packet, error) {
	command, address, data, deviceID, err := cfg.Packet.Fields()
	if err != nil {
		return nil, err
	}
	p := cp.NewPacket(command, address, data, deviceID)

	fmt.Fprintf(w, "Input:\n")
	fmt.Fprintf(w, "Command: 0x%02x\n", p.Command)
	fmt.Fprintf(w, "Address: 0x%04x\n", p.Address)
	fmt.Fprintf(w, "Data: 0x%04x\n", p.Data)
	fmt.Fprintf(w, "DeviceId: 0x%04x\n\n", p.DeviceID)

	var crc uint8
	if cfg.Trace {
		f := p.Frame()
		fmt.Fprintf(w, "Processing bytes: % x\n", f[:])
		crc = p.CRCTrace(printTrace(w, log))
	} else {
		crc = p.CRC()
	}
	fmt.Fprintf(w, "\nFinal CRC: 0x%02x\n", crc)
	return p, nil
}

// send writes the packet to the serial port and prints the response.
func send(w io.Writer, cfg *config.Config, p *cp.Packet, log *zap.Logger) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.Timeout,
	})
	if err != nil {
		return err
	}

	link, err := cp.NewLink(&cp.Config{
		Port:     port,
		DeviceID: p.DeviceID,
		Logger:   log.Named("link"),
	})
	if err != nil {
		port.Close()
		return err
	}
	defer link.Close()

	rsp, err := link.Transact(p.Command, p.Address, p.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Serial.Port, err)
	}
	fmt.Fprintf(w, "Response: %s\n", rsp)
	if rsp.Data == cp.RspFailure {
		log.Warn("device reported failure", zap.Stringer("rsp", rsp))
	}
	return nil
}

func crccalc(args []string, w io.Writer) error {
	fs := config.Flags()
	err := fs.Parse(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, os.Stderr)
	defer log.Sync()

	p, err := calc(w, cfg, log)
	if err != nil {
		return err
	}
	if cfg.Serial.Port == "" {
		return nil
	}
	return send(w, cfg, p, log)
}

func main() {
	err := crccalc(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

//-----------------------------------------------------------------------------
