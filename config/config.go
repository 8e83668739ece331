// Package config loads crccalc settings from flags, environment and an optional file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalidInput is returned for a packet field that does not fit its width.
var ErrInvalidInput = errors.New("invalid input")

// PacketConfig holds the packet fields as given by the user.
type PacketConfig struct {
	Command  string `mapstructure:"command"`
	Address  string `mapstructure:"address"`
	Data     string `mapstructure:"data"`
	DeviceID string `mapstructure:"deviceId"`
}

// SerialConfig holds the serial port settings. An empty Port means compute only.
type SerialConfig struct {
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LumberjackConfig is the rotated log file setting.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig is the log level and output setting.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// Config is the top level configuration.
type Config struct {
	Packet  PacketConfig  `mapstructure:"packet"`
	Serial  SerialConfig  `mapstructure:"serial"`
	Logging LoggingConfig `mapstructure:"logging"`
	Trace   bool          `mapstructure:"trace"`
}

// Flags returns the command line flag set. Flag names map onto config keys in Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("crccalc", pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml/toml/json)")
	fs.String("command", "0x05", "command byte")
	fs.String("address", "0x0002", "16-bit address")
	fs.String("data", "0x0001", "16-bit data")
	fs.String("device-id", "0x0000", "16-bit device id")
	fs.Bool("trace", true, "print the per-byte crc trace")
	fs.String("port", "", "serial port to send the packet on")
	fs.Int("baud", 115200, "serial baud rate")
	fs.Duration("timeout", time.Second, "serial read timeout")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "console", "log format (console, json)")
	fs.String("log-file", "", "also log to this file, rotated")
	return fs
}

var flagKeys = map[string]string{
	"command":    "packet.command",
	"address":    "packet.address",
	"data":       "packet.data",
	"device-id":  "packet.deviceId",
	"trace":      "trace",
	"port":       "serial.port",
	"baud":       "serial.baud",
	"timeout":    "serial.timeout",
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"log-file":   "logging.file.filename",
}

// Load builds the configuration from parsed flags, CMDPKT_ environment
// variables and the --config file, in that order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	v.SetEnvPrefix("CMDPKT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 7)
	v.SetDefault("logging.file.compress", false)
}

// Fields parses the packet fields, rejecting values wider than the field.
func (c *PacketConfig) Fields() (command uint8, address, data, deviceID uint16, err error) {
	var v uint64
	if v, err = parseField("command", c.Command, 8); err != nil {
		return
	}
	command = uint8(v)
	if v, err = parseField("address", c.Address, 16); err != nil {
		return
	}
	address = uint16(v)
	if v, err = parseField("data", c.Data, 16); err != nil {
		return
	}
	data = uint16(v)
	if v, err = parseField("device id", c.DeviceID, 16); err != nil {
		return
	}
	deviceID = uint16(v)
	return
}

// parseField accepts decimal or 0x/0o/0b prefixed values.
func parseField(name, s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, bits)
	if err != nil {
		var ne *strconv.NumError
		if errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s %q exceeds %d bits", ErrInvalidInput, name, s, bits)
		}
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidInput, name, s)
	}
	return v, nil
}
