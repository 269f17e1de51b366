// Package config loads the beddit-streamer daemon configuration.
//
// Values are layered: built-in defaults, then a TOML or YAML file, then
// BEDDIT_* environment variables. Durations are written as Go duration
// strings ("1s", "150ms").
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/arloliu/go-beddit/beddit"
	"github.com/arloliu/go-beddit/logger"
	"github.com/arloliu/go-beddit/radio"
	"github.com/arloliu/go-beddit/supervisor"
	"github.com/arloliu/go-beddit/transport"
)

// Transport names.
const (
	TransportRFCOMM = "rfcomm"
	TransportTCP    = "tcp"
)

// Environment variables that override file values.
const (
	EnvAddress     = "BEDDIT_ADDRESS"
	EnvTransport   = "BEDDIT_TRANSPORT"
	EnvLogLevel    = "BEDDIT_LOG_LEVEL"
	EnvSQLite      = "BEDDIT_SQLITE"
	EnvNATSURL     = "BEDDIT_NATS_URL"
	EnvMetricsAddr = "BEDDIT_METRICS_ADDR"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	// Address is the device address: a Bluetooth address for rfcomm,
	// host:port for tcp.
	Address string
	// AddressFile is read when Address is empty; its first non-empty line is the address.
	AddressFile string
	// Transport is "rfcomm" or "tcp".
	Transport string
	// RFCOMMChannel is the RFCOMM channel; zero uses the transport default.
	RFCOMMChannel uint8
	// Source labels every reading.
	Source string
	// LogLevel is a logger level name.
	LogLevel string
	// MetricsAddr is the listen address of the metrics server; empty disables it.
	MetricsAddr string

	Session    Session
	Supervisor Supervisor
	Radio      Radio
	Sinks      Sinks
}

// Session holds protocol session settings.
type Session struct {
	InactivityTimeout time.Duration
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	KeepAliveInterval time.Duration
	RestartEvery      int
}

// Supervisor holds reconnect loop settings.
type Supervisor struct {
	ConnectTimeout  time.Duration
	RetryDelay      time.Duration
	RadioResetPause time.Duration
}

// Radio holds the radio reset command sequence.
type Radio struct {
	// Commands run in order on a radio fault; empty disables the reset.
	Commands []string
	// Pause separates consecutive commands.
	Pause time.Duration
}

// Sinks selects where readings go. Every enabled sink receives every reading.
type Sinks struct {
	SQLitePath  string
	NATSURL     string
	NATSSubject string
	CSVPath     string
	Log         bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transport: TransportRFCOMM,
		Source:    supervisor.DefaultSource,
		LogLevel:  logger.InfoLevel.String(),
		Session: Session{
			InactivityTimeout: beddit.DefaultInactivityTimeout,
			HandshakeTimeout:  beddit.DefaultHandshakeTimeout,
			ReadTimeout:       beddit.DefaultReadTimeout,
			WriteTimeout:      beddit.DefaultWriteTimeout,
			KeepAliveInterval: beddit.DefaultKeepAliveInterval,
			RestartEvery:      beddit.DefaultRestartEvery,
		},
		Supervisor: Supervisor{
			ConnectTimeout:  supervisor.DefaultConnectTimeout,
			RetryDelay:      supervisor.DefaultRetryDelay,
			RadioResetPause: supervisor.DefaultRadioResetPause,
		},
		Radio: Radio{
			Pause: radio.DefaultPause,
		},
		Sinks: Sinks{
			NATSSubject: "beddit.readings",
		},
	}
}

// Load reads the file at path (skipped when path is empty), applies
// environment overrides, resolves the address file and validates the result.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg, lookup)

	if cfg.Address == "" && cfg.AddressFile != "" {
		addr, err := ReadAddressFile(cfg.AddressFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Address = addr
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	set(EnvAddress, &cfg.Address)
	set(EnvTransport, &cfg.Transport)
	set(EnvLogLevel, &cfg.LogLevel)
	set(EnvSQLite, &cfg.Sinks.SQLitePath)
	set(EnvNATSURL, &cfg.Sinks.NATSURL)
	set(EnvMetricsAddr, &cfg.MetricsAddr)
}

// ReadAddressFile returns the first non-empty line of the file at path.
func ReadAddressFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("config: read address file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("config: read address file: %w", err)
	}

	return "", fmt.Errorf("%w: address file %s is empty", ErrInvalid, path)
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error

	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Transport {
	case TransportRFCOMM:
		if c.Address == "" {
			invalid("address is required")
		} else if _, err := transport.ParseBDAddr(c.Address); err != nil {
			invalid("address %q: %v", c.Address, err)
		}
	case TransportTCP:
		if c.Address == "" {
			invalid("address is required")
		}
	default:
		invalid("unknown transport %q", c.Transport)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		invalid("%v", err)
	}

	if c.Source == "" {
		invalid("source must not be empty")
	}

	if err := beddit.ValidateOptions(c.SessionOptions()...); err != nil {
		invalid("session: %v", err)
	}

	if c.Supervisor.ConnectTimeout <= 0 {
		invalid("connect_timeout must be positive")
	}

	if c.Supervisor.RetryDelay < 0 || c.Supervisor.RadioResetPause < 0 || c.Radio.Pause < 0 {
		invalid("pauses must not be negative")
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, InfoLevel when it does not parse.
func (c Config) Level() logger.Level {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// Dialer returns the transport dialer selected by Transport.
func (c Config) Dialer() (transport.Dialer, error) {
	switch c.Transport {
	case TransportRFCOMM:
		return transport.RFCOMMDialer{Channel: c.RFCOMMChannel}, nil
	case TransportTCP:
		return transport.TCPDialer{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport)
	}
}

// SessionOptions converts the session settings into beddit options.
func (c Config) SessionOptions() []beddit.Option {
	return []beddit.Option{
		beddit.WithInactivityTimeout(c.Session.InactivityTimeout),
		beddit.WithHandshakeTimeout(c.Session.HandshakeTimeout),
		beddit.WithReadTimeout(c.Session.ReadTimeout),
		beddit.WithWriteTimeout(c.Session.WriteTimeout),
		beddit.WithKeepAliveInterval(c.Session.KeepAliveInterval),
		beddit.WithRestartEvery(c.Session.RestartEvery),
	}
}

// SupervisorOptions converts the supervisor settings into supervisor options.
// The radio reset hook is added when reset commands are configured.
func (c Config) SupervisorOptions(l logger.Logger) []supervisor.Option {
	if l == nil {
		l = logger.GetLogger()
	}

	opts := []supervisor.Option{
		supervisor.WithConnectTimeout(c.Supervisor.ConnectTimeout),
		supervisor.WithRetryDelay(c.Supervisor.RetryDelay),
		supervisor.WithRadioResetPause(c.Supervisor.RadioResetPause),
		supervisor.WithSource(c.Source),
		supervisor.WithSessionOptions(c.SessionOptions()...),
		supervisor.WithLogger(l),
	}

	if hook := c.RadioResetHook(l); hook != nil {
		opts = append(opts, supervisor.WithRadioResetHook(hook))
	}

	return opts
}

// RadioResetHook returns a command hook for Radio.Commands, or nil when
// no commands are configured.
func (c Config) RadioResetHook(l logger.Logger) *radio.CommandHook {
	if l == nil {
		l = logger.GetLogger()
	}

	cmds := make([]radio.Command, 0, len(c.Radio.Commands))
	for _, line := range c.Radio.Commands {
		if cmd := radio.ParseCommand(line); cmd.Name != "" {
			cmds = append(cmds, cmd)
		}
	}

	if len(cmds) == 0 {
		return nil
	}

	return radio.NewCommandHook(cmds, radio.WithPause(c.Radio.Pause), radio.WithLogger(l))
}
