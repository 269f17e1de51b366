package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config as written in a file. Pointer fields tell an
// absent key from a zero value.
type fileConfig struct {
	Address       *string `toml:"address" yaml:"address"`
	AddressFile   *string `toml:"address_file" yaml:"address_file"`
	Transport     *string `toml:"transport" yaml:"transport"`
	RFCOMMChannel *uint8  `toml:"rfcomm_channel" yaml:"rfcomm_channel"`
	Source        *string `toml:"source" yaml:"source"`
	LogLevel      *string `toml:"log_level" yaml:"log_level"`
	MetricsAddr   *string `toml:"metrics_addr" yaml:"metrics_addr"`

	Session    fileSession    `toml:"session" yaml:"session"`
	Supervisor fileSupervisor `toml:"supervisor" yaml:"supervisor"`
	Radio      fileRadio      `toml:"radio" yaml:"radio"`
	Sinks      fileSinks      `toml:"sinks" yaml:"sinks"`
}

type fileSession struct {
	InactivityTimeout *string `toml:"inactivity_timeout" yaml:"inactivity_timeout"`
	HandshakeTimeout  *string `toml:"handshake_timeout" yaml:"handshake_timeout"`
	ReadTimeout       *string `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      *string `toml:"write_timeout" yaml:"write_timeout"`
	KeepAliveInterval *string `toml:"keepalive_interval" yaml:"keepalive_interval"`
	RestartEvery      *int    `toml:"restart_every" yaml:"restart_every"`
}

type fileSupervisor struct {
	ConnectTimeout  *string `toml:"connect_timeout" yaml:"connect_timeout"`
	RetryDelay      *string `toml:"retry_delay" yaml:"retry_delay"`
	RadioResetPause *string `toml:"radio_reset_pause" yaml:"radio_reset_pause"`
}

type fileRadio struct {
	Commands *[]string `toml:"commands" yaml:"commands"`
	Pause    *string   `toml:"pause" yaml:"pause"`
}

type fileSinks struct {
	SQLite      *string `toml:"sqlite" yaml:"sqlite"`
	NATSURL     *string `toml:"nats_url" yaml:"nats_url"`
	NATSSubject *string `toml:"nats_subject" yaml:"nats_subject"`
	CSV         *string `toml:"csv" yaml:"csv"`
	Log         *bool   `toml:"log" yaml:"log"`
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw fileConfig

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}

		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("%w: %s: unknown key %q", ErrInvalid, path, undecoded[0].String())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: unsupported config file extension %q", ErrInvalid, ext)
	}

	return raw.apply(cfg)
}

func (raw *fileConfig) apply(cfg *Config) error {
	setString(raw.Address, &cfg.Address)
	setString(raw.AddressFile, &cfg.AddressFile)
	setString(raw.Transport, &cfg.Transport)
	setString(raw.Source, &cfg.Source)
	setString(raw.LogLevel, &cfg.LogLevel)
	setString(raw.MetricsAddr, &cfg.MetricsAddr)

	if raw.RFCOMMChannel != nil {
		cfg.RFCOMMChannel = *raw.RFCOMMChannel
	}

	durations := []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"session.inactivity_timeout", raw.Session.InactivityTimeout, &cfg.Session.InactivityTimeout},
		{"session.handshake_timeout", raw.Session.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"session.read_timeout", raw.Session.ReadTimeout, &cfg.Session.ReadTimeout},
		{"session.write_timeout", raw.Session.WriteTimeout, &cfg.Session.WriteTimeout},
		{"session.keepalive_interval", raw.Session.KeepAliveInterval, &cfg.Session.KeepAliveInterval},
		{"supervisor.connect_timeout", raw.Supervisor.ConnectTimeout, &cfg.Supervisor.ConnectTimeout},
		{"supervisor.retry_delay", raw.Supervisor.RetryDelay, &cfg.Supervisor.RetryDelay},
		{"supervisor.radio_reset_pause", raw.Supervisor.RadioResetPause, &cfg.Supervisor.RadioResetPause},
		{"radio.pause", raw.Radio.Pause, &cfg.Radio.Pause},
	}

	for _, d := range durations {
		if d.src == nil {
			continue
		}

		v, err := time.ParseDuration(strings.TrimSpace(*d.src))
		if err != nil {
			return fmt.Errorf("%w: parse %s: %w", ErrInvalid, d.key, err)
		}
		*d.dst = v
	}

	if raw.Session.RestartEvery != nil {
		cfg.Session.RestartEvery = *raw.Session.RestartEvery
	}

	if raw.Radio.Commands != nil {
		cfg.Radio.Commands = append([]string(nil), *raw.Radio.Commands...)
	}

	setString(raw.Sinks.SQLite, &cfg.Sinks.SQLitePath)
	setString(raw.Sinks.NATSURL, &cfg.Sinks.NATSURL)
	setString(raw.Sinks.NATSSubject, &cfg.Sinks.NATSSubject)
	setString(raw.Sinks.CSV, &cfg.Sinks.CSVPath)

	if raw.Sinks.Log != nil {
		cfg.Sinks.Log = *raw.Sinks.Log
	}

	return nil
}

func setString(src *string, dst *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
