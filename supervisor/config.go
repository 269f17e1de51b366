package supervisor

import (
	"errors"
	"time"

	"github.com/arloliu/go-beddit/beddit"
	"github.com/arloliu/go-beddit/logger"
)

// Default supervisor settings.
const (
	// DefaultConnectTimeout bounds dialing plus handshake and stream start.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultRetryDelay is the pause after every failed cycle.
	DefaultRetryDelay = time.Second
	// DefaultRadioResetPause is the pause after the radio reset hook ran.
	DefaultRadioResetPause = 2 * time.Second
)

type supervisorConfig struct {
	connectTimeout  time.Duration
	retryDelay      time.Duration
	radioResetPause time.Duration
	source          string

	resetHook   RadioResetHook
	sessionOpts []beddit.Option
	clock       beddit.Clock
	logger      logger.Logger
}

func newSupervisorConfig(opts ...Option) (*supervisorConfig, error) {
	cfg := &supervisorConfig{
		connectTimeout:  DefaultConnectTimeout,
		retryDelay:      DefaultRetryDelay,
		radioResetPause: DefaultRadioResetPause,
		source:          DefaultSource,
		clock:           beddit.SystemClock{},
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option is a functional option for configuring a Supervisor.
type Option interface {
	apply(*supervisorConfig) error
}

type optFunc func(*supervisorConfig) error

func (f optFunc) apply(cfg *supervisorConfig) error { return f(cfg) }

// WithConnectTimeout bounds one connect cycle: dial, handshake and stream start.
func WithConnectTimeout(d time.Duration) Option {
	return optFunc(func(cfg *supervisorConfig) error {
		if d <= 0 {
			return errors.New("supervisor: connect timeout must be positive")
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithRetryDelay sets the pause after every failed cycle.
func WithRetryDelay(d time.Duration) Option {
	return optFunc(func(cfg *supervisorConfig) error {
		if d < 0 {
			return errors.New("supervisor: retry delay must not be negative")
		}
		cfg.retryDelay = d

		return nil
	})
}

// WithRadioResetPause sets the pause after the radio reset hook ran.
func WithRadioResetPause(d time.Duration) Option {
	return optFunc(func(cfg *supervisorConfig) error {
		if d < 0 {
			return errors.New("supervisor: radio reset pause must not be negative")
		}
		cfg.radioResetPause = d

		return nil
	})
}

// WithRadioResetHook sets the hook invoked for radio-level transport faults.
// Without a hook such faults are handled like any other failure.
func WithRadioResetHook(h RadioResetHook) Option {
	return optFunc(func(cfg *supervisorConfig) error {
		cfg.resetHook = h
		return nil
	})
}

// WithSessionOptions sets the options passed to every new beddit.Session.
func WithSessionOptions(opts ...beddit.Option) Option {
	return optFunc(func(cfg *supervisorConfig) error {
		cfg.sessionOpts = append(cfg.sessionOpts, opts...)
		return nil
	})
}

// WithSource sets the source label attached to every reading.
func WithSource(source string) Option {
	return optFunc(func(cfg *supervisorConfig) error {
		if source == "" {
			return errors.New("supervisor: source must not be empty")
		}
		cfg.source = source

		return nil
	})
}

// WithClock sets the clock used to timestamp readings.
func WithClock(c beddit.Clock) Option {
	return optFunc(func(cfg *supervisorConfig) error {
		if c == nil {
			return errors.New("supervisor: clock must not be nil")
		}
		cfg.clock = c

		return nil
	})
}

// WithLogger sets the logger for the supervisor and its sessions.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *supervisorConfig) error {
		if l == nil {
			return errors.New("supervisor: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
