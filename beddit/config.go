package beddit

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-beddit/logger"
)

// Default session settings.
const (
	DefaultHandshakeTimeout  = time.Second
	DefaultReadTimeout       = time.Second
	DefaultWriteTimeout      = time.Second
	DefaultKeepAliveInterval = 2 * time.Second
	DefaultRestartEvery      = 1000

	// DefaultInactivityTimeout is sent with START; the device stops streaming
	// on its own after this long without a keep-alive.
	DefaultInactivityTimeout = 5 * time.Second
)

// Fixed device timing. These are firmware requirements, not tunables.
const (
	// HandshakeSettleDelay is the pause between the probe and reading its answer.
	HandshakeSettleDelay = 200 * time.Millisecond
	// PacingDelay is the pause between a frame header and its payload.
	PacingDelay = 150 * time.Millisecond
)

// MaxInactivityTimeout is the largest inactivity timeout accepted.
const MaxInactivityTimeout = time.Hour

type sessionConfig struct {
	handshakeTimeout  time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	keepAliveInterval time.Duration
	inactivityTimeout time.Duration
	restartEvery      int

	clock   Clock
	logger  logger.Logger
	metrics *Metrics
}

func newSessionConfig(opts ...Option) (*sessionConfig, error) {
	cfg := &sessionConfig{
		handshakeTimeout:  DefaultHandshakeTimeout,
		readTimeout:       DefaultReadTimeout,
		writeTimeout:      DefaultWriteTimeout,
		keepAliveInterval: DefaultKeepAliveInterval,
		inactivityTimeout: DefaultInactivityTimeout,
		restartEvery:      DefaultRestartEvery,
		clock:             SystemClock{},
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.metrics == nil {
		cfg.metrics = &Metrics{}
	}

	return cfg, nil
}

// ValidateOptions reports the first invalid option in opts without creating a session.
func ValidateOptions(opts ...Option) error {
	_, err := newSessionConfig(opts...)
	return err
}

// Option is a functional option for configuring a Session.
type Option interface {
	apply(*sessionConfig) error
}

type optFunc func(*sessionConfig) error

func (f optFunc) apply(cfg *sessionConfig) error { return f(cfg) }

// WithHandshakeTimeout sets how long to wait for the 3-byte handshake answer.
func WithHandshakeTimeout(d time.Duration) Option {
	return optFunc(func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("beddit: handshake timeout must be positive")
		}
		cfg.handshakeTimeout = d

		return nil
	})
}

// WithReadTimeout sets the deadline for each exact read of a frame part.
func WithReadTimeout(d time.Duration) Option {
	return optFunc(func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("beddit: read timeout must be positive")
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithWriteTimeout sets the deadline for sending a command.
func WithWriteTimeout(d time.Duration) Option {
	return optFunc(func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("beddit: write timeout must be positive")
		}
		cfg.writeTimeout = d

		return nil
	})
}

// WithKeepAliveInterval sets the minimum spacing between CONT commands.
func WithKeepAliveInterval(d time.Duration) Option {
	return optFunc(func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("beddit: keep-alive interval must be positive")
		}
		cfg.keepAliveInterval = d

		return nil
	})
}

// WithInactivityTimeout sets the device-side inactivity timeout sent with START,
// truncated to whole seconds. Zero sends a bare "START\n" and leaves the
// device watchdog at its firmware default.
func WithInactivityTimeout(d time.Duration) Option {
	return optFunc(func(cfg *sessionConfig) error {
		if d < 0 || d > MaxInactivityTimeout {
			return fmt.Errorf("beddit: inactivity timeout %v out of range [0, %v]", d, MaxInactivityTimeout)
		}
		if d > 0 && d < time.Second {
			return fmt.Errorf("beddit: inactivity timeout %v is below one second", d)
		}
		cfg.inactivityTimeout = d.Truncate(time.Second)

		return nil
	})
}

// WithRestartEvery sets how many frame reads pass between forced stream restarts.
func WithRestartEvery(n int) Option {
	return optFunc(func(cfg *sessionConfig) error {
		if n < 1 {
			return errors.New("beddit: restart interval must be >= 1")
		}
		cfg.restartEvery = n

		return nil
	})
}

// WithClock sets the clock used for keep-alive timing and the fixed device pauses.
func WithClock(c Clock) Option {
	return optFunc(func(cfg *sessionConfig) error {
		if c == nil {
			return errors.New("beddit: clock must not be nil")
		}
		cfg.clock = c

		return nil
	})
}

// WithLogger sets the logger for the session.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *sessionConfig) error {
		if l == nil {
			return errors.New("beddit: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithMetrics sets the counters the session updates.
func WithMetrics(m *Metrics) Option {
	return optFunc(func(cfg *sessionConfig) error {
		if m == nil {
			return errors.New("beddit: metrics must not be nil")
		}
		cfg.metrics = m

		return nil
	})
}
