package supervisor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/arloliu/go-beddit/beddit"
	"github.com/arloliu/go-beddit/internal/pool"
	"github.com/arloliu/go-beddit/logger"
	"github.com/arloliu/go-beddit/transport"
)

// Supervisor drives the connect, stream and reconnect lifecycle of one sensor.
//
// Exactly one session is live at a time and it is only touched from the Run
// goroutine. State and the metrics accessors are safe to call concurrently.
type Supervisor struct {
	dialer  transport.Dialer
	address string
	sink    Sink
	cfg     *supervisorConfig
	logger  logger.Logger

	session        atomic.Pointer[beddit.Session]
	running        atomic.Bool
	metrics        Metrics
	sessionMetrics beddit.Metrics
}

// New creates a supervisor that streams from the device at address, reached
// through dialer, and records readings to sink.
func New(dialer transport.Dialer, address string, sink Sink, opts ...Option) (*Supervisor, error) {
	if dialer == nil {
		return nil, ErrDialerNil
	}

	if address == "" {
		return nil, ErrAddressEmpty
	}

	if sink == nil {
		return nil, ErrSinkNil
	}

	cfg, err := newSupervisorConfig(opts...)
	if err != nil {
		return nil, err
	}

	if err := beddit.ValidateOptions(cfg.sessionOpts...); err != nil {
		return nil, err
	}

	return &Supervisor{
		dialer:  dialer,
		address: address,
		sink:    sink,
		cfg:     cfg,
		logger:  cfg.logger.With("address", address),
	}, nil
}

// State returns the state of the live session, or DisconnectedState when
// there is none.
func (s *Supervisor) State() beddit.SessionState {
	if sess := s.session.Load(); sess != nil {
		return sess.State()
	}

	return beddit.DisconnectedState
}

// Metrics returns the supervisor counters.
func (s *Supervisor) Metrics() *Metrics { return &s.metrics }

// SessionMetrics returns the protocol counters shared by every session this
// supervisor creates.
func (s *Supervisor) SessionMetrics() *beddit.Metrics { return &s.sessionMetrics }

// Run loops until ctx is cancelled. Failures of a single connect or read
// cycle never end the loop.
//
// On cancellation the live session is stopped and closed on a best-effort
// basis; failures on that path are logged. Run returns nil after a
// cancellation and ErrAlreadyRunning if another Run is active.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("supervisor: started", "source", s.cfg.source)
	defer s.shutdown()

	for ctx.Err() == nil {
		s.step(ctx)
	}

	s.logger.Info("supervisor: termination requested")

	return nil
}

func (s *Supervisor) step(ctx context.Context) {
	sess := s.session.Load()
	if sess == nil {
		var err error
		if sess, err = s.connect(ctx); err != nil {
			s.handleFailure(ctx, "connect", err)
			return
		}
	}

	pair, err := sess.GetReading()
	if err != nil {
		s.handleFailure(ctx, "read", err)
		return
	}

	packetNumber, _ := sess.LastPacketNumber()
	s.record(ctx, pair, packetNumber)
}

// connect dials the device and opens a session. Dial, handshake and stream
// start share one connect timeout.
func (s *Supervisor) connect(ctx context.Context) (*beddit.Session, error) {
	s.metrics.incConnectAttempts()
	s.logger.Debug("supervisor: connecting", "attempt", s.metrics.ConnectAttempts.Load())

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.connectTimeout)
	defer cancel()

	t, err := s.dialer.Dial(dialCtx, s.address)
	if err != nil {
		s.metrics.incConnectFailures()
		return nil, err
	}

	opts := make([]beddit.Option, 0, len(s.cfg.sessionOpts)+2)
	opts = append(opts, beddit.WithLogger(s.logger), beddit.WithMetrics(&s.sessionMetrics))
	opts = append(opts, s.cfg.sessionOpts...)

	sess, err := beddit.NewSession(t, opts...)
	if err != nil {
		_ = t.Close()
		s.metrics.incConnectFailures()

		return nil, err
	}

	if err := sess.OpenContext(dialCtx); err != nil {
		s.metrics.incConnectFailures()
		return nil, err
	}

	s.session.Store(sess)
	s.metrics.setConnected(true)
	s.logger.Info("supervisor: connected", "session", sess.ID())

	return sess, nil
}

// record averages both channels and hands the reading to the sink.
func (s *Supervisor) record(ctx context.Context, pair beddit.ChannelPair, packetNumber uint32) {
	ch1, ok1 := mean(pair.Channel1)
	ch2, ok2 := mean(pair.Channel2)
	if !ok1 || !ok2 {
		s.metrics.incReadingsSkipped()
		s.logger.Debug("supervisor: frame without samples skipped", "packet", packetNumber)

		return
	}

	reading := Reading{
		Time:         s.cfg.clock.Now(),
		Source:       s.cfg.source,
		Channel1:     ch1,
		Channel2:     ch2,
		PacketNumber: packetNumber,
	}

	err := s.callWithRecover("sink", func() error { return s.sink.Record(ctx, reading) })
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		s.metrics.incSinkErrors()
		s.logger.Error("supervisor: failed to record reading", "packet", packetNumber, "error", err)
		_ = pool.Sleep(ctx, s.cfg.retryDelay)

		return
	}

	s.metrics.incReadingsRecorded()
	s.metrics.resetConnRetryGauge()
}

// handleFailure discards the live session after err, resets the radio for
// radio-level faults and waits the retry delay.
func (s *Supervisor) handleFailure(ctx context.Context, op string, err error) {
	s.discard()

	if ctx.Err() != nil {
		s.logger.Debug("supervisor: cycle interrupted by termination", "op", op, "error", err)
		return
	}

	s.metrics.incReconnects()
	s.metrics.incConnRetryGauge()

	kind := transport.KindOf(err)
	switch kind {
	case transport.KindProtocol, transport.KindTimeout:
		s.logger.Warn("supervisor: session failed, reconnecting", "op", op, "kind", kind.String(), "error", err)
	default:
		s.logger.Error("supervisor: session failed, reconnecting", "op", op, "kind", kind.String(), "error", err)
	}

	if kind != transport.KindProtocol && transport.IsRadioFault(err) {
		s.resetRadio(ctx)
	}

	_ = pool.Sleep(ctx, s.cfg.retryDelay)
}

func (s *Supervisor) resetRadio(ctx context.Context) {
	if s.cfg.resetHook == nil {
		s.logger.Warn("supervisor: radio fault detected but no reset hook configured")
		return
	}

	s.metrics.incRadioResets()
	s.logger.Warn("supervisor: radio fault detected, resetting radio")

	if err := s.callWithRecover("radio reset hook", func() error { return s.cfg.resetHook.Trigger(ctx) }); err != nil {
		s.metrics.incRadioResetErrors()
		s.logger.Error("supervisor: radio reset failed", "error", err)
	}

	_ = pool.Sleep(ctx, s.cfg.radioResetPause)
}

// callWithRecover calls fn and turns a panic into an error wrapping ErrPanic.
func (s *Supervisor) callWithRecover(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w in %s: %v", ErrPanic, name, r)
		}
	}()

	return fn()
}

// discard drops the live session after a failure, closing its transport.
func (s *Supervisor) discard() {
	sess := s.session.Swap(nil)
	if sess == nil {
		return
	}

	s.metrics.setConnected(false)

	if err := sess.Terminate(); err != nil {
		s.logger.Debug("supervisor: teardown of failed session", "session", sess.ID(), "error", err)
	}
}

// shutdown stops the live session gracefully when the loop ends.
func (s *Supervisor) shutdown() {
	sess := s.session.Swap(nil)
	if sess == nil {
		s.logger.Info("supervisor: stopped")
		return
	}

	s.metrics.setConnected(false)

	if err := sess.Terminate(); err != nil {
		s.logger.Warn("supervisor: graceful stop failed, terminating anyway", "session", sess.ID(), "error", err)
		return
	}

	s.logger.Info("supervisor: stopped", "session", sess.ID())
}
