package beddit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/arloliu/go-beddit/logger"
	"github.com/arloliu/go-beddit/transport"
)

// Wire commands.
const (
	cmdProbe     = "OK\n"
	cmdStart     = "START"
	cmdStop      = "STOP\n"
	cmdKeepAlive = "CONT\n"
)

// handshake answers accepted from the device.
var handshakeAnswers = [...]string{"OK\n", "AT\n"}

// Counters are the per-session bookkeeping values. They start fresh with
// every new session.
type Counters struct {
	// FramesRead counts frame reads since the last stream restart.
	FramesRead uint
	// LastKeepAliveAt is when the last CONT was sent, or the session start.
	LastKeepAliveAt time.Time
}

// Session is one protocol session with a sensor over an open transport.
//
// A Session is not goroutine-safe apart from State and ID; one caller
// drives it sequentially. Once it fails it stays Disconnected.
type Session struct {
	id     ulid.ULID
	t      transport.Transport
	cfg    *sessionConfig
	logger logger.Logger

	state  AtomicState
	closed bool

	counters Counters

	lastPacket  uint32
	havePacket  bool
	packetCount uint64

	// openDeadline caps every handshake and start I/O while OpenContext runs.
	openDeadline time.Time
}

// NewSession creates a session over an already-open transport and puts it
// in the Handshaking state. The session takes ownership of t.
func NewSession(t transport.Transport, opts ...Option) (*Session, error) {
	if t == nil {
		return nil, ErrTransportNil
	}

	cfg, err := newSessionConfig(opts...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:  ulid.Make(),
		t:   t,
		cfg: cfg,
	}
	s.logger = cfg.logger.With("session", s.id.String())
	s.counters.LastKeepAliveAt = cfg.clock.Now()
	s.state.ToHandshaking()

	return s, nil
}

// ID returns the unique id of this session.
func (s *Session) ID() string { return s.id.String() }

// State returns the current protocol state.
func (s *Session) State() SessionState { return s.state.Get() }

// Counters returns a snapshot of the session counters.
func (s *Session) Counters() Counters { return s.counters }

// LastPacketNumber returns the packet number of the last valid frame and
// whether any frame has been read yet.
func (s *Session) LastPacketNumber() (uint32, bool) { return s.lastPacket, s.havePacket }

// PacketCount returns the number of valid frames read by this session.
func (s *Session) PacketCount() uint64 { return s.packetCount }

// Open performs the handshake and starts streaming.
//
// If either step fails, the session makes a best-effort attempt to stop the
// stream and closes the transport before returning the original error.
func (s *Session) Open() error {
	return s.OpenContext(context.Background())
}

// OpenContext is Open bounded by the deadline of ctx. The deadline caps every
// read and write of the handshake and stream start, on top of the configured
// handshake and write timeouts.
func (s *Session) OpenContext(ctx context.Context) error {
	err := s.open(ctx)
	if err != nil {
		if termErr := s.teardown(); termErr != nil {
			s.logger.Debug("beddit: teardown after failed open", "error", termErr)
		}

		return err
	}

	return nil
}

func (s *Session) open(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.openDeadline = deadline
		defer func() { s.openDeadline = time.Time{} }()
	}

	if err := ctx.Err(); err != nil {
		kind := transport.KindConnect
		if errors.Is(err, context.DeadlineExceeded) {
			kind = transport.KindTimeout
			err = fmt.Errorf("%w: %w", transport.ErrTimeout, err)
		}

		return s.fail("open", transport.NewError(kind, "open", err))
	}

	if err := s.Handshake(); err != nil {
		return err
	}

	return s.StartStreaming()
}

// Handshake sends the probe, waits for the device to settle and checks its answer.
func (s *Session) Handshake() error {
	if s.state.Get() != HandshakingState {
		return fmt.Errorf("%w: handshake in %s state", ErrInvalidState, s.state.String())
	}

	if err := s.send(cmdProbe); err != nil {
		return s.fail("handshake", err)
	}

	s.cfg.clock.Sleep(HandshakeSettleDelay)

	answer, err := s.receiveBounded(len(cmdProbe), s.cfg.handshakeTimeout)
	if err != nil {
		return s.fail("handshake", err)
	}

	for _, accepted := range handshakeAnswers {
		if string(answer) == accepted {
			s.cfg.metrics.incHandshakes()
			s.logger.Debug("beddit: handshake accepted", "answer", strings.TrimSpace(accepted))

			return nil
		}
	}

	return s.fail("handshake", transport.NewError(transport.KindProtocol, "handshake",
		fmt.Errorf("%w: %q", ErrUnexpectedHandshake, answer)))
}

// StartStreaming sends the start command and moves the session to Streaming.
func (s *Session) StartStreaming() error {
	if s.state.Get() != HandshakingState {
		return fmt.Errorf("%w: start streaming in %s state", ErrInvalidState, s.state.String())
	}

	if err := s.send(s.startCommand()); err != nil {
		return s.fail("start streaming", err)
	}

	s.state.ToStreaming()
	s.logger.Info("beddit: streaming started", "inactivityTimeout", s.cfg.inactivityTimeout)

	return nil
}

// StopStreaming sends the stop command. The session state is unchanged.
func (s *Session) StopStreaming() error {
	return s.send(cmdStop)
}

// ReadFrame reads and validates the next frame.
//
// Every restartEvery reads it first restarts the stream. After a valid
// frame it sends a keep-alive when the keep-alive interval has elapsed.
// Any failure moves the session to Disconnected.
func (s *Session) ReadFrame() (Frame, error) {
	if !s.state.IsStreaming() {
		return Frame{}, fmt.Errorf("%w: read frame in %s state", ErrInvalidState, s.state.String())
	}

	s.counters.FramesRead++
	if s.counters.FramesRead > uint(s.cfg.restartEvery) { //nolint:gosec // restartEvery >= 1
		s.counters.FramesRead = 0
		if err := s.restartStream(); err != nil {
			return Frame{}, s.fail("restart stream", err)
		}
	}

	header, err := transport.ReceiveExact(s.t, HeaderSize, s.cfg.readTimeout)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = transport.NewError(transport.KindProtocol, "read header", fmt.Errorf("%w: %w", ErrShortHeader, err))
		}

		return Frame{}, s.fail("read header", err)
	}

	packetNumber, payloadLen, err := ParseHeader(header)
	if err != nil {
		return Frame{}, s.fail("read header", transport.NewError(transport.KindProtocol, "read header", err))
	}

	s.cfg.clock.Sleep(PacingDelay)

	payload, err := transport.ReceiveExact(s.t, int(payloadLen), s.cfg.readTimeout)
	if err != nil {
		return Frame{}, s.fail("read payload", err)
	}

	trailer, err := transport.ReceiveExact(s.t, ChecksumSize, s.cfg.readTimeout)
	if err != nil {
		return Frame{}, s.fail("read checksum", err)
	}

	wire := binary.LittleEndian.Uint32(trailer)
	computed := Checksum(header, payload)

	if wire != computed {
		s.cfg.metrics.incChecksumErrors()

		return Frame{}, s.fail("read checksum", transport.NewError(transport.KindProtocol, "read checksum",
			fmt.Errorf("%w: packet %d wire=0x%08X computed=0x%08X", ErrChecksumMismatch, packetNumber, wire, computed)))
	}

	s.trackPacket(packetNumber)
	s.cfg.metrics.incFramesRead(len(payload))

	if err := s.keepAlive(); err != nil {
		return Frame{}, s.fail("keep-alive", err)
	}

	return Frame{PacketNumber: packetNumber, Payload: payload, Checksum: wire}, nil
}

// GetReading reads one frame and splits it into its two channels.
// It never retries; a failure ends the session.
func (s *Session) GetReading() (ChannelPair, error) {
	frame, err := s.ReadFrame()
	if err != nil {
		return ChannelPair{}, err
	}

	pair, err := Split(frame.Payload)
	if err != nil {
		return ChannelPair{}, s.fail("split", err)
	}

	return pair, nil
}

// Terminate stops the stream and closes the transport, both on a
// best-effort basis, and leaves the session Disconnected. The returned error
// reports what failed along the way; the session is torn down regardless.
func (s *Session) Terminate() error {
	if s.state.ToTerminating() {
		s.logger.Debug("beddit: terminating session")
	}

	return s.teardown()
}

func (s *Session) teardown() error {
	defer s.state.ToDisconnected()

	if s.closed {
		return nil
	}

	s.closed = true
	stopErr := s.StopStreaming()
	closeErr := s.t.Close()

	return errors.Join(stopErr, closeErr)
}

func (s *Session) startCommand() string {
	if s.cfg.inactivityTimeout <= 0 {
		return cmdStart + "\n"
	}

	return cmdStart + " " + strconv.Itoa(int(s.cfg.inactivityTimeout/time.Second)) + "\n"
}

func (s *Session) restartStream() error {
	s.logger.Debug("beddit: restarting stream")

	if err := s.send(cmdStop); err != nil {
		return err
	}

	if err := s.send(s.startCommand()); err != nil {
		return err
	}

	s.cfg.metrics.incStreamRestarts()

	return nil
}

// keepAlive sends CONT when at least keepAliveInterval passed since the last
// one. The absolute difference is used so a clock stepping backwards also
// triggers it.
func (s *Session) keepAlive() error {
	now := s.cfg.clock.Now()

	elapsed := now.Sub(s.counters.LastKeepAliveAt)
	if elapsed < 0 {
		elapsed = -elapsed
	}

	if elapsed < s.cfg.keepAliveInterval {
		return nil
	}

	if err := s.send(cmdKeepAlive); err != nil {
		return err
	}

	s.counters.LastKeepAliveAt = now
	s.cfg.metrics.incKeepAlivesSent()

	return nil
}

func (s *Session) trackPacket(packetNumber uint32) {
	if s.havePacket && packetNumber != s.lastPacket+1 {
		s.cfg.metrics.incPacketGaps()
		s.logger.Warn("beddit: packet number gap", "previous", s.lastPacket, "current", packetNumber)
	}

	s.lastPacket = packetNumber
	s.havePacket = true
	s.packetCount++
}

func (s *Session) send(cmd string) error {
	s.logger.Debug("beddit: send command", "cmd", strings.TrimSpace(cmd))

	deadline := time.Now().Add(s.cfg.writeTimeout)
	if !s.openDeadline.IsZero() && s.openDeadline.Before(deadline) {
		deadline = s.openDeadline
	}

	return s.t.Send([]byte(cmd), deadline)
}

// receiveBounded is ReceiveExact with timeout shortened to what is left of
// the open deadline, if one is set.
func (s *Session) receiveBounded(n int, timeout time.Duration) ([]byte, error) {
	if !s.openDeadline.IsZero() {
		remaining := time.Until(s.openDeadline)
		if remaining <= 0 {
			return nil, transport.NewError(transport.KindTimeout, "receive",
				fmt.Errorf("%w: open deadline passed before reading %d bytes", transport.ErrTimeout, n))
		}

		timeout = min(timeout, remaining)
	}

	return transport.ReceiveExact(s.t, n, timeout)
}

// fail records err against the metrics and moves the session to Disconnected.
func (s *Session) fail(op string, err error) error {
	switch transport.KindOf(err) {
	case transport.KindTimeout:
		s.cfg.metrics.incTimeouts()
	case transport.KindProtocol:
		s.cfg.metrics.incProtocolErrors()
	default:
		s.cfg.metrics.incTransportErrors()
	}

	prev := s.state.ToDisconnected()
	s.logger.Debug("beddit: session failed", "op", op, "prevState", prev.String(), "error", err)

	return err
}
