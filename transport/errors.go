package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Kind classifies a failure so callers can decide how to recover without
// inspecting error text.
type Kind uint8

const (
	// KindUnknown is reported for nil errors and errors that carry no kind.
	KindUnknown Kind = iota
	// KindConnect indicates the transport could not be established.
	KindConnect
	// KindTimeout indicates a deadline was exceeded on connect, send or receive.
	KindTimeout
	// KindProtocol indicates the peer violated the session protocol
	// (bad handshake reply, malformed header, checksum mismatch).
	KindProtocol
	// KindTransport indicates a send or receive failure on an established connection.
	KindTransport
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect error"
	case KindTimeout:
		return "timeout error"
	case KindProtocol:
		return "protocol error"
	case KindTransport:
		return "transport error"
	default:
		return "unknown error"
	}
}

var (
	// ErrTimeout is wrapped by every KindTimeout error produced by this package.
	ErrTimeout = errors.New("transport: deadline exceeded")

	// ErrClosed is returned by operations on a transport that was already closed.
	ErrClosed = errors.New("transport: closed")

	// ErrUnsupported is returned by dialers that are not available on this platform.
	ErrUnsupported = errors.New("transport: not supported on this platform")

	// ErrInvalidAddress is returned when a device address cannot be parsed.
	ErrInvalidAddress = errors.New("transport: invalid device address")
)

// Error is a failure tagged with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError wraps err with the given kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the error is a KindTimeout error. It lets *Error
// satisfy the timeout half of net.Error.
func (e *Error) Timeout() bool { return e.Kind == KindTimeout }

// KindOf returns the Kind carried by err.
//
// Errors that were not produced by this package are classified by shape:
// deadline errors are KindTimeout, everything else is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}

	if isDeadlineErr(err) {
		return KindTimeout
	}

	return KindUnknown
}

// IsTimeout reports whether err is a KindTimeout failure.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsProtocol reports whether err is a KindProtocol failure.
func IsProtocol(err error) bool { return KindOf(err) == KindProtocol }

// IsRadioFault reports whether err points at the local radio stack rather
// than the remote device: a stale socket descriptor (EBADF) or a busy
// adapter (EBUSY). Those conditions do not clear by reconnecting alone and
// need the radio power-cycled.
func IsRadioFault(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.EBADF) || errors.Is(err, syscall.EBUSY) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "bad file descriptor") ||
		strings.Contains(msg, "device or resource busy")
}

func isDeadlineErr(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error

	return errors.As(err, &ne) && ne.Timeout()
}

// classifyIOErr tags a raw I/O error from an established connection.
func classifyIOErr(op string, err error) error {
	if isDeadlineErr(err) {
		return NewError(KindTimeout, op, fmt.Errorf("%w: %w", ErrTimeout, err))
	}

	return NewError(KindTransport, op, err)
}

// classifyDialErr tags a raw error from a connect attempt.
func classifyDialErr(err error) error {
	if isDeadlineErr(err) {
		return NewError(KindTimeout, "connect", fmt.Errorf("%w: %w", ErrTimeout, err))
	}

	return NewError(KindConnect, "connect", err)
}
