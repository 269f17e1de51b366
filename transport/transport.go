package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// Transport is an open point-to-point byte stream to a device.
//
// Every blocking call is bounded by the absolute deadline passed to it.
// Implementations never retry; recovery belongs to the caller.
type Transport interface {
	// Send writes all of p before deadline.
	Send(p []byte, deadline time.Time) error
	// ReceiveUpTo returns between 1 and n bytes, or fails with a KindTimeout
	// error when nothing arrives before deadline.
	ReceiveUpTo(n int, deadline time.Time) ([]byte, error)
	// Close releases the underlying connection. Calling Close more than once is a no-op.
	Close() error
}

// Dialer opens a Transport to the device at address.
//
// Dial honours ctx cancellation and deadline; failures are *Error values of
// KindConnect or KindTimeout.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// DeadlineConn is the subset of net.Conn (also satisfied by a pollable *os.File)
// that connTransport needs.
type DeadlineConn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type connTransport struct {
	conn   DeadlineConn
	closed atomic.Bool
}

var _ Transport = (*connTransport)(nil)

// NewConnTransport adapts conn into a Transport.
func NewConnTransport(conn DeadlineConn) Transport {
	return &connTransport{conn: conn}
}

func (t *connTransport) Send(p []byte, deadline time.Time) error {
	if t.closed.Load() {
		return NewError(KindTransport, "send", ErrClosed)
	}

	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return NewError(KindTransport, "send", err)
	}

	for written := 0; written < len(p); {
		n, err := t.conn.Write(p[written:])
		written += n

		if err != nil {
			return classifyIOErr("send", err)
		}
	}

	return nil
}

func (t *connTransport) ReceiveUpTo(n int, deadline time.Time) ([]byte, error) {
	if t.closed.Load() {
		return nil, NewError(KindTransport, "receive", ErrClosed)
	}

	if n <= 0 {
		return nil, nil
	}

	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, NewError(KindTransport, "receive", err)
	}

	buf := make([]byte, n)

	read, err := t.conn.Read(buf)
	if read > 0 {
		// Data wins over a simultaneous error; the error resurfaces on the next call.
		return buf[:read], nil
	}

	if err != nil {
		return nil, classifyIOErr("receive", err)
	}

	// A conforming reader never returns (0, nil) for a non-empty buffer.
	return nil, NewError(KindTransport, "receive", io.ErrNoProgress)
}

func (t *connTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := t.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, os.ErrClosed) {
		return NewError(KindTransport, "close", err)
	}

	return nil
}
