package transport

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultReceiveTimeout bounds a ReceiveExact call when the caller passes no timeout.
const DefaultReceiveTimeout = time.Second

// ReceiveExact reads exactly n bytes from t within timeout.
//
// It keeps asking t for the remaining byte count until the buffer is full.
// When the deadline passes first it fails with a KindTimeout error and the
// bytes collected so far are discarded: callers work in whole frames only.
// A peer that closes the stream after sending part of the data yields a
// KindTransport error wrapping io.ErrUnexpectedEOF.
func ReceiveExact(t Transport, n int, timeout time.Duration) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}

	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, n)

	for len(buf) < n {
		if !time.Now().Before(deadline) {
			return nil, NewError(KindTimeout, "receive",
				fmt.Errorf("%w: got %d of %d bytes within %v", ErrTimeout, len(buf), n, timeout))
		}

		chunk, err := t.ReceiveUpTo(n-len(buf), deadline)
		buf = append(buf, chunk...)

		if err == nil {
			continue
		}

		switch {
		case IsTimeout(err):
			return nil, NewError(KindTimeout, "receive",
				fmt.Errorf("%w: got %d of %d bytes within %v", ErrTimeout, len(buf), n, timeout))
		case errors.Is(err, io.EOF) && len(buf) > 0:
			return nil, NewError(KindTransport, "receive",
				fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, len(buf), n))
		default:
			return nil, err
		}
	}

	return buf, nil
}
