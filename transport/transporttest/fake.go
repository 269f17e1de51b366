// Package transporttest provides an in-memory transport.Transport for tests.
package transporttest

import (
	"bytes"
	"sync"
	"time"

	"github.com/arloliu/go-beddit/transport"
)

// pollInterval is how often an empty Fake re-checks for queued bytes.
const pollInterval = time.Millisecond

// Fake is a scripted transport.Transport.
//
// Bytes queued with Feed are handed out by ReceiveUpTo; bytes written with
// Send are recorded and can be inspected with Sent. When nothing is queued,
// ReceiveUpTo waits for more data until the call's deadline and then fails
// with a KindTimeout error, like a real connection would.
type Fake struct {
	mu     sync.Mutex
	rx     []byte
	sent   [][]byte
	closed bool

	// MaxChunk caps the bytes returned by one ReceiveUpTo call. Zero means no cap.
	MaxChunk int
	// ChunkDelay is slept before each ReceiveUpTo returns data.
	ChunkDelay time.Duration
	// SendErr, when set, is returned by every Send.
	SendErr error
	// RecvErr, when set, is returned by ReceiveUpTo once the queue is drained.
	RecvErr error
	// OnSend is called with a copy of every successfully sent buffer,
	// outside the lock, so it may call Feed to script replies.
	OnSend func(p []byte)
}

var _ transport.Transport = (*Fake)(nil)

// New returns a Fake with initial queued bytes.
func New(rx ...[]byte) *Fake {
	f := &Fake{}
	for _, b := range rx {
		f.Feed(b)
	}

	return f
}

// Feed queues bytes to be received.
func (f *Fake) Feed(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rx = append(f.rx, b...)
}

// Sent returns copies of every buffer passed to Send, in order.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]byte, len(f.sent))
	for i, b := range f.sent {
		out[i] = bytes.Clone(b)
	}

	return out
}

// SentStrings returns Sent as strings.
func (f *Fake) SentStrings() []string {
	sent := f.Sent()
	out := make([]string, len(sent))
	for i, b := range sent {
		out[i] = string(b)
	}

	return out
}

// Pending returns the number of queued bytes not yet received.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.rx)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

func (f *Fake) Send(p []byte, _ time.Time) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return transport.NewError(transport.KindTransport, "send", transport.ErrClosed)
	}

	if f.SendErr != nil {
		err := f.SendErr
		f.mu.Unlock()

		return transport.NewError(transport.KindTransport, "send", err)
	}

	cp := bytes.Clone(p)
	f.sent = append(f.sent, cp)
	hook := f.OnSend
	f.mu.Unlock()

	if hook != nil {
		hook(bytes.Clone(cp))
	}

	return nil
}

func (f *Fake) ReceiveUpTo(n int, deadline time.Time) ([]byte, error) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return nil, transport.NewError(transport.KindTransport, "receive", transport.ErrClosed)
		}

		if len(f.rx) > 0 {
			take := min(n, len(f.rx))
			if f.MaxChunk > 0 {
				take = min(take, f.MaxChunk)
			}

			out := bytes.Clone(f.rx[:take])
			f.rx = f.rx[take:]
			delay := f.ChunkDelay
			f.mu.Unlock()

			if delay > 0 {
				time.Sleep(delay)
			}

			return out, nil
		}

		recvErr := f.RecvErr
		f.mu.Unlock()

		if recvErr != nil {
			return nil, recvErr
		}

		if !time.Now().Before(deadline) {
			return nil, transport.NewError(transport.KindTimeout, "receive", transport.ErrTimeout)
		}

		time.Sleep(pollInterval)
	}
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}
