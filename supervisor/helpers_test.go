package supervisor

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-beddit/beddit"
	"github.com/arloliu/go-beddit/logger"
	"github.com/arloliu/go-beddit/transport"
	"github.com/arloliu/go-beddit/transport/transporttest"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	os.Exit(m.Run())
}

var readingTime = time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)

// fixedClock always reports the same time and never sleeps.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time      { return c.now }
func (fixedClock) Sleep(_ time.Duration) {}

// fastSessionOptions keep session I/O and pacing short for tests.
func fastSessionOptions() Option {
	return WithSessionOptions(
		beddit.WithClock(fixedClock{now: readingTime}),
		beddit.WithReadTimeout(50*time.Millisecond),
		beddit.WithHandshakeTimeout(50*time.Millisecond),
	)
}

type dialResult struct {
	t   transport.Transport
	err error
}

// scriptedDialer hands out results in order. Once exhausted it blocks
// until the dial context is done.
type scriptedDialer struct {
	mu        sync.Mutex
	results   []dialResult
	addresses []string
	deadlines []time.Duration
	calls     atomic.Int32
}

func newScriptedDialer(results ...dialResult) *scriptedDialer {
	return &scriptedDialer{results: results}
}

func (d *scriptedDialer) Dial(ctx context.Context, address string) (transport.Transport, error) {
	d.calls.Add(1)

	d.mu.Lock()
	d.addresses = append(d.addresses, address)
	if deadline, ok := ctx.Deadline(); ok {
		d.deadlines = append(d.deadlines, time.Until(deadline))
	}

	if len(d.results) > 0 {
		r := d.results[0]
		d.results = d.results[1:]
		d.mu.Unlock()

		return r.t, r.err
	}
	d.mu.Unlock()

	<-ctx.Done()

	return nil, transport.NewError(transport.KindTimeout, "connect", ctx.Err())
}

func (d *scriptedDialer) Deadlines() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]time.Duration(nil), d.deadlines...)
}

func dialOK(t transport.Transport) dialResult { return dialResult{t: t} }

func dialErr(err error) dialResult { return dialResult{err: err} }

// deviceFake returns a Fake that accepts the handshake and then yields frames.
func deviceFake(frames ...[]byte) *transporttest.Fake {
	return transporttest.New(append([][]byte{[]byte("OK\n")}, frames...)...)
}

func encodeFrame(t *testing.T, packetNumber uint32, values ...uint16) []byte {
	t.Helper()

	payload, err := beddit.EncodeSamples(interleave(values))
	require.NoError(t, err)

	wire, err := beddit.EncodeFrame(packetNumber, payload)
	require.NoError(t, err)

	return wire
}

// interleave builds a ChannelPair from alternating values.
func interleave(values []uint16) beddit.ChannelPair {
	var pair beddit.ChannelPair
	for i, v := range values {
		if i%2 == 0 {
			pair.Channel1 = append(pair.Channel1, v)
		} else {
			pair.Channel2 = append(pair.Channel2, v)
		}
	}

	return pair
}

// recordingSink stores readings and runs onRecord for each of them.
type recordingSink struct {
	mu       sync.Mutex
	readings []Reading
	onRecord func(n int, r Reading) error
}

func (s *recordingSink) Record(_ context.Context, r Reading) error {
	s.mu.Lock()
	s.readings = append(s.readings, r)
	n := len(s.readings)
	hook := s.onRecord
	s.mu.Unlock()

	if hook != nil {
		return hook(n, r)
	}

	return nil
}

func (s *recordingSink) Readings() []Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Reading(nil), s.readings...)
}

// runSupervisor runs sup until it returns or the test times out.
func runSupervisor(t *testing.T, ctx context.Context, sup *Supervisor) {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}
