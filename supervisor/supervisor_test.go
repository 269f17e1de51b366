package supervisor

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/arloliu/go-beddit/beddit"
	"github.com/arloliu/go-beddit/transport"
	"github.com/arloliu/go-beddit/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "00:11:22:33:44:55"

func TestNew_Validation(t *testing.T) {
	sink := &recordingSink{}
	dialer := newScriptedDialer()

	_, err := New(nil, testAddress, sink)
	require.ErrorIs(t, err, ErrDialerNil)

	_, err = New(dialer, "", sink)
	require.ErrorIs(t, err, ErrAddressEmpty)

	_, err = New(dialer, testAddress, nil)
	require.ErrorIs(t, err, ErrSinkNil)

	_, err = New(dialer, testAddress, sink, WithConnectTimeout(0))
	require.Error(t, err)

	_, err = New(dialer, testAddress, sink, WithSource(""))
	require.Error(t, err)

	_, err = New(dialer, testAddress, sink, WithSessionOptions(beddit.WithRestartEvery(0)))
	require.Error(t, err)

	sup, err := New(dialer, testAddress, sink)
	require.NoError(t, err)
	assert.Equal(t, beddit.DisconnectedState, sup.State())
}

func TestRun_RecordsAveragedReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := deviceFake(encodeFrame(t, 5, 1, 2, 3, 4))
	dialer := newScriptedDialer(dialOK(fake))

	sink := &recordingSink{onRecord: func(int, Reading) error {
		cancel()
		return nil
	}}

	sup, err := New(dialer, testAddress, sink,
		fastSessionOptions(),
		WithClock(fixedClock{now: readingTime}),
	)
	require.NoError(t, err)

	runSupervisor(t, ctx, sup)

	readings := sink.Readings()
	require.Len(t, readings, 1)
	assert.Equal(t, Reading{
		Time:         readingTime,
		Source:       DefaultSource,
		Channel1:     2,
		Channel2:     3,
		PacketNumber: 5,
	}, readings[0])

	// Graceful stop on termination.
	assert.Equal(t, []string{"OK\n", "START 5\n", "STOP\n"}, fake.SentStrings())
	assert.True(t, fake.Closed())
	assert.Equal(t, beddit.DisconnectedState, sup.State())

	m := sup.Metrics()
	assert.Equal(t, uint64(1), m.ConnectAttempts.Load())
	assert.Equal(t, uint64(1), m.ReadingsRecorded.Load())
	assert.Equal(t, uint64(0), m.Reconnects.Load())
	assert.Equal(t, uint32(0), m.Connected.Load())
	assert.Equal(t, []string{testAddress}, dialer.addresses)
}

func TestRun_ChecksumFailureReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bad := encodeFrame(t, 5, 1, 2, 3, 4)
	bad[len(bad)-1] ^= 0xFF

	first := deviceFake(bad)
	second := deviceFake(encodeFrame(t, 6, 10, 20))
	dialer := newScriptedDialer(dialOK(first), dialOK(second))

	sink := &recordingSink{onRecord: func(int, Reading) error {
		cancel()
		return nil
	}}

	sup, err := New(dialer, testAddress, sink,
		fastSessionOptions(),
		WithRetryDelay(time.Millisecond),
	)
	require.NoError(t, err)

	runSupervisor(t, ctx, sup)

	assert.Equal(t, int32(2), dialer.calls.Load())
	assert.True(t, first.Closed(), "failed session must release its transport")
	assert.True(t, second.Closed())

	readings := sink.Readings()
	require.Len(t, readings, 1)
	assert.Equal(t, uint32(6), readings[0].PacketNumber)
	assert.InDelta(t, 10.0, readings[0].Channel1, 0)
	assert.InDelta(t, 20.0, readings[0].Channel2, 0)

	assert.Equal(t, uint64(1), sup.Metrics().Reconnects.Load())
	assert.Equal(t, uint64(1), sup.SessionMetrics().ChecksumErrors.Load())
	assert.Equal(t, uint64(2), sup.SessionMetrics().Handshakes.Load())
}

func TestRun_ConnectFailuresAreRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newScriptedDialer(
		dialErr(transport.NewError(transport.KindConnect, "connect", errors.New("host is down"))),
		dialErr(transport.NewError(transport.KindTimeout, "connect", transport.ErrTimeout)),
		dialOK(transporttest.New([]byte("NO\n"))),
		dialOK(deviceFake(encodeFrame(t, 1, 7, 9))),
	)

	sink := &recordingSink{onRecord: func(int, Reading) error {
		cancel()
		return nil
	}}

	sup, err := New(dialer, testAddress, sink,
		fastSessionOptions(),
		WithRetryDelay(time.Millisecond),
		WithConnectTimeout(3*time.Second),
	)
	require.NoError(t, err)

	runSupervisor(t, ctx, sup)

	m := sup.Metrics()
	assert.Equal(t, uint64(4), m.ConnectAttempts.Load())
	assert.Equal(t, uint64(3), m.ConnectFailures.Load())
	assert.Len(t, sink.Readings(), 1)

	for _, d := range dialer.Deadlines() {
		assert.LessOrEqual(t, d, 3*time.Second)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestRun_RadioFaultTriggersReset(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"busy adapter on connect", transport.NewError(transport.KindConnect, "connect", os.NewSyscallError("connect", syscall.EBUSY))},
		{"bad descriptor", transport.NewError(transport.KindTransport, "receive", syscall.EBADF)},
		{"error text", transport.NewError(transport.KindTransport, "receive", errors.New("(77, 'File descriptor in bad state'): Bad file descriptor"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var resets atomic.Int32
			hook := RadioResetFunc(func(context.Context) error {
				resets.Add(1)
				return nil
			})

			var first dialResult
			if transport.KindOf(tt.err) == transport.KindConnect {
				first = dialErr(tt.err)
			} else {
				fake := deviceFake()
				fake.RecvErr = tt.err
				first = dialOK(fake)
			}

			dialer := newScriptedDialer(first, dialOK(deviceFake(encodeFrame(t, 1, 1, 1))))
			sink := &recordingSink{onRecord: func(int, Reading) error {
				cancel()
				return nil
			}}

			sup, err := New(dialer, testAddress, sink,
				fastSessionOptions(),
				WithRetryDelay(time.Millisecond),
				WithRadioResetPause(time.Millisecond),
				WithRadioResetHook(hook),
			)
			require.NoError(t, err)

			runSupervisor(t, ctx, sup)

			assert.Equal(t, int32(1), resets.Load())
			assert.Equal(t, uint64(1), sup.Metrics().RadioResets.Load())
			assert.Len(t, sink.Readings(), 1)
		})
	}
}

func TestRun_RadioResetHookFailureIsLogged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := deviceFake()
	fake.RecvErr = transport.NewError(transport.KindTransport, "receive", syscall.EBADF)

	dialer := newScriptedDialer(dialOK(fake), dialOK(deviceFake(encodeFrame(t, 1, 1, 1))))
	sink := &recordingSink{onRecord: func(int, Reading) error {
		cancel()
		return nil
	}}

	sup, err := New(dialer, testAddress, sink,
		fastSessionOptions(),
		WithRetryDelay(time.Millisecond),
		WithRadioResetPause(time.Millisecond),
		WithRadioResetHook(RadioResetFunc(func(context.Context) error {
			return errors.New("rfkill: permission denied")
		})),
	)
	require.NoError(t, err)

	runSupervisor(t, ctx, sup)

	assert.Equal(t, uint64(1), sup.Metrics().RadioResetErrors.Load())
	assert.Len(t, sink.Readings(), 1)
}

func TestRun_ProtocolErrorSkipsRadioReset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var resets atomic.Int32

	dialer := newScriptedDialer(
		dialOK(transporttest.New([]byte("NO\n"))),
		dialOK(deviceFake(encodeFrame(t, 1, 1, 1))),
	)
	sink := &recordingSink{onRecord: func(int, Reading) error {
		cancel()
		return nil
	}}

	sup, err := New(dialer, testAddress, sink,
		fastSessionOptions(),
		WithRetryDelay(time.Millisecond),
		WithRadioResetHook(RadioResetFunc(func(context.Context) error {
			resets.Add(1)
			return nil
		})),
	)
	require.NoError(t, err)

	runSupervisor(t, ctx, sup)

	assert.Zero(t, resets.Load())
	assert.Equal(t, uint64(1), sup.SessionMetrics().ProtocolErrors.Load())
}

func TestRun_SinkErrorKeepsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newScriptedDialer(dialOK(deviceFake(
		encodeFrame(t, 1, 1, 1),
		encodeFrame(t, 2, 2, 2),
	)))

	sink := &recordingSink{onRecord: func(n int, _ Reading) error {
		if n == 1 {
			return errors.New("database is locked")
		}
		cancel()

		return nil
	}}

	sup, err := New(dialer, testAddress, sink,
		fastSessionOptions(),
		WithRetryDelay(time.Millisecond),
	)
	require.NoError(t, err)

	runSupervisor(t, ctx, sup)

	assert.Equal(t, int32(1), dialer.calls.Load())
	assert.Equal(t, uint64(1), sup.Metrics().SinkErrors.Load())
	assert.Equal(t, uint64(1), sup.Metrics().ReadingsRecorded.Load())
	assert.Len(t, sink.Readings(), 2)
}

func TestRun_SinkPanicIsRecovered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newScriptedDialer(dialOK(deviceFake(
		encodeFrame(t, 1, 1, 1),
		encodeFrame(t, 2, 2, 2),
	)))

	sink := &recordingSink{onRecord: func(n int, _ Reading) error {
		if n == 1 {
			panic("sink bug")
		}
		cancel()

		return nil
	}}

	sup, err := New(dialer, testAddress, sink,
		fastSessionOptions(),
		WithRetryDelay(time.Millisecond),
	)
	require.NoError(t, err)

	var runErr error
	assert.NotPanics(t, func() { runErr = sup.Run(ctx) })
	require.NoError(t, runErr)

	assert.Equal(t, int32(1), dialer.calls.Load())
	assert.Equal(t, uint64(1), sup.Metrics().SinkErrors.Load())
	assert.Equal(t, uint64(1), sup.Metrics().ReadingsRecorded.Load())
	assert.Len(t, sink.Readings(), 2)
}

func TestRun_RadioResetHookPanicIsRecovered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := deviceFake()
	fake.RecvErr = transport.NewError(transport.KindTransport, "receive", syscall.EBADF)

	dialer := newScriptedDialer(dialOK(fake), dialOK(deviceFake(encodeFrame(t, 1, 1, 1))))
	sink := &recordingSink{onRecord: func(int, Reading) error {
		cancel()
		return nil
	}}

	sup, err := New(dialer, testAddress, sink,
		fastSessionOptions(),
		WithRetryDelay(time.Millisecond),
		WithRadioResetPause(time.Millisecond),
		WithRadioResetHook(RadioResetFunc(func(context.Context) error {
			panic("rfkill crashed")
		})),
	)
	require.NoError(t, err)

	var runErr error
	assert.NotPanics(t, func() { runErr = sup.Run(ctx) })
	require.NoError(t, runErr)

	assert.Equal(t, uint64(1), sup.Metrics().RadioResets.Load())
	assert.Equal(t, uint64(1), sup.Metrics().RadioResetErrors.Load())
	assert.Len(t, sink.Readings(), 1)
}

func TestCallWithRecover(t *testing.T) {
	sup, err := New(newScriptedDialer(), testAddress, &recordingSink{})
	require.NoError(t, err)

	err = sup.callWithRecover("sink", func() error { panic("boom") })
	require.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "sink")
	assert.Contains(t, err.Error(), "boom")

	plain := errors.New("plain")
	require.ErrorIs(t, sup.callWithRecover("sink", func() error { return plain }), plain)
	require.NoError(t, sup.callWithRecover("sink", func() error { return nil }))
}

func TestConnect_TimeoutCoversHandshake(t *testing.T) {
	silent := transporttest.New()
	dialer := newScriptedDialer(dialOK(silent))

	sup, err := New(dialer, testAddress, &recordingSink{},
		WithConnectTimeout(100*time.Millisecond),
		WithSessionOptions(
			beddit.WithClock(fixedClock{now: readingTime}),
			beddit.WithHandshakeTimeout(5*time.Second),
		),
	)
	require.NoError(t, err)

	start := time.Now()
	sess, err := sup.connect(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, sess)
	assert.True(t, transport.IsTimeout(err), "got %v", err)
	assert.Less(t, elapsed, time.Second)
	assert.True(t, silent.Closed())
	assert.Equal(t, uint64(1), sup.Metrics().ConnectFailures.Load())
	assert.Equal(t, beddit.DisconnectedState, sup.State())
}

func TestRun_EmptyFrameIsSkipped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newScriptedDialer(dialOK(deviceFake(
		encodeFrame(t, 1),
		encodeFrame(t, 2, 4, 8),
	)))

	sink := &recordingSink{onRecord: func(int, Reading) error {
		cancel()
		return nil
	}}

	sup, err := New(dialer, testAddress, sink, fastSessionOptions())
	require.NoError(t, err)

	runSupervisor(t, ctx, sup)

	assert.Equal(t, uint64(1), sup.Metrics().ReadingsSkipped.Load())
	require.Len(t, sink.Readings(), 1)
	assert.Equal(t, uint32(2), sink.Readings()[0].PacketNumber)
}

func TestRun_GracefulStopFailureStillTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := deviceFake(encodeFrame(t, 1, 1, 1))
	dialer := newScriptedDialer(dialOK(fake))

	sink := &recordingSink{onRecord: func(int, Reading) error {
		fake.SendErr = errors.New("broken pipe")
		cancel()

		return nil
	}}

	sup, err := New(dialer, testAddress, sink, fastSessionOptions())
	require.NoError(t, err)

	runSupervisor(t, ctx, sup)

	assert.True(t, fake.Closed())
	assert.Equal(t, beddit.DisconnectedState, sup.State())
}

func TestRun_CancelWhileConnecting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	dialer := newScriptedDialer()
	sup, err := New(dialer, testAddress, &recordingSink{})
	require.NoError(t, err)

	go func() {
		assert.Eventually(t, func() bool { return dialer.calls.Load() == 1 }, time.Second, time.Millisecond)
		cancel()
	}()

	runSupervisor(t, ctx, sup)

	assert.Equal(t, int32(1), dialer.calls.Load())
	assert.Equal(t, uint64(0), sup.Metrics().Reconnects.Load())
}

func TestRun_AlreadyRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newScriptedDialer()
	sup, err := New(dialer, testAddress, &recordingSink{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool { return dialer.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.ErrorIs(t, sup.Run(ctx), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}

func TestMean(t *testing.T) {
	_, ok := mean(nil)
	assert.False(t, ok)

	v, ok := mean([]uint16{1, 2})
	assert.True(t, ok)
	assert.InDelta(t, 1.5, v, 0)

	v, _ = mean([]uint16{65535, 65535, 65535})
	assert.InDelta(t, 65535.0, v, 0)
}
