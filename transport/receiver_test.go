package transport_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/arloliu/go-beddit/transport"
	"github.com/arloliu/go-beddit/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveExact_SingleChunk(t *testing.T) {
	f := transporttest.New([]byte("OK\nrest"))

	data, err := transport.ReceiveExact(f, 3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("OK\n"), data)
	assert.Equal(t, 4, f.Pending())
}

func TestReceiveExact_AccumulatesChunks(t *testing.T) {
	f := transporttest.New([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	f.MaxChunk = 3

	data, err := transport.ReceiveExact(f, 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, data)
}

func TestReceiveExact_ZeroLength(t *testing.T) {
	f := transporttest.New()

	data, err := transport.ReceiveExact(f, 0, time.Second)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestReceiveExact_SlowTransportTimesOut(t *testing.T) {
	// One byte every 40ms: 10 bytes cannot arrive within 100ms.
	f := transporttest.New([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	f.MaxChunk = 1
	f.ChunkDelay = 40 * time.Millisecond

	begin := time.Now()
	data, err := transport.ReceiveExact(f, 10, 100*time.Millisecond)
	elapsed := time.Since(begin)

	require.Error(t, err)
	assert.Nil(t, data, "partial data must be discarded")
	assert.True(t, transport.IsTimeout(err))
	assert.ErrorIs(t, err, transport.ErrTimeout)
	assert.Less(t, elapsed, time.Second)

	// Some bytes were consumed before the deadline hit.
	assert.Less(t, f.Pending(), 10)
}

func TestReceiveExact_NoDataTimesOut(t *testing.T) {
	f := transporttest.New([]byte{1, 2})

	_, err := transport.ReceiveExact(f, 6, 50*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, transport.KindTimeout, transport.KindOf(err))
	assert.Contains(t, err.Error(), "got 2 of 6 bytes")
}

func TestReceiveExact_UnexpectedEOF(t *testing.T) {
	f := transporttest.New([]byte{1, 2})
	f.RecvErr = transport.NewError(transport.KindTransport, "receive", io.EOF)

	_, err := transport.ReceiveExact(f, 6, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, transport.KindTransport, transport.KindOf(err))
}

func TestReceiveExact_TransportErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	f := transporttest.New()
	f.RecvErr = transport.NewError(transport.KindTransport, "receive", boom)

	_, err := transport.ReceiveExact(f, 4, time.Second)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, transport.KindTransport, transport.KindOf(err))
}
