package beddit

import (
	"math/rand"
	"testing"

	"github.com/arloliu/go-beddit/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Example(t *testing.T) {
	pair, err := Split(samplePayload(1, 2, 3, 4))
	require.NoError(t, err)

	assert.Equal(t, []uint16{1, 3}, pair.Channel1)
	assert.Equal(t, []uint16{2, 4}, pair.Channel2)
	assert.Equal(t, 2, pair.Len())
}

func TestSplit_EvenOddLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, n := range []int{0, 1, 7, 64, 500} {
		values := make([]uint16, 2*n)
		for i := range values {
			values[i] = uint16(rng.Intn(1 << 16)) //nolint:gosec // bounded
		}

		pair, err := Split(samplePayload(values...))
		require.NoError(t, err)
		require.Len(t, pair.Channel1, n)
		require.Len(t, pair.Channel2, n)

		for i := 0; i < n; i++ {
			assert.Equal(t, values[2*i], pair.Channel1[i])
			assert.Equal(t, values[2*i+1], pair.Channel2[i])
		}
	}
}

func TestSplit_OwnsItsSlices(t *testing.T) {
	payload := samplePayload(7, 8)

	pair, err := Split(payload)
	require.NoError(t, err)

	payload[0] = 0xFF
	assert.Equal(t, []uint16{7}, pair.Channel1)
}

func TestSplit_Malformed(t *testing.T) {
	for _, size := range []int{1, 2, 3, 6, 10} {
		_, err := Split(make([]byte, size))
		require.ErrorIs(t, err, ErrIncompletePair, "size %d", size)
		assert.True(t, transport.IsProtocol(err))
	}
}
