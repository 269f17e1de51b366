package beddit

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-beddit/transport"
)

// ChannelPair holds the two sample channels carried by one frame.
// Both channels always have the same length.
type ChannelPair struct {
	Channel1 []uint16
	Channel2 []uint16
}

// Len returns the number of samples per channel.
func (p ChannelPair) Len() int { return len(p.Channel1) }

// Split decodes payload as little-endian uint16 values and deals them
// alternately into two channels: even indices to Channel1, odd to Channel2.
//
// The payload must be a whole number of 4-byte sample pairs so both channels
// get the same length. An odd byte count, or a lone trailing value, is a
// malformed frame and fails with a KindProtocol error wrapping ErrIncompletePair.
func Split(payload []byte) (ChannelPair, error) {
	if len(payload)%4 != 0 {
		return ChannelPair{}, transport.NewError(transport.KindProtocol, "split",
			fmt.Errorf("%w: got %d bytes", ErrIncompletePair, len(payload)))
	}

	n := len(payload) / 4
	pair := ChannelPair{
		Channel1: make([]uint16, n),
		Channel2: make([]uint16, n),
	}

	for i := 0; i < n; i++ {
		pair.Channel1[i] = binary.LittleEndian.Uint16(payload[4*i:])
		pair.Channel2[i] = binary.LittleEndian.Uint16(payload[4*i+2:])
	}

	return pair, nil
}
