package beddit

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

const (
	// HeaderSize is the size of a frame header: packet number and payload length.
	HeaderSize = 6
	// ChecksumSize is the size of the trailing CRC-32.
	ChecksumSize = 4
	// MaxPayloadSize is the largest payload a header can declare.
	MaxPayloadSize = math.MaxUint16
)

// Frame is one checksummed unit of samples sent by the device.
type Frame struct {
	PacketNumber uint32
	Payload      []byte
	Checksum     uint32
}

// ParseHeader decodes a 6-byte frame header.
func ParseHeader(header []byte) (packetNumber uint32, payloadLen uint16, err error) {
	if len(header) != HeaderSize {
		return 0, 0, fmt.Errorf("%w: got %d bytes, want %d", ErrShortHeader, len(header), HeaderSize)
	}

	return binary.LittleEndian.Uint32(header[0:4]), binary.LittleEndian.Uint16(header[4:6]), nil
}

// Checksum returns the CRC-32/ISO-HDLC of header followed by payload.
func Checksum(header, payload []byte) uint32 {
	crc := crc32.Update(0, crc32.IEEETable, header)

	return crc32.Update(crc, crc32.IEEETable, payload)
}

// EncodeFrame returns the wire form of a frame carrying payload.
func EncodeFrame(packetNumber uint32, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	buf := make([]byte, HeaderSize+len(payload)+ChecksumSize)
	binary.LittleEndian.PutUint32(buf[0:4], packetNumber)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(payload))) //nolint:gosec // bounded above
	copy(buf[HeaderSize:], payload)

	crc := Checksum(buf[:HeaderSize], payload)
	binary.LittleEndian.PutUint32(buf[HeaderSize+len(payload):], crc)

	return buf, nil
}

// EncodeSamples interleaves two equal-length channels into a payload.
// It is the inverse of Split.
func EncodeSamples(pair ChannelPair) ([]byte, error) {
	if len(pair.Channel1) != len(pair.Channel2) {
		return nil, fmt.Errorf("beddit: channel lengths differ: %d != %d", len(pair.Channel1), len(pair.Channel2))
	}

	buf := make([]byte, 4*len(pair.Channel1))
	for i := range pair.Channel1 {
		binary.LittleEndian.PutUint16(buf[4*i:], pair.Channel1[i])
		binary.LittleEndian.PutUint16(buf[4*i+2:], pair.Channel2[i])
	}

	return buf, nil
}
