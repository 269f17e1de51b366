package transport

import (
	"fmt"
	"net"
)

// DefaultRFCOMMChannel is the RFCOMM channel the sensor listens on.
const DefaultRFCOMMChannel = 1

// ParseBDAddr parses a Bluetooth device address written as six
// colon-separated hex octets ("00:11:22:33:44:55"). The result keeps the
// textual byte order.
func ParseBDAddr(s string) ([6]byte, error) {
	var addr [6]byte

	hw, err := net.ParseMAC(s)
	if err != nil {
		return addr, fmt.Errorf("%w %q: %w", ErrInvalidAddress, s, err)
	}

	if len(hw) != len(addr) {
		return addr, fmt.Errorf("%w %q: want 6 octets, got %d", ErrInvalidAddress, s, len(hw))
	}

	copy(addr[:], hw)

	return addr, nil
}
