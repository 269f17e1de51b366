//go:build !linux

package transport

import "context"

// RFCOMMDialer opens Bluetooth RFCOMM stream sockets. It is only
// implemented on Linux.
type RFCOMMDialer struct {
	Channel uint8
}

var _ Dialer = RFCOMMDialer{}

func (d RFCOMMDialer) Dial(_ context.Context, _ string) (Transport, error) {
	return nil, NewError(KindConnect, "connect", ErrUnsupported)
}
