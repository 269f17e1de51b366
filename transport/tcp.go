package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer connects to devices exposed through a TCP bridge, such as a
// serial-to-network adapter or the device simulator.
type TCPDialer struct {
	// KeepAlive is the TCP keep-alive period. Zero uses 30 seconds.
	KeepAlive time.Duration
}

var _ Dialer = TCPDialer{}

// Dial connects to address ("host:port").
func (d TCPDialer) Dial(ctx context.Context, address string) (Transport, error) {
	keepAlive := d.KeepAlive
	if keepAlive == 0 {
		keepAlive = 30 * time.Second
	}

	dialer := &net.Dialer{KeepAlive: keepAlive}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, classifyDialErr(err)
	}

	return NewConnTransport(conn), nil
}
