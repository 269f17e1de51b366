//go:build linux

package transport

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// connectPollInterval bounds each poll(2) wait while a non-blocking connect
// is in progress, so ctx cancellation is noticed promptly.
const connectPollInterval = 100 // milliseconds

// RFCOMMDialer opens Bluetooth RFCOMM stream sockets through the kernel
// Bluetooth stack.
type RFCOMMDialer struct {
	// Channel is the RFCOMM channel. Zero uses DefaultRFCOMMChannel.
	Channel uint8
}

var _ Dialer = RFCOMMDialer{}

// Dial connects to the device whose Bluetooth address is address.
//
// The socket is non-blocking and wrapped in an *os.File, so the runtime
// poller enforces read and write deadlines.
func (d RFCOMMDialer) Dial(ctx context.Context, address string) (Transport, error) {
	bd, err := ParseBDAddr(address)
	if err != nil {
		return nil, NewError(KindConnect, "connect", err)
	}

	channel := d.Channel
	if channel == 0 {
		channel = DefaultRFCOMMChannel
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, NewError(KindConnect, "connect", os.NewSyscallError("socket", err))
	}

	// bdaddr_t is little-endian: the last textual octet goes first.
	sa := &unix.SockaddrRFCOMM{Channel: channel}
	for i := range bd {
		sa.Addr[i] = bd[len(bd)-1-i]
	}

	err = unix.Connect(fd, sa)
	if errors.Is(err, unix.EINPROGRESS) {
		err = waitConnect(ctx, fd)
	}

	if err != nil {
		_ = unix.Close(fd)

		var errno unix.Errno
		if errors.As(err, &errno) {
			err = os.NewSyscallError("connect", errno)
		}

		return nil, classifyDialErr(err)
	}

	return NewConnTransport(os.NewFile(uintptr(fd), "rfcomm:"+address)), nil
}

// waitConnect waits for a non-blocking connect on fd to finish.
func waitConnect(ctx context.Context, fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}} //nolint:gosec // fd fits in int32

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(fds, connectPollInterval)
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return err
		}

		if n == 0 {
			continue
		}

		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return err
		}

		if soErr != 0 {
			return unix.Errno(soErr) //nolint:gosec // errno values are small
		}

		return nil
	}
}
