package transport_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/arloliu/go-beddit/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	protoErr := transport.NewError(transport.KindProtocol, "read frame", errors.New("checksum mismatch"))

	assert.Equal(t, transport.KindUnknown, transport.KindOf(nil))
	assert.Equal(t, transport.KindProtocol, transport.KindOf(protoErr))
	assert.Equal(t, transport.KindProtocol, transport.KindOf(fmt.Errorf("session: %w", protoErr)))
	assert.Equal(t, transport.KindTimeout, transport.KindOf(os.ErrDeadlineExceeded))
	assert.Equal(t, transport.KindTimeout, transport.KindOf(context.DeadlineExceeded))
	assert.Equal(t, transport.KindUnknown, transport.KindOf(errors.New("other")))

	assert.True(t, transport.IsProtocol(protoErr))
	assert.False(t, transport.IsTimeout(protoErr))
}

func TestError_Format(t *testing.T) {
	err := transport.NewError(transport.KindTimeout, "receive", transport.ErrTimeout)
	assert.Equal(t, "timeout error: receive: transport: deadline exceeded", err.Error())
	assert.True(t, err.Timeout())

	err = transport.NewError(transport.KindConnect, "", transport.ErrUnsupported)
	assert.Equal(t, "connect error: transport: not supported on this platform", err.Error())
	assert.False(t, err.Timeout())
}

func TestIsRadioFault(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"ebadf", transport.NewError(transport.KindTransport, "receive", &os.SyscallError{Syscall: "read", Err: syscall.EBADF}), true},
		{"ebusy", transport.NewError(transport.KindConnect, "connect", os.NewSyscallError("connect", syscall.EBUSY)), true},
		{"text", errors.New("(77, 'File descriptor in bad state: Bad file descriptor')"), true},
		{"timeout", transport.NewError(transport.KindTimeout, "receive", transport.ErrTimeout), false},
		{"refused", os.NewSyscallError("connect", syscall.ECONNREFUSED), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transport.IsRadioFault(tt.err))
		})
	}
}

func TestParseBDAddr(t *testing.T) {
	addr, err := transport.ParseBDAddr("00:11:22:AA:BB:CC")
	require.NoError(t, err)
	assert.Equal(t, [6]byte{0x00, 0x11, 0x22, 0xAA, 0xBB, 0xCC}, addr)

	_, err = transport.ParseBDAddr("00:11:22")
	require.ErrorIs(t, err, transport.ErrInvalidAddress)

	_, err = transport.ParseBDAddr("00:00:00:00:fe:80:00:00")
	require.ErrorIs(t, err, transport.ErrInvalidAddress)
}
