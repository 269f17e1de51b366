package supervisor

import "errors"

var (
	// ErrAlreadyRunning is returned by Run when the supervisor loop is already active.
	ErrAlreadyRunning = errors.New("supervisor: already running")
	// ErrDialerNil is returned by New when no dialer is given.
	ErrDialerNil = errors.New("supervisor: dialer must not be nil")
	// ErrSinkNil is returned by New when no sink is given.
	ErrSinkNil = errors.New("supervisor: sink must not be nil")
	// ErrAddressEmpty is returned by New when the device address is empty.
	ErrAddressEmpty = errors.New("supervisor: device address must not be empty")
	// ErrPanic wraps a panic recovered from the sink or the radio reset hook.
	ErrPanic = errors.New("supervisor: panic")
)
