package beddit

import "errors"

var (
	// ErrUnexpectedHandshake is returned when the device answers the probe
	// with anything other than "OK\n" or "AT\n".
	ErrUnexpectedHandshake = errors.New("beddit: unexpected handshake response")

	// ErrShortHeader is returned when the stream ends inside a frame header.
	ErrShortHeader = errors.New("beddit: short header")

	// ErrChecksumMismatch is returned when a frame's CRC-32 does not match its contents.
	ErrChecksumMismatch = errors.New("beddit: checksum mismatch")

	// ErrIncompletePair is returned when a sample payload is not a whole
	// number of channel1/channel2 sample pairs (4 bytes each).
	ErrIncompletePair = errors.New("beddit: payload is not a whole number of sample pairs")

	// ErrPayloadTooLarge is returned when encoding a payload longer than a header can declare.
	ErrPayloadTooLarge = errors.New("beddit: payload too large")

	// ErrInvalidState is returned when an operation is called in the wrong session state.
	ErrInvalidState = errors.New("beddit: invalid session state")

	// ErrTransportNil is returned by NewSession when no transport is given.
	ErrTransportNil = errors.New("beddit: transport is nil")
)
