// Package beddit implements the streaming session protocol spoken by Beddit
// piezoelectric sleep sensors.
//
// # Protocol Overview
//
// A session runs over an already-open [transport.Transport]. The host drives
// it with newline-terminated ASCII commands:
//
//   - "OK\n"   handshake probe; the device answers "OK\n" or "AT\n"
//   - "START\n" or "START <secs>\n" begin streaming, with an optional
//     device-side inactivity timeout in seconds
//   - "STOP\n" stop streaming
//   - "CONT\n" keep-alive, resets the device inactivity watchdog
//
// While streaming, the device sends binary frames:
//
//	[packet_number: uint32 LE][payload_length: uint16 LE][payload][crc32: uint32 LE]
//
// The checksum is CRC-32/ISO-HDLC over header and payload. The payload holds
// interleaved little-endian uint16 samples of two channels; [Split] separates them.
//
// # Session Lifecycle
//
//	Disconnected → Handshaking   NewSession
//	Handshaking  → Streaming     Handshake + StartStreaming (or Open)
//	Streaming    → Streaming     every frame read
//	any          → Disconnected  on timeout, transport or protocol failure
//	Handshaking/Streaming → Terminating → Disconnected   Terminate
//
// A failed session is never reused; callers construct a new one over a new
// transport.
//
// # Housekeeping
//
// After every frame the session sends "CONT\n" when the keep-alive interval
// (2 s) has elapsed. Every 1000 frames it restarts the stream with STOP and
// START, which the firmware needs to keep its buffers aligned.
package beddit
