package beddit

import "sync/atomic"

// Metrics contains atomic counters for sessions.
//
// One Metrics value is usually shared by every session a supervisor creates,
// so the counters survive reconnects. Metrics can be used as the value of a
// prometheus CounterFunc.
type Metrics struct {
	// Handshakes indicates the number of successful handshakes.
	Handshakes atomic.Uint64
	// FramesRead indicates the number of frames that passed checksum validation.
	FramesRead atomic.Uint64
	// PayloadBytes indicates the number of payload bytes in valid frames.
	PayloadBytes atomic.Uint64
	// KeepAlivesSent indicates the number of CONT commands sent.
	KeepAlivesSent atomic.Uint64
	// StreamRestarts indicates the number of periodic STOP/START cycles.
	StreamRestarts atomic.Uint64
	// PacketGaps indicates how often a packet number did not follow its predecessor.
	PacketGaps atomic.Uint64

	// ChecksumErrors indicates the number of frames rejected for a bad CRC.
	ChecksumErrors atomic.Uint64
	// ProtocolErrors indicates the number of protocol violations, checksum errors included.
	ProtocolErrors atomic.Uint64
	// Timeouts indicates the number of deadline expiries.
	Timeouts atomic.Uint64
	// TransportErrors indicates the number of send/receive failures.
	TransportErrors atomic.Uint64
}

func (m *Metrics) incHandshakes()     { m.Handshakes.Add(1) }
func (m *Metrics) incKeepAlivesSent() { m.KeepAlivesSent.Add(1) }
func (m *Metrics) incStreamRestarts() { m.StreamRestarts.Add(1) }
func (m *Metrics) incPacketGaps()     { m.PacketGaps.Add(1) }
func (m *Metrics) incChecksumErrors() { m.ChecksumErrors.Add(1) }

func (m *Metrics) incFramesRead(payloadLen int) {
	m.FramesRead.Add(1)
	m.PayloadBytes.Add(uint64(payloadLen)) //nolint:gosec // payload length is non-negative
}

func (m *Metrics) incProtocolErrors()  { m.ProtocolErrors.Add(1) }
func (m *Metrics) incTimeouts()        { m.Timeouts.Add(1) }
func (m *Metrics) incTransportErrors() { m.TransportErrors.Add(1) }
