package beddit

import "sync/atomic"

// SessionState is the protocol state of a session.
type SessionState uint32

const (
	// DisconnectedState means no usable session: not yet connected, failed, or terminated.
	DisconnectedState SessionState = iota
	// HandshakingState means the transport is open and the handshake has not completed.
	HandshakingState
	// StreamingState means frames are flowing.
	StreamingState
	// TerminatingState means a stop was requested and teardown is in progress.
	TerminatingState
)

// String returns string representation of the state.
func (s SessionState) String() string {
	switch s {
	case DisconnectedState:
		return "disconnected"
	case HandshakingState:
		return "handshaking"
	case StreamingState:
		return "streaming"
	case TerminatingState:
		return "terminating"
	default:
		return "unknown"
	}
}

// AtomicState is a SessionState safe for concurrent reads, with
// compare-and-swap guarded transitions.
type AtomicState struct {
	state atomic.Uint32
}

// Get returns the current state.
func (st *AtomicState) Get() SessionState {
	return SessionState(st.state.Load())
}

// Set stores state unconditionally.
func (st *AtomicState) Set(state SessionState) {
	st.state.Store(uint32(state))
}

func (st *AtomicState) String() string {
	return st.Get().String()
}

func (st *AtomicState) IsDisconnected() bool { return st.Get() == DisconnectedState }

func (st *AtomicState) IsStreaming() bool { return st.Get() == StreamingState }

// ToHandshaking moves Disconnected → Handshaking.
func (st *AtomicState) ToHandshaking() bool {
	return st.state.CompareAndSwap(uint32(DisconnectedState), uint32(HandshakingState))
}

// ToStreaming moves Handshaking → Streaming. It is a no-op success when already streaming.
func (st *AtomicState) ToStreaming() bool {
	if st.IsStreaming() {
		return true
	}

	return st.state.CompareAndSwap(uint32(HandshakingState), uint32(StreamingState))
}

// ToTerminating moves Handshaking or Streaming → Terminating.
func (st *AtomicState) ToTerminating() bool {
	if st.state.CompareAndSwap(uint32(StreamingState), uint32(TerminatingState)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(HandshakingState), uint32(TerminatingState))
}

// ToDisconnected moves any state → Disconnected and returns the previous state.
func (st *AtomicState) ToDisconnected() SessionState {
	return SessionState(st.state.Swap(uint32(DisconnectedState)))
}
