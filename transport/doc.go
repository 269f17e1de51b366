// Package transport provides the byte-stream layer underneath a sensor session.
//
// A [Transport] is an already-open point-to-point stream with deadline-bounded
// Send and ReceiveUpTo calls. [ReceiveExact] builds whole-buffer reads on top
// of it. Two dialers are provided:
//
//   - [RFCOMMDialer] opens a Bluetooth RFCOMM socket (Linux only).
//   - [TCPDialer] connects to a TCP bridge or to a simulated device.
//
// # Errors
//
// Every failure returned by this package is an [*Error] tagged with a [Kind]:
// KindConnect, KindTimeout, KindProtocol or KindTransport. Callers branch on
// [KindOf] instead of error text. [IsRadioFault] recognises the transport
// failures that indicate a wedged local radio stack.
package transport
