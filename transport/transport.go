// Package transport abstracts the byte pipe an SPDM engine sends and
// receives whole messages over, independent of whatever carries them
// (an in-process pipe, a WebSocket, a physical bus). The engine layers
// above never see connection setup, framing, or retries -- only
// Send/Receive of one already-encoded SPDM message at a time.
package transport

// Transport is the minimal interface an SPDM requester or responder
// engine needs from its underlying channel.
type Transport interface {
	// Send transmits one complete, already-encoded SPDM message.
	Send(msg []byte) error

	// Receive reads one complete SPDM message into buf, returning the
	// number of bytes written. buf must be sized for the implementation's
	// largest expected message (protocol.MaxMessageBufferSize is the
	// engine's own ceiling).
	Receive(buf []byte) (int, error)
}
