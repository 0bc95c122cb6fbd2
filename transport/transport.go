package transport

import "context"

// Transport is the duplex frame channel abstraction from spec §4.3: open,
// send(text_frame), close(code, reason), with message delivery driven by the
// caller's read loop (ReadMessage) rather than a push callback — the
// connection controller owns the single goroutine that turns ReadMessage
// results into the session's on_message/on_close callbacks, preserving the
// single-logical-executor discipline from spec §5.
type Transport interface {
	// WriteMessage sends one text frame, respecting ctx's deadline/cancellation.
	WriteMessage(ctx context.Context, data []byte) error
	// ReadMessage blocks for the next text frame, respecting ctx's deadline/cancellation.
	ReadMessage(ctx context.Context) (messageType int, data []byte, err error)
	// CloseWithStatus sends a close frame with the given code/reason and closes the connection.
	CloseWithStatus(code int, reason string) error
	// Close closes the connection abruptly, without a close handshake.
	Close() error
	// SetReadLimit bounds the size of a single inbound frame.
	SetReadLimit(n int64)
}

var _ Transport = (*Conn)(nil)
