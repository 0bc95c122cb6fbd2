// Package envelope implements the wire codec from spec §4.2: the outer
// JSON-RPC envelope exchanged over the relay, the encrypted inner message it
// carries, and the chunking/reassembly needed for payloads larger than a
// single frame.
package envelope

import (
	"encoding/json"
	"errors"
)

// Method names used on the outer JSON-RPC envelope (spec §6).
const (
	MethodEncryptedMessage = "encryptedMessage"
	MethodHandshake        = "handshake"
	MethodHello            = "hello"
	MethodPing             = "ping"
	MethodPong             = "pong"
	MethodReplay           = "replay"
	MethodError            = "error"
)

var (
	ErrMissingID      = errors.New("envelope: missing id")
	ErrInvalidPayload = errors.New("envelope: invalid payload")
)

// Outer is the JSON-RPC-framed envelope exchanged with the relay.
type Outer struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	NoCache bool            `json:"nocache,omitempty"`
}

// Marshal encodes the outer envelope as it goes out over the wire.
func (o Outer) Marshal() ([]byte, error) {
	o.JSONRPC = "2.0"
	return json.Marshal(o)
}

// ParseOuter decodes a raw inbound frame into an Outer envelope.
func ParseOuter(raw []byte) (Outer, error) {
	var o Outer
	if err := json.Unmarshal(raw, &o); err != nil {
		return Outer{}, err
	}
	return o, nil
}

// EncryptedPayload is the params shape of an encryptedMessage envelope.
type EncryptedPayload struct {
	Payload string `json:"payload"`
}

// HandshakeParams is the params shape of a handshake envelope.
type HandshakeParams struct {
	PubKey   string `json:"pubkey"`
	Greeting string `json:"greeting"`
}

// ReplayParams is the params shape of a replay request.
type ReplayParams struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorParams is the params shape of an error notification.
type ErrorParams struct {
	Message string `json:"message"`
}

// ChunkMeta describes a chunk's position within its group, per spec §6.
type ChunkMeta struct {
	ID     string `json:"id"`
	Index  uint32 `json:"index"`
	Length uint32 `json:"length"`
}

// Inner is the decrypted message carried inside an encryptedMessage
// envelope (spec §6).
type Inner struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Chunk  *ChunkMeta      `json:"chunk,omitempty"`
}

// Marshal encodes the inner message as plaintext, prior to AEAD sealing.
func (in Inner) Marshal() ([]byte, error) {
	return json.Marshal(in)
}

// ParseInner decodes decrypted plaintext into an Inner message.
func ParseInner(plaintext []byte) (Inner, error) {
	var in Inner
	if err := json.Unmarshal(plaintext, &in); err != nil {
		return Inner{}, err
	}
	return in, nil
}

// IsSinglePart reports whether the inner message is not part of a
// multi-chunk group (absent chunk metadata, or length == 1).
func (in Inner) IsSinglePart() bool {
	return in.Chunk == nil || in.Chunk.Length <= 1
}
