package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/internal/defaults"
)

var (
	// ErrPayloadTooLarge is a fatal send error per spec §4.2 step 3.
	ErrPayloadTooLarge = errors.New("envelope: outer payload exceeds max size")
)

// Codec seals and opens envelopes for one session's shared secret and
// bridge_id, per spec §4.2.
type Codec struct {
	SharedSecret [bridgecrypto.SharedSecretLen]byte
	BridgeID     string
}

// OutboundFrame is one outer envelope ready to be written to the transport,
// paired with its envelope id. It carries no pacing delay; waiting between
// chunk sends is left to the caller (see SealChunked).
type OutboundFrame struct {
	ID    string
	Outer Outer
}

// SealSinglePart builds a single, unchunked outbound frame for send_secure
// with empty/absent params (spec §4.2 step 1).
func (c Codec) SealSinglePart(id, method string) (OutboundFrame, error) {
	inner := Inner{Method: method, Params: json.RawMessage("{}")}
	return c.seal(id, inner)
}

// SealChunked builds the ordered sequence of outbound frames for send_secure
// with non-empty params, deflate-compressing and chunking the payload per
// spec §4.2 step 2. Callers must wait defaults.ChunkPace between sending
// successive frames.
func (c Codec) SealChunked(ids []string, chunkGroupID, method string, params any) ([]OutboundFrame, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	compressed, err := bridgecrypto.Deflate(paramsJSON)
	if err != nil {
		return nil, err
	}
	blob := base64.StdEncoding.EncodeToString(compressed)

	n := (len(blob) + defaults.ChunkSize - 1) / defaults.ChunkSize
	if n == 0 {
		n = 1
	}
	if len(ids) != n {
		return nil, errors.New("envelope: id count does not match chunk count")
	}

	frames := make([]OutboundFrame, 0, n)
	for i := 0; i < n; i++ {
		start := i * defaults.ChunkSize
		end := start + defaults.ChunkSize
		if end > len(blob) {
			end = len(blob)
		}
		inner := Inner{
			Method: method,
			Params: mustQuote(blob[start:end]),
			Chunk: &ChunkMeta{
				ID:     chunkGroupID,
				Index:  uint32(i),
				Length: uint32(n),
			},
		}
		frame, err := c.seal(ids[i], inner)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// ChunkCount reports how many chunks send_secure(method, params) would
// produce, so the caller can mint that many outer envelope ids up front.
func ChunkCount(params any) (int, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, err
	}
	compressed, err := bridgecrypto.Deflate(paramsJSON)
	if err != nil {
		return 0, err
	}
	blob := base64.StdEncoding.EncodeToString(compressed)
	n := (len(blob) + defaults.ChunkSize - 1) / defaults.ChunkSize
	if n == 0 {
		n = 1
	}
	return n, nil
}

// SealRaw builds a single outbound frame from an arbitrary already-encoded
// inner params value (e.g. the literal JSON null used by the handshake's
// "hello" reply, spec §4.4.1), bypassing the send_secure chunking rules.
func (c Codec) SealRaw(id, method string, params json.RawMessage) (OutboundFrame, error) {
	return c.seal(id, Inner{Method: method, Params: params})
}

func (c Codec) seal(id string, inner Inner) (OutboundFrame, error) {
	plaintext, err := inner.Marshal()
	if err != nil {
		return OutboundFrame{}, err
	}
	ciphertext, err := bridgecrypto.Encrypt(plaintext, c.SharedSecret, c.BridgeID)
	if err != nil {
		return OutboundFrame{}, err
	}
	payload := EncryptedPayload{Payload: base64.StdEncoding.EncodeToString(ciphertext)}
	paramsJSON, err := json.Marshal(payload)
	if err != nil {
		return OutboundFrame{}, err
	}
	if len(paramsJSON) > defaults.MaxPayloadSize {
		return OutboundFrame{}, ErrPayloadTooLarge
	}
	outer := Outer{ID: id, Method: MethodEncryptedMessage, Params: paramsJSON}
	return OutboundFrame{ID: id, Outer: outer}, nil
}

// Open decrypts and parses the inner message carried by an encryptedMessage
// envelope (spec §4.2 inbound steps 1-2).
func (c Codec) Open(outer Outer) (Inner, error) {
	var payload EncryptedPayload
	if err := json.Unmarshal(outer.Params, &payload); err != nil {
		return Inner{}, ErrInvalidPayload
	}
	ciphertext, err := base64.StdEncoding.DecodeString(payload.Payload)
	if err != nil {
		return Inner{}, ErrInvalidPayload
	}
	plaintext, err := bridgecrypto.Decrypt(ciphertext, c.SharedSecret, c.BridgeID)
	if err != nil {
		return Inner{}, err
	}
	return ParseInner(plaintext)
}

// DecodeSinglePart resolves a single-part Inner's params, handling both the
// compressed path (base64 -> inflate -> JSON) and the legacy uncompressed
// fallback from spec §4.2 inbound step 3 / §9's open question.
func DecodeSinglePart(in Inner) (json.RawMessage, error) {
	var asString string
	if err := json.Unmarshal(in.Params, &asString); err != nil || asString == "" {
		// params is not a non-empty string: pass through as-is (e.g. already
		// an object, as with the "hello" handshake reply).
		return in.Params, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(asString)
	if err != nil {
		return in.Params, nil
	}
	inflated, err := bridgecrypto.Inflate(decoded)
	if errors.Is(err, bridgecrypto.ErrLegacyUncompressed) {
		return in.Params, nil
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(inflated) {
		return nil, ErrInvalidPayload
	}
	return json.RawMessage(inflated), nil
}

// DecodeChunked resolves a completed chunk group's concatenated blob:
// base64-decode, inflate, JSON-parse (spec §4.2 inbound step 4).
func DecodeChunked(blob string) (json.RawMessage, error) {
	decoded, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	inflated, err := bridgecrypto.Inflate(decoded)
	if err != nil {
		return nil, err
	}
	if !json.Valid(inflated) {
		return nil, ErrInvalidPayload
	}
	return json.RawMessage(inflated), nil
}

func mustQuote(s string) json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return b
}
