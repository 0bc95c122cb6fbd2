package wsutil

// envelopeOverheadBytes is headroom for the outer JSON-RPC envelope
// (jsonrpc/id/method/origin fields) and the inner method/chunk wrapper
// around one base64-encoded chunk payload.
const envelopeOverheadBytes = 1024

// base64Expansion is a generous upper bound on the blowup of base64-encoding
// a chunk's raw bytes (the exact ratio is 4/3, plus padding).
const base64Expansion = 4

// defaultMaxPayloadSize mirrors internal/defaults.MaxPayloadSize; duplicated
// here rather than imported so wsutil stays free of a dependency on the
// bridge-specific defaults package.
const defaultMaxPayloadSize = 32 * 1024

// ReadLimit returns a conservative per-message websocket read limit (in
// bytes) sized to a single outer envelope carrying one chunk of
// maxPayloadSize raw bytes, base64-encoded, plus JSON framing overhead.
//
// A zero/negative maxPayloadSize falls back to defaultMaxPayloadSize so
// callers never have to special-case an unset config.
func ReadLimit(maxPayloadSize int) int64 {
	mp := int64(maxPayloadSize)
	if mp <= 0 {
		mp = defaultMaxPayloadSize
	}
	return mp*base64Expansion + envelopeOverheadBytes
}
