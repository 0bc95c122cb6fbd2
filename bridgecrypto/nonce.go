package bridgecrypto

import "crypto/sha256"

// NonceLen is the AES-GCM nonce size used throughout the bridge.
const NonceLen = 12

// NonceFrom derives the deterministic per-session AEAD nonce from a
// bridge_id, per spec §4.1: SHA-256 of the UTF-8 bridge_id, truncated to the
// first 12 bytes. Safe only because every session uses a fresh shared
// secret; callers must never reuse a key pair and bridge_id pair across
// sessions.
func NonceFrom(bridgeID string) [NonceLen]byte {
	sum := sha256.Sum256([]byte(bridgeID))
	var nonce [NonceLen]byte
	copy(nonce[:], sum[:NonceLen])
	return nonce
}
