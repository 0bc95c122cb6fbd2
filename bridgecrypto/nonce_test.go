package bridgecrypto

import (
	"crypto/sha256"
	"testing"
)

func TestNonceFromMatchesSHA256Prefix(t *testing.T) {
	bridgeID := "02d3ff5e5db7c48c34880bc11e8b457a4b9a6bf2a2f545cf575eb941b08f04adc4"
	sum := sha256.Sum256([]byte(bridgeID))

	nonce := NonceFrom(bridgeID)
	for i := 0; i < NonceLen; i++ {
		if nonce[i] != sum[i] {
			t.Fatalf("nonce byte %d = %x, want %x", i, nonce[i], sum[i])
		}
	}
}

func TestNonceFromDeterministic(t *testing.T) {
	if NonceFrom("same") != NonceFrom("same") {
		t.Fatal("NonceFrom is not deterministic for identical input")
	}
}

func TestNonceFromDiffersByBridgeID(t *testing.T) {
	if NonceFrom("bridge-a") == NonceFrom("bridge-b") {
		t.Fatal("expected distinct bridge ids to produce distinct nonces")
	}
}
