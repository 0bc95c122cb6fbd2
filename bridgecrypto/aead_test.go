package bridgecrypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var secret [SharedSecretLen]byte
	for i := range secret {
		secret[i] = byte(i)
	}
	bridgeID := "02d3ff5e5db7c48c34880bc11e8b457a4b9a6bf2a2f545cf575eb941b08f04adc4"

	plaintext := []byte("hello")
	ciphertext, err := Encrypt(plaintext, secret, bridgeID)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := Decrypt(ciphertext, secret, bridgeID)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptFailsOnWrongKey(t *testing.T) {
	var secretA, secretB [SharedSecretLen]byte
	secretA[0] = 1
	secretB[0] = 2
	bridgeID := "bridge"

	ciphertext, err := Encrypt([]byte("hello, world?"), secretA, bridgeID)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(ciphertext, secretB, bridgeID); err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptFailsOnWrongBridgeID(t *testing.T) {
	var secret [SharedSecretLen]byte
	secret[0] = 7

	ciphertext, err := Encrypt([]byte("payload"), secret, "bridge-a")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(ciphertext, secret, "bridge-b"); err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed for mismatched nonce input, got %v", err)
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	var secret [SharedSecretLen]byte
	secret[0] = 9
	bridgeID := "bridge"

	ciphertext, err := Encrypt([]byte("payload"), secret, bridgeID)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := Decrypt(tampered, secret, bridgeID); err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed for tampered ciphertext, got %v", err)
	}
}
