package bridgecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// ErrDecryptFailed is returned by Decrypt on AEAD tag mismatch, per spec
// §4.1's DecryptError.
var ErrDecryptFailed = errors.New("bridgecrypto: decrypt failed")

// Encrypt seals plaintext with AES-256-GCM under sharedSecret, using the
// bridge_id-derived deterministic nonce (spec §4.1).
func Encrypt(plaintext []byte, sharedSecret [SharedSecretLen]byte, bridgeID string) ([]byte, error) {
	gcm, err := newGCM(sharedSecret)
	if err != nil {
		return nil, err
	}
	nonce := NonceFrom(bridgeID)
	return gcm.Seal(nil, nonce[:], plaintext, nil), nil
}

// Decrypt opens ciphertext with AES-256-GCM under sharedSecret, using the
// bridge_id-derived deterministic nonce. Returns ErrDecryptFailed on tag
// mismatch.
func Decrypt(ciphertext []byte, sharedSecret [SharedSecretLen]byte, bridgeID string) ([]byte, error) {
	gcm, err := newGCM(sharedSecret)
	if err != nil {
		return nil, err
	}
	nonce := NonceFrom(bridgeID)
	plaintext, err := gcm.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

func newGCM(sharedSecret [SharedSecretLen]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(sharedSecret[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
