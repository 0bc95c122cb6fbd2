// Package bridgecrypto implements the crypto primitives from spec §4.1:
// secp256k1 ECDH key agreement, AES-256-GCM AEAD with a deterministic
// per-session nonce, and DEFLATE compression for chunked payloads.
package bridgecrypto

import (
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PublicKeyLen is the size of a compressed secp256k1 public key.
const PublicKeyLen = 33

// PrivateKeyLen is the size of a secp256k1 private scalar.
const PrivateKeyLen = 32

// SharedSecretLen is the size of the derived AEAD key.
const SharedSecretLen = 32

var (
	ErrInvalidPrivateKey = errors.New("bridgecrypto: invalid private key")
	ErrInvalidPublicKey  = errors.New("bridgecrypto: invalid public key")
)

// curve is the secp256k1 curve implementation, used purely for its
// crypto/elliptic-compatible field and group arithmetic (Params, IsOnCurve,
// ScalarMult, ScalarBaseMult); this package never touches btcec's own key
// types, so it is not exposed to btcec's own serialization conventions.
var curve = btcec.S256()

// PublicKey is a parsed secp256k1 point, used both for a session's own
// public key material and for a handshake peer's remote public key.
type PublicKey struct {
	X, Y *big.Int
}

// KeyPair is an immutable secp256k1 key pair, per spec §3 ("Immutable once
// assigned to a session").
type KeyPair struct {
	d   *big.Int
	pub [PublicKeyLen]byte
}

// GenerateKeyPair creates a fresh key pair using the CSPRNG, per spec §4.1.
func GenerateKeyPair() (KeyPair, error) {
	priv, x, y, err := elliptic.GenerateKey(curve, rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{d: new(big.Int).SetBytes(priv), pub: compressPoint(x, y)}, nil
}

// KeyPairFromPrivate reconstructs a key pair from a persisted 32-byte private
// scalar (spec §4.5/§9: "key material is passed in and out as opaque byte
// arrays" to support session resumption).
func KeyPairFromPrivate(private []byte) (KeyPair, error) {
	if len(private) != PrivateKeyLen {
		return KeyPair{}, ErrInvalidPrivateKey
	}
	d := new(big.Int).SetBytes(private)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return KeyPair{}, ErrInvalidPrivateKey
	}
	x, y := curve.ScalarBaseMult(private)
	return KeyPair{d: d, pub: compressPoint(x, y)}, nil
}

// PublicKey returns the 33-byte compressed public key.
func (k KeyPair) PublicKey() [PublicKeyLen]byte {
	return k.pub
}

// PrivateKeyBytes exports the 32-byte private scalar for resumption
// persistence. The core never calls this itself; it exists solely for
// callers building their own persistence layer (spec §9).
func (k KeyPair) PrivateKeyBytes() [PrivateKeyLen]byte {
	var out [PrivateKeyLen]byte
	b := k.d.Bytes()
	copy(out[PrivateKeyLen-len(b):], b)
	return out
}

// IsZero reports whether the key pair is the zero value (uninitialized).
func (k KeyPair) IsZero() bool {
	return k.d == nil
}

// ParsePublicKey parses and validates a 33-byte compressed secp256k1 public
// key, decompressing it onto the curve via the standard
// y^2 = x^3 + 7 (mod p) relation and the p ≡ 3 (mod 4) square-root shortcut.
func ParsePublicKey(compressed []byte) (*PublicKey, error) {
	if len(compressed) != PublicKeyLen {
		return nil, ErrInvalidPublicKey
	}
	prefix := compressed[0]
	if prefix != 0x02 && prefix != 0x03 {
		return nil, ErrInvalidPublicKey
	}
	params := curve.Params()
	p := params.P

	x := new(big.Int).SetBytes(compressed[1:])
	if x.Cmp(p) >= 0 {
		return nil, ErrInvalidPublicKey
	}

	// ySq = x^3 + 7 (mod p); secp256k1 has a == 0.
	ySq := new(big.Int).Exp(x, big.NewInt(3), p)
	ySq.Add(ySq, params.B)
	ySq.Mod(ySq, p)

	// p mod 4 == 3 for secp256k1, so sqrt(a) = a^((p+1)/4) mod p when a is a QR.
	exp := new(big.Int).Add(p, big.NewInt(1))
	exp.Rsh(exp, 2)
	y := new(big.Int).Exp(ySq, exp, p)

	check := new(big.Int).Exp(y, big.NewInt(2), p)
	if check.Cmp(ySq) != 0 {
		return nil, ErrInvalidPublicKey
	}

	wantOdd := prefix == 0x03
	if y.Bit(0) == 1 != wantOdd {
		y.Sub(p, y)
	}
	if !curve.IsOnCurve(x, y) {
		return nil, ErrInvalidPublicKey
	}
	return &PublicKey{X: x, Y: y}, nil
}

// Compressed returns the 33-byte compressed encoding of the point.
func (p *PublicKey) Compressed() [PublicKeyLen]byte {
	return compressPoint(p.X, p.Y)
}

func compressPoint(x, y *big.Int) [PublicKeyLen]byte {
	var out [PublicKeyLen]byte
	if y.Bit(0) == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	xb := x.Bytes()
	copy(out[1+(PublicKeyLen-1-len(xb)):], xb)
	return out
}

// DeriveSharedSecret computes ECDH(priv, pub) over secp256k1 and returns the
// first 32 bytes of the compressed representation of the resulting point:
// one parity-prefix byte (0x02/0x03) followed by the first 31 bytes of the
// point's X coordinate. This specific truncation (not a hash, not the bare X
// coordinate) is the wire-compatible convention spec §4.1 requires and must
// be preserved bit-exactly. The package tests do not check it against a
// literal ECDH vector; see DESIGN.md for why.
func (k KeyPair) DeriveSharedSecret(remote *PublicKey) [SharedSecretLen]byte {
	x, y := curve.ScalarMult(remote.X, remote.Y, k.privBytesSlice())
	compressed := compressPoint(x, y)
	var secret [SharedSecretLen]byte
	copy(secret[:], compressed[:SharedSecretLen])
	return secret
}

func (k KeyPair) privBytesSlice() []byte {
	b := k.PrivateKeyBytes()
	return b[:]
}

// RandomHexID returns n random bytes hex-encoded, used for outer-envelope
// JSON-RPC ids and chunk-group ids (spec §6: "<16-byte hex>").
func RandomHexID(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
