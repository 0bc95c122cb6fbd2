package session

import (
	"encoding/hex"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
	"github.com/obsidionlabs/bridge-go/envelope"
	"github.com/obsidionlabs/bridge-go/observability"
)

// handleHandshakeLocked implements the Creator handshake from spec §4.4.1.
// Only the Creator ever receives a handshake frame; the Joiner is the
// initiator and precomputes its own shared secret (see Greeting below).
func (c *Context) handleHandshakeLocked(outer envelope.Outer, pending *pendingCalls) {
	if c.role != bridgeerr.RoleCreator {
		return
	}

	var params envelope.HandshakeParams
	if err := parseOuterParams(outer, &params); err != nil {
		c.observer.HandshakeOutcome(observability.HandshakeResultInvalidGreeting)
		c.emitError(pending, bridgeerr.Protocol(bridgeerr.StageHandshake, bridgeerr.CodeInvalidGreeting, err))
		return
	}

	remotePubBytes, err := hex.DecodeString(params.PubKey)
	if err != nil {
		c.observer.HandshakeOutcome(observability.HandshakeResultInvalidPublicKey)
		c.emitError(pending, bridgeerr.Protocol(bridgeerr.StageHandshake, bridgeerr.CodeInvalidPublicKey, err))
		return
	}
	remotePub, err := bridgecrypto.ParsePublicKey(remotePubBytes)
	if err != nil {
		c.observer.HandshakeOutcome(observability.HandshakeResultInvalidPublicKey)
		c.emitError(pending, bridgeerr.Protocol(bridgeerr.StageHandshake, bridgeerr.CodeInvalidPublicKey, err))
		return
	}

	if c.secureChannelEstablished && c.remotePublicKey != nil && c.remotePublicKey.Compressed() != remotePub.Compressed() {
		c.replyErrorLocked(pending, "remote public key changed after handshake")
		c.observer.HandshakeOutcome(observability.HandshakeResultRemoteKeyChanged)
		c.emitError(pending, bridgeerr.Protocol(bridgeerr.StageHandshake, bridgeerr.CodeRemoteKeyChanged, nil))
		return
	}

	sharedSecret := c.keyPair.DeriveSharedSecret(remotePub)

	greetingCiphertext, err := hex.DecodeString(params.Greeting)
	if err != nil {
		c.observer.HandshakeOutcome(observability.HandshakeResultInvalidGreeting)
		c.emitError(pending, bridgeerr.Crypto(bridgeerr.StageHandshake, bridgeerr.CodeInvalidGreeting, err))
		return
	}
	greeting, err := bridgecrypto.Decrypt(greetingCiphertext, sharedSecret, c.bridgeID)
	if err != nil || string(greeting) != Greeting {
		c.observer.HandshakeOutcome(observability.HandshakeResultInvalidGreeting)
		c.emitError(pending, bridgeerr.Crypto(bridgeerr.StageHandshake, bridgeerr.CodeInvalidGreeting, err))
		return
	}

	c.remotePublicKey = remotePub
	c.sharedSecret = sharedSecret

	c.sendInnerLocked(pending, envelope.MethodHello)

	if !c.secureChannelEstablished {
		c.secureChannelEstablished = true
		if cb := c.cb.OnSecureChannelEstablished; cb != nil {
			pending.add(cb)
		}
	}
	c.observer.HandshakeOutcome(observability.HandshakeResultOK)
}

// Greeting is the literal plaintext encrypted as the handshake greeting
// (spec §4.1/§4.4.2).
const Greeting = "hello"

// BuildJoinerGreeting precomputes the Joiner's shared secret and encrypts
// the handshake greeting, per spec §4.4.2. The bridge package's Joiner URL
// builder embeds the result as the "moc" connect URL parameter.
func BuildJoinerGreeting(kp bridgecrypto.KeyPair, remotePub *bridgecrypto.PublicKey, bridgeID string) (pubkeyHex, greetingHex string, sharedSecret [bridgecrypto.SharedSecretLen]byte, err error) {
	sharedSecret = kp.DeriveSharedSecret(remotePub)
	ciphertext, err := bridgecrypto.Encrypt([]byte(Greeting), sharedSecret, bridgeID)
	if err != nil {
		return "", "", [bridgecrypto.SharedSecretLen]byte{}, err
	}
	pub := kp.PublicKey()
	return hex.EncodeToString(pub[:]), hex.EncodeToString(ciphertext), sharedSecret, nil
}

func (c *Context) replyErrorLocked(pending *pendingCalls, message string) {
	writeFrame := c.cb.WriteFrame
	if writeFrame == nil {
		return
	}
	id, err := bridgecrypto.RandomHexID(16)
	if err != nil {
		return
	}
	params, err := marshalErrorParams(message)
	if err != nil {
		return
	}
	pending.add(func() {
		_ = writeFrame(envelope.Outer{ID: id, Method: envelope.MethodError, Params: params})
	})
}

// sendInnerLocked sends an internal protocol message (e.g. the handshake's
// "hello" reply) with literal JSON null params, per spec §4.4.1.
func (c *Context) sendInnerLocked(pending *pendingCalls, method string) {
	writeFrame := c.cb.WriteFrame
	if writeFrame == nil {
		return
	}
	id, err := bridgecrypto.RandomHexID(16)
	if err != nil {
		return
	}
	frame, err := c.codec().SealRaw(id, method, []byte("null"))
	if err != nil {
		return
	}
	c.seenMessageIDs[frame.ID] = struct{}{}
	outer := frame.Outer
	pending.add(func() {
		_ = writeFrame(outer)
	})
}
