package session

import (
	"time"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
	"github.com/obsidionlabs/bridge-go/envelope"
	"github.com/obsidionlabs/bridge-go/observability"
	"github.com/obsidionlabs/bridge-go/origin"
)

// HandleFrame processes one raw inbound frame per spec §4.4.4: method
// routing for ping/pong, missing-id drop, duplicate-id drop, then dispatch
// by method to the handshake or encryptedMessage handlers. The relay stamps
// its observed origin directly onto the envelope's "origin" field (spec §6);
// HandleFrame reads it from there rather than out-of-band.
//
// State mutation happens under c.mu, but every user-facing callback is
// queued into pending and run only after c.mu is released — a listener that
// calls back into the Context (SendSecure, the getters, anything) from
// within a callback must never observe c.mu still held.
func (c *Context) HandleFrame(raw []byte) {
	var pending pendingCalls

	c.mu.Lock()
	c.handleFrameLocked(raw, &pending)
	c.mu.Unlock()

	pending.run()
}

func (c *Context) handleFrameLocked(raw []byte, pending *pendingCalls) {
	outer, err := envelope.ParseOuter(raw)
	if err != nil {
		c.dropLocked(pending, observability.DropReasonInvalidEnvelope,
			bridgeerr.Protocol(bridgeerr.StageEnvelope, bridgeerr.CodeInvalidGreeting, err))
		return
	}

	switch outer.Method {
	case envelope.MethodPing:
		c.replyPongLocked(pending)
		return
	case envelope.MethodPong:
		return
	}

	if outer.ID == "" {
		c.observer.MessageDropped(observability.DropReasonMissingID)
		return
	}
	if _, dup := c.seenMessageIDs[outer.ID]; dup {
		c.observer.MessageDropped(observability.DropReasonDuplicateID)
		return
	}
	c.seenMessageIDs[outer.ID] = struct{}{}
	c.validMessagesReceived++
	c.lastMessageTimestamp = time.Now().UnixMilli()

	switch outer.Method {
	case envelope.MethodHandshake:
		c.handleHandshakeLocked(outer, pending)
	case envelope.MethodEncryptedMessage:
		c.handleEncryptedMessageLocked(outer, pending)
	}
}

func (c *Context) replyPongLocked(pending *pendingCalls) {
	writeFrame := c.cb.WriteFrame
	if writeFrame == nil {
		return
	}
	id, err := bridgecrypto.RandomHexID(16)
	if err != nil {
		return
	}
	pending.add(func() {
		_ = writeFrame(envelope.Outer{ID: id, Method: envelope.MethodPong, Params: []byte("{}"), NoCache: true})
	})
}

func (c *Context) handleEncryptedMessageLocked(outer envelope.Outer, pending *pendingCalls) {
	if c.role == bridgeerr.RoleJoiner && c.bridgeOrigin != "" {
		if !origin.Matches(c.bridgeOrigin, outer.Origin) {
			c.dropLocked(pending, observability.DropReasonOriginMismatch, bridgeerr.OriginMismatch(c.bridgeOrigin, outer.Origin))
			return
		}
	}

	codec := c.codec()
	inner, err := codec.Open(outer)
	if err != nil {
		c.dropLocked(pending, observability.DropReasonDecryptFailed,
			bridgeerr.Crypto(bridgeerr.StageEnvelope, bridgeerr.CodeDecryptFailed, err))
		return
	}

	if inner.IsSinglePart() {
		c.handleSinglePartLocked(inner, pending)
		return
	}
	c.handleChunkLocked(inner, pending)
}

func (c *Context) handleSinglePartLocked(inner envelope.Inner, pending *pendingCalls) {
	if inner.Method == envelope.MethodHello && !c.secureChannelEstablished {
		c.secureChannelEstablished = true
		if cb := c.cb.OnSecureChannelEstablished; cb != nil {
			pending.add(cb)
		}
	}

	params, err := envelope.DecodeSinglePart(inner)
	if err != nil {
		c.dropLocked(pending, observability.DropReasonInflateFailed,
			bridgeerr.Protocol(bridgeerr.StageEnvelope, bridgeerr.CodeInflateFailed, err))
		return
	}
	c.observer.MessageAccepted()
	if cb := c.cb.OnMessageReceived; cb != nil {
		method, p := inner.Method, params
		pending.add(func() { cb(method, p) })
	}
}

func (c *Context) handleChunkLocked(inner envelope.Inner, pending *pendingCalls) {
	var part string
	if err := unmarshalString(inner.Params, &part); err != nil {
		c.dropLocked(pending, observability.DropReasonChunkLengthMismatch,
			bridgeerr.Protocol(bridgeerr.StageEnvelope, bridgeerr.CodeChunkLengthMismatch, err))
		return
	}

	blob, method, done, err := c.chunks.Accept(inner.Method, *inner.Chunk, part)
	if err != nil {
		c.dropLocked(pending, observability.DropReasonChunkLengthMismatch,
			bridgeerr.Protocol(bridgeerr.StageEnvelope, bridgeerr.CodeChunkLengthMismatch, err))
		return
	}
	if cb := c.cb.OnChunkReceived; cb != nil {
		chunkID, index, length := inner.Chunk.ID, inner.Chunk.Index, inner.Chunk.Length
		pending.add(func() { cb(chunkID, index, length) })
	}
	if !done {
		return
	}

	params, err := envelope.DecodeChunked(blob)
	if err != nil {
		c.dropLocked(pending, observability.DropReasonInflateFailed,
			bridgeerr.Protocol(bridgeerr.StageEnvelope, bridgeerr.CodeInflateFailed, err))
		return
	}
	c.observer.MessageAccepted()
	if cb := c.cb.OnMessageReceived; cb != nil {
		p := params
		pending.add(func() { cb(method, p) })
	}
}
