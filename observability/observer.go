// Package observability defines the metrics surface for a bridge session:
// messages accepted/dropped, chunk-group lifecycle, handshake outcome,
// reconnect attempts, and ping round-trip latency (spec §4.4/§4.5). A
// SessionObserver is wired into session.Context and connection.Controller at
// every state transition those sections name; the no-op implementation is
// the default when a caller doesn't care about metrics.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// DropReason classifies why an inbound frame never reached
// Callbacks.OnMessageReceived.
type DropReason string

const (
	DropReasonMissingID           DropReason = "missing_id"
	DropReasonDuplicateID         DropReason = "duplicate_id"
	DropReasonInvalidEnvelope     DropReason = "invalid_envelope"
	DropReasonOriginMismatch      DropReason = "origin_mismatch"
	DropReasonDecryptFailed       DropReason = "decrypt_failed"
	DropReasonInflateFailed       DropReason = "inflate_failed"
	DropReasonChunkLengthMismatch DropReason = "chunk_length_mismatch"
)

// HandshakeResult classifies the outcome of one Creator-side handshake
// attempt (spec §4.4.1).
type HandshakeResult string

const (
	HandshakeResultOK               HandshakeResult = "ok"
	HandshakeResultInvalidGreeting  HandshakeResult = "invalid_greeting"
	HandshakeResultInvalidPublicKey HandshakeResult = "invalid_public_key"
	HandshakeResultRemoteKeyChanged HandshakeResult = "remote_key_changed"
)

// SessionObserver receives bridge session-level metric events.
type SessionObserver interface {
	MessageAccepted()
	MessageDropped(reason DropReason)
	ChunkGroupOpened()
	ChunkGroupClosed()
	ChunkGroupsEvicted(n int)
	HandshakeOutcome(result HandshakeResult)
	ReconnectAttempt(attempt int)
	PingRoundTrip(d time.Duration)
}

type noopSessionObserver struct{}

func (noopSessionObserver) MessageAccepted() {}
func (noopSessionObserver) MessageDropped(DropReason) {}
func (noopSessionObserver) ChunkGroupOpened() {}
func (noopSessionObserver) ChunkGroupClosed() {}
func (noopSessionObserver) ChunkGroupsEvicted(int) {}
func (noopSessionObserver) HandshakeOutcome(HandshakeResult) {}
func (noopSessionObserver) ReconnectAttempt(int) {}
func (noopSessionObserver) PingRoundTrip(time.Duration) {}

// NoopSessionObserver is a zero-cost observer used when metrics are
// disabled.
var NoopSessionObserver SessionObserver = noopSessionObserver{}

// AtomicSessionObserver swaps its delegate at runtime, so a server can
// attach Prometheus export after a session is already running.
type AtomicSessionObserver struct {
	once sync.Once
	v    atomic.Value
}

type sessionObserverHolder struct {
	obs SessionObserver
}

// NewAtomicSessionObserver returns an initialized atomic observer.
func NewAtomicSessionObserver() *AtomicSessionObserver {
	a := &AtomicSessionObserver{}
	a.once.Do(func() { a.v.Store(&sessionObserverHolder{obs: NoopSessionObserver}) })
	return a
}

// Set replaces the delegate, falling back to the no-op observer on nil.
func (a *AtomicSessionObserver) Set(obs SessionObserver) {
	if obs == nil {
		obs = NoopSessionObserver
	}
	a.once.Do(func() { a.v.Store(&sessionObserverHolder{obs: NoopSessionObserver}) })
	a.v.Store(&sessionObserverHolder{obs: obs})
}

func (a *AtomicSessionObserver) load() SessionObserver {
	a.once.Do(func() { a.v.Store(&sessionObserverHolder{obs: NoopSessionObserver}) })
	return a.v.Load().(*sessionObserverHolder).obs
}

func (a *AtomicSessionObserver) MessageAccepted()             { a.load().MessageAccepted() }
func (a *AtomicSessionObserver) MessageDropped(r DropReason)   { a.load().MessageDropped(r) }
func (a *AtomicSessionObserver) ChunkGroupOpened()             { a.load().ChunkGroupOpened() }
func (a *AtomicSessionObserver) ChunkGroupClosed()             { a.load().ChunkGroupClosed() }
func (a *AtomicSessionObserver) ChunkGroupsEvicted(n int)      { a.load().ChunkGroupsEvicted(n) }
func (a *AtomicSessionObserver) HandshakeOutcome(r HandshakeResult) {
	a.load().HandshakeOutcome(r)
}
func (a *AtomicSessionObserver) ReconnectAttempt(n int) { a.load().ReconnectAttempt(n) }
func (a *AtomicSessionObserver) PingRoundTrip(d time.Duration) {
	a.load().PingRoundTrip(d)
}
