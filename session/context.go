// Package session implements the state machine from spec §4.4: role-specific
// handshakes, secure-channel establishment, duplicate suppression, chunk
// reassembly, and origin validation. It owns no transport and is driven
// entirely by Context.HandleFrame and Context.SendSecure; its only timers
// are the chunk buffer's eviction sweep and SendSecure's pause between chunks.
package session

import (
	"sync"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
	"github.com/obsidionlabs/bridge-go/envelope"
	"github.com/obsidionlabs/bridge-go/observability"
)

// Callbacks are the events a Context emits, mirroring the public facade's
// event surface (spec §4.6). WriteFrame is the one thing Context asks its
// owner to do on its behalf; everything else is notification only.
type Callbacks struct {
	WriteFrame                 func(outer envelope.Outer) error
	OnSecureChannelEstablished func()
	OnMessageReceived          func(method string, params []byte)
	OnChunkReceived            func(chunkID string, index, length uint32)
	OnError                    func(err *bridgeerr.Error)
}

// Context is the authoritative per-session record from spec §3, guarded by
// a single mutex held across the full handling of one inbound frame — the Go
// realization of the single-threaded cooperative event loop (spec §5).
type Context struct {
	mu sync.Mutex

	role         bridgeerr.Role
	keyPair      bridgecrypto.KeyPair
	bridgeID     string
	origin       string // Creator's declared origin.
	bridgeOrigin string // Joiner's expected origin, from the connection string.

	remotePublicKey          *bridgecrypto.PublicKey
	sharedSecret             [bridgecrypto.SharedSecretLen]byte
	secureChannelEstablished bool
	resumedSession           bool

	seenMessageIDs        map[string]struct{}
	validMessagesReceived int
	lastMessageTimestamp  int64

	chunks *envelope.ChunkBuffer

	cb       Callbacks
	observer observability.SessionObserver
}

// Config is the input needed to construct a Context for either role.
type Config struct {
	Role         bridgeerr.Role
	KeyPair      bridgecrypto.KeyPair
	BridgeID     string
	Origin       string // Set for Creator.
	BridgeOrigin string // Set for Joiner.

	// Resume, when true, precomputes the shared secret and marks the
	// channel established without running the handshake (spec §4.5).
	Resume          bool
	RemotePublicKey *bridgecrypto.PublicKey

	// Observer receives metric events (spec §4.4/§4.5's named transitions).
	// A nil Observer is equivalent to observability.NoopSessionObserver.
	Observer observability.SessionObserver
}

// New constructs a Context. For a resumed session, RemotePublicKey must be
// set (for Creator, this is required by spec §4.6's rejection rules, which
// the public facade enforces before calling New).
//
// The Joiner always knows the Creator's public key up front (it is part of
// the connection string), so it precomputes shared_secret unilaterally
// (spec §4.4.2) regardless of Resume — unlike the Creator, which only
// learns the remote key from an inbound handshake frame. Resume additionally
// skips waiting for the "hello" reply and marks the channel established
// immediately (spec §4.5).
func New(cfg Config, cb Callbacks) *Context {
	observer := cfg.Observer
	if observer == nil {
		observer = observability.NoopSessionObserver
	}
	c := &Context{
		role:           cfg.Role,
		keyPair:        cfg.KeyPair,
		bridgeID:       cfg.BridgeID,
		origin:         cfg.Origin,
		bridgeOrigin:   cfg.BridgeOrigin,
		seenMessageIDs: make(map[string]struct{}),
		chunks:         envelope.NewChunkBuffer(),
		cb:             cb,
		observer:       observer,
	}
	c.chunks.SetObserverHooks(observer.ChunkGroupOpened, observer.ChunkGroupClosed, observer.ChunkGroupsEvicted)
	if cfg.RemotePublicKey != nil && (cfg.Role == bridgeerr.RoleJoiner || cfg.Resume) {
		c.remotePublicKey = cfg.RemotePublicKey
		c.sharedSecret = cfg.KeyPair.DeriveSharedSecret(cfg.RemotePublicKey)
	}
	if cfg.Resume && cfg.RemotePublicKey != nil {
		c.secureChannelEstablished = true
		c.resumedSession = true
	}
	return c
}

// Close releases the chunk buffer's background sweep and zeroes the shared
// secret and the remote public key. connection.Controller.Close calls it.
func (c *Context) Close() {
	c.chunks.Close()
	c.mu.Lock()
	c.sharedSecret = [bridgecrypto.SharedSecretLen]byte{}
	c.remotePublicKey = nil
	c.mu.Unlock()
}

// IsSecureChannelEstablished reports whether the handshake has completed (or
// was skipped via resumption).
func (c *Context) IsSecureChannelEstablished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secureChannelEstablished
}

// IsResumed reports whether this session skipped the handshake via
// resumption.
func (c *Context) IsResumed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumedSession
}

// RemotePublicKey returns the peer's public key, or nil if not yet known.
func (c *Context) RemotePublicKey() *bridgecrypto.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remotePublicKey
}

// KeyPair returns the session's own key pair.
func (c *Context) KeyPair() bridgecrypto.KeyPair {
	return c.keyPair
}

// LastMessageTimestamp returns the timestamp (ms since epoch) of the last
// accepted inbound message, or 0 if none has been accepted yet, used to
// build the replay request on reconnect (spec §4.5).
func (c *Context) LastMessageTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessageTimestamp
}

// ValidMessagesReceived returns the running count of accepted inbound
// messages, exposed for observability.
func (c *Context) ValidMessagesReceived() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validMessagesReceived
}

func (c *Context) codec() envelope.Codec {
	return envelope.Codec{SharedSecret: c.sharedSecret, BridgeID: c.bridgeID}
}

// pendingCalls accumulates callback invocations discovered while c.mu is
// held, so they can run after it is released. HandleFrame is the only
// caller that constructs one; everything under *Locked receives it by
// pointer and appends rather than calling c.cb.* directly, matching the
// teacher's read-loop-dispatches-outside-lock shape.
type pendingCalls []func()

func (p *pendingCalls) add(fn func()) {
	*p = append(*p, fn)
}

func (p pendingCalls) run() {
	for _, fn := range p {
		fn()
	}
}

// emitError queues the OnError callback; it must only be called while
// c.mu is held, and pending must be run after c.mu is released.
func (c *Context) emitError(pending *pendingCalls, err *bridgeerr.Error) {
	if c.cb.OnError != nil {
		pending.add(func() { c.cb.OnError(err) })
	}
}

// dropLocked records a dropped-frame metric alongside queuing the error
// event; the two always go together in dispatch.go.
func (c *Context) dropLocked(pending *pendingCalls, reason observability.DropReason, err *bridgeerr.Error) {
	c.observer.MessageDropped(reason)
	c.emitError(pending, err)
}
