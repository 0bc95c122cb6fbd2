// Package bridge is the public facade from spec §4.6: Create and Join build
// a Bridge, wiring session.Context (protocol state) to connection.Controller
// (transport lifecycle) and exposing the event-subscription surface plus
// send_message/close. Grounded on the teacher's client package, which plays
// the same role (its ConnectTunnel/ConnectDirect wiring a handshake layer to
// a yamux session behind one high-level interface).
package bridge

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
	"github.com/obsidionlabs/bridge-go/connection"
	"github.com/obsidionlabs/bridge-go/envelope"
	"github.com/obsidionlabs/bridge-go/internal/defaults"
	"github.com/obsidionlabs/bridge-go/session"
	"github.com/obsidionlabs/bridge-go/transport"
)

// Bridge is the handle returned by Create and Join. All methods are safe
// for concurrent use.
type Bridge struct {
	role   bridgeerr.Role
	sess   *session.Context
	ctl    *connection.Controller
	events eventBus

	bridgeID         string
	origin           string
	connectionString string
}

// Create opens a session as the Creator (spec §4.6). The returned
// connection string is what the Joiner scans or is given out of band.
func Create(opts ...CreateOption) (*Bridge, *bridgeerr.Error) {
	cfg, err := applyCreateOptions(opts)
	if err != nil {
		if be, ok := err.(*bridgeerr.Error); ok {
			return nil, be
		}
		return nil, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeInvalidConnectionURI, err)
	}
	if verr := cfg.validate(); verr != nil {
		return nil, verr
	}

	kp, genErr := resolveKeyPair(cfg.common.keyPair)
	if genErr != nil {
		return nil, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeInvalidConnectionURI, genErr)
	}
	pub := kp.PublicKey()
	bridgeID := hex.EncodeToString(pub[:])

	b := &Bridge{
		role:             bridgeerr.RoleCreator,
		bridgeID:         bridgeID,
		origin:           cfg.origin,
		connectionString: buildConnectionString(pub, cfg.origin),
	}

	b.sess = session.New(session.Config{
		Role:            bridgeerr.RoleCreator,
		KeyPair:         kp,
		BridgeID:        bridgeID,
		Origin:          cfg.origin,
		Resume:          cfg.resume,
		RemotePublicKey: cfg.remotePublicKey,
		Observer:        cfg.common.observer,
	}, b.sessionCallbacks())

	bridgeURL := cfg.common.bridgeURL
	if bridgeURL == "" {
		bridgeURL = defaults.DefaultBridgeURL
	}

	b.ctl = connection.New(connection.Config{
		Dial: func(ctx context.Context, attempt int) (transport.Transport, error) {
			wsURL := getWSURLCreator(bridgeURL, bridgeID)
			return dialWithOrigin(ctx, wsURL, cfg.origin)
		},
		ConnectTimeout:       cfg.common.connectTimeout,
		PingInterval:         cfg.common.pingInterval,
		MaxReconnectAttempts: cfg.common.maxReconnectAttempts,
		Reconnect:            cfg.common.reconnect,
		MaxPayloadSize:       defaults.MaxPayloadSize,
		Observer:             cfg.common.observer,
	}, b.sess, b.connectionCallbacks())

	autoconnect := cfg.autoconnect || cfg.resume
	if autoconnect {
		if openErr := b.ctl.Open(); openErr != nil {
			return nil, bridgeerr.Transport(bridgeerr.StageConnect, bridgeerr.CodeDialFailed, openErr)
		}
	}
	return b, nil
}

// Join opens a session as the Joiner against a Creator's connection string
// (spec §4.6). Join always connects immediately.
func Join(connectionString string, opts ...JoinOption) (*Bridge, *bridgeerr.Error) {
	parsed, perr := parseConnectionString(connectionString)
	if perr != nil {
		return nil, perr
	}
	cfg, err := applyJoinOptions(opts)
	if err != nil {
		if be, ok := err.(*bridgeerr.Error); ok {
			return nil, be
		}
		return nil, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeInvalidConnectionURI, err)
	}
	if verr := cfg.validate(); verr != nil {
		return nil, verr
	}

	kp, genErr := resolveKeyPair(cfg.common.keyPair)
	if genErr != nil {
		return nil, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeInvalidConnectionURI, genErr)
	}

	b := &Bridge{
		role:             bridgeerr.RoleJoiner,
		bridgeID:         parsed.bridgeID,
		origin:           parsed.domain,
		connectionString: connectionString,
	}

	b.sess = session.New(session.Config{
		Role:            bridgeerr.RoleJoiner,
		KeyPair:         kp,
		BridgeID:        parsed.bridgeID,
		BridgeOrigin:    parsed.domain,
		Resume:          cfg.resume,
		RemotePublicKey: parsed.publicKey,
		Observer:        cfg.common.observer,
	}, b.sessionCallbacks())

	bridgeURL := cfg.common.bridgeURL
	if bridgeURL == "" {
		bridgeURL = defaults.DefaultBridgeURL
	}

	b.ctl = connection.New(connection.Config{
		Dial: func(ctx context.Context, attempt int) (transport.Transport, error) {
			established := b.sess.IsSecureChannelEstablished()
			wsURL, err := getWSURLJoiner(bridgeURL, parsed.bridgeID, established, kp, parsed.publicKey)
			if err != nil {
				return nil, err
			}
			return dialWithOrigin(ctx, wsURL, "")
		},
		ConnectTimeout:       cfg.common.connectTimeout,
		PingInterval:         cfg.common.pingInterval,
		MaxReconnectAttempts: cfg.common.maxReconnectAttempts,
		Reconnect:            cfg.common.reconnect,
		MaxPayloadSize:       defaults.MaxPayloadSize,
		Observer:             cfg.common.observer,
	}, b.sess, b.connectionCallbacks())

	if openErr := b.ctl.Open(); openErr != nil {
		return nil, bridgeerr.Transport(bridgeerr.StageConnect, bridgeerr.CodeDialFailed, openErr)
	}
	return b, nil
}

func resolveKeyPair(kp *bridgecrypto.KeyPair) (bridgecrypto.KeyPair, error) {
	if kp != nil && !kp.IsZero() {
		return *kp, nil
	}
	return bridgecrypto.GenerateKeyPair()
}

func dialWithOrigin(ctx context.Context, wsURL, origin string) (transport.Transport, error) {
	h := http.Header{}
	h.Set("Origin", originHeaderValue(origin))
	conn, _, err := transport.Dial(ctx, wsURL, transport.DialOptions{Header: h})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// sessionCallbacks wires session.Context's notifications onto the facade's
// event bus. WriteFrame reads b.ctl only when a frame is written, so it can
// be set here even though session.New is constructed before connection.New.
func (b *Bridge) sessionCallbacks() session.Callbacks {
	return session.Callbacks{
		WriteFrame: func(outer envelope.Outer) error { return b.ctl.Send(outer) },
		OnSecureChannelEstablished: func() {
			b.events.emitSecureChannelEstablished()
		},
		OnMessageReceived: func(method string, params []byte) {
			b.events.emitSecureMessage(method, params)
		},
		OnError: func(err *bridgeerr.Error) {
			b.events.emitError(err)
		},
	}
}

func (b *Bridge) connectionCallbacks() connection.Callbacks {
	return connection.Callbacks{
		OnConnect: func(reconnection bool) {
			b.events.emitConnect(reconnection)
			if !reconnection && b.sess.IsResumed() {
				// Resumption skips the handshake entirely (spec §4.5): fire
				// SecureChannelEstablished once, right after the first
				// Connected, since session.New never calls back on its own.
				b.events.emitSecureChannelEstablished()
			}
		},
		OnDisconnected: func(code int, reason string, wasConnected, wasIntentionalClose, willReconnect bool) {
			b.events.emitDisconnect(code, reason, wasConnected, wasIntentionalClose, willReconnect)
		},
		OnFailedToConnect: func(err error) {
			b.events.emitFailedToConnect(err)
		},
		OnError: func(err *bridgeerr.Error) {
			b.events.emitError(err)
		},
		OnRawFrame: func(raw []byte) {
			b.events.emitRawMessage(raw)
		},
	}
}

// SendMessage implements send_message(method, params) (spec §4.6): it
// returns false on any send-time failure.
func (b *Bridge) SendMessage(method string, params any) bool {
	return b.sess.SendSecure(method, params)
}

// IsBridgeConnected reports whether the transport is currently attached.
func (b *Bridge) IsBridgeConnected() bool { return b.ctl.IsConnected() }

// IsSecureChannelEstablished reports whether the handshake (or resumption)
// has completed.
func (b *Bridge) IsSecureChannelEstablished() bool { return b.sess.IsSecureChannelEstablished() }

// GetPublicKey returns this session's own 33-byte compressed public key.
func (b *Bridge) GetPublicKey() [bridgecrypto.PublicKeyLen]byte { return b.sess.KeyPair().PublicKey() }

// GetRemotePublicKey returns the peer's public key, or nil if not yet known.
func (b *Bridge) GetRemotePublicKey() *bridgecrypto.PublicKey { return b.sess.RemotePublicKey() }

// GetKeyPair returns this session's key pair, for resumption persistence
// (spec §9: "key material is passed in and out as opaque byte arrays").
func (b *Bridge) GetKeyPair() bridgecrypto.KeyPair { return b.sess.KeyPair() }

// ConnectionString returns the Creator's rendezvous URI. For a Joiner it
// returns the string it was given.
func (b *Bridge) ConnectionString() string { return b.connectionString }

// BridgeID returns the relay-side routing key (spec §3).
func (b *Bridge) BridgeID() string { return b.bridgeID }

// OnConnect subscribes to Connected(reconnection) events.
func (b *Bridge) OnConnect(fn func(reconnection bool)) Unsubscribe { return b.events.onConnect(fn) }

// OnSecureChannelEstablished subscribes to the handshake-complete event.
func (b *Bridge) OnSecureChannelEstablished(fn func()) Unsubscribe {
	return b.events.onSecureChannelEstablished(fn)
}

// OnSecureMessage subscribes to decrypted inbound messages.
func (b *Bridge) OnSecureMessage(fn func(method string, params []byte)) Unsubscribe {
	return b.events.onSecureMessage(fn)
}

// OnRawMessage subscribes to every inbound frame as read off the wire,
// before decryption.
func (b *Bridge) OnRawMessage(fn func(raw []byte)) Unsubscribe { return b.events.onRawMessage(fn) }

// OnError subscribes to the structured error stream (spec §7).
func (b *Bridge) OnError(fn func(err *bridgeerr.Error)) Unsubscribe { return b.events.onError(fn) }

// OnFailedToConnect subscribes to the initial-connect-failure event.
func (b *Bridge) OnFailedToConnect(fn func(err error)) Unsubscribe {
	return b.events.onFailedToConnect(fn)
}

// OnDisconnect subscribes to post-connect close events.
func (b *Bridge) OnDisconnect(fn func(code int, reason string, wasConnected, wasIntentionalClose, willReconnect bool)) Unsubscribe {
	return b.events.onDisconnect(fn)
}

// Close implements cleanup() (spec §4.5/§5): marks the close intentional,
// closes the transport with code 1000, and releases the session's
// resources.
func (b *Bridge) Close() error {
	return b.ctl.Close()
}
