package bridge

import (
	"time"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
	"github.com/obsidionlabs/bridge-go/observability"
)

// commonOptions holds the fields shared by create() and join() (spec §4.6).
// Reconnect defaults true: both roles reconnect by default unless told
// otherwise.
type commonOptions struct {
	keyPair              *bridgecrypto.KeyPair
	bridgeURL            string
	reconnect            bool
	reconnectSet         bool
	pingInterval         time.Duration
	connectTimeout       time.Duration
	maxReconnectAttempts int
	observer             observability.SessionObserver
}

func defaultCommonOptions() commonOptions {
	return commonOptions{reconnect: true}
}

// CreateOption configures Create.
type CreateOption func(*createOptions) error

type createOptions struct {
	common commonOptions

	origin          string
	isBrowser       bool
	autoconnect     bool
	autoconnectSet  bool
	resume          bool
	remotePublicKey *bridgecrypto.PublicKey
}

func defaultCreateOptions() createOptions {
	return createOptions{common: defaultCommonOptions(), autoconnect: true}
}

// WithOrigin sets the Creator's declared origin, embedded in the connection
// string and checked by every Joiner (spec §4.4.3). Required outside a
// browser environment.
func WithOrigin(origin string) CreateOption {
	return func(o *createOptions) error {
		o.origin = origin
		return nil
	}
}

// WithBrowser marks the environment as a browser, where Origin must be
// derived from window.location and must not be supplied explicitly
// (spec §4.6). This Go implementation never runs in a browser DOM, but the
// option is kept so a WASM build can honor the same rejection rule.
func WithBrowser(isBrowser bool) CreateOption {
	return func(o *createOptions) error {
		o.isBrowser = isBrowser
		return nil
	}
}

// WithAutoconnect controls whether Create opens the transport immediately
// (default true, per spec §4.6).
func WithAutoconnect(autoconnect bool) CreateOption {
	return func(o *createOptions) error {
		o.autoconnect = autoconnect
		o.autoconnectSet = true
		return nil
	}
}

// WithResume marks this Create call as resuming a previously established
// session: the caller must also supply WithKeyPair and WithRemotePublicKey.
func WithResume(resume bool) CreateOption {
	return func(o *createOptions) error {
		o.resume = resume
		return nil
	}
}

// WithRemotePublicKey supplies the peer's public key for a resumed session.
// Supplying it without WithResume(true) is rejected (spec §4.6).
func WithRemotePublicKey(pub *bridgecrypto.PublicKey) CreateOption {
	return func(o *createOptions) error {
		o.remotePublicKey = pub
		return nil
	}
}

// WithKeyPair supplies a persisted key pair instead of generating a fresh
// one, required for resumption (spec §4.5/§9).
func WithKeyPair(kp bridgecrypto.KeyPair) CreateOption {
	return func(o *createOptions) error {
		o.common.keyPair = &kp
		return nil
	}
}

// WithBridgeURL overrides the relay URL (default defaults.DefaultBridgeURL).
func WithBridgeURL(u string) CreateOption {
	return func(o *createOptions) error {
		o.common.bridgeURL = u
		return nil
	}
}

// WithReconnect controls whether the connection controller reconnects after
// an unintentional close (default true).
func WithReconnect(reconnect bool) CreateOption {
	return func(o *createOptions) error {
		o.common.reconnect = reconnect
		o.common.reconnectSet = true
		return nil
	}
}

// WithPingInterval overrides the keepalive ping period.
func WithPingInterval(d time.Duration) CreateOption {
	return func(o *createOptions) error {
		o.common.pingInterval = d
		return nil
	}
}

// WithConnectTimeout overrides the per-dial connect timeout.
func WithConnectTimeout(d time.Duration) CreateOption {
	return func(o *createOptions) error {
		o.common.connectTimeout = d
		return nil
	}
}

// WithMaxReconnectAttempts overrides the reconnect attempt ceiling.
func WithMaxReconnectAttempts(n int) CreateOption {
	return func(o *createOptions) error {
		o.common.maxReconnectAttempts = n
		return nil
	}
}

// WithObserver attaches a metrics observer (e.g. observability/prom's
// SessionObserver) to this bridge's session and connection layers. The
// default is observability.NoopSessionObserver.
func WithObserver(observer observability.SessionObserver) CreateOption {
	return func(o *createOptions) error {
		o.common.observer = observer
		return nil
	}
}

func applyCreateOptions(opts []CreateOption) (createOptions, error) {
	cfg := defaultCreateOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return createOptions{}, err
		}
	}
	return cfg, nil
}

// validate enforces create()'s rejection rules (spec §4.6).
func (o createOptions) validate() *bridgeerr.Error {
	if o.remotePublicKey != nil && !o.resume {
		return bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeRemoteKeyWithoutResume, nil)
	}
	if o.resume && (o.common.keyPair == nil || o.remotePublicKey == nil) {
		return bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeResumeMissingKeys, nil)
	}
	if o.isBrowser && o.origin != "" {
		return bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeOriginInBrowser, nil)
	}
	if !o.isBrowser && o.origin == "" {
		return bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeMissingOrigin, nil)
	}
	return nil
}

// JoinOption configures Join.
type JoinOption func(*joinOptions) error

type joinOptions struct {
	common commonOptions
	resume bool
}

func defaultJoinOptions() joinOptions {
	return joinOptions{common: defaultCommonOptions()}
}

// WithJoinKeyPair supplies a persisted key pair instead of generating a
// fresh one, required for resumption.
func WithJoinKeyPair(kp bridgecrypto.KeyPair) JoinOption {
	return func(o *joinOptions) error {
		o.common.keyPair = &kp
		return nil
	}
}

// WithJoinResume marks this Join call as resuming a previously established
// session against the same connection string; WithJoinKeyPair must also be
// given so the shared secret can be recomputed without a new handshake.
func WithJoinResume(resume bool) JoinOption {
	return func(o *joinOptions) error {
		o.resume = resume
		return nil
	}
}

// WithJoinBridgeURL overrides the relay URL.
func WithJoinBridgeURL(u string) JoinOption {
	return func(o *joinOptions) error {
		o.common.bridgeURL = u
		return nil
	}
}

// WithJoinReconnect controls reconnection after an unintentional close
// (default true).
func WithJoinReconnect(reconnect bool) JoinOption {
	return func(o *joinOptions) error {
		o.common.reconnect = reconnect
		o.common.reconnectSet = true
		return nil
	}
}

// WithJoinPingInterval overrides the keepalive ping period.
func WithJoinPingInterval(d time.Duration) JoinOption {
	return func(o *joinOptions) error {
		o.common.pingInterval = d
		return nil
	}
}

// WithJoinConnectTimeout overrides the per-dial connect timeout.
func WithJoinConnectTimeout(d time.Duration) JoinOption {
	return func(o *joinOptions) error {
		o.common.connectTimeout = d
		return nil
	}
}

// WithJoinMaxReconnectAttempts overrides the reconnect attempt ceiling.
func WithJoinMaxReconnectAttempts(n int) JoinOption {
	return func(o *joinOptions) error {
		o.common.maxReconnectAttempts = n
		return nil
	}
}

// WithJoinObserver attaches a metrics observer to this bridge's session and
// connection layers. The default is observability.NoopSessionObserver.
func WithJoinObserver(observer observability.SessionObserver) JoinOption {
	return func(o *joinOptions) error {
		o.common.observer = observer
		return nil
	}
}

func applyJoinOptions(opts []JoinOption) (joinOptions, error) {
	cfg := defaultJoinOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return joinOptions{}, err
		}
	}
	return cfg, nil
}

func (o joinOptions) validate() *bridgeerr.Error {
	if o.resume && o.common.keyPair == nil {
		return bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeResumeMissingKeys, nil)
	}
	return nil
}
