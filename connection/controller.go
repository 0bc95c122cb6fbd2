// Package connection implements the reconnection controller from spec §4.5:
// ping/pong keepalive, exponential-backoff reconnection, replay requests on
// reconnect, and the FailedToConnect/Disconnected close semantics. It owns
// the one goroutine per session that turns transport reads into
// session.Context.HandleFrame calls, preserving the single-logical-executor
// discipline from spec §5 (grounded on the teacher's session.ServeStreams /
// startKeepalive goroutine-plus-stop-channel shape).
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
	"github.com/obsidionlabs/bridge-go/envelope"
	"github.com/obsidionlabs/bridge-go/internal/contextutil"
	"github.com/obsidionlabs/bridge-go/internal/defaults"
	"github.com/obsidionlabs/bridge-go/internal/wsutil"
	"github.com/obsidionlabs/bridge-go/observability"
	"github.com/obsidionlabs/bridge-go/session"
	"github.com/obsidionlabs/bridge-go/transport"
)

// Dialer opens one connection attempt. attempt is 1 for the initial open and
// increments on every reconnect, letting the caller rebuild the URL per
// get_ws_url()'s rules (spec §6): the Joiner's query parameters differ
// before and after the secure channel is established.
type Dialer func(ctx context.Context, attempt int) (transport.Transport, error)

// Config configures a Controller. Dial is the only required field.
type Config struct {
	Dial                 Dialer
	ConnectTimeout       time.Duration
	PingInterval         time.Duration
	MaxReconnectAttempts int
	Reconnect            bool
	MaxPayloadSize       int

	// Observer receives reconnect-attempt and ping-round-trip metric events.
	// A nil Observer is equivalent to observability.NoopSessionObserver.
	Observer observability.SessionObserver
}

// Callbacks are the connection-level events forwarded to the public facade.
type Callbacks struct {
	OnConnect         func(reconnection bool)
	OnDisconnected    func(code int, reason string, wasConnected, wasIntentionalClose, willReconnect bool)
	OnFailedToConnect func(err error)
	OnError           func(err *bridgeerr.Error)
	// OnRawFrame, if set, is invoked with every inbound frame exactly as
	// read off the wire, before session.Context.HandleFrame processes it —
	// the facade's on_raw_message event (spec §4.6).
	OnRawFrame func(raw []byte)
}

// Controller drives one bridge connection's lifecycle over time: dial,
// read loop, ping loop, and reconnect-with-backoff. It is pure plumbing —
// protocol logic lives entirely in session.Context.
type Controller struct {
	cfg  Config
	sess *session.Context
	cb   Callbacks

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	conn             transport.Transport
	everConnected    bool
	intentionalClose bool
	closed           bool

	pingMu   sync.Mutex
	pingSent map[string]time.Time

	observer observability.SessionObserver
}

// New constructs a Controller bound to sess. The caller must still assign
// sess's Callbacks.WriteFrame to ctl.Send before calling Open.
func New(cfg Config, sess *session.Context, cb Callbacks) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	observer := cfg.Observer
	if observer == nil {
		observer = observability.NoopSessionObserver
	}
	return &Controller{
		cfg:      cfg,
		sess:     sess,
		cb:       cb,
		ctx:      ctx,
		cancel:   cancel,
		pingSent: make(map[string]time.Time),
		observer: observer,
	}
}

// Open performs the first connection attempt synchronously; on success it
// starts the read and ping loops and returns nil. On failure it returns the
// dial error directly — spec §4.6's autoconnect/resume paths raise this
// synchronously from create()/join() rather than only via FailedToConnect.
func (ctl *Controller) Open() error {
	conn, err := ctl.dial(1)
	if err != nil {
		return err
	}
	ctl.mu.Lock()
	ctl.conn = conn
	ctl.everConnected = true
	ctl.mu.Unlock()

	go ctl.readLoop(conn)
	go ctl.pingLoop(conn)
	if ctl.cb.OnConnect != nil {
		ctl.cb.OnConnect(false)
	}
	return nil
}

func (ctl *Controller) dial(attempt int) (transport.Transport, error) {
	timeout := ctl.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaults.ConnectTimeout
	}
	dialCtx, cancel := contextutil.WithTimeout(ctl.ctx, timeout)
	defer cancel()
	conn, err := ctl.cfg.Dial(dialCtx, attempt)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(wsutil.ReadLimit(ctl.cfg.MaxPayloadSize))
	return conn, nil
}

// Send implements session.Callbacks.WriteFrame: it marshals and writes one
// outer envelope to the current transport.
func (ctl *Controller) Send(outer envelope.Outer) error {
	ctl.mu.Lock()
	conn := ctl.conn
	ctl.mu.Unlock()
	if conn == nil {
		return errors.New("connection: not connected")
	}
	raw, err := outer.Marshal()
	if err != nil {
		return err
	}
	return conn.WriteMessage(ctl.ctx, raw)
}

// IsConnected reports whether a transport is currently attached.
func (ctl *Controller) IsConnected() bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.conn != nil && !ctl.closed
}

// Close is the user-initiated cleanup() from spec §4.5: marks the close
// intentional, releases the ping/read loops, and closes the transport with
// code 1000.
func (ctl *Controller) Close() error {
	ctl.mu.Lock()
	if ctl.closed {
		ctl.mu.Unlock()
		return nil
	}
	ctl.closed = true
	ctl.intentionalClose = true
	conn := ctl.conn
	ctl.mu.Unlock()

	ctl.cancel()
	ctl.sess.Close()
	if conn != nil {
		return conn.CloseWithStatus(1000, "Connection closed by user")
	}
	return nil
}

func (ctl *Controller) readLoop(conn transport.Transport) {
	for {
		_, raw, err := conn.ReadMessage(ctl.ctx)
		if err != nil {
			ctl.handleClose(conn, err)
			return
		}
		if ctl.cb.OnRawFrame != nil {
			ctl.cb.OnRawFrame(raw)
		}
		ctl.observePong(raw)
		ctl.sess.HandleFrame(raw)
	}
}

// observePong checks an inbound raw frame for a pong reply to one of our own
// pings and, if found, reports the round-trip latency. Session dispatch also
// sees (and ignores) this same frame; tracking is kept here rather than
// plumbed through session.Callbacks since it is purely a transport-level
// timing concern.
func (ctl *Controller) observePong(raw []byte) {
	outer, err := envelope.ParseOuter(raw)
	if err != nil || outer.Method != envelope.MethodPong || outer.ID == "" {
		return
	}
	ctl.pingMu.Lock()
	sentAt, ok := ctl.pingSent[outer.ID]
	if ok {
		delete(ctl.pingSent, outer.ID)
	}
	ctl.pingMu.Unlock()
	if ok {
		ctl.observer.PingRoundTrip(time.Since(sentAt))
	}
}

func (ctl *Controller) pingLoop(conn transport.Transport) {
	interval := defaults.PingInterval(ctl.cfg.PingInterval)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			id, err := bridgecrypto.RandomHexID(16)
			if err != nil {
				continue
			}
			frame := envelope.Outer{ID: id, Method: envelope.MethodPing, Params: []byte("{}")}
			raw, err := frame.Marshal()
			if err != nil {
				continue
			}
			ctl.pingMu.Lock()
			ctl.pingSent[id] = time.Now()
			ctl.pingMu.Unlock()
			if err := conn.WriteMessage(ctl.ctx, raw); err != nil {
				return
			}
		case <-ctl.ctx.Done():
			return
		}
	}
}

// handleClose implements the close semantics from spec §4.5: distinguish a
// deliberate user close from a peer/transport close, and either fire
// Disconnected or schedule a reconnect (or FailedToConnect, if the initial
// open never succeeded).
func (ctl *Controller) handleClose(conn transport.Transport, cause error) {
	ctl.mu.Lock()
	intentional := ctl.intentionalClose
	stillCurrent := ctl.conn == conn
	wasConnected := ctl.everConnected
	ctl.mu.Unlock()

	if intentional || !stillCurrent {
		return
	}

	code, reason := closeCodeAndReason(cause)

	if !wasConnected {
		if ctl.cb.OnFailedToConnect != nil {
			ctl.cb.OnFailedToConnect(cause)
		}
		return
	}

	willReconnect := ctl.cfg.Reconnect
	if ctl.cb.OnDisconnected != nil {
		ctl.cb.OnDisconnected(code, reason, wasConnected, false, willReconnect)
	}
	if !willReconnect {
		return
	}
	go ctl.reconnectLoop(1)
}

// reconnectLoop retries dialing per spec §4.5's backoff schedule
// (internal/defaults.ReconnectDelay): k=1 is immediate, k=2 waits 1s, and so
// on, up to max_reconnect_attempts. k resets to 1 on every fresh disconnect
// (handleClose always starts the loop here), not across the connection's
// whole lifetime.
func (ctl *Controller) reconnectLoop(startK int) {
	max := maxAttempts(ctl.cfg.MaxReconnectAttempts)
	for k := startK; k <= max; k++ {
		ctl.observer.ReconnectAttempt(k)
		select {
		case <-ctl.ctx.Done():
			return
		case <-time.After(defaults.ReconnectDelay(k)):
		}

		ctl.mu.Lock()
		closed := ctl.closed
		ctl.mu.Unlock()
		if closed {
			return
		}

		conn, err := ctl.dial(k)
		if err != nil {
			continue
		}

		ctl.mu.Lock()
		ctl.conn = conn
		ctl.mu.Unlock()

		ctl.afterReconnect(conn)
		go ctl.readLoop(conn)
		go ctl.pingLoop(conn)
		if ctl.cb.OnConnect != nil {
			ctl.cb.OnConnect(true)
		}
		return
	}
	ctl.emitError(bridgeerr.Transport(bridgeerr.StageConnect, bridgeerr.CodeMaxReconnects, errors.New("max reconnect attempts exceeded")))
	if ctl.cb.OnDisconnected != nil {
		ctl.cb.OnDisconnected(0, "max reconnect attempts exceeded", true, false, false)
	}
}

// afterReconnect sends the best-effort replay request from spec §4.5: the
// relay's behavior on it is defined externally (spec §9 open question), so
// this assumes any resent frames are filtered by seen_message_ids.
func (ctl *Controller) afterReconnect(conn transport.Transport) {
	ts := ctl.sess.LastMessageTimestamp()
	if ts <= 0 {
		return
	}
	params, err := json.Marshal(envelope.ReplayParams{Timestamp: ts - 1000})
	if err != nil {
		return
	}
	id, err := bridgecrypto.RandomHexID(16)
	if err != nil {
		return
	}
	frame := envelope.Outer{ID: id, Method: envelope.MethodReplay, Params: params}
	raw, err := frame.Marshal()
	if err != nil {
		return
	}
	_ = conn.WriteMessage(ctl.ctx, raw)
}

func (ctl *Controller) emitError(err *bridgeerr.Error) {
	if ctl.cb.OnError != nil {
		ctl.cb.OnError(err)
	}
}

func maxAttempts(configured int) int {
	if configured <= 0 {
		return defaults.MaxReconnectAttempts
	}
	return configured
}

// closeCodeAndReason extracts a websocket close code/reason from a read/write
// error, falling back to an abnormal-closure code when the transport gives
// none (e.g. a network error rather than a clean close frame).
func closeCodeAndReason(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
