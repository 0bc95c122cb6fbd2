// Package bridgetest provides an in-process stand-in for the untrusted relay
// server the bridge protocol assumes (spec §3): it routes frames between
// peers sharing a bridge_id, stamps the Creator's declared origin onto every
// forwarded frame exactly as described in spec §6, and honors the "moc"
// (message-on-connect) query parameter used by a Joiner's pre-handshake
// dial. It understands nothing about handshakes, encryption, or chunking —
// only topic routing — mirroring how little the real relay is trusted with.
package bridgetest

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/obsidionlabs/bridge-go/envelope"
	"github.com/obsidionlabs/bridge-go/transport"
)

// Relay is an httptest-backed websocket relay for exercising the bridge
// protocol end to end without a real network.
type Relay struct {
	server        *httptest.Server
	allowedOrigin []string // Empty means allow every origin.

	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	mu            sync.Mutex
	origin        string // The Creator's declared origin, stamped onto forwarded frames.
	peers         map[*peer]struct{}
	duplicateNext bool
}

type peer struct {
	conn      *transport.Conn
	closeOnce sync.Once
}

// New starts a relay. allowedOrigins, if non-empty, is enforced at the
// websocket upgrade via transport.NewOriginChecker — a layer distinct from,
// and in addition to, the bridge-level origin check the Joiner itself
// performs on every decrypted frame (session/dispatch.go).
func New(allowedOrigins ...string) *Relay {
	r := &Relay{allowedOrigin: allowedOrigins, topics: make(map[string]*topic)}
	r.server = httptest.NewServer(http.HandlerFunc(r.handle))
	return r
}

// URL returns the relay's ws:// base URL, suitable for WithBridgeURL /
// WithJoinBridgeURL.
func (r *Relay) URL() string {
	return "ws" + r.server.URL[len("http"):]
}

// Close shuts down the relay and every connected peer.
func (r *Relay) Close() {
	r.server.Close()
}

// ForceClose abruptly drops every peer currently connected on bridgeID,
// simulating the transport failure a reconnect test needs to provoke.
func (r *Relay) ForceClose(bridgeID string) {
	r.mu.Lock()
	tp := r.topics[bridgeID]
	r.mu.Unlock()
	if tp == nil {
		return
	}
	tp.mu.Lock()
	peers := make([]*peer, 0, len(tp.peers))
	for p := range tp.peers {
		peers = append(peers, p)
	}
	tp.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

// DuplicateNextFrame makes the relay deliver the next frame on bridgeID
// twice, for exercising duplicate-suppression.
func (r *Relay) DuplicateNextFrame(bridgeID string) {
	r.mu.Lock()
	tp := r.topicLocked(bridgeID)
	r.mu.Unlock()
	tp.mu.Lock()
	tp.duplicateNext = true
	tp.mu.Unlock()
}

func (r *Relay) topicLocked(bridgeID string) *topic {
	tp, ok := r.topics[bridgeID]
	if !ok {
		tp = &topic{peers: make(map[*peer]struct{})}
		r.topics[bridgeID] = tp
	}
	return tp
}

func (r *Relay) handle(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	bridgeID := q.Get("id")
	if bridgeID == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	checkOrigin := func(*http.Request) bool { return true }
	if len(r.allowedOrigin) > 0 {
		checkOrigin = transport.NewOriginChecker(r.allowedOrigin, false)
	}
	conn, err := transport.Upgrade(w, req, transport.UpgraderOptions{CheckOrigin: checkOrigin})
	if err != nil {
		return
	}

	r.mu.Lock()
	tp := r.topicLocked(bridgeID)
	r.mu.Unlock()

	tp.mu.Lock()
	if len(tp.peers) == 0 {
		// The first connection on a topic is always the Creator (the Joiner's
		// dial always carries moc or arrives after the Creator is waiting).
		tp.origin = req.Header.Get("Origin")
	}
	p := &peer{conn: conn}
	tp.peers[p] = struct{}{}
	tp.mu.Unlock()

	if moc := q.Get("moc"); moc != "" {
		r.deliverMessageOnConnect(tp, p, moc)
	}

	r.readLoop(tp, p)
}

// deliverMessageOnConnect decodes the base64-encoded handshake frame from
// the "moc" query parameter and forwards it to every other peer already on
// the topic (the Creator), exactly as broadcastToOthers would for any other
// inbound frame.
func (r *Relay) deliverMessageOnConnect(tp *topic, sender *peer, moc string) {
	raw, err := base64.StdEncoding.DecodeString(moc)
	if err != nil {
		return
	}
	r.broadcastToOthers(tp, sender, raw)
}

func (r *Relay) readLoop(tp *topic, p *peer) {
	defer p.close()
	defer r.dropPeer(tp, p)
	ctx := context.Background()
	for {
		_, raw, err := p.conn.ReadMessage(ctx)
		if err != nil {
			return
		}
		r.broadcastToOthers(tp, p, raw)
	}
}

// broadcastToOthers stamps the topic's Creator-declared origin onto the
// frame (spec §6: only the relay is positioned to do this, since it alone
// sees both the Creator's Origin header and every envelope in transit) and
// forwards it to every peer on the topic except the sender.
func (r *Relay) broadcastToOthers(tp *topic, sender *peer, raw []byte) {
	outer, err := envelope.ParseOuter(raw)
	if err != nil {
		return
	}
	tp.mu.Lock()
	outer.Origin = tp.origin
	dup := tp.duplicateNext
	tp.duplicateNext = false
	targets := make([]*peer, 0, len(tp.peers))
	for other := range tp.peers {
		if other != sender {
			targets = append(targets, other)
		}
	}
	tp.mu.Unlock()

	stamped, err := outer.Marshal()
	if err != nil {
		return
	}
	ctx := context.Background()
	for _, other := range targets {
		_ = other.conn.WriteMessage(ctx, stamped)
		if dup {
			_ = other.conn.WriteMessage(ctx, stamped)
		}
	}
}

func (r *Relay) dropPeer(tp *topic, p *peer) {
	tp.mu.Lock()
	delete(tp.peers, p)
	tp.mu.Unlock()
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		_ = p.conn.CloseWithStatus(1000, "relay closing")
	})
}
