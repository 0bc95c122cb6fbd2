package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
	"github.com/obsidionlabs/bridge-go/envelope"
)

// highEntropyString returns n hex characters of cryptographically random
// content, used so DEFLATE cannot collapse a large test payload down to a
// single chunk.
func highEntropyString(t *testing.T, n int) string {
	t.Helper()
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return hex.EncodeToString(b)[:n]
}

type wiring struct {
	creator *Context
	joiner  *Context

	creatorEstablished bool
	joinerEstablished  bool

	creatorReceived []receivedMsg
	joinerReceived  []receivedMsg

	creatorErrors []*bridgeerr.Error
	joinerErrors  []*bridgeerr.Error
}

type receivedMsg struct {
	method string
	params string
}

// newWiring builds a Creator and Joiner Context pair whose WriteFrame
// callbacks deliver directly into each other's HandleFrame, simulating an
// ideal relay (spec §4.4's handshake without needing a transport).
func newWiring(t *testing.T, originURL string) *wiring {
	t.Helper()
	creatorKP, err := bridgecrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	joinerKP, err := bridgecrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	creatorPub := creatorKP.PublicKey()
	bridgeID := hex.EncodeToString(creatorPub[:])

	creatorPubKey, err := bridgecrypto.ParsePublicKey(creatorPub[:])
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}

	w := &wiring{}

	w.creator = New(Config{
		Role:     bridgeerr.RoleCreator,
		KeyPair:  creatorKP,
		BridgeID: bridgeID,
		Origin:   originURL,
	}, Callbacks{
		WriteFrame: func(outer envelope.Outer) error {
			// Simulate the relay stamping the Creator's declared origin onto
			// every frame it forwards to the Joiner (spec §6).
			outer.Origin = originURL
			raw, err := outer.Marshal()
			if err != nil {
				return err
			}
			w.joiner.HandleFrame(raw)
			return nil
		},
		OnSecureChannelEstablished: func() { w.creatorEstablished = true },
		OnMessageReceived: func(method string, params []byte) {
			w.creatorReceived = append(w.creatorReceived, receivedMsg{method, string(params)})
		},
		OnError: func(err *bridgeerr.Error) { w.creatorErrors = append(w.creatorErrors, err) },
	})

	w.joiner = New(Config{
		Role:            bridgeerr.RoleJoiner,
		KeyPair:         joinerKP,
		BridgeID:        bridgeID,
		BridgeOrigin:    originURL,
		RemotePublicKey: creatorPubKey,
	}, Callbacks{
		WriteFrame: func(outer envelope.Outer) error {
			raw, err := outer.Marshal()
			if err != nil {
				return err
			}
			w.creator.HandleFrame(raw)
			return nil
		},
		OnSecureChannelEstablished: func() { w.joinerEstablished = true },
		OnMessageReceived: func(method string, params []byte) {
			w.joinerReceived = append(w.joinerReceived, receivedMsg{method, string(params)})
		},
		OnError: func(err *bridgeerr.Error) { w.joinerErrors = append(w.joinerErrors, err) },
	})

	t.Cleanup(func() {
		w.creator.Close()
		w.joiner.Close()
	})

	// Joiner sends its handshake frame (normally delivered via the relay's
	// "moc" message-on-connect parameter or pubkey/greeting query params,
	// spec §4.4.2); here we build and deliver it directly.
	pubHex, greetHex, _, err := BuildJoinerGreeting(joinerKP, creatorPubKey, bridgeID)
	if err != nil {
		t.Fatalf("BuildJoinerGreeting: %v", err)
	}
	handshakeParams, err := json.Marshal(envelope.HandshakeParams{PubKey: pubHex, Greeting: greetHex})
	if err != nil {
		t.Fatalf("marshal handshake params: %v", err)
	}
	outer := envelope.Outer{ID: "handshake-1", Method: envelope.MethodHandshake, Params: handshakeParams}
	raw, err := outer.Marshal()
	if err != nil {
		t.Fatalf("marshal outer: %v", err)
	}
	w.creator.HandleFrame(raw)

	return w
}

func TestHandshakeEstablishesBothSides(t *testing.T) {
	w := newWiring(t, "https://localhost")
	if !w.creatorEstablished {
		t.Error("expected creator secure channel established")
	}
	if !w.joinerEstablished {
		t.Error("expected joiner secure channel established")
	}
	if !w.creator.IsSecureChannelEstablished() {
		t.Error("creator.IsSecureChannelEstablished() == false")
	}
	if !w.joiner.IsSecureChannelEstablished() {
		t.Error("joiner.IsSecureChannelEstablished() == false")
	}
}

func TestSmallMessageDelivery(t *testing.T) {
	w := newWiring(t, "https://localhost")
	if ok := w.creator.SendSecure("hello, world?", map[string]any{}); !ok {
		t.Fatal("SendSecure returned false")
	}
	if len(w.joinerReceived) == 0 {
		t.Fatal("joiner received nothing")
	}
	last := w.joinerReceived[len(w.joinerReceived)-1]
	if last.method != "hello, world?" {
		t.Fatalf("expected method %q, got %q", "hello, world?", last.method)
	}
}

func TestChunkedMessageDelivery(t *testing.T) {
	w := newWiring(t, "https://localhost")
	big := highEntropyString(t, 40000)
	if ok := w.creator.SendSecure("big", map[string]any{"text": big}); !ok {
		t.Fatal("SendSecure returned false")
	}
	if len(w.joinerReceived) == 0 {
		t.Fatal("joiner received nothing")
	}
	last := w.joinerReceived[len(w.joinerReceived)-1]
	if last.method != "big" {
		t.Fatalf("expected method %q, got %q", "big", last.method)
	}
	if !strings.Contains(last.params, big[:100]) {
		t.Fatal("reassembled params do not contain expected prefix")
	}
}

func TestOriginMismatchDropsMessage(t *testing.T) {
	w := newWiring(t, "https://localhost")
	w.joinerReceived = nil
	w.joinerErrors = nil

	// Simulate the relay attaching a different origin than the one baked
	// into the connection string.
	codec := joinerCodecForTest(w)
	frame, err := codec.SealSinglePart("evil-1", "evil")
	if err != nil {
		t.Fatalf("SealSinglePart: %v", err)
	}
	frame.Outer.Origin = "https://evil.example"
	raw, err := frame.Outer.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	w.joiner.HandleFrame(raw)

	if len(w.joinerReceived) != 0 {
		t.Fatalf("expected message to be dropped, got %v", w.joinerReceived)
	}
	if len(w.joinerErrors) == 0 {
		t.Fatal("expected an origin mismatch error to be emitted")
	}
	if w.joinerErrors[0].Category != bridgeerr.CategoryOrigin {
		t.Fatalf("expected CategoryOrigin, got %v", w.joinerErrors[0].Category)
	}
}

func joinerCodecForTest(w *wiring) envelope.Codec {
	w.joiner.mu.Lock()
	defer w.joiner.mu.Unlock()
	return w.joiner.codec()
}

func TestDuplicateIDIsDropped(t *testing.T) {
	w := newWiring(t, "https://localhost")

	codec := creatorCodecForTest(w)
	frame, err := codec.SealSinglePart("dup-1", "once")
	if err != nil {
		t.Fatalf("SealSinglePart: %v", err)
	}
	frame.Outer.Origin = "https://localhost"
	raw, err := frame.Outer.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	w.joinerReceived = nil
	w.joiner.HandleFrame(raw)
	w.joiner.HandleFrame(raw)

	if len(w.joinerReceived) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(w.joinerReceived))
	}
}

func creatorCodecForTest(w *wiring) envelope.Codec {
	w.creator.mu.Lock()
	defer w.creator.mu.Unlock()
	return w.creator.codec()
}
