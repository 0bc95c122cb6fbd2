package bridge_test

import (
	"strings"
	"testing"
	"time"

	"github.com/obsidionlabs/bridge-go/bridge"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
	"github.com/obsidionlabs/bridge-go/bridgetest"
)

// waitFor blocks until ch fires or d elapses, failing the test on timeout.
func waitFor(t *testing.T, ch <-chan struct{}, d time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(d):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestHandshakeEstablishesSecureChannelBothSides(t *testing.T) {
	relay := bridgetest.New()
	defer relay.Close()

	creator, err := bridge.Create(bridge.WithOrigin("https://localhost"), bridge.WithBridgeURL(relay.URL()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer creator.Close()

	creatorEstablished := make(chan struct{})
	creator.OnSecureChannelEstablished(func() { close(creatorEstablished) })

	joiner, jerr := bridge.Join(creator.ConnectionString(), bridge.WithJoinBridgeURL(relay.URL()))
	if jerr != nil {
		t.Fatalf("Join: %v", jerr)
	}
	defer joiner.Close()

	joinerEstablished := make(chan struct{})
	joiner.OnSecureChannelEstablished(func() { close(joinerEstablished) })

	waitFor(t, creatorEstablished, 3*time.Second, "creator secure channel")
	waitFor(t, joinerEstablished, 3*time.Second, "joiner secure channel")

	if !creator.IsSecureChannelEstablished() || !joiner.IsSecureChannelEstablished() {
		t.Fatal("expected both sides to report the secure channel established")
	}
}

func TestSendMessageDeliversToPeer(t *testing.T) {
	relay := bridgetest.New()
	defer relay.Close()

	creator, err := bridge.Create(bridge.WithOrigin("https://localhost"), bridge.WithBridgeURL(relay.URL()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer creator.Close()

	joiner, jerr := bridge.Join(creator.ConnectionString(), bridge.WithJoinBridgeURL(relay.URL()))
	if jerr != nil {
		t.Fatalf("Join: %v", jerr)
	}
	defer joiner.Close()

	established := make(chan struct{})
	creator.OnSecureChannelEstablished(func() { close(established) })
	waitFor(t, established, 3*time.Second, "secure channel")

	received := make(chan string, 1)
	joiner.OnSecureMessage(func(method string, params []byte) { received <- method })

	if ok := creator.SendMessage("hello", map[string]any{"greeting": "hi"}); !ok {
		t.Fatal("SendMessage returned false")
	}

	select {
	case method := <-received:
		if method != "hello" {
			t.Fatalf("expected method %q, got %q", "hello", method)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the joiner to receive the message")
	}
}

func TestReconnectAfterForcedClose(t *testing.T) {
	relay := bridgetest.New()
	defer relay.Close()

	creator, err := bridge.Create(bridge.WithOrigin("https://localhost"), bridge.WithBridgeURL(relay.URL()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer creator.Close()

	joiner, jerr := bridge.Join(creator.ConnectionString(), bridge.WithJoinBridgeURL(relay.URL()))
	if jerr != nil {
		t.Fatalf("Join: %v", jerr)
	}
	defer joiner.Close()

	established := make(chan struct{})
	creator.OnSecureChannelEstablished(func() { close(established) })
	waitFor(t, established, 3*time.Second, "secure channel")

	reconnected := make(chan struct{})
	joiner.OnConnect(func(reconnection bool) {
		if reconnection {
			close(reconnected)
		}
	})

	relay.ForceClose(creator.BridgeID())
	waitFor(t, reconnected, 5*time.Second, "joiner reconnect")

	if !joiner.IsBridgeConnected() {
		t.Fatal("expected joiner to be reconnected")
	}
}

func TestOriginMismatchIsReportedAsError(t *testing.T) {
	relay := bridgetest.New()
	defer relay.Close()

	creator, err := bridge.Create(bridge.WithOrigin("https://localhost"), bridge.WithBridgeURL(relay.URL()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer creator.Close()

	// Tamper with the declared origin so the Joiner expects something the
	// relay never stamps (the relay always stamps the Creator's real,
	// configured origin onto forwarded frames).
	tampered := strings.Replace(creator.ConnectionString(), "https%3A%2F%2Flocalhost", "https%3A%2F%2Fevil.example", 1)

	joiner, jerr := bridge.Join(tampered, bridge.WithJoinBridgeURL(relay.URL()))
	if jerr != nil {
		t.Fatalf("Join: %v", jerr)
	}
	defer joiner.Close()

	errCh := make(chan *bridgeerr.Error, 1)
	joiner.OnError(func(e *bridgeerr.Error) {
		select {
		case errCh <- e:
		default:
		}
	})

	if ok := creator.SendMessage("hello", map[string]any{}); !ok {
		t.Fatal("SendMessage returned false")
	}

	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for an origin mismatch error")
	}
}
