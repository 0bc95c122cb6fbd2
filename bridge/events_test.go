package bridge

import (
	"testing"

	"github.com/obsidionlabs/bridge-go/bridgeerr"
)

func TestEventBusDeliversToSubscriber(t *testing.T) {
	var bus eventBus
	var got bool
	bus.onConnect(func(reconnection bool) { got = reconnection })
	bus.emitConnect(true)
	if !got {
		t.Fatal("expected the listener to be invoked")
	}
}

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	var bus eventBus
	calls := 0
	unsub := bus.onSecureChannelEstablished(func() { calls++ })
	bus.emitSecureChannelEstablished()
	unsub()
	bus.emitSecureChannelEstablished()
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}

func TestEventBusUnsubscribeIsIdempotent(t *testing.T) {
	var bus eventBus
	unsub := bus.onError(func(err *bridgeerr.Error) {})
	unsub()
	unsub() // must not panic
}

func TestEventBusUnsubscribeFromWithinListener(t *testing.T) {
	var bus eventBus
	var unsub Unsubscribe
	calls := 0
	unsub = bus.onDisconnect(func(code int, reason string, wasConnected, wasIntentionalClose, willReconnect bool) {
		calls++
		unsub()
	})
	bus.emitDisconnect(1000, "bye", true, true, false)
	bus.emitDisconnect(1000, "bye again", true, true, false)
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}

func TestEventBusMultipleListenersAllFire(t *testing.T) {
	var bus eventBus
	var a, b bool
	bus.onRawMessage(func(raw []byte) { a = true })
	bus.onRawMessage(func(raw []byte) { b = true })
	bus.emitRawMessage([]byte("frame"))
	if !a || !b {
		t.Fatal("expected both listeners to fire")
	}
}

func TestEventBusSecureMessageDeliversMethodAndParams(t *testing.T) {
	var bus eventBus
	var gotMethod string
	var gotParams []byte
	bus.onSecureMessage(func(method string, params []byte) {
		gotMethod = method
		gotParams = params
	})
	bus.emitSecureMessage("ping", []byte(`{"a":1}`))
	if gotMethod != "ping" || string(gotParams) != `{"a":1}` {
		t.Fatalf("unexpected delivery: method=%q params=%q", gotMethod, gotParams)
	}
}
