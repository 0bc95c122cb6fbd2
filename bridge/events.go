package bridge

import (
	"sync"

	"github.com/obsidionlabs/bridge-go/bridgeerr"
)

// Unsubscribe releases a listener registered via one of the On* methods. It
// is safe to call more than once and safe to call from inside the listener
// it detaches (spec §9: "subscription returns an unsubscribe capability").
type Unsubscribe func()

// eventBus is a small typed pub/sub registry, one list per event kind. It
// exists because the source models events as callbacks keyed by event type
// (spec §9); a mutex-guarded map of listener slices is the direct Go
// rendering of that, with no reflection or dynamic dispatch on event names.
type eventBus struct {
	mu sync.Mutex

	connect                  []func(reconnection bool)
	secureChannelEstablished []func()
	secureMessage            []func(method string, params []byte)
	rawMessage               []func(raw []byte)
	bridgeError              []func(err *bridgeerr.Error)
	failedToConnect          []func(err error)
	disconnect               []func(code int, reason string, wasConnected, wasIntentionalClose, willReconnect bool)
}

func (b *eventBus) onConnect(fn func(reconnection bool)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connect = append(b.connect, fn)
	idx := len(b.connect) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx >= 0 && idx < len(b.connect) {
			b.connect[idx] = nil
		}
	}
}

func (b *eventBus) onSecureChannelEstablished(fn func()) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secureChannelEstablished = append(b.secureChannelEstablished, fn)
	idx := len(b.secureChannelEstablished) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx >= 0 && idx < len(b.secureChannelEstablished) {
			b.secureChannelEstablished[idx] = nil
		}
	}
}

func (b *eventBus) onSecureMessage(fn func(method string, params []byte)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secureMessage = append(b.secureMessage, fn)
	idx := len(b.secureMessage) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx >= 0 && idx < len(b.secureMessage) {
			b.secureMessage[idx] = nil
		}
	}
}

func (b *eventBus) onRawMessage(fn func(raw []byte)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rawMessage = append(b.rawMessage, fn)
	idx := len(b.rawMessage) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx >= 0 && idx < len(b.rawMessage) {
			b.rawMessage[idx] = nil
		}
	}
}

func (b *eventBus) onError(fn func(err *bridgeerr.Error)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridgeError = append(b.bridgeError, fn)
	idx := len(b.bridgeError) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx >= 0 && idx < len(b.bridgeError) {
			b.bridgeError[idx] = nil
		}
	}
}

func (b *eventBus) onFailedToConnect(fn func(err error)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failedToConnect = append(b.failedToConnect, fn)
	idx := len(b.failedToConnect) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx >= 0 && idx < len(b.failedToConnect) {
			b.failedToConnect[idx] = nil
		}
	}
}

func (b *eventBus) onDisconnect(fn func(code int, reason string, wasConnected, wasIntentionalClose, willReconnect bool)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnect = append(b.disconnect, fn)
	idx := len(b.disconnect) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx >= 0 && idx < len(b.disconnect) {
			b.disconnect[idx] = nil
		}
	}
}

func (b *eventBus) emitConnect(reconnection bool) {
	b.mu.Lock()
	fns := append([]func(bool){}, b.connect...)
	b.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(reconnection)
		}
	}
}

func (b *eventBus) emitSecureChannelEstablished() {
	b.mu.Lock()
	fns := append([]func(){}, b.secureChannelEstablished...)
	b.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func (b *eventBus) emitSecureMessage(method string, params []byte) {
	b.mu.Lock()
	fns := append([]func(string, []byte){}, b.secureMessage...)
	b.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(method, params)
		}
	}
}

func (b *eventBus) emitRawMessage(raw []byte) {
	b.mu.Lock()
	fns := append([]func([]byte){}, b.rawMessage...)
	b.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(raw)
		}
	}
}

func (b *eventBus) emitError(err *bridgeerr.Error) {
	b.mu.Lock()
	fns := append([]func(*bridgeerr.Error){}, b.bridgeError...)
	b.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(err)
		}
	}
}

func (b *eventBus) emitFailedToConnect(err error) {
	b.mu.Lock()
	fns := append([]func(error){}, b.failedToConnect...)
	b.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(err)
		}
	}
}

func (b *eventBus) emitDisconnect(code int, reason string, wasConnected, wasIntentionalClose, willReconnect bool) {
	b.mu.Lock()
	fns := append([]func(int, string, bool, bool, bool){}, b.disconnect...)
	b.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(code, reason, wasConnected, wasIntentionalClose, willReconnect)
		}
	}
}
