package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidionlabs/bridge-go/envelope"
	"github.com/obsidionlabs/bridge-go/session"
	"github.com/obsidionlabs/bridge-go/transport"
)

// fakeTransport is an in-memory transport.Transport used to drive the
// controller's reconnect/ping logic without a real socket.
type fakeTransport struct {
	mu      sync.Mutex
	writes  [][]byte
	readCh  chan []byte
	readErr error
	closed  bool
}

var _ transport.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{readCh: make(chan []byte, 8)}
}

func (f *fakeTransport) WriteMessage(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.writes = append(f.writes, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) ReadMessage(ctx context.Context) (int, []byte, error) {
	select {
	case b, ok := <-f.readCh:
		if !ok {
			f.mu.Lock()
			err := f.readErr
			f.mu.Unlock()
			return 0, nil, err
		}
		return websocket.TextMessage, b, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (f *fakeTransport) CloseWithStatus(code int, reason string) error {
	return f.Close()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.readCh)
	return nil
}

func (f *fakeTransport) SetReadLimit(n int64) {}

// breakWith simulates an unexpected transport closure (e.g. peer dropped).
func (f *fakeTransport) breakWith(err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.readErr = err
	close(f.readCh)
	f.mu.Unlock()
}

func (f *fakeTransport) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func newTestSession(t *testing.T) *session.Context {
	t.Helper()
	sess := session.New(session.Config{}, session.Callbacks{})
	t.Cleanup(sess.Close)
	return sess
}

func TestOpenDialsOnceAndStartsPingLoop(t *testing.T) {
	tr := newFakeTransport()
	sess := newTestSession(t)

	var dialCount int
	var mu sync.Mutex
	ctl := New(Config{
		Dial: func(ctx context.Context, attempt int) (transport.Transport, error) {
			mu.Lock()
			dialCount++
			mu.Unlock()
			return tr, nil
		},
		PingInterval: 1 * time.Millisecond, // clamped to defaults' minimum
	}, sess, Callbacks{})
	t.Cleanup(func() { ctl.Close() })

	connected := make(chan bool, 1)
	ctl.cb.OnConnect = func(reconnection bool) { connected <- reconnection }

	if err := ctl.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	select {
	case reconnection := <-connected:
		if reconnection {
			t.Fatal("expected initial OnConnect(false)")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnConnect")
	}

	mu.Lock()
	if dialCount != 1 {
		t.Fatalf("expected exactly one dial, got %d", dialCount)
	}
	mu.Unlock()

	// The ping loop should have written at least one ping frame by now (the
	// interval is clamped to 500ms).
	deadline := time.Now().Add(2 * time.Second)
	for tr.writeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if tr.writeCount() == 0 {
		t.Fatal("expected at least one ping frame to be written")
	}
}

func TestSendWritesMarshaledOuter(t *testing.T) {
	tr := newFakeTransport()
	sess := newTestSession(t)
	ctl := New(Config{
		Dial: func(ctx context.Context, attempt int) (transport.Transport, error) { return tr, nil },
	}, sess, Callbacks{})
	t.Cleanup(func() { ctl.Close() })

	if err := ctl.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	outer := envelope.Outer{ID: "abc", Method: "ping", Params: []byte("{}")}
	if err := ctl.Send(outer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if tr.writeCount() == 0 {
		t.Fatal("expected Send to write a frame")
	}
}

// TestOpenSurfacesInitialDialFailure covers the "close before the initial
// open succeeded" case from spec §4.5: the very first attempt is synchronous
// and returns its error directly, rather than only firing FailedToConnect.
func TestOpenSurfacesInitialDialFailure(t *testing.T) {
	sess := newTestSession(t)
	dialErr := errors.New("dial refused")
	ctl := New(Config{
		Dial: func(ctx context.Context, attempt int) (transport.Transport, error) { return nil, dialErr },
	}, sess, Callbacks{})

	if err := ctl.Open(); !errors.Is(err, dialErr) {
		t.Fatalf("expected Open to surface the dial error, got %v", err)
	}
}

func TestUnintentionalCloseSchedulesReconnect(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	sess := newTestSession(t)

	attempts := []*fakeTransport{first, second}
	var dialIdx int
	var mu sync.Mutex

	reconnected := make(chan bool, 1)
	ctl := New(Config{
		Dial: func(ctx context.Context, attempt int) (transport.Transport, error) {
			mu.Lock()
			defer mu.Unlock()
			tr := attempts[dialIdx]
			dialIdx++
			return tr, nil
		},
		Reconnect:            true,
		MaxReconnectAttempts: 3,
	}, sess, Callbacks{})
	t.Cleanup(func() { ctl.Close() })
	ctl.cb.OnConnect = func(reconnection bool) {
		if reconnection {
			reconnected <- true
		}
	}

	if err := ctl.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	first.breakWith(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "dropped"})

	select {
	case <-reconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}

	mu.Lock()
	got := dialIdx
	mu.Unlock()
	if got != 2 {
		t.Fatalf("expected exactly 2 dials (initial + 1 reconnect), got %d", got)
	}
}

func TestIntentionalCloseDoesNotReconnect(t *testing.T) {
	tr := newFakeTransport()
	sess := newTestSession(t)

	var dialCount int
	ctl := New(Config{
		Dial: func(ctx context.Context, attempt int) (transport.Transport, error) {
			dialCount++
			return tr, nil
		},
		Reconnect: true,
	}, sess, Callbacks{})

	var disconnected bool
	ctl.cb.OnDisconnected = func(code int, reason string, wasConnected, wasIntentional, willReconnect bool) {
		disconnected = true
	}

	if err := ctl.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ctl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if disconnected {
		t.Fatal("expected no Disconnected event for an intentional close")
	}
	if dialCount != 1 {
		t.Fatalf("expected no reconnect dial, got %d total dials", dialCount)
	}
}
