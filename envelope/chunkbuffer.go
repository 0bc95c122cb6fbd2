package envelope

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrChunkLengthMismatch is returned when a chunk group's declared
	// length conflicts with an earlier chunk of the same group id.
	ErrChunkLengthMismatch = errors.New("envelope: chunk length mismatch")
	// ErrChunkIndexOutOfRange is returned for an index outside [0, length).
	ErrChunkIndexOutOfRange = errors.New("envelope: chunk index out of range")
)

// chunkGroup accumulates the parts of one chunked message, keyed by
// Inner.chunk.id (spec §4.2 inbound step 4).
type chunkGroup struct {
	method   string
	expected uint32
	filled   uint32
	slots    []string
	lastSeen time.Time
}

func newChunkGroup(method string, expected uint32) *chunkGroup {
	return &chunkGroup{
		method:   method,
		expected: expected,
		slots:    make([]string, expected),
		lastSeen: time.Now(),
	}
}

func (g *chunkGroup) put(index uint32, part string) error {
	if index >= g.expected {
		return ErrChunkIndexOutOfRange
	}
	if g.slots[index] == "" {
		g.filled++
	}
	g.slots[index] = part
	g.lastSeen = time.Now()
	return nil
}

func (g *chunkGroup) complete() bool {
	return g.filled >= g.expected
}

func (g *chunkGroup) concat() string {
	var sb strings.Builder
	for _, part := range g.slots {
		sb.WriteString(part)
	}
	return sb.String()
}

// ChunkTTL is how long an incomplete chunk group is kept before the sweeper
// evicts it. The reference implementation never evicted stale groups (spec
// §9's open question); this TTL closes that leak while preserving the
// invariant that completed or evicted groups never resurface as a later
// MessageReceived.
const ChunkTTL = 2 * time.Minute

// ChunkSweepInterval is how often the sweeper scans for expired groups.
const ChunkSweepInterval = 30 * time.Second

// ChunkBuffer tracks in-flight chunked message groups for one session and
// evicts groups that go stale, per spec §9.
type ChunkBuffer struct {
	mu     sync.Mutex
	groups map[string]*chunkGroup

	onOpened  func()
	onClosed  func()
	onEvicted func(n int)

	stop chan struct{}
	once sync.Once
}

// SetObserverHooks wires optional lifecycle notifications used for metrics
// (observability.SessionObserver's ChunkGroup* events). Any nil hook is
// simply never called. Must be set before the buffer sees its first frame.
func (b *ChunkBuffer) SetObserverHooks(onOpened, onClosed func(), onEvicted func(n int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onOpened = onOpened
	b.onClosed = onClosed
	b.onEvicted = onEvicted
}

// NewChunkBuffer creates an empty buffer and starts its background eviction
// sweep. Callers must call Close when the owning session ends.
func NewChunkBuffer() *ChunkBuffer {
	b := &ChunkBuffer{
		groups: make(map[string]*chunkGroup),
		stop:   make(chan struct{}),
	}
	go b.sweepLoop()
	return b
}

func (b *ChunkBuffer) sweepLoop() {
	ticker := time.NewTicker(ChunkSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.evictStale()
		case <-b.stop:
			return
		}
	}
}

func (b *ChunkBuffer) evictStale() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	evicted := 0
	for id, g := range b.groups {
		if now.Sub(g.lastSeen) > ChunkTTL {
			delete(b.groups, id)
			evicted++
		}
	}
	if evicted > 0 && b.onEvicted != nil {
		b.onEvicted(evicted)
	}
}

// Accept places one chunk into its group, creating the group on first sight.
// It returns (payload, method, true, nil) once the group is fully filled,
// at which point the group is removed and cannot trigger a future
// completion. An empty method plus false with a nil error means the group
// is still awaiting more parts.
func (b *ChunkBuffer) Accept(method string, chunk ChunkMeta, part string) (payload string, outMethod string, done bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[chunk.ID]
	if !ok {
		g = newChunkGroup(method, chunk.Length)
		b.groups[chunk.ID] = g
		if b.onOpened != nil {
			b.onOpened()
		}
	}
	if g.expected != chunk.Length {
		return "", "", false, ErrChunkLengthMismatch
	}
	if err := g.put(chunk.Index, part); err != nil {
		return "", "", false, err
	}
	if !g.complete() {
		return "", "", false, nil
	}
	delete(b.groups, chunk.ID)
	if b.onClosed != nil {
		b.onClosed()
	}
	return g.concat(), g.method, true, nil
}

// Len reports the number of in-flight chunk groups, used by tests and
// metrics.
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups)
}

// Close stops the background eviction sweep.
func (b *ChunkBuffer) Close() {
	b.once.Do(func() { close(b.stop) })
}
