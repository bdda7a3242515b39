package dedup

import (
	"context"
	"sync"

	"github.com/akarpov/ragindex/internal/core/ports"
	"github.com/akarpov/ragindex/internal/observability/metrics"
)

// Cache layers in-flight coordination on top of a persistent DedupStore.
// Lookup answers from the store; Acquire hands out a ticket that makes the
// first caller for a (hash, model) pair the leader and parks everyone else
// behind its result. Without this, two documents sharing a paragraph that are
// processed at the same time would both embed it.
type Cache struct {
	store   ports.DedupStore
	metrics *metrics.WorkerMetrics
	service string

	mu       sync.Mutex
	inFlight map[flightKey]*flight
}

type flightKey struct {
	hash  string
	model string
}

type flight struct {
	done    chan struct{}
	vector  []float32
	err     error
	waiters int
}

func NewCache(store ports.DedupStore, m *metrics.WorkerMetrics, service string) *Cache {
	return &Cache{
		store:    store,
		metrics:  m,
		service:  service,
		inFlight: make(map[flightKey]*flight),
	}
}

func (c *Cache) Lookup(ctx context.Context, contentHash, embeddingModel string) (string, bool, error) {
	chunkID, ok, err := c.store.Lookup(ctx, contentHash, embeddingModel)
	if err == nil && c.metrics != nil {
		c.metrics.RecordDedupLookup(c.service, ok)
	}
	return chunkID, ok, err
}

func (c *Cache) Record(ctx context.Context, contentHash, embeddingModel, chunkID string) error {
	return c.store.Record(ctx, contentHash, embeddingModel, chunkID)
}

// Acquire registers interest in a (hash, model) pair. The first caller gets a
// leader ticket and must eventually call Resolve exactly once; later callers
// get follower tickets that block in Wait until the leader resolves.
func (c *Cache) Acquire(contentHash, embeddingModel string) ports.DedupTicket {
	key := flightKey{hash: contentHash, model: embeddingModel}

	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.inFlight[key]; ok {
		f.waiters++
		return &ticket{cache: c, key: key, flight: f, leader: false}
	}

	f := &flight{done: make(chan struct{})}
	c.inFlight[key] = f
	return &ticket{cache: c, key: key, flight: f, leader: true}
}

func (c *Cache) release(key flightKey, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[key] == f {
		delete(c.inFlight, key)
	}
}

type ticket struct {
	cache  *Cache
	key    flightKey
	flight *flight
	leader bool

	resolveOnce sync.Once
}

func (t *ticket) Leader() bool { return t.leader }

// Resolve publishes the leader's outcome and unblocks followers. Follower
// tickets ignore the call. Resolving twice is a no-op.
func (t *ticket) Resolve(vector []float32, err error) {
	if !t.leader {
		return
	}
	t.resolveOnce.Do(func() {
		t.flight.vector = vector
		t.flight.err = err
		close(t.flight.done)
		t.cache.release(t.key, t.flight)
	})
}

// Wait blocks until the leader resolves or the context ends. On success it
// returns the leader's vector for the shared content.
func (t *ticket) Wait(ctx context.Context) ([]float32, error) {
	select {
	case <-t.flight.done:
		return t.flight.vector, t.flight.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
