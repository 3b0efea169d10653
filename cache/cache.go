// Package cache is a response cache with per-key TTLs resolved from a
// pattern policy at read time.
//
// A Cache owns one backend and is shared by every consumer in the process.
// Consumers use typed views (see For) that add decoding, fetch-on-miss and
// stale fallback. Keys are flat strings; by convention they are prefixed by
// resource type ("details:AAPL", "historical:AAPL:1mo", "heatmap"). No
// namespacing is enforced, so any consumer may read or clear any key.
//
// Expiry is checked on read. An entry older than its TTL is removed from the
// store by the read that discovers it, but a copy is retired so a later
// fetch failure can still fall back to it. Explicit deletes and clears drop
// retired copies too.
//
// Writes, deletes and expiry removals for one key are serialized, and an
// expiry removal only deletes the exact bytes it judged expired. A write that
// lands while a read is expiring the old entry is never lost.
package cache

import (
	"bytes"
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Keksclan/tickercache/backend"
	"github.com/Keksclan/tickercache/clock"
	"github.com/Keksclan/tickercache/pattern"
	"github.com/Keksclan/tickercache/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	tracerName = "github.com/Keksclan/tickercache/cache"
	keyStripes = 64
)

// Stats is a snapshot of the stored keys, oldest first. Entries that have
// expired but were not read since are still counted.
type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Cache is the shared entry table. All methods are safe for concurrent use.
type Cache struct {
	backend backend.Backend
	policy  *policy.TTLPolicy
	clock   clock.Clock
	log     *zap.Logger
	metrics Metrics
	tracer  trace.Tracer

	coalesce     bool
	fetchTimeout time.Duration
	sf           singleflight.Group

	keyMu [keyStripes]sync.Mutex // serializes store mutations per key

	mu      sync.Mutex
	retired map[string]*envelope
}

// New creates a Cache over b.
func New(b backend.Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:  b,
		clock:    clock.System{},
		log:      zap.NewNop(),
		metrics:  NoopMetrics{},
		coalesce: true,
		retired:  make(map[string]*envelope),
	}
	for _, o := range opts {
		o(c)
	}
	if c.policy == nil {
		c.policy = policy.New()
	}
	if c.tracer == nil {
		c.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	return c
}

// Policy returns the TTL policy.
func (c *Cache) Policy() *policy.TTLPolicy { return c.policy }

// RegisterTTLRule adds a TTL rule. See policy.TTLPolicy.Register.
func (c *Cache) RegisterTTLRule(pat string, ttl time.Duration) error {
	return c.policy.Register(pat, ttl)
}

// ResolveTTL returns the TTL currently in force for key.
func (c *Cache) ResolveTTL(key string) time.Duration {
	return c.policy.Resolve(key)
}

// Delete removes key. Removing a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	unlock := c.lockKey(key)
	defer unlock()
	c.forget(key)
	return c.backend.Delete(ctx, key)
}

// ClearPattern removes every key matching pat and returns how many stored
// keys were removed. pat uses the same syntax and matcher as TTL rules.
func (c *Cache) ClearPattern(ctx context.Context, pat string) (int, error) {
	m, err := pattern.Compile(pat)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	for k := range c.retired {
		if m.Match(k) {
			delete(c.retired, k)
		}
	}
	c.mu.Unlock()

	keys, err := c.backend.Keys(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if !m.Match(k) {
			continue
		}
		unlock := c.lockKey(k)
		err := c.backend.Delete(ctx, k)
		unlock()
		if err != nil {
			return n, err
		}
		n++
	}
	c.log.Debug("cache pattern cleared", zap.String("pattern", pat), zap.Int("removed", n))
	return n, nil
}

// ClearAll removes every entry.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	clear(c.retired)
	c.mu.Unlock()
	return c.backend.Clear(ctx)
}

// Stats reports the stored keys in insertion order.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.backend.Keys(ctx)
	if err != nil {
		return Stats{}, err
	}
	if keys == nil {
		keys = []string{}
	}
	return Stats{Size: len(keys), Keys: keys}, nil
}

// Close closes the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}

// lockKey locks the stripe guarding key and returns its unlock func.
func (c *Cache) lockKey(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &c.keyMu[h.Sum32()%keyStripes]
	mu.Lock()
	return mu.Unlock
}

// lookup returns the stored envelope for key without checking its age.
// Undecodable entries are removed and reported as a miss; backend read
// errors are logged and reported as a miss.
func (c *Cache) lookup(ctx context.Context, key string) (*envelope, bool) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache backend read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	e, err := decodeEnvelope(raw)
	if err != nil {
		c.dropCorrupt(ctx, key, raw, err)
		return nil, false
	}
	return e, true
}

// fresh returns the envelope for key when it is within its TTL. An expired
// entry is removed from the store and retired.
func (c *Cache) fresh(ctx context.Context, key string) (*envelope, bool) {
	e, ok := c.lookup(ctx, key)
	if !ok {
		c.metrics.Miss(key)
		return nil, false
	}
	ttl := c.policy.Resolve(key)
	if e.expired(c.clock.Now(), ttl) {
		c.retire(ctx, key, e)
		c.metrics.Expire(key)
		c.log.Debug("cache entry expired",
			zap.String("key", key),
			zap.Duration("age", c.clock.Now().Sub(e.writtenAt())),
			zap.Duration("ttl", ttl),
		)
		return nil, false
	}
	c.metrics.Hit(key)
	return e, true
}

// stale returns any entry for key regardless of age: the stored one if
// present, otherwise the retired copy.
func (c *Cache) stale(ctx context.Context, key string) (*envelope, bool) {
	if e, ok := c.lookup(ctx, key); ok {
		return e, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.retired[key]
	return e, ok
}

func (c *Cache) write(ctx context.Context, key string, e *envelope) error {
	raw, err := encodeEnvelope(e)
	if err != nil {
		return err
	}
	unlock := c.lockKey(key)
	defer unlock()
	c.forget(key)
	return c.backend.Set(ctx, key, raw)
}

// retire removes the expired entry e and keeps it for stale fallback.
// Nothing happens when key no longer holds e's bytes: a newer write won.
func (c *Cache) retire(ctx context.Context, key string, e *envelope) {
	unlock := c.lockKey(key)
	defer unlock()
	if !c.removeIfUnchanged(ctx, key, e.raw) {
		return
	}
	c.mu.Lock()
	c.retired[key] = e
	c.mu.Unlock()
}

// removeIfUnchanged deletes key when it still holds raw. The caller holds
// the key lock, which covers writers in this process; the comparison covers
// writers sharing the backend from elsewhere.
func (c *Cache) removeIfUnchanged(ctx context.Context, key string, raw []byte) bool {
	cur, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache backend read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok || !bytes.Equal(cur, raw) {
		return false
	}
	if err := c.backend.Delete(ctx, key); err != nil {
		c.log.Warn("cache backend delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) forget(key string) {
	c.mu.Lock()
	delete(c.retired, key)
	c.mu.Unlock()
}

// dropCorrupt removes the entry with bytes raw, stored or retired, that can
// no longer be decoded. A newer write under key is left alone.
func (c *Cache) dropCorrupt(ctx context.Context, key string, raw []byte, cause error) {
	c.metrics.Corrupt(key)
	c.log.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(cause))
	unlock := c.lockKey(key)
	defer unlock()
	if c.removeIfUnchanged(ctx, key, raw) {
		c.forget(key)
		return
	}
	c.mu.Lock()
	if r, ok := c.retired[key]; ok && bytes.Equal(r.raw, raw) {
		delete(c.retired, key)
	}
	c.mu.Unlock()
}
