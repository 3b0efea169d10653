package backend

import (
	"bytes"
	"context"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// Tiered puts an in-process ristretto cache in front of a slower backend
// (Badger, Redis). Reads check the hot tier first, then the backing store,
// promoting hits. Writes go to the backing store first and then to the hot
// tier. The backing store stays authoritative: ristretto may drop hot copies
// at any time, which only costs a re-read.
type Tiered struct {
	hot  *ristretto.Cache[string, []byte]
	cold Backend

	// mu orders promotions against writes so a concurrent delete cannot be
	// undone by a promotion of the value it just removed.
	mu sync.Mutex
}

// NewTiered wraps cold with a hot tier holding at most maxEntries values.
func NewTiered(cold Backend, maxEntries int64) (*Tiered, error) {
	hot, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Tiered{hot: hot, cold: cold}, nil
}

// Get checks the hot tier, then the backing store.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := t.hot.Get(key); ok {
		return bytes.Clone(v), true, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok, err := t.cold.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	t.hot.Set(key, bytes.Clone(v), 1)
	t.hot.Wait()
	return v, true, nil
}

// Set writes to the backing store, then the hot tier.
func (t *Tiered) Set(ctx context.Context, key string, val []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.cold.Set(ctx, key, val); err != nil {
		t.hot.Del(key)
		return err
	}
	t.hot.Set(key, bytes.Clone(val), 1)
	t.hot.Wait()
	return nil
}

// Delete removes key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hot.Del(key)
	return t.cold.Delete(ctx, key)
}

// Keys lists the keys of the backing store.
func (t *Tiered) Keys(ctx context.Context) ([]string, error) {
	return t.cold.Keys(ctx)
}

// Clear empties both tiers.
func (t *Tiered) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hot.Clear()
	return t.cold.Clear(ctx)
}

// Close closes the hot tier and the backing store.
func (t *Tiered) Close() error {
	t.hot.Close()
	return t.cold.Close()
}
