package backend

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
)

// rankSize is the width of the insertion rank stored in front of each value.
const rankSize = 8

// Badger is a persisted Backend on an embedded Badger database. It plays the
// role a browser's local storage plays for a single-page app: entries
// survive restarts of the same installation.
//
// Each value is stored as an 8-byte big-endian insertion rank followed by
// the payload, so Keys can restore insertion order from a prefix scan.
type Badger struct {
	db     *badger.DB
	seq    *badger.Sequence
	prefix []byte
	owned  bool
}

// OpenBadger opens (or creates) a database at dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", dir, err)
	}
	b, err := NewBadger(db, DefaultPrefix)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// NewBadger wraps an open database. The caller keeps ownership of db.
func NewBadger(db *badger.DB, prefix string) (*Badger, error) {
	// The sequence lives outside the prefix so scans and DropPrefix skip it.
	seq, err := db.GetSequence([]byte("\x00seq:"+prefix), 128)
	if err != nil {
		return nil, fmt.Errorf("badger: sequence: %w", err)
	}
	return &Badger{db: db, seq: seq, prefix: []byte(prefix)}, nil
}

func (b *Badger) dataKey(key string) []byte {
	return append(slices.Clone(b.prefix), key...)
}

// Get retrieves the payload stored under key.
func (b *Badger) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.dataKey(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) < rankSize {
			return fmt.Errorf("badger: short value for %q", key)
		}
		out = raw[rankSize:]
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Set stores val. An existing key keeps its rank.
func (b *Badger) Set(_ context.Context, key string, val []byte) error {
	next, err := b.seq.Next()
	if err != nil {
		return fmt.Errorf("badger: next rank: %w", err)
	}
	k := b.dataKey(key)
	return b.db.Update(func(txn *badger.Txn) error {
		rank := next
		item, err := txn.Get(k)
		switch {
		case err == nil:
			if verr := item.Value(func(v []byte) error {
				if len(v) >= rankSize {
					rank = binary.BigEndian.Uint64(v[:rankSize])
				}
				return nil
			}); verr != nil {
				return verr
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		buf := make([]byte, rankSize+len(val))
		binary.BigEndian.PutUint64(buf, rank)
		copy(buf[rankSize:], val)
		return txn.Set(k, buf)
	})
}

// Delete removes key.
func (b *Badger) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.dataKey(key))
	})
}

// Keys lists keys by insertion rank.
func (b *Badger) Keys(_ context.Context) ([]string, error) {
	type ranked struct {
		key  string
		rank uint64
	}
	var all []ranked
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = b.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := bytes.TrimPrefix(item.Key(), b.prefix)
			var rank uint64
			if err := item.Value(func(v []byte) error {
				if len(v) >= rankSize {
					rank = binary.BigEndian.Uint64(v[:rankSize])
				}
				return nil
			}); err != nil {
				return err
			}
			all = append(all, ranked{key: string(k), rank: rank})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(all, func(a, c ranked) int {
		switch {
		case a.rank < c.rank:
			return -1
		case a.rank > c.rank:
			return 1
		}
		return 0
	})
	keys := make([]string, len(all))
	for i, r := range all {
		keys[i] = r.key
	}
	return keys, nil
}

// Clear drops every key under the prefix.
func (b *Badger) Clear(_ context.Context) error {
	return b.db.DropPrefix(b.prefix)
}

// Close releases the rank sequence and, when the database was opened by
// OpenBadger, closes it.
func (b *Badger) Close() error {
	err := b.seq.Release()
	if b.owned {
		err = errors.Join(err, b.db.Close())
	}
	return err
}
