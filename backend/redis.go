package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultPrefix namespaces keys in shared persisted stores.
const DefaultPrefix = "cache:"

// Redis is a persisted Backend on top of a Redis server. Values live under
// "<prefix><key>"; insertion order is tracked in a sorted set scored by a
// counter. Reads fail soft: when Redis is unreachable they report a miss
// instead of an error. Writes and key listing return their errors.
//
// Redis is used as a durable store only. No cross-process invalidation is
// attempted.
type Redis struct {
	rdb      *redis.Client
	prefix   string
	orderKey string
	seqKey   string
	log      *zap.Logger
}

// RedisOption configures a Redis backend.
type RedisOption func(*Redis)

// WithRedisPrefix overrides DefaultPrefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRedisLogger sets the logger used for soft failures.
func WithRedisLogger(l *zap.Logger) RedisOption {
	return func(r *Redis) { r.log = l }
}

// NewRedis connects a Redis backend.
func NewRedis(addr, password string, db int, opts ...RedisOption) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(rdb, opts...)
}

// NewRedisFromClient wraps an existing client. Close closes the client.
func NewRedisFromClient(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, prefix: DefaultPrefix, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	// Meta keys drop the trailing separator so they can never collide with
	// "<prefix><key>".
	base := strings.TrimSuffix(r.prefix, ":")
	r.orderKey = base + "#order"
	r.seqKey = base + "#seq"
	return r
}

// Get retrieves a value. Connection errors are reported as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores val. The key keeps its first insertion rank.
func (r *Redis) Set(ctx context.Context, key string, val []byte) error {
	seq, err := r.rdb.Incr(ctx, r.seqKey).Result()
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.prefix+key, val, 0)
		p.ZAddNX(ctx, r.orderKey, redis.Z{Score: float64(seq), Member: key})
		return nil
	})
	return err
}

// Delete removes key and its rank.
func (r *Redis) Delete(ctx context.Context, key string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.prefix+key)
		p.ZRem(ctx, r.orderKey, key)
		return nil
	})
	return err
}

// Keys lists keys by insertion rank. Unlike Get it does not fail soft:
// clears act on this list and must not report success while Redis is down.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.rdb.ZRange(ctx, r.orderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	return keys, nil
}

// Clear removes every key under the prefix along with the rank bookkeeping.
func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.rdb.ZRange(ctx, r.orderKey, 0, -1).Result()
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		const batch = 500
		for start := 0; start < len(keys); start += batch {
			end := min(start+batch, len(keys))
			full := make([]string, 0, end-start)
			for _, k := range keys[start:end] {
				full = append(full, r.prefix+k)
			}
			p.Del(ctx, full...)
		}
		p.Del(ctx, r.orderKey, r.seqKey)
		return nil
	})
	return err
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
