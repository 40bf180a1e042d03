package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/avkuzmin/teleshop/internal/errs"
)

// Quiet wraps a Cache so that cache failures degrade silently: reads report a
// miss, writes and invalidations are logged and swallowed. Write paths must
// never fail because the cache is unreachable.
type Quiet struct {
	c   Cache
	ttl time.Duration
	log *zap.Logger
}

// NewQuiet wraps a cache with the default TTL and a logger for degrade events.
func NewQuiet(c Cache, ttl time.Duration, log *zap.Logger) *Quiet {
	if log == nil {
		log = zap.NewNop()
	}
	return &Quiet{c: c, ttl: ttl, log: log}
}

// GetInto decodes the cached value into v, reporting whether it was a hit.
func (q *Quiet) GetInto(ctx context.Context, key string, v any) bool {
	if q.c == nil {
		return false
	}
	b, err := q.c.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			q.log.Warn("cache get degraded", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		q.log.Warn("cache decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Put encodes v and stores it under key with the default TTL.
func (q *Quiet) Put(ctx context.Context, key string, v any) {
	if q.c == nil {
		return
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		q.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := q.c.Set(ctx, key, b, q.ttl); err != nil {
		q.log.Warn("cache set degraded", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops exact keys.
func (q *Quiet) Invalidate(ctx context.Context, keys ...string) {
	if q.c == nil || len(keys) == 0 {
		return
	}
	if err := q.c.Delete(ctx, keys...); err != nil {
		q.log.Warn("cache delete degraded", zap.Strings("keys", keys), zap.Error(err))
	}
}

// InvalidatePrefix drops every key under the given prefixes.
func (q *Quiet) InvalidatePrefix(ctx context.Context, prefixes ...string) {
	if q.c == nil {
		return
	}
	for _, p := range prefixes {
		if err := q.c.DeleteByPrefix(ctx, p); err != nil {
			q.log.Warn("cache prefix delete degraded", zap.String("prefix", p), zap.Error(err))
		}
	}
}
