package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares entries and counters between replicas. Errors are logged and
// treated as misses.
type Redis struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedis(rdb redis.Cmdable, ttl time.Duration, prefix string, logger *slog.Logger) *Redis {
	if prefix == "" {
		prefix = "meetslot"
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix, logger: logger.With("component", "availability_cache")}
}

func (r *Redis) TTL() time.Duration { return r.ttl }

func (r *Redis) versionKey(scope Scope) string {
	return r.prefix + ":ver:" + string(scope)
}

func (r *Redis) Versions(ctx context.Context) (Versions, bool) {
	vals, err := r.rdb.MGet(ctx, r.versionKey(ScopeBlocks), r.versionKey(ScopeBookings)).Result()
	if err != nil {
		r.logger.WarnContext(ctx, "cache versions unavailable", "err", err)
		return Versions{}, false
	}
	var v Versions
	var ok bool
	if v.Blocks, ok = parseCounter(vals[0]); !ok {
		return Versions{}, false
	}
	if v.Bookings, ok = parseCounter(vals[1]); !ok {
		return Versions{}, false
	}
	return v, true
}

func parseCounter(v any) (int64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func (r *Redis) Get(ctx context.Context, key string) ([]string, bool) {
	raw, err := r.rdb.Get(ctx, r.prefix+":"+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WarnContext(ctx, "cache get failed", "err", err, "key", key)
		}
		return nil, false
	}
	var dates []string
	if err := json.Unmarshal(raw, &dates); err != nil {
		r.logger.WarnContext(ctx, "cache entry corrupt", "err", err, "key", key)
		return nil, false
	}
	return dates, true
}

func (r *Redis) Put(ctx context.Context, key string, dates []string) {
	if dates == nil {
		dates = []string{}
	}
	raw, err := json.Marshal(dates)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, r.prefix+":"+key, raw, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "cache put failed", "err", err, "key", key)
	}
}

func (r *Redis) Bump(ctx context.Context, scope Scope) {
	if err := r.rdb.Incr(ctx, r.versionKey(scope)).Err(); err != nil {
		r.logger.ErrorContext(ctx, "cache version bump failed", "err", err, "scope", string(scope))
	}
}
