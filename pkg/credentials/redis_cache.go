// pkg/credentials/redis_cache.go
package credentials

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const grantKeyPrefix = "chartex:grant:"

type redisCache struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

// NewRedisCache shares grants across replicas. Expiry is delegated to Redis;
// a replica never reads a grant past its TTL. Cache errors degrade to a
// miss, never to a failed call.
func NewRedisCache(rdb *redis.Client, log *zap.SugaredLogger) Cache {
	return &redisCache{rdb: rdb, log: log}
}

func (r *redisCache) Get(ctx context.Context, installationID string) (Grant, bool) {
	raw, err := r.rdb.Get(ctx, grantKeyPrefix+installationID).Bytes()
	if err == redis.Nil {
		return Grant{}, false
	}
	if err != nil {
		r.log.Warnw("grant cache read", "err", err)
		return Grant{}, false
	}
	var g Grant
	if err := json.Unmarshal(raw, &g); err != nil {
		return Grant{}, false
	}
	if !g.valid(time.Now()) {
		return Grant{}, false
	}
	return g, true
}

func (r *redisCache) Put(ctx context.Context, installationID string, g Grant, ttl time.Duration) {
	raw, err := json.Marshal(g)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, grantKeyPrefix+installationID, raw, ttl).Err(); err != nil {
		r.log.Warnw("grant cache write", "err", err)
	}
}

func (r *redisCache) Delete(ctx context.Context, installationID string) {
	if err := r.rdb.Del(ctx, grantKeyPrefix+installationID).Err(); err != nil && err != redis.Nil {
		r.log.Warnw("grant cache delete", "err", err)
	}
}
