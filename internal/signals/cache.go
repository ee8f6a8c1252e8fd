package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sitewarden/internal/config"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
)

const keyPrefix = "sitewarden:"

// NewRedis connects to the cache configured in cfg and checks it answers.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Cache stores signal answers for a fixed TTL. Every read or write error is
// logged and treated as a miss.
type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *logger.Logger
}

func NewCache(rdb redis.Cmdable, ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, log: log.WithComponent("signal-cache")}
}

func (c *Cache) get(ctx context.Context, key string) (string, bool) {
	val, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Debugw("cache read failed", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *Cache) set(ctx context.Context, key, val string) {
	if err := c.rdb.Set(ctx, keyPrefix+key, val, c.ttl).Err(); err != nil {
		c.log.Debugw("cache write failed", "key", key, "error", err)
	}
}

// CachedVulnerabilityDB memoizes vulnerability counts per component version.
type CachedVulnerabilityDB struct {
	next  ports.VulnerabilityDB
	cache *Cache
}

func NewCachedVulnerabilityDB(next ports.VulnerabilityDB, cache *Cache) *CachedVulnerabilityDB {
	return &CachedVulnerabilityDB{next: next, cache: cache}
}

func (c *CachedVulnerabilityDB) Lookup(ctx context.Context, kind ports.ComponentKind, slug, version string) (int, error) {
	key := fmt.Sprintf("wpscan:%s:%s:%s", kind, slug, version)
	if val, ok := c.cache.get(ctx, key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n, nil
		}
	}
	n, err := c.next.Lookup(ctx, kind, slug, version)
	if err != nil {
		return 0, err
	}
	c.cache.set(ctx, key, strconv.Itoa(n))
	return n, nil
}

// CachedMalwareVerdicts memoizes URL verdicts.
type CachedMalwareVerdicts struct {
	next  ports.MalwareVerdicts
	cache *Cache
}

func NewCachedMalwareVerdicts(next ports.MalwareVerdicts, cache *Cache) *CachedMalwareVerdicts {
	return &CachedMalwareVerdicts{next: next, cache: cache}
}

func (c *CachedMalwareVerdicts) URLVerdict(ctx context.Context, rawurl string) (ports.Verdict, error) {
	key := "virustotal:" + rawurl
	if val, ok := c.cache.get(ctx, key); ok {
		var v ports.Verdict
		if err := json.Unmarshal([]byte(val), &v); err == nil {
			return v, nil
		}
	}
	v, err := c.next.URLVerdict(ctx, rawurl)
	if err != nil {
		return ports.Verdict{}, err
	}
	if raw, err := json.Marshal(v); err == nil {
		c.cache.set(ctx, key, string(raw))
	}
	return v, nil
}
