package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/logger"
	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/repository"
	"github.com/skyportal/source-query/utils"
)

// ErrUnknownCacheProvider is returned for a provider other than redis, memory or database
var ErrUnknownCacheProvider = errors.New("unknown query cache provider")

// CachedQuery is the ordered object ID snapshot of one search
type CachedQuery struct {
	QueryID     string    `json:"query_id"`
	Fingerprint string    `json:"fingerprint"`
	IDs         []string  `json:"ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// QueryCache stores ordered result snapshots keyed by query ID. Entries are written once and
// never modified; Get returns nil, nil for missing or expired entries.
type QueryCache interface {
	Get(ctx context.Context, queryID string) (*CachedQuery, error)
	Put(ctx context.Context, entry *CachedQuery, ttl time.Duration) error
}

// NewQueryCache builds the backend named by cfg.Provider
func NewQueryCache(cfg config.CacheConfig, rc *redis.Client, repo repository.QueryCacheRepository, log *logger.Logger) (QueryCache, error) {
	switch cfg.Provider {
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("redis query cache requires a redis client")
		}
		return NewRedisQueryCache(rc, cfg.RedisPrefix), nil
	case "memory", "":
		return NewMemoryQueryCache(cfg.QueryTTL(), cfg.CleanupInterval), nil
	case "database":
		if repo == nil {
			return nil, fmt.Errorf("database query cache requires a repository")
		}
		return NewDatabaseQueryCache(repo, log), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCacheProvider, cfg.Provider)
}

// RedisQueryCache keeps snapshots as JSON values with a Redis TTL
type RedisQueryCache struct {
	rc     *redis.Client
	prefix string
}

func NewRedisQueryCache(rc *redis.Client, prefix string) *RedisQueryCache {
	return &RedisQueryCache{rc: rc, prefix: prefix}
}

func (c *RedisQueryCache) key(queryID string) string {
	if c.prefix == "" {
		return "query_cache:" + queryID
	}
	return c.prefix + ":query_cache:" + queryID
}

func (c *RedisQueryCache) Get(ctx context.Context, queryID string) (*CachedQuery, error) {
	bs, err := c.rc.Get(ctx, c.key(queryID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached query %s: %w", queryID, err)
	}
	var out CachedQuery
	if err := json.Unmarshal(bs, &out); err != nil {
		return nil, fmt.Errorf("failed to decode cached query %s: %w", queryID, err)
	}
	return &out, nil
}

func (c *RedisQueryCache) Put(ctx context.Context, entry *CachedQuery, ttl time.Duration) error {
	bs, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cached query: %w", err)
	}
	if err := c.rc.Set(ctx, c.key(entry.QueryID), bs, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cached query %s: %w", entry.QueryID, err)
	}
	return nil
}

// MemoryQueryCache is a process-local cache for single-instance deployments and tests
type MemoryQueryCache struct {
	store *cache.Cache
}

func NewMemoryQueryCache(defaultTTL, cleanupInterval time.Duration) *MemoryQueryCache {
	if defaultTTL <= 0 {
		defaultTTL = utils.DefaultQueryCacheTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 2 * defaultTTL
	}
	return &MemoryQueryCache{store: cache.New(defaultTTL, cleanupInterval)}
}

func (c *MemoryQueryCache) Get(_ context.Context, queryID string) (*CachedQuery, error) {
	v, ok := c.store.Get(queryID)
	if !ok {
		return nil, nil
	}
	entry := v.(*CachedQuery)
	// callers may slice the IDs; hand out a copy
	out := *entry
	out.IDs = append([]string(nil), entry.IDs...)
	return &out, nil
}

func (c *MemoryQueryCache) Put(_ context.Context, entry *CachedQuery, ttl time.Duration) error {
	stored := *entry
	stored.IDs = append([]string(nil), entry.IDs...)
	c.store.Set(entry.QueryID, &stored, ttl)
	return nil
}

// DatabaseQueryCache persists snapshots in query_cache_entries
type DatabaseQueryCache struct {
	repo repository.QueryCacheRepository
	log  *logger.Logger
	now  func() time.Time
}

func NewDatabaseQueryCache(repo repository.QueryCacheRepository, log *logger.Logger) *DatabaseQueryCache {
	if log == nil {
		log = logger.NewNop()
	}
	return &DatabaseQueryCache{repo: repo, log: log, now: utils.UTCNow}
}

func (c *DatabaseQueryCache) Get(ctx context.Context, queryID string) (*CachedQuery, error) {
	row, err := c.repo.ByQueryID(ctx, queryID, c.now())
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &CachedQuery{
		QueryID:     row.QueryID,
		Fingerprint: row.Fingerprint,
		IDs:         []string(row.ObjIDs),
		CreatedAt:   row.CreatedAt,
	}, nil
}

func (c *DatabaseQueryCache) Put(ctx context.Context, entry *CachedQuery, ttl time.Duration) error {
	now := c.now()
	if ttl <= 0 {
		ttl = utils.DefaultQueryCacheTTL
	}
	return c.repo.Save(ctx, &models.QueryCacheEntry{
		QueryID:     entry.QueryID,
		Fingerprint: entry.Fingerprint,
		ObjIDs:      entry.IDs,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	})
}

// StartJanitor deletes expired snapshots every interval until the returned stop func is called
func (c *DatabaseQueryCache) StartJanitor(parent context.Context, interval time.Duration) func() {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(parent)
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.repo.DeleteExpired(ctx, c.now())
				if err != nil {
					c.log.Warn("Query cache cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					c.log.Debug("Query cache cleanup", "deleted", n)
				}
			}
		}
	}()

	return cancel
}
