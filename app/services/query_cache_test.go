package services

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueryCacheRepository keeps entries in memory and honours expiry like the SQL version
type fakeQueryCacheRepository struct {
	mu      sync.Mutex
	entries []*models.QueryCacheEntry
	deletes int
}

func (r *fakeQueryCacheRepository) ByQueryID(_ context.Context, queryID string, now time.Time) (*models.QueryCacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.QueryID == queryID && e.ExpiresAt.After(now) {
			return e, nil
		}
	}
	return nil, nil
}

func (r *fakeQueryCacheRepository) Save(_ context.Context, entry *models.QueryCacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeQueryCacheRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	kept := r.entries[:0]
	var n int64
	for _, e := range r.entries {
		if e.ExpiresAt.After(now) {
			kept = append(kept, e)
		} else {
			n++
		}
	}
	r.entries = kept
	return n, nil
}

func (r *fakeQueryCacheRepository) deleteCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deletes
}

func sampleSnapshot(id string) *CachedQuery {
	return &CachedQuery{
		QueryID:     id,
		Fingerprint: "abc123",
		IDs:         []string{"ZTF21a", "ZTF21b", "ZTF21c"},
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryQueryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryQueryCache(time.Minute, time.Minute)

	missing, err := c.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	entry := sampleSnapshot("q1")
	require.NoError(t, c.Put(ctx, entry, time.Minute))

	// the stored copy is independent of the caller's slice
	entry.IDs[0] = "mutated"

	got, err := c.Get(ctx, "q1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"ZTF21a", "ZTF21b", "ZTF21c"}, got.IDs)
	assert.Equal(t, "abc123", got.Fingerprint)

	got.IDs[1] = "mutated"
	again, err := c.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "ZTF21b", again.IDs[1])
}

func TestMemoryQueryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryQueryCache(time.Minute, time.Minute)

	require.NoError(t, c.Put(ctx, sampleSnapshot("short"), 20*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	got, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDatabaseQueryCache(t *testing.T) {
	ctx := context.Background()
	repo := &fakeQueryCacheRepository{}
	c := NewDatabaseQueryCache(repo, nil)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, sampleSnapshot("q1"), 10*time.Minute))
	require.Len(t, repo.entries, 1)
	assert.Equal(t, now.Add(10*time.Minute), repo.entries[0].ExpiresAt)

	got, err := c.Get(ctx, "q1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"ZTF21a", "ZTF21b", "ZTF21c"}, got.IDs)
	assert.Equal(t, now, got.CreatedAt)

	now = now.Add(11 * time.Minute)
	got, err = c.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDatabaseQueryCacheJanitor(t *testing.T) {
	repo := &fakeQueryCacheRepository{}
	c := NewDatabaseQueryCache(repo, nil)

	stop := c.StartJanitor(context.Background(), 10*time.Millisecond)
	assert.Eventually(t, func() bool { return repo.deleteCalls() > 0 }, time.Second, 5*time.Millisecond)
	stop()
}

func TestNewQueryCache(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.CacheConfig
		repo        *fakeQueryCacheRepository
		expectError bool
		expectType  any
	}{
		{name: "memory", cfg: config.CacheConfig{Provider: "memory"}, expectType: &MemoryQueryCache{}},
		{name: "default is memory", cfg: config.CacheConfig{}, expectType: &MemoryQueryCache{}},
		{name: "database", cfg: config.CacheConfig{Provider: "database"}, repo: &fakeQueryCacheRepository{}, expectType: &DatabaseQueryCache{}},
		{name: "database without repository", cfg: config.CacheConfig{Provider: "database"}, expectError: true},
		{name: "redis without client", cfg: config.CacheConfig{Provider: "redis"}, expectError: true},
		{name: "unknown provider", cfg: config.CacheConfig{Provider: "memcached"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c QueryCache
			var err error
			if tt.repo != nil {
				c, err = NewQueryCache(tt.cfg, nil, tt.repo, nil)
			} else {
				c, err = NewQueryCache(tt.cfg, nil, nil, nil)
			}
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.expectType, c)
		})
	}
}

func TestRedisQueryCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rc := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err())

	c := NewRedisQueryCache(rc, "test")
	entry := sampleSnapshot("redis-" + time.Now().Format("150405.000000"))
	require.NoError(t, c.Put(ctx, entry, time.Minute))
	t.Cleanup(func() { rc.Del(ctx, c.key(entry.QueryID)) })

	got, err := c.Get(ctx, entry.QueryID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.IDs, got.IDs)
	assert.True(t, entry.CreatedAt.Equal(got.CreatedAt))

	missing, err := c.Get(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
