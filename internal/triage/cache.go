package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusCache remembers terminal job statuses. A completed or failed job
// never changes state, so its status can be served without polling.
type StatusCache interface {
	Get(ctx context.Context, jobID string) (JobStatus, bool, error)
	Put(ctx context.Context, status JobStatus) error
}

const (
	DefaultStatusTTL          = 24 * time.Hour
	DefaultMemoryCacheEntries = 1024
)

// MemoryCache is an in-process StatusCache. Entries expire after ttl and the
// oldest entry is evicted once maxEntries is reached.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	status  JobStatus
	expires time.Time
}

// NewMemoryCache returns a cache bounded by ttl and maxEntries. Non-positive
// values fall back to the defaults.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryCacheEntries
	}
	return &MemoryCache{ttl: ttl, maxEntries: maxEntries, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, jobID string) (JobStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[jobID]
	if !ok {
		return JobStatus{}, false, nil
	}
	if time.Now().After(e.expires) {
		delete(c.entries, jobID)
		return JobStatus{}, false, nil
	}
	return e.status, true, nil
}

func (c *MemoryCache) Put(_ context.Context, status JobStatus) error {
	if !status.State.Terminal() || status.JobID == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, ok := c.entries[status.JobID]; !ok && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	c.entries[status.JobID] = memoryEntry{status: status, expires: now.Add(c.ttl)}
	return nil
}

// evict drops expired entries, or the oldest one when none has expired.
func (c *MemoryCache) evict(now time.Time) {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, id)
			continue
		}
		if oldestID == "" || e.expires.Before(oldest) {
			oldestID, oldest = id, e.expires
		}
	}
	if len(c.entries) >= c.maxEntries {
		delete(c.entries, oldestID)
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache stores terminal statuses in Redis with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func statusKey(jobID string) string {
	return fmt.Sprintf("mailtriage:job:%s", jobID)
}

func (c *RedisCache) Get(ctx context.Context, jobID string) (JobStatus, bool, error) {
	raw, err := c.rdb.Get(ctx, statusKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return JobStatus{}, false, nil
	}
	if err != nil {
		return JobStatus{}, false, fmt.Errorf("rdb.Get failed: %w", err)
	}

	var s JobStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return JobStatus{}, false, fmt.Errorf("json.Unmarshal failed: %w", err)
	}

	return s, true, nil
}

func (c *RedisCache) Put(ctx context.Context, status JobStatus) error {
	if !status.State.Terminal() || status.JobID == "" {
		return nil
	}

	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %w", err)
	}

	if err := c.rdb.Set(ctx, statusKey(status.JobID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("rdb.Set failed: %w", err)
	}

	return nil
}
