package trafficfeeds

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/caffe-ja/observer-platform/internal/app/domain/traffic"
)

// defaultCacheTTL bounds entries whose feed interval cannot be parsed.
const defaultCacheTTL = 10 * time.Minute

// Cache keeps the newest snapshot per feed in Redis so dashboards avoid
// hitting the snapshot table on every poll.
type Cache struct {
	client *redis.Client
}

// NewCache wraps an existing Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func cacheKey(feedID string) string {
	return "caffe:traffic:latest:" + feedID
}

// SetLatest stores the snapshot under the feed's cache key. The entry expires
// after ttl, which callers derive from the feed's refresh interval.
func (c *Cache) SetLatest(ctx context.Context, snap traffic.Snapshot, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(snap.FeedID), payload, ttl).Err()
}

// ttlForInterval converts a feed refresh interval into a cache TTL: the gap
// between consecutive firings, with a minute of slack so the entry survives
// until the next refresh lands.
func ttlForInterval(interval string) time.Duration {
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return defaultCacheTTL
	}
	sched, err := cron.ParseStandard(interval)
	if err != nil {
		return defaultCacheTTL
	}
	next := sched.Next(time.Now())
	gap := sched.Next(next).Sub(next)
	if gap <= 0 {
		return defaultCacheTTL
	}
	return gap + time.Minute
}

// GetLatest returns the cached snapshot and whether one was present.
func (c *Cache) GetLatest(ctx context.Context, feedID string) (traffic.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(feedID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return traffic.Snapshot{}, false, nil
	}
	if err != nil {
		return traffic.Snapshot{}, false, err
	}

	var snap traffic.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return traffic.Snapshot{}, false, err
	}
	return snap, true, nil
}
