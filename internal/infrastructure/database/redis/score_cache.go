package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// ScoreCache stores score records keyed by weight-vector version and item
// fingerprint.  A hit means the item's attributes have not changed since
// the last run under the same weights; the record can be reused verbatim.
// Concurrent reads of the same key collapse through singleflight so a batch
// of workers produces one round trip per distinct item.
type ScoreCache struct {
	client *Client
	logger logging.Logger
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// ScoreCacheOption customizes the cache.
type ScoreCacheOption func(*ScoreCache)

// WithKeyPrefix overrides the default key prefix.
func WithKeyPrefix(prefix string) ScoreCacheOption {
	return func(c *ScoreCache) { c.prefix = prefix }
}

// WithTTL overrides the default record TTL.
func WithTTL(ttl time.Duration) ScoreCacheOption {
	return func(c *ScoreCache) { c.ttl = ttl }
}

// NewScoreCache builds the cache over client.
func NewScoreCache(client *Client, log logging.Logger, opts ...ScoreCacheOption) *ScoreCache {
	c := &ScoreCache{
		client: client,
		logger: log.Named("score_cache"),
		prefix: "prioritycraft:score:",
		ttl:    15 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ScoreCache) key(weightVersion int, fingerprint string) string {
	return fmt.Sprintf("%sv%d:%s", c.prefix, weightVersion, fingerprint)
}

// jitterTTL spreads expiry by ±10% so a whole batch does not expire at once.
func (c *ScoreCache) jitterTTL() time.Duration {
	jitter := float64(c.ttl) * 0.1 * (rand.Float64()*2 - 1)
	return c.ttl + time.Duration(jitter)
}

// Get fetches a cached record.  A miss is (zero, false, nil); only
// transport failures surface as errors.
func (c *ScoreCache) Get(ctx context.Context, weightVersion int, fingerprint string) (decision.ScoreRecord, bool, error) {
	key := c.key(weightVersion, fingerprint)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		data, err := c.client.get(ctx, key)
		if err == goredis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		var rec decision.ScoreRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			// A corrupt entry is treated as a miss and evicted.
			c.logger.Warn("evicting undecodable score cache entry",
				logging.String("key", key), logging.Err(err))
			_ = c.client.del(ctx, key)
			return nil, nil
		}
		return rec, nil
	})
	if err != nil {
		return decision.ScoreRecord{}, false, errors.Wrap(err, errors.ErrCodeCacheError,
			"score cache read failed")
	}
	if v == nil {
		return decision.ScoreRecord{}, false, nil
	}
	return v.(decision.ScoreRecord), true, nil
}

// Put stores a record under its run's weight version and fingerprint.
func (c *ScoreCache) Put(ctx context.Context, weightVersion int, rec decision.ScoreRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode score record")
	}
	if err := c.client.set(ctx, c.key(weightVersion, rec.Fingerprint), data, c.jitterTTL()); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "score cache write failed")
	}
	return nil
}

// InvalidateVersion drops every cached record for one weight version.
// Called when a version is superseded and its cache can never hit again.
func (c *ScoreCache) InvalidateVersion(ctx context.Context, weightVersion int) (int64, error) {
	var (
		deleted int64
		cursor  uint64
	)
	match := fmt.Sprintf("%sv%d:*", c.prefix, weightVersion)
	for {
		keys, next, err := c.client.scan(ctx, cursor, match, 100)
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "score cache scan failed")
		}
		if len(keys) > 0 {
			if err := c.client.del(ctx, keys...); err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "score cache delete failed")
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
