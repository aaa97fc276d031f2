package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/database/redis"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

func TestScoreCache_PutGetRoundTrip(t *testing.T) {
	client := redisConnection(t)
	cache := redis.NewScoreCache(client, testLogger(),
		redis.WithKeyPrefix("itest:score:"),
		redis.WithTTL(time.Minute),
	)
	ctx := testContext(t)

	rec := decision.ScoreRecord{
		ItemID:        "item-1",
		RunID:         "run-1",
		Total:         0.73,
		Contributions: map[string]float64{"value": 0.45, "risk": 0.28},
		Confidence:    0.95,
		Method:        decision.MethodBaseline,
		Fingerprint:   "fp-cache-1",
		ScoredAt:      common.NewTimestamp(),
	}
	require.NoError(t, cache.Put(ctx, 3, rec))

	got, hit, err := cache.Get(ctx, 3, "fp-cache-1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, rec.ItemID, got.ItemID)
	assert.InDelta(t, rec.Total, got.Total, 1e-9)
	assert.Equal(t, rec.Contributions, got.Contributions)

	// Same fingerprint under a different weight version is a miss.
	_, hit, err = cache.Get(ctx, 4, "fp-cache-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestScoreCache_MissIsNotAnError(t *testing.T) {
	client := redisConnection(t)
	cache := redis.NewScoreCache(client, testLogger(),
		redis.WithKeyPrefix("itest:score:"))
	ctx := testContext(t)

	_, hit, err := cache.Get(ctx, 1, "fp-never-written")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestScoreCache_InvalidateVersion(t *testing.T) {
	client := redisConnection(t)
	cache := redis.NewScoreCache(client, testLogger(),
		redis.WithKeyPrefix("itest:invalidate:"),
		redis.WithTTL(time.Minute),
	)
	ctx := testContext(t)

	for i := 0; i < 5; i++ {
		rec := decision.ScoreRecord{
			ItemID:      string(common.NewID()),
			RunID:       "run-inv",
			Total:       0.5,
			Method:      decision.MethodBaseline,
			Fingerprint: "fp-inv-" + string(rune('a'+i)),
			ScoredAt:    common.NewTimestamp(),
		}
		require.NoError(t, cache.Put(ctx, 7, rec))
	}
	// One record under a different version must survive.
	keeper := decision.ScoreRecord{
		ItemID: "keeper", RunID: "run-inv", Total: 0.5,
		Method: decision.MethodBaseline, Fingerprint: "fp-keep",
		ScoredAt: common.NewTimestamp(),
	}
	require.NoError(t, cache.Put(ctx, 8, keeper))

	deleted, err := cache.InvalidateVersion(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 5, deleted)

	_, hit, err := cache.Get(ctx, 7, "fp-inv-a")
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = cache.Get(ctx, 8, "fp-keep")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestRunLock_MutualExclusion(t *testing.T) {
	client := redisConnection(t)
	ctx := testContext(t)

	first := redis.NewRunLock(client, testLogger(), "itest-mutex", time.Minute)
	second := redis.NewRunLock(client, testLogger(), "itest-mutex", time.Minute)

	held, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, held)

	held, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, held, "a second holder must be rejected while the lock is live")

	// Only the owner can release.
	err = second.Release(ctx)
	assert.ErrorIs(t, err, redis.ErrLockNotHeld)

	require.NoError(t, first.Release(ctx))

	held, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, held, "released locks are immediately reacquirable")
	require.NoError(t, second.Release(ctx))
}

func TestRunLock_ExpiryAndExtend(t *testing.T) {
	client := redisConnection(t)
	ctx := testContext(t)

	short := redis.NewRunLock(client, testLogger(), "itest-expiry", 500*time.Millisecond)
	held, err := short.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, held)

	extended, err := short.Extend(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, extended)

	// After expiry another process takes over and Extend on the stale
	// holder reports failure instead of resurrecting the lock.
	time.Sleep(2500 * time.Millisecond)

	taker := redis.NewRunLock(client, testLogger(), "itest-expiry", time.Minute)
	held, err = taker.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	extended, err = short.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)

	require.NoError(t, taker.Release(ctx))
}
