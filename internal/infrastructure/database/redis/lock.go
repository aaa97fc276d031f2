package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeRunAlreadyActive, "calculation lock held elsewhere")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

// release compares the stored token before deleting so one process can
// never release another's lock.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end`

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end`

// RunLock serializes calculation runs across engine replicas: at most one
// run per weight-vector version cluster-wide.  The lock auto-expires so a
// crashed worker cannot wedge the system.
type RunLock struct {
	client *Client
	logger logging.Logger
	name   string
	token  string
	ttl    time.Duration
}

// NewRunLock builds a lock named name; ttl <= 0 defaults to 10 minutes.
func NewRunLock(client *Client, log logging.Logger, name string, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RunLock{
		client: client,
		logger: log.Named("run_lock"),
		name:   "prioritycraft:lock:" + name,
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

// TryAcquire attempts the lock without blocking.
func (l *RunLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.setNX(ctx, l.name, l.token, l.ttl)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "lock acquire failed")
	}
	if ok {
		l.logger.Debug("run lock acquired", logging.String("lock", l.name))
	}
	return ok, nil
}

// Release drops the lock if this instance still holds it.
func (l *RunLock) Release(ctx context.Context) error {
	res, err := l.client.eval(ctx, releaseScript, []string{l.name}, l.token)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lock release failed")
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrLockNotHeld
	}
	l.logger.Debug("run lock released", logging.String("lock", l.name))
	return nil
}

// Extend pushes the expiry out for a long-running calculation.
func (l *RunLock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = l.ttl
	}
	res, err := l.client.eval(ctx, extendScript, []string{l.name}, l.token, ttl.Milliseconds())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "lock extend failed")
	}
	n, ok := res.(int64)
	return ok && n == 1, nil
}
