// Package enhancement implements the optional score-improvement chain: an
// ordered list of tiers, each wrapped with a per-call timeout and a
// consecutive-failure circuit breaker, degrading to the already-computed
// baseline whenever anything goes wrong.  Enhancement never blocks or fails
// a batch.
package enhancement

import (
	"sync/atomic"
	"time"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
)

// Breaker states.
const (
	stateClosed   int32 = 0
	stateOpen     int32 = 1
	stateHalfOpen int32 = 2
)

func stateName(s int32) string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// breaker is a lock-free consecutive-failure circuit breaker guarding one
// enhancement tier.  After threshold consecutive failures the breaker opens
// for the cool-down period; a single probe is allowed in half-open state.
type breaker struct {
	state            atomic.Int32
	consecutiveFails atomic.Int32
	threshold        int32
	cooldown         time.Duration
	openedAt         atomic.Int64 // unix-nano
	halfOpenPermits  atomic.Int32

	tier     string
	logger   logging.Logger
	observer Observer
}

func newBreaker(tier string, threshold int, cooldown time.Duration, logger logging.Logger, obs Observer) *breaker {
	b := &breaker{
		threshold: int32(threshold),
		cooldown:  cooldown,
		tier:      tier,
		logger:    logger,
		observer:  obs,
	}
	b.state.Store(stateClosed)
	return b
}

// allow reports whether a call may pass through the breaker.
func (b *breaker) allow() bool {
	if b == nil || b.threshold <= 0 {
		return true // disabled
	}
	switch b.state.Load() {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(time.Unix(0, b.openedAt.Load())) >= b.cooldown {
			if b.state.CompareAndSwap(stateOpen, stateHalfOpen) {
				b.halfOpenPermits.Store(1)
				b.transition("open", "half_open")
			}
			return b.halfOpenPermits.Add(-1) >= 0
		}
		return false
	case stateHalfOpen:
		return b.halfOpenPermits.Add(-1) >= 0
	}
	return false
}

func (b *breaker) recordSuccess() {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.consecutiveFails.Store(0)
	if b.state.CompareAndSwap(stateHalfOpen, stateClosed) {
		b.transition("half_open", "closed")
	}
}

func (b *breaker) recordFailure() {
	if b == nil || b.threshold <= 0 {
		return
	}
	fails := b.consecutiveFails.Add(1)

	switch b.state.Load() {
	case stateClosed:
		if fails >= b.threshold {
			if b.state.CompareAndSwap(stateClosed, stateOpen) {
				b.openedAt.Store(time.Now().UnixNano())
				b.transition("closed", "open")
			}
		}
	case stateHalfOpen:
		// Probe failed; reopen.
		if b.state.CompareAndSwap(stateHalfOpen, stateOpen) {
			b.openedAt.Store(time.Now().UnixNano())
			b.transition("half_open", "open")
		}
	}
}

func (b *breaker) currentState() string {
	if b == nil {
		return stateName(stateClosed)
	}
	return stateName(b.state.Load())
}

func (b *breaker) transition(from, to string) {
	if b.logger != nil {
		b.logger.Info("enhancement breaker state change",
			logging.String("tier", b.tier),
			logging.String("from", from),
			logging.String("to", to),
		)
	}
	if b.observer != nil {
		b.observer.BreakerStateChange(b.tier, from, to)
	}
}
