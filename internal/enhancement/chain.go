package enhancement

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/turtacn/PriorityCraft/internal/domain/item"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// Outcome is what the chain hands back for one item: the record to use, how
// it was produced, and whether any degradation happened on the way.
type Outcome struct {
	Record decision.ScoreRecord
	Method decision.MethodUsed
	// Degraded is true when the record is not the product of the most
	// capable tier: some tier failed, timed out, was skipped by its
	// breaker, or returned a result below the confidence floor.
	Degraded bool
}

// ChainOptions tunes the chain's guards.
type ChainOptions struct {
	// TierTimeout is the hard per-call deadline for every tier.
	TierTimeout time.Duration
	// BreakerThreshold opens a tier's breaker after this many consecutive
	// failures; 0 disables the breakers.
	BreakerThreshold int
	// BreakerCooldown is how long an open breaker waits before probing.
	BreakerCooldown time.Duration
	// ConfidenceFloor rejects tier results whose confidence is below it.
	ConfidenceFloor float64
}

func (o ChainOptions) withDefaults() ChainOptions {
	if o.TierTimeout <= 0 {
		o.TierTimeout = 10 * time.Second
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	return o
}

type tierRuntime struct {
	tier Tier
	brk  *breaker
}

// Chain runs enhancement tiers in fixed priority order, most capable first.
// Every failure is recovered locally: the chain's contract is that Enhance
// always returns a usable Outcome, and it never returns an error.
type Chain struct {
	tiers    []*tierRuntime
	opts     ChainOptions
	logger   logging.Logger
	observer Observer
}

// NewChain builds a chain over tiers, ordered most capable first.
func NewChain(opts ChainOptions, logger logging.Logger, obs Observer, tiers ...Tier) *Chain {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if obs == nil {
		obs = NopObserver()
	}
	c := &Chain{opts: opts, logger: logger.Named("enhancement"), observer: obs}
	for _, t := range tiers {
		c.tiers = append(c.tiers, &tierRuntime{
			tier: t,
			brk:  newBreaker(t.Name(), opts.BreakerThreshold, opts.BreakerCooldown, c.logger, obs),
		})
	}
	return c
}

// TierCount returns the number of configured tiers.
func (c *Chain) TierCount() int { return len(c.tiers) }

// BreakerStates reports each tier's current breaker state, keyed by tier
// name.  Exposed for readiness checks and metrics scrapes.
func (c *Chain) BreakerStates() map[string]string {
	out := make(map[string]string, len(c.tiers))
	for _, tr := range c.tiers {
		out[tr.tier.Name()] = tr.brk.currentState()
	}
	return out
}

// Enhance tries each tier in order and returns the first acceptable result.
// Failures, timeouts, open breakers, and low-confidence results are logged,
// counted, and swallowed; the chain falls through to the next tier and
// ultimately to the baseline.  The baseline is always a valid answer, so
// Enhance never fails.
func (c *Chain) Enhance(ctx context.Context, it item.WorkItem, baseline decision.ScoreRecord) Outcome {
	degraded := false

	for _, tr := range c.tiers {
		name := tr.tier.Name()

		if err := ctx.Err(); err != nil {
			// Run cancelled or budget exhausted: stop trying immediately.
			degraded = true
			break
		}

		if !tr.brk.allow() {
			c.observer.TierFailure(name, errors.ErrCodeEnhancementCircuitOpen)
			c.logger.Debug("tier skipped, breaker open",
				logging.String("tier", name), logging.String("item_id", it.ID))
			degraded = true
			continue
		}

		c.observer.TierAttempt(name)
		start := time.Now()

		tierCtx, cancel := context.WithTimeout(ctx, c.opts.TierTimeout)
		rec, err := tr.tier.Enhance(tierCtx, it, baseline)
		cancel()

		if err != nil {
			tr.brk.recordFailure()
			code := classifyTierError(err)
			c.observer.TierFailure(name, code)
			c.logger.Warn("enhancement tier failed",
				logging.String("tier", name),
				logging.String("item_id", it.ID),
				logging.String("code", code.String()),
				logging.Err(err),
			)
			degraded = true
			continue
		}

		if rec.Confidence < c.opts.ConfidenceFloor {
			// A confident-sounding guess below the floor is worse than the
			// deterministic baseline; treat as a soft failure without
			// tripping the breaker.
			tr.brk.recordSuccess()
			c.observer.TierFailure(name, errors.ErrCodeEnhancementLowConfidence)
			c.logger.Debug("tier result below confidence floor",
				logging.String("tier", name),
				logging.String("item_id", it.ID),
				logging.Float64("confidence", rec.Confidence),
			)
			degraded = true
			continue
		}

		tr.brk.recordSuccess()
		c.observer.TierSuccess(name, time.Since(start))

		rec.Method = tr.tier.Method()
		rec.Degraded = degraded
		return Outcome{Record: rec, Method: rec.Method, Degraded: degraded}
	}

	// Every tier declined: the baseline is the answer.
	out := baseline
	out.Method = decision.MethodBaseline
	out.Degraded = degraded
	return Outcome{Record: out, Method: decision.MethodBaseline, Degraded: degraded}
}

// classifyTierError maps a tier error onto the enhancement code family for
// metrics labels.
func classifyTierError(err error) errors.ErrorCode {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), errors.IsCode(err, errors.ErrCodeEnhancementTimeout):
		return errors.ErrCodeEnhancementTimeout
	case errors.IsCode(err, errors.ErrCodeEnhancementLowConfidence):
		return errors.ErrCodeEnhancementLowConfidence
	case errors.IsCode(err, errors.ErrCodeEnhancementUnavailable):
		return errors.ErrCodeEnhancementUnavailable
	default:
		if code := errors.GetCode(err); code != errors.ErrCodeInternal {
			return code
		}
		return errors.ErrCodeEnhancementUnavailable
	}
}
