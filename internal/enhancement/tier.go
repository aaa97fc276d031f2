package enhancement

import (
	"context"
	"time"

	"github.com/turtacn/PriorityCraft/internal/domain/item"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// Tier is one rung of the enhancement chain.  A tier receives the item and
// its already-computed baseline record and returns an improved record, or an
// error when it cannot help.  Tiers must honour ctx cancellation; the chain
// applies the per-call timeout.
type Tier interface {
	// Name identifies the tier in logs, metrics, and breaker state.
	Name() string

	// Method is the MethodUsed value stamped on records this tier produces.
	Method() decision.MethodUsed

	// Enhance returns the improved score record.  Implementations must not
	// mutate baseline.
	Enhance(ctx context.Context, it item.WorkItem, baseline decision.ScoreRecord) (decision.ScoreRecord, error)
}

// Observer receives enhancement telemetry.  The prometheus package provides
// the production implementation; NopObserver keeps the chain quiet in tests.
type Observer interface {
	TierAttempt(tier string)
	TierSuccess(tier string, latency time.Duration)
	TierFailure(tier string, code errors.ErrorCode)
	BreakerStateChange(tier, from, to string)
}

type nopObserver struct{}

func (nopObserver) TierAttempt(string)                 {}
func (nopObserver) TierSuccess(string, time.Duration)  {}
func (nopObserver) TierFailure(string, errors.ErrorCode) {}
func (nopObserver) BreakerStateChange(string, string, string) {}

// NopObserver returns an Observer that discards everything.
func NopObserver() Observer { return nopObserver{} }
