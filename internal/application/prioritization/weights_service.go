// Package prioritization wires the domain layer into the two application
// services the engine exposes: weight-vector submission and approval, and
// the calculation runs that turn approved weights into item rankings.
package prioritization

import (
	"context"

	"github.com/turtacn/PriorityCraft/internal/config"
	"github.com/turtacn/PriorityCraft/internal/domain/criterion"
	"github.com/turtacn/PriorityCraft/internal/domain/judgment"
	"github.com/turtacn/PriorityCraft/internal/domain/weights"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// worstPairLimit caps how many inconsistent judgments are surfaced to the
// stakeholder on a rejected or flagged submission.
const worstPairLimit = 3

// EventPublisher pushes run-lifecycle events onto the audit stream.  The
// kafka package provides the production implementation.
type EventPublisher interface {
	WeightsApproved(ctx context.Context, wv decision.WeightVector) error
	CalculationCompleted(ctx context.Context, result *decision.CalculationResult) error
}

// ApprovalListener is notified when a weight vector reaches approval; the
// orchestrator uses it to schedule follow-up runs.
type ApprovalListener interface {
	WeightVectorApproved(version int)
}

// WeightsObserver receives solver telemetry.  The prometheus package
// provides the production implementation.
type WeightsObserver interface {
	SubmissionObserved(verdict decision.ConsistencyVerdict, cr float64)
	ApprovalObserved(version int, quorum bool)
}

type nopWeightsObserver struct{}

func (nopWeightsObserver) SubmissionObserved(decision.ConsistencyVerdict, float64) {}
func (nopWeightsObserver) ApprovalObserved(int, bool)                              {}

// WeightsService handles comparison submission, consistency gating, and the
// approval workflow over the weight arena.
type WeightsService struct {
	criteria criterion.Repository
	arena    *weights.Arena
	repo     weights.Repository // optional durability behind the arena
	events   EventPublisher     // optional
	listener ApprovalListener   // optional
	observer WeightsObserver
	engine   config.EngineConfig
	logger   logging.Logger
}

// SetObserver installs solver telemetry.  Call before serving traffic; the
// default discards everything.
func (s *WeightsService) SetObserver(obs WeightsObserver) {
	if obs != nil {
		s.observer = obs
	}
}

// NewWeightsService builds the service.  repo, events, and listener may be
// nil; the arena then operates purely in-process.
func NewWeightsService(
	criteria criterion.Repository,
	arena *weights.Arena,
	repo weights.Repository,
	events EventPublisher,
	listener ApprovalListener,
	engine config.EngineConfig,
	logger logging.Logger,
) *WeightsService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &WeightsService{
		criteria: criteria,
		arena:    arena,
		repo:     repo,
		events:   events,
		listener: listener,
		observer: nopWeightsObserver{},
		engine:   engine,
		logger:   logger.Named("weights"),
	}
}

// SubmitComparisons validates a stakeholder's pairwise judgments against the
// active criterion set, derives the weight vector, and classifies its
// consistency.  Rejected submissions are not persisted; the worst-offending
// judgment pairs come back so the stakeholder can revise.  Flagged
// submissions are persisted with the review flag and also carry their worst
// pairs.
func (s *WeightsService) SubmitComparisons(
	ctx context.Context,
	stakeholder common.StakeholderID,
	judgments []decision.Judgment,
) (decision.SubmitResult, error) {
	active, err := s.criteria.ListActive(ctx)
	if err != nil {
		return decision.SubmitResult{}, errors.Wrap(err, errors.ErrCodeDatabaseError,
			"failed to load active criteria")
	}
	set, err := criterion.NewSet(active)
	if err != nil {
		return decision.SubmitResult{}, err
	}

	matrix, err := judgment.NewMatrixFromJudgments(set.IDs(), judgments)
	if err != nil {
		return decision.SubmitResult{}, err
	}

	sol := matrix.Solve(judgment.SolverOptions{
		MaxIterations: s.engine.SolverMaxIterations,
		Tolerance:     s.engine.SolverTolerance,
	})
	if !sol.Exact {
		s.logger.Warn("eigenvector solve fell back to column-average approximation",
			logging.String("stakeholder", string(stakeholder)),
			logging.Int("criteria", set.Len()),
		)
	}

	verdict := judgment.Classify(sol.ConsistencyRatio, s.engine.CRAcceptThreshold, s.engine.CRCeiling)
	s.observer.SubmissionObserved(verdict, sol.ConsistencyRatio)

	s.logger.Info("comparison set solved",
		logging.String("stakeholder", string(stakeholder)),
		logging.Int("criteria", set.Len()),
		logging.Float64("cr", sol.ConsistencyRatio),
		logging.String("verdict", string(verdict)),
	)

	if verdict == decision.ConsistencyRejected {
		return decision.SubmitResult{
			Accepted:   false,
			WorstPairs: matrix.WorstPairs(sol, worstPairLimit),
		}, nil
	}

	wv := s.arena.Append(decision.WeightVector{
		StakeholderID:    stakeholder,
		Weights:          sol.WeightsByID,
		ConsistencyRatio: sol.ConsistencyRatio,
		Verdict:          verdict,
	})
	if s.repo != nil {
		if err := s.repo.SaveVector(ctx, wv); err != nil {
			return decision.SubmitResult{}, errors.Wrap(err, errors.ErrCodeDatabaseError,
				"failed to persist weight vector")
		}
	}

	result := decision.SubmitResult{WeightVector: &wv, Accepted: true}
	if verdict == decision.ConsistencyFlagged {
		result.WorstPairs = matrix.WorstPairs(sol, worstPairLimit)
	}
	return result, nil
}

// ApproveWeights records one stakeholder's sign-off on a weight vector.  The
// returned bool reports whether the vector is now (or already was) approved.
// When this approval completes the quorum, the approval event is published
// and the orchestrator is notified so it can schedule a recalculation.
func (s *WeightsService) ApproveWeights(
	ctx context.Context,
	id common.ID,
	approver common.StakeholderID,
) (decision.Approval, bool, error) {
	entry, approved, err := s.arena.Approve(id, approver)
	if err != nil {
		return decision.Approval{}, false, err
	}
	if wv, verr := s.arena.Get(id); verr == nil {
		s.observer.ApprovalObserved(wv.Version, approved)
	}

	if s.repo != nil {
		if err := s.repo.SaveApproval(ctx, entry); err != nil {
			return decision.Approval{}, false, errors.Wrap(err, errors.ErrCodeDatabaseError,
				"failed to persist approval")
		}
		if approved {
			if err := s.repo.MarkApproved(ctx, id); err != nil {
				return decision.Approval{}, false, errors.Wrap(err, errors.ErrCodeDatabaseError,
					"failed to persist approval state")
			}
		}
	}

	if approved {
		wv, err := s.arena.Get(id)
		if err != nil {
			return decision.Approval{}, false, err
		}
		s.logger.Info("weight vector approved",
			logging.String("weight_vector_id", string(id)),
			logging.Int("version", wv.Version),
			logging.String("approver", string(approver)),
		)
		if s.events != nil {
			if err := s.events.WeightsApproved(ctx, wv); err != nil {
				// The approval itself stands; event delivery is retried by the
				// consumer side reconciling from the repository.
				s.logger.Warn("failed to publish approval event",
					logging.String("weight_vector_id", string(id)), logging.Err(err))
			}
		}
		if s.listener != nil {
			s.listener.WeightVectorApproved(wv.Version)
		}
	}

	return entry, approved, nil
}

// GetVector returns a snapshot of a weight vector by ID.
func (s *WeightsService) GetVector(id common.ID) (decision.WeightVector, error) {
	return s.arena.Get(id)
}

// LatestApproved returns the highest-version approved vector.
func (s *WeightsService) LatestApproved() (decision.WeightVector, error) {
	return s.arena.LatestApproved()
}

// Approvals returns the approval audit trail for a vector.
func (s *WeightsService) Approvals(id common.ID) []decision.Approval {
	return s.arena.Approvals(id)
}
