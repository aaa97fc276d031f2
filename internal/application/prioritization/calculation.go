package prioritization

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/PriorityCraft/internal/config"
	"github.com/turtacn/PriorityCraft/internal/domain/criterion"
	"github.com/turtacn/PriorityCraft/internal/domain/item"
	"github.com/turtacn/PriorityCraft/internal/domain/judgment"
	"github.com/turtacn/PriorityCraft/internal/domain/scoring"
	"github.com/turtacn/PriorityCraft/internal/domain/weights"
	"github.com/turtacn/PriorityCraft/internal/enhancement"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// ScoreCache caches score records keyed by weight-vector version and item
// fingerprint.  A hit means the item's attributes have not changed since it
// was last scored under the same weights, so the record can be reused
// verbatim.  The redis package provides the production implementation.
type ScoreCache interface {
	Get(ctx context.Context, weightVersion int, fingerprint string) (decision.ScoreRecord, bool, error)
	Put(ctx context.Context, weightVersion int, rec decision.ScoreRecord) error
}

// RunRepository persists completed runs for audit and replay.
type RunRepository interface {
	SaveScores(ctx context.Context, records []decision.ScoreRecord) error
	SaveAudit(ctx context.Context, audit decision.RunAudit) error
}

// RunObserver receives calculation telemetry.  The prometheus package
// provides the production implementation.
type RunObserver interface {
	RunStarted(trigger decision.RunTrigger)
	RunFinished(state decision.RunState, d time.Duration)
	ItemScored(method decision.MethodUsed)
	CacheHit()
	CacheMiss()
}

type nopRunObserver struct{}

func (nopRunObserver) RunStarted(decision.RunTrigger)             {}
func (nopRunObserver) RunFinished(decision.RunState, time.Duration) {}
func (nopRunObserver) ItemScored(decision.MethodUsed)             {}
func (nopRunObserver) CacheHit()                                  {}
func (nopRunObserver) CacheMiss()                                 {}

// NopRunObserver returns a RunObserver that discards everything.
func NopRunObserver() RunObserver { return nopRunObserver{} }

// runHandle tracks one calculation run from submission to completion.
type runHandle struct {
	id            string
	weightVersion int
	opts          decision.CalculationOptions
	cancel        context.CancelFunc
	done          chan struct{}

	scored atomic.Int64
	total  atomic.Int64

	mu     sync.Mutex
	state  decision.RunState
	result *decision.CalculationResult
	runErr error
}

func (h *runHandle) setState(s decision.RunState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *runHandle) status() decision.RunStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := decision.RunStatus{
		RunID:       h.id,
		State:       h.state,
		ScoredItems: int(h.scored.Load()),
		TotalItems:  int(h.total.Load()),
	}
	if st.TotalItems > 0 {
		st.Progress = float64(st.ScoredItems) / float64(st.TotalItems)
	}
	if h.runErr != nil {
		st.Error = h.runErr.Error()
	}
	return st
}

// Orchestrator drives calculation runs: it pins an approved weight-vector
// version, scores every item with bounded parallelism, reuses cached scores
// where fingerprints match, applies the enhancement chain within the run's
// time budget, and produces the final ranking plus the per-run audit record.
type Orchestrator struct {
	items    item.Store
	criteria criterion.Repository
	arena    *weights.Arena
	chain    *enhancement.Chain // nil disables enhancement entirely
	cache    ScoreCache         // optional
	repo     RunRepository      // optional
	events   EventPublisher     // optional
	observer RunObserver

	engineCfg config.EngineConfig
	enhCfg    config.EnhancementConfig
	logger    logging.Logger

	// runRetention bounds how many finished runs stay queryable; the
	// oldest are evicted first.  Active runs are never evicted.
	runRetention int

	mu              sync.Mutex
	runs            map[string]*runHandle
	activeByVersion map[int]*runHandle
	// finished holds completed run IDs in completion order, backing the
	// retention eviction.
	finished []string
	// pendingVersion is the newest version approved while a run was active;
	// a follow-up run starts for it when the active run finishes.
	pendingVersion int
}

// NewOrchestrator builds the orchestrator.  chain, cache, repo, events, and
// observer may be nil.
func NewOrchestrator(
	items item.Store,
	criteria criterion.Repository,
	arena *weights.Arena,
	chain *enhancement.Chain,
	cache ScoreCache,
	repo RunRepository,
	events EventPublisher,
	observer RunObserver,
	engineCfg config.EngineConfig,
	enhCfg config.EnhancementConfig,
	logger logging.Logger,
) *Orchestrator {
	if observer == nil {
		observer = NopRunObserver()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	retention := engineCfg.RunRetention
	if retention < 1 {
		retention = config.DefaultRunRetention
	}
	return &Orchestrator{
		items:           items,
		criteria:        criteria,
		arena:           arena,
		chain:           chain,
		cache:           cache,
		repo:            repo,
		events:          events,
		observer:        observer,
		engineCfg:       engineCfg,
		enhCfg:          enhCfg,
		logger:          logger.Named("orchestrator"),
		runRetention:    retention,
		runs:            make(map[string]*runHandle),
		activeByVersion: make(map[int]*runHandle),
	}
}

// StartRun launches an asynchronous calculation run and returns its initial
// status.  The run executes under the weight vector the caller pinned, or
// the latest approved one.  Only one run may be active per weight-vector
// version; concurrent submissions for the same version are rejected rather
// than queued.
func (o *Orchestrator) StartRun(ctx context.Context, opts decision.CalculationOptions) (decision.RunStatus, error) {
	wv, err := o.resolveVector(opts)
	if err != nil {
		return decision.RunStatus{}, err
	}
	if opts.Trigger == "" {
		opts.Trigger = decision.TriggerManual
	}

	o.mu.Lock()
	if active, ok := o.activeByVersion[wv.Version]; ok {
		o.mu.Unlock()
		return decision.RunStatus{}, errors.Newf(errors.ErrCodeRunAlreadyActive,
			"run %s is already active for weight version %d", active.id, wv.Version)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &runHandle{
		id:            common.GenerateID("run"),
		weightVersion: wv.Version,
		opts:          opts,
		cancel:        cancel,
		done:          make(chan struct{}),
		state:         decision.RunStatePending,
	}
	o.runs[h.id] = h
	o.activeByVersion[wv.Version] = h
	o.mu.Unlock()

	o.observer.RunStarted(opts.Trigger)
	o.logger.Info("calculation run accepted",
		logging.String("run_id", h.id),
		logging.Int("weight_version", wv.Version),
		logging.String("trigger", string(opts.Trigger)),
	)

	go o.execute(runCtx, h, wv)

	return h.status(), nil
}

// resolveVector picks the weight vector a run executes under: the one the
// caller pinned, or the latest approved.  A pinned vector must itself be
// approved.
func (o *Orchestrator) resolveVector(opts decision.CalculationOptions) (decision.WeightVector, error) {
	if opts.WeightVectorID == "" {
		wv, err := o.arena.LatestApproved()
		if err != nil {
			return decision.WeightVector{}, errors.Wrap(err, errors.ErrCodeWeightVectorNotApproved,
				"no approved weight vector to calculate with")
		}
		return wv, nil
	}
	wv, err := o.arena.Get(opts.WeightVectorID)
	if err != nil {
		return decision.WeightVector{}, err
	}
	if !wv.Approved {
		return decision.WeightVector{}, errors.Newf(errors.ErrCodeWeightVectorNotApproved,
			"weight vector %s (version %d) is not approved", wv.ID, wv.Version)
	}
	return wv, nil
}

// Status reports the current state of a run.
func (o *Orchestrator) Status(runID string) (decision.RunStatus, error) {
	o.mu.Lock()
	h, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return decision.RunStatus{}, errors.Newf(errors.ErrCodeBatchNotFound, "run %s not found", runID)
	}
	return h.status(), nil
}

// Result returns the outcome of a completed or cancelled run.
func (o *Orchestrator) Result(runID string) (*decision.CalculationResult, error) {
	o.mu.Lock()
	h, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return nil, errors.Newf(errors.ErrCodeBatchNotFound, "run %s not found", runID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.result == nil {
		if h.runErr != nil {
			return nil, h.runErr
		}
		return nil, errors.Newf(errors.ErrCodeConflict, "run %s has not finished", runID)
	}
	return h.result, nil
}

// Cancel requests cooperative cancellation of a running calculation.  Items
// already scored are kept; the run finishes with a partial ranking.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	h, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return errors.Newf(errors.ErrCodeBatchNotFound, "run %s not found", runID)
	}
	h.cancel()
	return nil
}

// Wait blocks until the run finishes, for callers that want synchronous
// semantics (the CLI does).
func (o *Orchestrator) Wait(ctx context.Context, runID string) (*decision.CalculationResult, error) {
	o.mu.Lock()
	h, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return nil, errors.Newf(errors.ErrCodeBatchNotFound, "run %s not found", runID)
	}
	select {
	case <-h.done:
		return o.Result(runID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WeightVectorApproved implements ApprovalListener.  A fresh approval
// triggers a recalculation; if a run is already active under an older
// version, the new version is remembered and a follow-up run starts when the
// active run drains.
func (o *Orchestrator) WeightVectorApproved(version int) {
	o.mu.Lock()
	busy := len(o.activeByVersion) > 0
	if busy && version > o.pendingVersion {
		o.pendingVersion = version
	}
	o.mu.Unlock()

	if busy {
		o.logger.Info("approval received during active run, follow-up scheduled",
			logging.Int("version", version))
		return
	}

	if _, err := o.StartRun(context.Background(), decision.CalculationOptions{
		EnableEnhancement: o.enhCfg.Enabled,
		Trigger:           decision.TriggerWeightApproval,
	}); err != nil {
		o.logger.Warn("failed to start approval-triggered run", logging.Err(err))
	}
}

// Sensitivity computes per-criterion stability margins for the latest
// approved weights over the current item population: how far each weight can
// shift before the top-k order changes.
func (o *Orchestrator) Sensitivity(ctx context.Context, filter string) (map[string]judgment.Margin, error) {
	wv, err := o.arena.LatestApproved()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWeightVectorNotApproved,
			"no approved weight vector for sensitivity analysis")
	}
	set, err := o.loadSet(ctx, wv)
	if err != nil {
		return nil, err
	}
	items, err := o.items.ListItems(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to list items")
	}

	normalizer := o.newNormalizer()
	stats := normalizer.ComputeStats(set, items)

	profiles := make([]judgment.ItemProfile, len(items))
	for i, it := range items {
		norm := normalizer.Normalize(set, stats, it)
		profiles[i] = judgment.ItemProfile{ID: it.ID, Normalized: norm.Scores}
	}

	topK := o.engineCfg.SensitivityTopK
	if topK <= 0 {
		topK = 3
	}
	return judgment.StabilityMargins(wv.Weights, profiles, topK), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Run execution
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) newNormalizer() *scoring.Normalizer {
	return scoring.NewNormalizer(scoring.NormalizerOptions{
		Policy:          scoring.MissingPolicy(o.engineCfg.MissingValuePolicy),
		Default:         o.engineCfg.MissingDefault,
		ConfidenceFloor: o.engineCfg.ConfidenceFloor,
	})
}

// loadSet materializes the active criterion set reweighted by the pinned
// vector.  A mismatch means the criterion configuration changed after the
// vector was approved.
func (o *Orchestrator) loadSet(ctx context.Context, wv decision.WeightVector) (*criterion.Set, error) {
	active, err := o.criteria.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load active criteria")
	}
	base, err := criterion.NewSet(active)
	if err != nil {
		return nil, err
	}
	set, err := base.Reweighted(wv.Weights)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeVersionConflict,
			"criterion configuration diverged from weight version %d", wv.Version)
	}
	return set, nil
}

func (o *Orchestrator) execute(ctx context.Context, h *runHandle, wv decision.WeightVector) {
	started := time.Now()
	h.setState(decision.RunStateRunning)

	result, err := o.runScoring(ctx, h, wv, started)

	h.mu.Lock()
	if err != nil {
		h.state = decision.RunStateFailed
		h.runErr = err
	} else if result.Partial {
		h.state = decision.RunStateCancelled
		h.result = result
	} else {
		h.state = decision.RunStateCompleted
		h.result = result
	}
	finalState := h.state
	h.mu.Unlock()
	close(h.done)

	o.observer.RunFinished(finalState, time.Since(started))
	if err != nil {
		o.logger.Error("calculation run failed",
			logging.String("run_id", h.id), logging.Err(err))
	} else {
		o.logger.Info("calculation run finished",
			logging.String("run_id", h.id),
			logging.String("state", string(finalState)),
			logging.Int("items", len(result.RankedItems)),
			logging.Int64("duration_ms", result.Audit.DurationMS),
		)
	}

	// Unregister and kick off any follow-up run scheduled by an approval
	// that landed mid-flight.
	o.mu.Lock()
	delete(o.activeByVersion, h.weightVersion)
	o.finished = append(o.finished, h.id)
	for len(o.finished) > o.runRetention {
		evicted := o.finished[0]
		o.finished = o.finished[1:]
		delete(o.runs, evicted)
	}
	pending := o.pendingVersion
	if pending > h.weightVersion {
		o.pendingVersion = 0
	} else {
		pending = 0
	}
	o.mu.Unlock()

	if pending > 0 {
		o.logger.Info("starting follow-up run for newer weight version",
			logging.Int("version", pending))
		if _, err := o.StartRun(context.Background(), decision.CalculationOptions{
			EnableEnhancement: h.opts.EnableEnhancement,
			Filter:            h.opts.Filter,
			Trigger:           decision.TriggerFollowUpVersion,
		}); err != nil {
			o.logger.Warn("failed to start follow-up run", logging.Err(err))
		}
	}
}

func (o *Orchestrator) runScoring(
	ctx context.Context,
	h *runHandle,
	wv decision.WeightVector,
	started time.Time,
) (*decision.CalculationResult, error) {
	set, err := o.loadSet(ctx, wv)
	if err != nil {
		return nil, err
	}

	items, err := o.items.ListItems(ctx, h.opts.Filter)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to list items")
	}
	if len(items) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyBatch, "no items matched the run filter")
	}
	h.total.Store(int64(len(items)))

	normalizer := o.newNormalizer()
	scorer := scoring.NewScorer(normalizer)
	stats := normalizer.ComputeStats(set, items)

	// Incremental runs force a rescore of the changed items; everything else
	// may come from the cache.
	changed := make(map[string]bool, len(h.opts.ChangedItemIDs))
	for _, id := range h.opts.ChangedItemIDs {
		changed[id] = true
	}

	enhance := h.opts.EnableEnhancement && o.chain != nil && o.chain.TierCount() > 0

	var cacheHits, cacheMisses atomic.Int64
	records := make([]decision.ScoreRecord, len(items))
	scoredFlags := make([]atomic.Bool, len(items))

	g, runCtx := errgroup.WithContext(ctx)
	parallelism := o.engineCfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	g.SetLimit(parallelism)

	// The whole enhancement phase shares one wall-clock budget: the chain
	// sees a dead context once it elapses and every remaining item keeps
	// its baseline score.  Baseline scoring itself is never cut short.
	enhCtx := runCtx
	if enhance && o.enhCfg.RunBudget > 0 {
		var cancelEnh context.CancelFunc
		enhCtx, cancelEnh = context.WithTimeout(runCtx, o.enhCfg.RunBudget)
		defer cancelEnh()
	}

	for i := range items {
		i := i
		g.Go(func() error {
			if err := runCtx.Err(); err != nil {
				return err
			}
			it := items[i]
			rec, fromCache := o.scoreItem(runCtx, enhCtx, scorer, set, stats, it, h, wv.Version, changed[it.ID], enhance)
			if fromCache {
				cacheHits.Add(1)
				o.observer.CacheHit()
			} else {
				cacheMisses.Add(1)
				o.observer.CacheMiss()
			}
			o.observer.ItemScored(rec.Method)
			records[i] = rec
			scoredFlags[i].Store(true)
			h.scored.Add(1)
			return nil
		})
	}

	waitErr := g.Wait()
	partial := false
	if waitErr != nil {
		if ctx.Err() == nil {
			return nil, waitErr
		}
		// Cancelled: keep what finished.
		partial = true
		kept := records[:0]
		for i := range records {
			if scoredFlags[i].Load() {
				kept = append(kept, records[i])
			}
		}
		records = kept
	}

	ranked := scoring.Rank(records)

	audit := decision.RunAudit{
		RunID:         h.id,
		Trigger:       h.opts.Trigger,
		WeightVersion: wv.Version,
		ItemCount:     len(records),
		MethodCounts:  make(map[decision.MethodUsed]int, 3),
		CacheHits:     int(cacheHits.Load()),
		CacheMisses:   int(cacheMisses.Load()),
		DurationMS:    time.Since(started).Milliseconds(),
		StartedAt:     common.Timestamp(started),
		FinishedAt:    common.NewTimestamp(),
	}
	for _, rec := range records {
		audit.MethodCounts[rec.Method]++
	}

	result := &decision.CalculationResult{
		RunID:       h.id,
		RankedItems: ranked,
		Audit:       audit,
		Partial:     partial,
	}

	o.finalize(h, result, records)
	return result, nil
}

// scoreItem produces the final record for one item: cache, then baseline,
// then the enhancement chain while the run's time budget lasts.
func (o *Orchestrator) scoreItem(
	ctx context.Context,
	enhCtx context.Context,
	scorer *scoring.Scorer,
	set *criterion.Set,
	stats *scoring.BatchStats,
	it item.WorkItem,
	h *runHandle,
	weightVersion int,
	forceRescore bool,
	enhance bool,
) (decision.ScoreRecord, bool) {
	if o.cache != nil && !forceRescore {
		if cached, ok, err := o.cache.Get(ctx, weightVersion, it.Fingerprint()); err != nil {
			o.logger.Warn("score cache read failed",
				logging.String("item_id", it.ID), logging.Err(err))
		} else if ok {
			cached.RunID = h.id
			return cached, true
		}
	}

	rec := scorer.ScoreOne(set, stats, it, h.id)

	if enhance {
		out := o.chain.Enhance(enhCtx, it, rec)
		rec = out.Record
	}

	if o.cache != nil {
		if err := o.cache.Put(ctx, weightVersion, rec); err != nil {
			o.logger.Warn("score cache write failed",
				logging.String("item_id", it.ID), logging.Err(err))
		}
	}
	return rec, false
}

// finalize writes the ranking back to the item store, persists scores and
// the audit record, and publishes the completion event.  Persistence
// failures are logged, not fatal: the in-memory result is still the answer.
func (o *Orchestrator) finalize(h *runHandle, result *decision.CalculationResult, records []decision.ScoreRecord) {
	// The run's own context may already be cancelled; persistence gets a
	// fresh deadline so a cancelled run still leaves an audit trail.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := o.items.WriteScores(ctx, h.id, result.RankedItems); err != nil {
		o.logger.Error("item store rejected score writeback",
			logging.String("run_id", h.id),
			logging.String("code", errors.ErrCodeItemStoreWriteFail.String()),
			logging.Err(err),
		)
	}
	if o.repo != nil {
		if err := o.repo.SaveScores(ctx, records); err != nil {
			o.logger.Error("failed to persist score records",
				logging.String("run_id", h.id), logging.Err(err))
		}
		if err := o.repo.SaveAudit(ctx, result.Audit); err != nil {
			o.logger.Error("failed to persist run audit",
				logging.String("run_id", h.id), logging.Err(err))
		}
	}
	if o.events != nil {
		if err := o.events.CalculationCompleted(ctx, result); err != nil {
			o.logger.Warn("failed to publish completion event",
				logging.String("run_id", h.id), logging.Err(err))
		}
	}
}
