package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// RunRepo persists the score records and audit trail of completed
// calculation runs.
type RunRepo struct {
	db     *sql.DB
	logger logging.Logger
}

// NewRunRepo builds the repository.
func NewRunRepo(db *sql.DB, log logging.Logger) *RunRepo {
	return &RunRepo{db: db, logger: log.Named("run_repo")}
}

// SaveScores writes a run's score records in one transaction.  Records are
// append-only: (run_id, item_id) never updates.
func (r *RunRepo) SaveScores(ctx context.Context, records []decision.ScoreRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin score transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO score_records
    (run_id, item_id, total, contributions, confidence, method, degraded, warnings, fingerprint, scored_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to prepare score insert")
	}
	defer stmt.Close()

	for _, rec := range records {
		contributions, err := json.Marshal(rec.Contributions)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode contributions")
		}
		var warnings []byte
		if len(rec.Warnings) > 0 {
			if warnings, err = json.Marshal(rec.Warnings); err != nil {
				return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode warnings")
			}
		}
		if _, err := stmt.ExecContext(ctx,
			rec.RunID, rec.ItemID, rec.Total, contributions, rec.Confidence,
			string(rec.Method), rec.Degraded, warnings, rec.Fingerprint,
			time.Time(rec.ScoredAt)); err != nil {
			return errors.Wrapf(err, errors.ErrCodeDatabaseError,
				"failed to insert score record for item %s", rec.ItemID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit score records")
	}
	return nil
}

// SaveAudit writes a run's audit record.
func (r *RunRepo) SaveAudit(ctx context.Context, audit decision.RunAudit) error {
	methodCounts, err := json.Marshal(audit.MethodCounts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode method counts")
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO run_audits
    (run_id, trigger_kind, weight_version, item_count, method_counts,
     cache_hits, cache_misses, duration_ms, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		audit.RunID, string(audit.Trigger), audit.WeightVersion, audit.ItemCount,
		methodCounts, audit.CacheHits, audit.CacheMisses, audit.DurationMS,
		time.Time(audit.StartedAt), time.Time(audit.FinishedAt))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert run audit")
	}
	return nil
}

// GetAudit loads one run's audit record.
func (r *RunRepo) GetAudit(ctx context.Context, runID string) (decision.RunAudit, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT run_id, trigger_kind, weight_version, item_count, method_counts,
       cache_hits, cache_misses, duration_ms, started_at, finished_at
FROM run_audits WHERE run_id = $1`, runID)

	var (
		audit           decision.RunAudit
		trigger         string
		methodCountsRaw []byte
		started, done   time.Time
	)
	err := row.Scan(&audit.RunID, &trigger, &audit.WeightVersion, &audit.ItemCount,
		&methodCountsRaw, &audit.CacheHits, &audit.CacheMisses, &audit.DurationMS,
		&started, &done)
	if err == sql.ErrNoRows {
		return decision.RunAudit{}, errors.Newf(errors.ErrCodeBatchNotFound, "run %s not found", runID)
	}
	if err != nil {
		return decision.RunAudit{}, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run audit")
	}
	if err := json.Unmarshal(methodCountsRaw, &audit.MethodCounts); err != nil {
		return decision.RunAudit{}, errors.Wrap(err, errors.ErrCodeSerialization,
			"failed to decode method counts")
	}
	audit.Trigger = decision.RunTrigger(trigger)
	audit.StartedAt = common.Timestamp(started)
	audit.FinishedAt = common.Timestamp(done)
	return audit, nil
}

// ListScores loads a run's score records ordered by descending total, item
// ID ascending on ties, matching the ranking order.
func (r *RunRepo) ListScores(ctx context.Context, runID string) ([]decision.ScoreRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, item_id, total, contributions, confidence, method, degraded, warnings, fingerprint, scored_at
FROM score_records WHERE run_id = $1 ORDER BY total DESC, item_id`, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list score records")
	}
	defer rows.Close()

	var out []decision.ScoreRecord
	for rows.Next() {
		var (
			rec              decision.ScoreRecord
			method           string
			contributionsRaw []byte
			warningsRaw      []byte
			scoredAt         time.Time
		)
		if err := rows.Scan(&rec.RunID, &rec.ItemID, &rec.Total, &contributionsRaw,
			&rec.Confidence, &method, &rec.Degraded, &warningsRaw,
			&rec.Fingerprint, &scoredAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan score record")
		}
		if err := json.Unmarshal(contributionsRaw, &rec.Contributions); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode contributions")
		}
		if len(warningsRaw) > 0 {
			if err := json.Unmarshal(warningsRaw, &rec.Warnings); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode warnings")
			}
		}
		rec.Method = decision.MethodUsed(method)
		rec.ScoredAt = common.Timestamp(scoredAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "score record iteration failed")
	}
	return out, nil
}
