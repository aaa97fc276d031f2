// Package repositories holds the PostgreSQL-backed implementations of the
// domain persistence contracts.
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

// WeightVectorRepo persists weight vectors and their approval trail.  The
// arena remains the in-process authority; this repository is its durable
// shadow and the recovery source after restart.
type WeightVectorRepo struct {
	db     *sql.DB
	logger logging.Logger
}

// NewWeightVectorRepo builds the repository.
func NewWeightVectorRepo(db *sql.DB, log logging.Logger) *WeightVectorRepo {
	return &WeightVectorRepo{db: db, logger: log.Named("weights_repo")}
}

const insertVectorSQL = `
INSERT INTO weight_vectors
    (id, version, stakeholder_id, weights, consistency_ratio, verdict, approved, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// SaveVector inserts a new vector.  Vectors are immutable: a version
// collision is a conflict, never an update.
func (r *WeightVectorRepo) SaveVector(ctx context.Context, wv decision.WeightVector) error {
	weights, err := json.Marshal(wv.Weights)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode weights")
	}
	_, err = r.db.ExecContext(ctx, insertVectorSQL,
		string(wv.ID), wv.Version, string(wv.StakeholderID), weights,
		wv.ConsistencyRatio, string(wv.Verdict), wv.Approved, time.Time(wv.CreatedAt))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert weight vector")
	}
	return nil
}

const selectVectorSQL = `
SELECT id, version, stakeholder_id, weights, consistency_ratio, verdict, approved, created_at
FROM weight_vectors `

// GetVector loads one vector by ID.
func (r *WeightVectorRepo) GetVector(ctx context.Context, id common.ID) (decision.WeightVector, error) {
	row := r.db.QueryRowContext(ctx, selectVectorSQL+`WHERE id = $1`, string(id))
	return scanVector(row)
}

// GetVectorByVersion loads one vector by version number.
func (r *WeightVectorRepo) GetVectorByVersion(ctx context.Context, version int) (decision.WeightVector, error) {
	row := r.db.QueryRowContext(ctx, selectVectorSQL+`WHERE version = $1`, version)
	return scanVector(row)
}

// LatestApproved loads the highest-version approved vector.
func (r *WeightVectorRepo) LatestApproved(ctx context.Context) (decision.WeightVector, error) {
	row := r.db.QueryRowContext(ctx,
		selectVectorSQL+`WHERE approved ORDER BY version DESC LIMIT 1`)
	return scanVector(row)
}

// ListVectors returns the newest vectors first, up to limit.
func (r *WeightVectorRepo) ListVectors(ctx context.Context, limit int) ([]decision.WeightVector, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		selectVectorSQL+`ORDER BY version DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list weight vectors")
	}
	defer rows.Close()

	var out []decision.WeightVector
	for rows.Next() {
		wv, err := scanVector(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "weight vector iteration failed")
	}
	return out, nil
}

// SaveApproval appends one approval audit entry.
func (r *WeightVectorRepo) SaveApproval(ctx context.Context, ap decision.Approval) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO approvals (id, weight_vector_id, approver_id, approved_at)
VALUES ($1, $2, $3, $4)`,
		string(ap.ID), string(ap.WeightVectorID), string(ap.ApproverID), time.Time(ap.ApprovedAt))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert approval")
	}
	return nil
}

// ListApprovals returns a vector's approvals, oldest first.
func (r *WeightVectorRepo) ListApprovals(ctx context.Context, id common.ID) ([]decision.Approval, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, weight_vector_id, approver_id, approved_at
FROM approvals WHERE weight_vector_id = $1 ORDER BY approved_at`, string(id))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list approvals")
	}
	defer rows.Close()

	var out []decision.Approval
	for rows.Next() {
		var ap decision.Approval
		var approvedAt time.Time
		var apID, vecID, approver string
		if err := rows.Scan(&apID, &vecID, &approver, &approvedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan approval")
		}
		ap.ID = common.ID(apID)
		ap.WeightVectorID = common.ID(vecID)
		ap.ApproverID = common.StakeholderID(approver)
		ap.ApprovedAt = common.Timestamp(approvedAt)
		out = append(out, ap)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "approval iteration failed")
	}
	return out, nil
}

// MarkApproved flips the vector's approved flag.  Monotonic: never unset.
func (r *WeightVectorRepo) MarkApproved(ctx context.Context, id common.ID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE weight_vectors SET approved = TRUE WHERE id = $1`, string(id))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to mark weight vector approved")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeWeightVectorNotFound, "weight vector %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVector(row rowScanner) (decision.WeightVector, error) {
	var (
		id, stakeholder, verdict string
		weightsRaw               []byte
		createdAt                time.Time
		wv                       decision.WeightVector
	)
	err := row.Scan(&id, &wv.Version, &stakeholder, &weightsRaw,
		&wv.ConsistencyRatio, &verdict, &wv.Approved, &createdAt)
	if err == sql.ErrNoRows {
		return decision.WeightVector{}, errors.New(errors.ErrCodeWeightVectorNotFound,
			"weight vector not found")
	}
	if err != nil {
		return decision.WeightVector{}, errors.Wrap(err, errors.ErrCodeDatabaseError,
			"failed to scan weight vector")
	}
	if err := json.Unmarshal(weightsRaw, &wv.Weights); err != nil {
		return decision.WeightVector{}, errors.Wrap(err, errors.ErrCodeSerialization,
			"failed to decode weights")
	}
	wv.ID = common.ID(id)
	wv.StakeholderID = common.StakeholderID(stakeholder)
	wv.Verdict = decision.ConsistencyVerdict(verdict)
	wv.CreatedAt = common.Timestamp(createdAt)
	return wv, nil
}
