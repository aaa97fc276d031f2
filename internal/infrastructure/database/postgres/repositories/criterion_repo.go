package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/turtacn/PriorityCraft/internal/domain/criterion"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
)

// CriterionRepo persists the criterion configuration.
type CriterionRepo struct {
	db     *sql.DB
	logger logging.Logger
}

// NewCriterionRepo builds the repository.
func NewCriterionRepo(db *sql.DB, log logging.Logger) *CriterionRepo {
	return &CriterionRepo{db: db, logger: log.Named("criterion_repo")}
}

const selectCriterionSQL = `
SELECT id, name, category, kind, weight, category_map, threshold, pass_above, active, created_at
FROM criteria `

// ListActive returns the active criterion configuration, sorted by ID.
func (r *CriterionRepo) ListActive(ctx context.Context) ([]*criterion.Criterion, error) {
	rows, err := r.db.QueryContext(ctx, selectCriterionSQL+`WHERE active ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list active criteria")
	}
	defer rows.Close()

	var out []*criterion.Criterion
	for rows.Next() {
		c, err := scanCriterion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "criterion iteration failed")
	}
	return out, nil
}

// Get loads one criterion by ID.
func (r *CriterionRepo) Get(ctx context.Context, id string) (*criterion.Criterion, error) {
	row := r.db.QueryRowContext(ctx, selectCriterionSQL+`WHERE id = $1`, id)
	c, err := scanCriterion(row)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Save upserts a criterion.  A criterion referenced by an approved weight
// vector must not change: the guard checks before writing.
func (r *CriterionRepo) Save(ctx context.Context, c *criterion.Criterion) error {
	if err := c.Validate(); err != nil {
		return err
	}

	var referenced bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1 FROM weight_vectors
    WHERE approved AND weights ? $1
)`, c.ID).Scan(&referenced)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to check criterion references")
	}
	if referenced {
		return errors.Newf(errors.ErrCodeWeightVectorImmutable,
			"criterion %s is referenced by an approved weight vector", c.ID)
	}

	var categoryMap []byte
	if len(c.CategoryMap) > 0 {
		if categoryMap, err = json.Marshal(c.CategoryMap); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode category map")
		}
	}
	createdAt := time.Time(c.CreatedAt)
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO criteria (id, name, category, kind, weight, category_map, threshold, pass_above, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    category = EXCLUDED.category,
    kind = EXCLUDED.kind,
    weight = EXCLUDED.weight,
    category_map = EXCLUDED.category_map,
    threshold = EXCLUDED.threshold,
    pass_above = EXCLUDED.pass_above,
    active = EXCLUDED.active`,
		c.ID, c.Name, c.Category, string(c.Kind), c.Weight, categoryMap,
		c.Threshold, c.PassAbove, c.Active, createdAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save criterion")
	}
	return nil
}

func scanCriterion(row rowScanner) (*criterion.Criterion, error) {
	var (
		c              criterion.Criterion
		kind           string
		categoryMapRaw []byte
		threshold      sql.NullFloat64
		createdAt      time.Time
	)
	err := row.Scan(&c.ID, &c.Name, &c.Category, &kind, &c.Weight,
		&categoryMapRaw, &threshold, &c.PassAbove, &c.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeCriterionUnknown, "criterion not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan criterion")
	}
	if len(categoryMapRaw) > 0 {
		if err := json.Unmarshal(categoryMapRaw, &c.CategoryMap); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode category map")
		}
	}
	c.Kind = criterion.ValueKind(kind)
	if threshold.Valid {
		c.Threshold = threshold.Float64
	}
	c.CreatedAt = common.Timestamp(createdAt)
	return &c, nil
}
