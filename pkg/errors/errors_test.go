package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeWeightVectorNotFound, "weight vector v3 not found")

	require.NotNil(t, err)
	assert.Equal(t, ErrCodeWeightVectorNotFound, err.Code)
	assert.Equal(t, "weight vector v3 not found", err.Message)
	assert.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Error(), "WGT_001")
}

func TestErrorFormat(t *testing.T) {
	err := New(ErrCodeConsistencyRejected, "CR above ceiling")
	assert.Equal(t, "[DEC_CONS_001] CR above ceiling", err.Error())

	withDetail := err.WithDetail("worst pair (cost,risk)")
	assert.Equal(t, "[DEC_CONS_001] CR above ceiling: worst pair (cost,risk)", withDetail.Error())
	// Original is not mutated.
	assert.Empty(t, err.Detail)
}

func TestWrap(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrCodeDatabaseError, "query failed"))
	})

	t.Run("wraps and unwraps", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := Wrap(cause, ErrCodeDatabaseError, "failed to load approvals")

		require.NotNil(t, err)
		assert.Equal(t, ErrCodeDatabaseError, err.Code)
		assert.True(t, stderrors.Is(err, cause))
	})

	t.Run("preserves original code when wrapping with CodeInternal", func(t *testing.T) {
		inner := New(ErrCodeConsistencyRejected, "CR rejected")
		outer := Wrap(inner, CodeInternal, "submit failed")
		assert.Equal(t, ErrCodeConsistencyRejected, outer.Code)
	})
}

func TestIsCode(t *testing.T) {
	inner := New(ErrCodeMatrixNotReciprocal, "a[2][1] != 1/a[1][2]")
	wrapped := fmt.Errorf("submitting judgments: %w", inner)

	assert.True(t, IsCode(wrapped, ErrCodeMatrixNotReciprocal))
	assert.False(t, IsCode(wrapped, ErrCodeMatrixDiagonal))
	assert.False(t, IsCode(nil, ErrCodeMatrixDiagonal))
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsNotFound(New(ErrCodeBatchNotFound, "batch gone")))
	assert.True(t, IsValidation(New(ErrCodePreferenceOutOfScale, "preference 12")))
	assert.True(t, IsValidation(Validation("weights must sum to 1")))
	assert.True(t, IsConflict(New(ErrCodeVersionConflict, "newer version approved mid-run")))
	assert.False(t, IsConflict(New(ErrCodeNotFound, "missing")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrCodeEmptyBatch, GetCode(New(ErrCodeEmptyBatch, "no items")))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, 422, HTTPStatusForCode(ErrCodeConsistencyRejected))
	assert.Equal(t, 404, HTTPStatusForCode(ErrCodeWeightVectorNotFound))
	assert.Equal(t, 409, HTTPStatusForCode(ErrCodeVersionConflict))
	assert.Equal(t, 500, HTTPStatusForCode(ErrorCode("UNKNOWN_999")))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "DEC", ModuleForCode(ErrCodeMatrixDiagonal))
	assert.Equal(t, "ENH", ModuleForCode(ErrCodeEnhancementTimeout))
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
}
