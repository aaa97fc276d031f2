package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_006"
	ErrCodeTimeout            ErrorCode = "COMMON_007"
	ErrCodeValidation         ErrorCode = "COMMON_008"
	ErrCodeSerialization      ErrorCode = "COMMON_009"
	ErrCodeDatabaseError      ErrorCode = "COMMON_010"
	ErrCodeCacheError         ErrorCode = "COMMON_011"
	ErrCodeExternalService    ErrorCode = "COMMON_012"
	ErrCodeNotImplemented     ErrorCode = "COMMON_013"
)

// Aliases used throughout the codebase for readability.
const (
	CodeInternal       = ErrCodeInternal
	CodeInvalidParam   = ErrCodeBadRequest
	CodeNotFound       = ErrCodeNotFound
	CodeConflict       = ErrCodeConflict
	CodeRateLimit      = ErrCodeTooManyRequests
	CodeNotImplemented = ErrCodeNotImplemented
	CodeDatabaseError  = ErrCodeDatabaseError
	CodeCacheError     = ErrCodeCacheError
	CodeOK             = ErrorCode("OK")
)

// Decision Engine Error Codes — matrix and weight-vector validation.
const (
	// ErrCodeMatrixNotReciprocal: a[j][i] != 1/a[i][j] beyond tolerance.
	ErrCodeMatrixNotReciprocal ErrorCode = "DEC_VAL_001"
	// ErrCodeMatrixDiagonal: a[i][i] != 1.
	ErrCodeMatrixDiagonal ErrorCode = "DEC_VAL_002"
	// ErrCodePreferenceOutOfScale: judgment outside the reciprocal 1–9 scale.
	ErrCodePreferenceOutOfScale ErrorCode = "DEC_VAL_003"
	// ErrCodeWeightSumViolation: active criterion weights do not sum to 1.0±1e-4.
	ErrCodeWeightSumViolation ErrorCode = "DEC_VAL_004"
	// ErrCodeJudgmentSetIncomplete: the submitted judgments do not cover every pair.
	ErrCodeJudgmentSetIncomplete ErrorCode = "DEC_VAL_005"
	// ErrCodeCriterionUnknown: a judgment or attribute references an unknown criterion.
	ErrCodeCriterionUnknown ErrorCode = "DEC_VAL_006"
)

// Consistency Error Codes.
const (
	// ErrCodeConsistencyRejected: CR above the hard submission ceiling.
	ErrCodeConsistencyRejected ErrorCode = "DEC_CONS_001"
	// ErrCodeEigenNotConverged: power iteration failed; column-average fallback used.
	ErrCodeEigenNotConverged ErrorCode = "DEC_CONS_002"
)

// Weight Vector Lifecycle Error Codes.
const (
	ErrCodeWeightVectorNotFound    ErrorCode = "WGT_001"
	ErrCodeWeightVectorNotApproved ErrorCode = "WGT_002"
	ErrCodeWeightVectorImmutable   ErrorCode = "WGT_003"
	ErrCodeDuplicateApproval       ErrorCode = "WGT_004"
)

// Scoring Error Codes.
const (
	ErrCodeScoringFailed       ErrorCode = "SCR_001"
	ErrCodeEmptyBatch          ErrorCode = "SCR_002"
	ErrCodeUnknownValueKind    ErrorCode = "SCR_003"
	ErrCodeDataQualityDegraded ErrorCode = "SCR_004"
)

// Enhancement Error Codes. These never escape the fallback chain as batch
// failures; they exist for logging and metrics labels.
const (
	ErrCodeEnhancementTimeout       ErrorCode = "ENH_001"
	ErrCodeEnhancementUnavailable   ErrorCode = "ENH_002"
	ErrCodeEnhancementLowConfidence ErrorCode = "ENH_003"
	ErrCodeEnhancementCircuitOpen   ErrorCode = "ENH_004"
	ErrCodeEnhancementBudgetSpent   ErrorCode = "ENH_005"
)

// Orchestration Error Codes.
const (
	ErrCodeBatchNotFound      ErrorCode = "ORCH_001"
	ErrCodeVersionConflict    ErrorCode = "ORCH_002"
	ErrCodeRunAlreadyActive   ErrorCode = "ORCH_003"
	ErrCodeItemStoreWriteFail ErrorCode = "ORCH_004"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusInternalServerError,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeMatrixNotReciprocal:   http.StatusBadRequest,
	ErrCodeMatrixDiagonal:        http.StatusBadRequest,
	ErrCodePreferenceOutOfScale:  http.StatusBadRequest,
	ErrCodeWeightSumViolation:    http.StatusUnprocessableEntity,
	ErrCodeJudgmentSetIncomplete: http.StatusBadRequest,
	ErrCodeCriterionUnknown:      http.StatusBadRequest,

	ErrCodeConsistencyRejected: http.StatusUnprocessableEntity,
	ErrCodeEigenNotConverged:   http.StatusInternalServerError,

	ErrCodeWeightVectorNotFound:    http.StatusNotFound,
	ErrCodeWeightVectorNotApproved: http.StatusConflict,
	ErrCodeWeightVectorImmutable:   http.StatusConflict,
	ErrCodeDuplicateApproval:       http.StatusConflict,

	ErrCodeScoringFailed:       http.StatusInternalServerError,
	ErrCodeEmptyBatch:          http.StatusBadRequest,
	ErrCodeUnknownValueKind:    http.StatusBadRequest,
	ErrCodeDataQualityDegraded: http.StatusOK,

	ErrCodeEnhancementTimeout:       http.StatusGatewayTimeout,
	ErrCodeEnhancementUnavailable:   http.StatusServiceUnavailable,
	ErrCodeEnhancementLowConfidence: http.StatusOK,
	ErrCodeEnhancementCircuitOpen:   http.StatusServiceUnavailable,
	ErrCodeEnhancementBudgetSpent:   http.StatusOK,

	ErrCodeBatchNotFound:      http.StatusNotFound,
	ErrCodeVersionConflict:    http.StatusConflict,
	ErrCodeRunAlreadyActive:   http.StatusConflict,
	ErrCodeItemStoreWriteFail: http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeMatrixNotReciprocal:   "comparison matrix is not reciprocal",
	ErrCodeMatrixDiagonal:        "comparison matrix diagonal must be 1",
	ErrCodePreferenceOutOfScale:  "preference outside the 1-9 reciprocal scale",
	ErrCodeWeightSumViolation:    "criterion weights must sum to 1.0",
	ErrCodeJudgmentSetIncomplete: "judgment set does not cover all criterion pairs",
	ErrCodeCriterionUnknown:      "unknown criterion",

	ErrCodeConsistencyRejected: "consistency ratio above the submission ceiling",
	ErrCodeEigenNotConverged:   "eigenvector computation did not converge",

	ErrCodeWeightVectorNotFound:    "weight vector not found",
	ErrCodeWeightVectorNotApproved: "weight vector not approved",
	ErrCodeWeightVectorImmutable:   "approved weight vector is immutable",
	ErrCodeDuplicateApproval:       "approver already signed this weight vector",

	ErrCodeScoringFailed:       "scoring failed",
	ErrCodeEmptyBatch:          "batch contains no items",
	ErrCodeUnknownValueKind:    "unknown criterion value kind",
	ErrCodeDataQualityDegraded: "scores computed with degraded data quality",

	ErrCodeEnhancementTimeout:       "enhancement tier timed out",
	ErrCodeEnhancementUnavailable:   "enhancement tier unavailable",
	ErrCodeEnhancementLowConfidence: "enhancement result below confidence floor",
	ErrCodeEnhancementCircuitOpen:   "enhancement tier circuit open",
	ErrCodeEnhancementBudgetSpent:   "enhancement budget exhausted",

	ErrCodeBatchNotFound:      "calculation batch not found",
	ErrCodeVersionConflict:    "weight vector version conflict",
	ErrCodeRunAlreadyActive:   "a calculation run is already active for this version",
	ErrCodeItemStoreWriteFail: "item store rejected score writeback",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
