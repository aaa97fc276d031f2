package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

func respond[T any](t *testing.T, w http.ResponseWriter, status int, data T) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(common.NewSuccessResponse(data)))
}

func respondErr(t *testing.T, w http.ResponseWriter, status int, code, msg string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	env := common.NewErrorResponse(code, msg)
	require.NoError(t, json.NewEncoder(w).Encode(env))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "secret", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestSubmitComparisons_Accepted(t *testing.T) {
	var got SubmitComparisonsRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/comparisons", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		respond(t, w, http.StatusCreated, decision.SubmitResult{
			Accepted:     true,
			WeightVector: &decision.WeightVector{Version: 4, ConsistencyRatio: 0.03},
		})
	})

	result, err := c.SubmitComparisons(context.Background(), "alice", []decision.Judgment{
		{Left: "value", Right: "risk", Preference: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", got.StakeholderID)
	assert.True(t, result.Accepted)
	require.NotNil(t, result.WeightVector)
	assert.Equal(t, 4, result.WeightVector.Version)
}

func TestSubmitComparisons_RejectionIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, http.StatusUnprocessableEntity, decision.SubmitResult{
			Accepted: false,
			WorstPairs: []decision.JudgmentPair{
				{Left: "value", Right: "risk", Value: 9, Deviation: 4.2},
			},
		})
	})

	result, err := c.SubmitComparisons(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	require.Len(t, result.WorstPairs, 1)
	assert.Equal(t, "value", result.WorstPairs[0].Left)
}

func TestApproveWeights(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/weights/wv-1/approvals", r.URL.Path)
		respond(t, w, http.StatusCreated, ApprovalResult{
			Approval: decision.Approval{WeightVectorID: "wv-1", ApproverID: "bob"},
			Approved: true,
		})
	})

	result, err := c.ApproveWeights(context.Background(), "wv-1", "bob")
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.Equal(t, common.StakeholderID("bob"), result.Approval.ApproverID)
}

func TestErrorEnvelopeDecoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respondErr(t, w, http.StatusNotFound, "WGT_001", "weight vector not found")
	})

	_, err := c.GetWeights(context.Background(), "missing")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "WGT_001", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "weight vector not found")
}

func TestCalculationLifecycle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/calculations":
			respond(t, w, http.StatusAccepted, decision.RunStatus{RunID: "run-1", State: decision.RunStatePending})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/calculations/run-1":
			respond(t, w, http.StatusOK, decision.RunStatus{RunID: "run-1", State: decision.RunStateRunning, Progress: 0.4})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/calculations/run-1/result":
			respond(t, w, http.StatusOK, decision.CalculationResult{
				RunID:       "run-1",
				RankedItems: []decision.RankedItem{{Rank: 1, ItemID: "a"}},
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/calculations/run-1":
			respond(t, w, http.StatusAccepted, map[string]any{"run_id": "run-1", "cancelling": true})
		default:
			respondErr(t, w, http.StatusNotFound, "COMMON_003", "not found")
		}
	})

	ctx := context.Background()

	started, err := c.StartCalculation(ctx, decision.CalculationOptions{EnableEnhancement: true})
	require.NoError(t, err)
	assert.Equal(t, "run-1", started.RunID)

	status, err := c.CalculationStatus(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, decision.RunStateRunning, status.State)

	result, err := c.CalculationResult(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, result.RankedItems, 1)

	require.NoError(t, c.CancelCalculation(ctx, "run-1"))
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("", "")
	require.Error(t, err)
}
