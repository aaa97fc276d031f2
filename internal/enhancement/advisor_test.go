package enhancement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorityCraft/internal/domain/item"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

func TestAdvisorTier_Success(t *testing.T) {
	var gotAuth string
	var gotReq advisorRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/enhance", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(advisorResponse{
			Total:         0.77,
			Confidence:    0.88,
			Contributions: map[string]float64{"value": 0.5, "risk": 0.27},
			Rationale:     "strong customer signal",
		})
	}))
	defer srv.Close()

	tier := NewAdvisorTier(AdvisorConfig{BaseURL: srv.URL, APIKey: "secret", Model: "advisor-v2"}, nil)

	rec, err := tier.Enhance(context.Background(), testItem(), baselineRecord())
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "advisor-v2", gotReq.Model)
	assert.Equal(t, "item-1", gotReq.ItemID)
	assert.Equal(t, 0.42, gotReq.BaselineTotal)

	assert.Equal(t, 0.77, rec.Total)
	assert.Equal(t, 0.88, rec.Confidence)
	assert.Equal(t, decision.MethodEnhanced, rec.Method)
	assert.Equal(t, 0.5, rec.Contributions["value"])
	require.Len(t, rec.Warnings, 1)
	assert.Contains(t, rec.Warnings[0], "strong customer signal")
}

func TestAdvisorTier_NoEndpointConfigured(t *testing.T) {
	tier := NewAdvisorTier(AdvisorConfig{}, nil)

	_, err := tier.Enhance(context.Background(), testItem(), baselineRecord())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEnhancementUnavailable))
}

func TestAdvisorTier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tier := NewAdvisorTier(AdvisorConfig{BaseURL: srv.URL}, nil)

	_, err := tier.Enhance(context.Background(), testItem(), baselineRecord())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEnhancementUnavailable))
	assert.Contains(t, err.Error(), "503")
}

func TestAdvisorTier_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	tier := NewAdvisorTier(AdvisorConfig{BaseURL: srv.URL}, nil)

	_, err := tier.Enhance(context.Background(), testItem(), baselineRecord())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))
}

func TestAdvisorTier_OutOfRangeValuesRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(advisorResponse{Total: 1.8, Confidence: 0.9})
	}))
	defer srv.Close()

	tier := NewAdvisorTier(AdvisorConfig{BaseURL: srv.URL}, nil)

	_, err := tier.Enhance(context.Background(), testItem(), baselineRecord())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEnhancementUnavailable))
}

func TestAdvisorTier_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	tier := NewAdvisorTier(AdvisorConfig{BaseURL: srv.URL}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tier.Enhance(ctx, testItem(), baselineRecord())
	require.Error(t, err)
}

func TestHeuristicTier_DampsByConfidence(t *testing.T) {
	tier := NewHeuristicTier()

	base := baselineRecord()
	base.Total = 0.6
	base.Confidence = 0.5

	rec, err := tier.Enhance(context.Background(), testItem(), base)
	require.NoError(t, err)

	// factor = 0.9 + 0.1*0.5 = 0.95
	assert.InDelta(t, 0.57, rec.Total, 1e-12)
	assert.Equal(t, decision.MethodCoaching, rec.Method)
}

func TestHeuristicTier_FullConfidenceKeepsTotal(t *testing.T) {
	tier := NewHeuristicTier()

	base := baselineRecord()
	base.Total = 0.6
	base.Confidence = 1.0

	rec, err := tier.Enhance(context.Background(), testItem(), base)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, rec.Total, 1e-12)
}

func TestHeuristicTier_CustomQualityWeight(t *testing.T) {
	tier := &HeuristicTier{QualityWeight: 0.5}

	base := baselineRecord()
	base.Total = 0.8
	base.Confidence = 0.2

	rec, err := tier.Enhance(context.Background(), testItem(), base)
	require.NoError(t, err)

	// factor = 0.5 + 0.5*0.2 = 0.6
	assert.InDelta(t, 0.48, rec.Total, 1e-12)
}

func TestHeuristicTier_PreservesOrderForEqualConfidence(t *testing.T) {
	tier := NewHeuristicTier()

	high := baselineRecord()
	high.Total = 0.9
	high.Confidence = 0.4

	low := baselineRecord()
	low.Total = 0.3
	low.Confidence = 0.4

	recHigh, err := tier.Enhance(context.Background(), item.WorkItem{ID: "a"}, high)
	require.NoError(t, err)
	recLow, err := tier.Enhance(context.Background(), item.WorkItem{ID: "b"}, low)
	require.NoError(t, err)

	assert.Greater(t, recHigh.Total, recLow.Total)
}
