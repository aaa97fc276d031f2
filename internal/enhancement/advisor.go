package enhancement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/turtacn/PriorityCraft/internal/domain/item"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// AdvisorConfig configures the external LLM scoring tier.
type AdvisorConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// HTTPTimeout bounds the underlying client; the chain's per-call
	// timeout still applies on top via ctx.
	HTTPTimeout time.Duration
}

// AdvisorTier calls an external reasoning service to refine an item's
// score.  It is the most capable and least reliable tier, so it sits first
// in the chain, guarded by the chain's timeout and breaker.
type AdvisorTier struct {
	cfg    AdvisorConfig
	client *http.Client
}

// NewAdvisorTier builds the tier.  client may be nil; a default client with
// the configured timeout is used.
func NewAdvisorTier(cfg AdvisorConfig, client *http.Client) *AdvisorTier {
	if client == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &AdvisorTier{cfg: cfg, client: client}
}

func (t *AdvisorTier) Name() string { return "advisor" }

func (t *AdvisorTier) Method() decision.MethodUsed { return decision.MethodEnhanced }

// advisorRequest is the wire format sent to the scoring service.
type advisorRequest struct {
	Model              string          `json:"model,omitempty"`
	ItemID             string          `json:"item_id"`
	Attributes         item.Attributes `json:"attributes"`
	BaselineTotal      float64         `json:"baseline_total"`
	BaselineConfidence float64         `json:"baseline_confidence"`
}

// advisorResponse is the wire format received back.
type advisorResponse struct {
	Total         float64            `json:"total"`
	Confidence    float64            `json:"confidence"`
	Contributions map[string]float64 `json:"contributions,omitempty"`
	Rationale     string             `json:"rationale,omitempty"`
}

// Enhance posts the item and its baseline to the advisor service and folds
// the response into a new score record.
func (t *AdvisorTier) Enhance(ctx context.Context, it item.WorkItem, baseline decision.ScoreRecord) (decision.ScoreRecord, error) {
	if t.cfg.BaseURL == "" {
		return decision.ScoreRecord{}, errors.New(errors.ErrCodeEnhancementUnavailable,
			"advisor tier has no endpoint configured")
	}

	payload, err := json.Marshal(advisorRequest{
		Model:              t.cfg.Model,
		ItemID:             it.ID,
		Attributes:         it.Attributes,
		BaselineTotal:      baseline.Total,
		BaselineConfidence: baseline.Confidence,
	})
	if err != nil {
		return decision.ScoreRecord{}, errors.Wrap(err, errors.ErrCodeSerialization,
			"failed to encode advisor request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.cfg.BaseURL+"/v1/enhance", bytes.NewReader(payload))
	if err != nil {
		return decision.ScoreRecord{}, errors.Wrap(err, errors.ErrCodeEnhancementUnavailable,
			"failed to build advisor request")
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return decision.ScoreRecord{}, errors.Wrap(err, errors.ErrCodeEnhancementUnavailable,
			"advisor call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decision.ScoreRecord{}, errors.Newf(errors.ErrCodeEnhancementUnavailable,
			"advisor returned status %d: %s", resp.StatusCode, string(body))
	}

	var ar advisorResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return decision.ScoreRecord{}, errors.Wrap(err, errors.ErrCodeSerialization,
			"failed to decode advisor response")
	}
	if ar.Total < 0 || ar.Total > 1 || ar.Confidence < 0 || ar.Confidence > 1 {
		return decision.ScoreRecord{}, errors.Newf(errors.ErrCodeEnhancementUnavailable,
			"advisor returned out-of-range values: total=%g confidence=%g", ar.Total, ar.Confidence)
	}

	rec := baseline
	rec.Total = ar.Total
	rec.Confidence = ar.Confidence
	if len(ar.Contributions) > 0 {
		rec.Contributions = ar.Contributions
	}
	if ar.Rationale != "" {
		rec.Warnings = append(append([]string(nil), baseline.Warnings...),
			fmt.Sprintf("advisor: %s", ar.Rationale))
	}
	rec.Method = decision.MethodEnhanced
	rec.ScoredAt = common.NewTimestamp()
	return rec, nil
}
