// Package itemstore provides the production client for the external
// work-item system: it lists items with their raw attributes and writes
// ranked scores back after a run.
package itemstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/turtacn/PriorityCraft/internal/domain/item"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// HTTPStoreConfig configures the item-store client.
type HTTPStoreConfig struct {
	BaseURL string
	APIKey  string
	// HTTPTimeout bounds each round trip; callers still pass ctx deadlines.
	HTTPTimeout time.Duration
}

// HTTPStore implements item.Store over the work-item system's REST API.
type HTTPStore struct {
	cfg    HTTPStoreConfig
	client *http.Client
	logger logging.Logger
}

// NewHTTPStore builds the client.  client may be nil; a default with the
// configured timeout is used.
func NewHTTPStore(cfg HTTPStoreConfig, client *http.Client, log logging.Logger) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "item store base URL required")
	}
	if client == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPStore{cfg: cfg, client: client, logger: log.Named("item_store")}, nil
}

// listResponse is the wire format of GET /v1/items.
type listResponse struct {
	Items []item.WorkItem `json:"items"`
}

// ListItems fetches the items matching filter; an empty filter selects
// everything.
func (s *HTTPStore) ListItems(ctx context.Context, filter string) ([]item.WorkItem, error) {
	endpoint := s.cfg.BaseURL + "/v1/items"
	if filter != "" {
		endpoint += "?filter=" + url.QueryEscape(filter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to build item list request")
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "item store list call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf(errors.ErrCodeExternalService,
			"item store returned status %d: %s", resp.StatusCode, string(body))
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode item list")
	}

	s.logger.Debug("items listed",
		logging.Int("count", len(lr.Items)), logging.String("filter", filter))
	return lr.Items, nil
}

// writebackRequest is the wire format of POST /v1/scores.
type writebackRequest struct {
	BatchID string                `json:"batch_id"`
	Ranked  []decision.RankedItem `json:"ranked"`
}

// WriteScores acknowledges a completed ranking back to the item store.
func (s *HTTPStore) WriteScores(ctx context.Context, batchID string, ranked []decision.RankedItem) error {
	payload, err := json.Marshal(writebackRequest{BatchID: batchID, Ranked: ranked})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode score writeback")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/v1/scores", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeItemStoreWriteFail, "failed to build writeback request")
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeItemStoreWriteFail, "score writeback call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf(errors.ErrCodeItemStoreWriteFail,
			"item store rejected writeback with status %d: %s", resp.StatusCode, string(body))
	}

	s.logger.Info("scores written back",
		logging.String("batch_id", batchID), logging.Int("count", len(ranked)))
	return nil
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
}

// Ping probes the item store for the readiness endpoint.
func (s *HTTPStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/v1/items?filter=__none__", nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to build ping request")
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "item store unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errors.Newf(errors.ErrCodeExternalService, "item store unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
