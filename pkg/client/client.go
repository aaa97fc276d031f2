// Package client is the typed Go client for the decision engine's HTTP API.
// The CLI uses it; external callers can too.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to one engine instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client for baseURL.  apiKey may be empty.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SubmitComparisonsRequest is the body of POST /api/v1/comparisons.
type SubmitComparisonsRequest struct {
	StakeholderID string              `json:"stakeholder_id"`
	Judgments     []decision.Judgment `json:"judgments"`
}

// ApproveRequest is the body of POST /api/v1/weights/{id}/approvals.
type ApproveRequest struct {
	ApproverID string `json:"approver_id"`
}

// ApprovalResult is the approval endpoint's payload.
type ApprovalResult struct {
	Approval decision.Approval `json:"approval"`
	Approved bool              `json:"approved"`
}

// SubmitComparisons derives a weight vector from pairwise judgments.  A
// consistency rejection is NOT an error: the result carries Accepted=false
// and the worst-offending pairs.
func (c *Client) SubmitComparisons(ctx context.Context, stakeholderID string, judgments []decision.Judgment) (decision.SubmitResult, error) {
	body := SubmitComparisonsRequest{StakeholderID: stakeholderID, Judgments: judgments}
	result, err := doJSON[decision.SubmitResult](ctx, c, http.MethodPost, "/api/v1/comparisons", body)
	if err != nil {
		// 422 carries a success envelope with the rejection detail; doJSON
		// still decoded the payload alongside the error.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity && apiErr.Code == "" {
			return result, nil
		}
		return decision.SubmitResult{}, err
	}
	return result, nil
}

// ApproveWeights records a stakeholder sign-off on a weight vector.
func (c *Client) ApproveWeights(ctx context.Context, vectorID, approverID string) (ApprovalResult, error) {
	path := "/api/v1/weights/" + url.PathEscape(vectorID) + "/approvals"
	return doJSON[ApprovalResult](ctx, c, http.MethodPost, path, ApproveRequest{ApproverID: approverID})
}

// GetWeights fetches one weight vector by ID.
func (c *Client) GetWeights(ctx context.Context, vectorID string) (decision.WeightVector, error) {
	return doJSON[decision.WeightVector](ctx, c, http.MethodGet, "/api/v1/weights/"+url.PathEscape(vectorID), nil)
}

// LatestApprovedWeights fetches the highest-version approved vector.
func (c *Client) LatestApprovedWeights(ctx context.Context) (decision.WeightVector, error) {
	return doJSON[decision.WeightVector](ctx, c, http.MethodGet, "/api/v1/weights/latest", nil)
}

// ListApprovals fetches the approval audit trail for a vector.
func (c *Client) ListApprovals(ctx context.Context, vectorID string) ([]decision.Approval, error) {
	path := "/api/v1/weights/" + url.PathEscape(vectorID) + "/approvals"
	return doJSON[[]decision.Approval](ctx, c, http.MethodGet, path, nil)
}

// StartCalculation kicks off an asynchronous run.
func (c *Client) StartCalculation(ctx context.Context, opts decision.CalculationOptions) (decision.RunStatus, error) {
	return doJSON[decision.RunStatus](ctx, c, http.MethodPost, "/api/v1/calculations", opts)
}

// CalculationStatus reports a run's state and progress.
func (c *Client) CalculationStatus(ctx context.Context, runID string) (decision.RunStatus, error) {
	return doJSON[decision.RunStatus](ctx, c, http.MethodGet, "/api/v1/calculations/"+url.PathEscape(runID), nil)
}

// CalculationResult fetches a finished run's ranking and audit.
func (c *Client) CalculationResult(ctx context.Context, runID string) (decision.CalculationResult, error) {
	path := "/api/v1/calculations/" + url.PathEscape(runID) + "/result"
	return doJSON[decision.CalculationResult](ctx, c, http.MethodGet, path, nil)
}

// CancelCalculation requests cooperative cancellation of a run.
func (c *Client) CancelCalculation(ctx context.Context, runID string) error {
	path := "/api/v1/calculations/" + url.PathEscape(runID)
	_, err := doJSON[json.RawMessage](ctx, c, http.MethodDelete, path, nil)
	return err
}

// doJSON performs one round trip and unwraps the APIResponse envelope.
func doJSON[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return zero, fmt.Errorf("read response: %w", err)
	}

	var env common.APIResponse[T]
	if decodeErr := json.Unmarshal(raw, &env); decodeErr == nil && env.Success {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return env.Data, nil
		}
		// Non-2xx with a success envelope (consistency rejection).
		return env.Data, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "request not accepted",
			RequestID:  env.RequestID,
		}
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var errEnv common.APIResponse[json.RawMessage]
	if decodeErr := json.Unmarshal(raw, &errEnv); decodeErr == nil && errEnv.Error != nil {
		apiErr.Code = errEnv.Error.Code
		apiErr.Message = errEnv.Error.Message
		apiErr.RequestID = errEnv.RequestID
	}
	return zero, apiErr
}
