// Package api is the HTTP client for the remote analysis executor.
// The executor's pipeline is opaque; this package only speaks its wire
// contract: submit, status, job listing, and the progress event stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	"video-insights/internal/domain"
)

// RequestError carries the executor's error body for a failed call.
type RequestError struct {
	StatusCode int
	Message    string
}

// Error formats the executor failure for logs and UI.
func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("executor returned HTTP %d", e.StatusCode)
}

// Client talks to one executor instance.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a client for the given executor base URL.
func NewClient(baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// NewClientWithHTTP creates a client with an injected http.Client for tests.
func NewClientWithHTTP(baseURL string, httpClient *http.Client, logger *log.Logger) *Client {
	c := NewClient(baseURL, logger)
	if httpClient != nil {
		c.http = httpClient
	}
	return c
}

// submitRequest is the POST /api/analyze body.
type submitRequest struct {
	VideoURL      string `json:"video_url"`
	CallbackLevel string `json:"callback_level"`
}

// submitResponse is the POST /api/analyze success body.
type submitResponse struct {
	JobID string `json:"job_id"`
}

// errorResponse is the executor's error body shape.
type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse is the GET /api/status/{id} body.
type statusResponse struct {
	Status  domain.JobStatus       `json:"status"`
	Message string                 `json:"message"`
	Result  *domain.AnalysisResult `json:"result,omitempty"`
}

// jobsResponse is the GET /api/jobs body.
type jobsResponse struct {
	Jobs []domain.JobSummary `json:"jobs"`
}

// Submit requests analysis of a video and returns the assigned job id.
func (c *Client) Submit(ctx context.Context, videoURL string, level domain.CallbackLevel) (string, error) {
	body, err := json.Marshal(submitRequest{
		VideoURL:      videoURL,
		CallbackLevel: string(level),
	})
	if err != nil {
		return "", fmt.Errorf("encode analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit analysis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.requestError(resp)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode analyze response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("executor accepted the job but returned no job id")
	}

	return out.JobID, nil
}

// Status reads the authoritative state of one job.
func (c *Client) Status(ctx context.Context, jobID string) (domain.JobSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status/"+jobID, nil)
	if err != nil {
		return domain.JobSnapshot{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.JobSnapshot{}, fmt.Errorf("poll status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.JobSnapshot{}, c.requestError(resp)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.JobSnapshot{}, fmt.Errorf("decode status response: %w", err)
	}

	return domain.JobSnapshot{
		JobID:   jobID,
		Status:  out.Status,
		Message: out.Message,
		Result:  out.Result,
	}, nil
}

// Jobs reads the executor's job listing.
func (c *Client) Jobs(ctx context.Context) ([]domain.JobSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs", nil)
	if err != nil {
		return nil, fmt.Errorf("build jobs request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.requestError(resp)
	}

	var out jobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode jobs response: %w", err)
	}

	return out.Jobs, nil
}

// requestError extracts the executor's error message from a failed response.
func (c *Client) requestError(resp *http.Response) error {
	reqErr := &RequestError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return reqErr
	}

	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		reqErr.Message = body.Error
		return reqErr
	}

	c.logger.Debug("executor error body is not JSON", "status", resp.StatusCode)
	return reqErr
}
