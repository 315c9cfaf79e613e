package api

import (
	"bufio"
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

// wireEvent is the JSON payload carried in one SSE data frame.
type wireEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// EventStream is one open progress subscription.
//
// Next blocks until a complete SSE frame arrives and returns its decoded
// event. Frames that do not decode into a known event are logged and
// skipped rather than terminating the stream.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *log.Logger
}

// OpenProgress subscribes to the push channel for one job.
// The returned stream is closed by the caller or by context cancellation.
func (c *Client) OpenProgress(ctx context.Context, jobID string) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/progress/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("build progress request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The progress channel outlives the client's default request timeout,
	// so the subscription uses a transport-only client tied to ctx.
	streamClient := &http.Client{Transport: c.http.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open progress stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.requestError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 16<<10), 256<<10)

	return &EventStream{
		body:    resp.Body,
		scanner: scanner,
		logger:  c.logger,
	}, nil
}

// Next returns the next decoded progress event.
// It returns io.EOF when the server closes the channel.
func (s *EventStream) Next() (domain.ProgressEvent, error) {
	var data strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()

		switch {
		case line == "":
			// Blank line terminates one frame.
			if data.Len() == 0 {
				continue
			}
			event, ok := s.decode(data.String())
			data.Reset()
			if !ok {
				continue
			}
			return event, nil
		case strings.HasPrefix(line, ":"):
			// SSE comment, used by some servers as transport keep-alive.
			continue
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:/id:/retry: fields are not part of the executor contract.
			continue
		}
	}

	if err := s.scanner.Err(); err != nil {
		return domain.ProgressEvent{}, err
	}
	return domain.ProgressEvent{}, io.EOF
}

// Close tears down the subscription.
func (s *EventStream) Close() error {
	return s.body.Close()
}

// decode parses one frame payload into a progress event.
func (s *EventStream) decode(payload string) (domain.ProgressEvent, bool) {
	var wire wireEvent
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		s.logger.Warn("discarding malformed progress frame", "error", err)
		return domain.ProgressEvent{}, false
	}

	kind := domain.ProgressKind(wire.Type)
	switch kind {
	case domain.ProgressHeartbeat, domain.ProgressUpdate, domain.ProgressCompletion, domain.ProgressError:
	default:
		s.logger.Warn("discarding progress frame with unknown type", "type", wire.Type)
		return domain.ProgressEvent{}, false
	}

	event := domain.ProgressEvent{
		Kind: kind,
		Text: wire.Message,
	}
	if wire.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, wire.Timestamp); err == nil {
			event.Timestamp = ts
		}
	}

	return event, true
}
