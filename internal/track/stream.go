package track

import (
	"context"
	"errors"
	"io"
	log "log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"video-insights/internal/domain"
	"video-insights/internal/jobs"
)

// FallbackNotice is the one informational line shown when the push channel
// gives up and the job continues on polling alone.
const FallbackNotice = "realtime updates unavailable, falling back to polling"

// EventSource is one open push subscription.
type EventSource interface {
	Next() (domain.ProgressEvent, error)
	Close() error
}

// StreamOpener establishes push subscriptions.
type StreamOpener interface {
	OpenProgress(ctx context.Context, jobID string) (EventSource, error)
}

// StreamClient consumes the best-effort push channel for one job.
//
// It owns all reconnect bookkeeping: at most maxReconnects consecutive
// attempts since the last successful open, delayed by attempt multiples of
// the reconnect unit. The reconciler only ever sees the resulting events.
type StreamClient struct {
	jobID         string
	opener        StreamOpener
	rec           *Reconciler
	openDelay     time.Duration
	reconnectUnit time.Duration
	maxReconnects uint64
	logger        *log.Logger

	// finished marks that the stream itself reported a terminal hint, which
	// suppresses further reconnects regardless of remaining budget.
	finished bool
}

// NewStreamClient creates a push-channel consumer for one job.
func NewStreamClient(jobID string, opener StreamOpener, rec *Reconciler, opts Options, logger *log.Logger) *StreamClient {
	if logger == nil {
		logger = log.Default()
	}

	return &StreamClient{
		jobID:         jobID,
		opener:        opener,
		rec:           rec,
		openDelay:     opts.StreamOpenDelay,
		reconnectUnit: opts.ReconnectUnit,
		maxReconnects: opts.MaxReconnects,
		logger:        logger,
	}
}

// reconnectBackoff builds the linear 1u, 2u, 3u reconnect schedule, capped
// at maxReconnects attempts.
func reconnectBackoff(unit time.Duration, maxReconnects uint64) retry.Backoff {
	var attempt uint64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * unit, false
	})
	return retry.WithMaxRetries(maxReconnects, linear)
}

// Run consumes the stream until the job is terminal, the retry budget is
// exhausted, or ctx is cancelled. Exhaustion degrades gracefully: one
// informational notice, and polling carries the job to completion.
func (s *StreamClient) Run(ctx context.Context) {
	// Give the executor time to initialize the stream endpoint.
	if !sleepCtx(ctx, s.openDelay) {
		return
	}
	// Checked against the reconciler's view: a fast poll may have already
	// resolved the job, in which case the subscription is never opened.
	if s.rec.Terminated() {
		return
	}

	backoff := reconnectBackoff(s.reconnectUnit, s.maxReconnects)

	for {
		source, err := s.opener.OpenProgress(ctx, s.jobID)
		if err == nil {
			received := s.consume(source)
			source.Close()
			// Only a connection that demonstrably stayed open (delivered at
			// least one event, heartbeats included) resets the attempt
			// budget; an open that drops immediately still burns a retry.
			if received {
				backoff = reconnectBackoff(s.reconnectUnit, s.maxReconnects)
			}
		} else if ctx.Err() == nil {
			s.logger.Warn("progress stream open failed", "job_id", s.jobID, "error", err)
		}

		if s.finished || s.rec.Terminated() || ctx.Err() != nil {
			return
		}

		delay, exhausted := backoff.Next()
		if exhausted {
			s.logger.Info("progress stream retry budget exhausted", "job_id", s.jobID)
			s.rec.ApplyProgress(s.jobID, FallbackNotice, time.Now().UTC(), jobs.SeverityInfo)
			return
		}
		if !sleepCtx(ctx, delay) {
			return
		}
		if s.rec.Terminated() {
			return
		}
	}
}

// consume filters and forwards events from one open subscription until it
// closes, reporting whether any event arrived.
func (s *StreamClient) consume(source EventSource) bool {
	received := false
	for {
		event, err := source.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("progress stream closed unexpectedly", "job_id", s.jobID, "error", err)
			}
			return received
		}
		received = true

		switch event.Kind {
		case domain.ProgressHeartbeat:
			// Keep-alive only, no semantic content.
		case domain.ProgressUpdate:
			s.rec.ApplyProgress(s.jobID, event.Text, event.Timestamp, jobs.SeverityInfo)
		case domain.ProgressCompletion, domain.ProgressError:
			s.finished = true
			s.rec.ApplyStreamTerminal(s.jobID, event.Kind, event.Text)
		}
	}
}

// sleepCtx waits for d and reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
