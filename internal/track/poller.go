package track

import (
	"context"
	log "log/slog"
	"time"

	"video-insights/internal/domain"
)

// StatusClient is the pull channel: a direct read of stored job status.
type StatusClient interface {
	Status(ctx context.Context, jobID string) (domain.JobSnapshot, error)
}

// Poller drives the authoritative low-frequency status reads for one job.
type Poller struct {
	jobID    string
	client   StatusClient
	rec      *Reconciler
	interval time.Duration
	logger   *log.Logger
}

// NewPoller creates a poller for one job.
func NewPoller(jobID string, client StatusClient, rec *Reconciler, interval time.Duration, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.Default()
	}

	return &Poller{
		jobID:    jobID,
		client:   client,
		rec:      rec,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until the job is terminal or ctx is cancelled.
// The first poll fires immediately; a failed poll is logged and swallowed,
// never surfaced, and never stops the loop.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if done := p.pollOnce(ctx); done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce performs one status read and reports whether polling should stop.
func (p *Poller) pollOnce(ctx context.Context) bool {
	if p.rec.Terminated() || ctx.Err() != nil {
		return true
	}

	snap, err := p.client.Status(ctx, p.jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.logger.Warn("status poll failed, retrying on next tick", "job_id", p.jobID, "error", err)
		return false
	}

	p.rec.ApplySnapshot(snap)

	// A terminal snapshot stops this timer permanently, whether or not the
	// reconciler treated it as the winning signal.
	return snap.Status.Terminal()
}
