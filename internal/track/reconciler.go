package track

import (
	log "log/slog"
	"sync"
	"time"

	"video-insights/internal/domain"
	"video-insights/internal/jobs"
)

// terminalSource records which channel declared the job terminal.
type terminalSource int

const (
	sourceNone terminalSource = iota
	sourceStream
	sourcePoll
)

// Reconciler is the single writer of one job's lifecycle view.
//
// Producers submit candidate updates through Apply* methods; the reconciler
// applies them under one mutex so the terminal check-and-set happens in a
// single turn. The first terminal-shaped signal wins; every later one is a
// no-op, except that one authoritative poll snapshot may silently correct an
// outcome that was declared from a stream hint.
type Reconciler struct {
	jobID  string
	sink   Sink
	logger *log.Logger

	// onTerminal stops the poller and stream client. Set by the tracker
	// before producers start.
	onTerminal func()

	mu          sync.Mutex
	terminal    bool
	source      terminalSource
	corrected   bool
	outcome     Outcome
	lastMessage string
}

// NewReconciler creates the authoritative state holder for one job.
func NewReconciler(jobID string, sink Sink, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}

	return &Reconciler{
		jobID:  jobID,
		sink:   sink,
		logger: logger,
	}
}

// Terminated reports whether the job has reached a terminal state.
func (r *Reconciler) Terminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// Outcome returns the currently accepted terminal outcome, if any.
func (r *Reconciler) Outcome() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome, r.terminal
}

// ApplyProgress forwards one non-terminal progress line to the sink.
// Events for foreign jobs and events after the terminal transition are
// dropped without user-visible effect.
func (r *Reconciler) ApplyProgress(jobID, text string, ts time.Time, severity jobs.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if jobID != r.jobID {
		r.logger.Warn("ignoring progress for unknown job", "job_id", jobID, "tracked", r.jobID)
		return
	}
	if r.terminal || text == "" {
		return
	}

	r.lastMessage = text
	r.sink.ShowProgressLine(r.jobID, text, ts, severity)
}

// ApplySnapshot applies one authoritative poll result.
func (r *Reconciler) ApplySnapshot(snap domain.JobSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.JobID != r.jobID {
		r.logger.Warn("ignoring snapshot for unknown job", "job_id", snap.JobID, "tracked", r.jobID)
		return
	}

	if !snap.Status.Terminal() {
		if r.terminal {
			// Stale non-terminal poll for an already finished job.
			return
		}
		if snap.Message != "" && snap.Message != r.lastMessage {
			r.lastMessage = snap.Message
			r.sink.ShowProgressLine(r.jobID, snap.Message, time.Now().UTC(), jobs.SeverityInfo)
		}
		return
	}

	outcome := Outcome{
		Status:  snap.Status,
		Message: snap.Message,
		Result:  snap.Result,
	}

	if !r.terminal {
		r.accept(sourcePoll, outcome)
		return
	}

	// Already terminal. Polls are ground truth, so a snapshot may correct a
	// stream-declared outcome exactly once; after that, or after any
	// poll-sourced terminal, duplicates are discarded.
	if r.source != sourcePoll && !r.corrected {
		r.corrected = true
		r.source = sourcePoll
		if outcome.Status != r.outcome.Status || (outcome.Result != nil && r.outcome.Result == nil) {
			r.logger.Info("authoritative poll corrected stream-declared outcome",
				"job_id", r.jobID, "was", r.outcome.Status, "now", outcome.Status)
			r.outcome = outcome
			r.sink.CorrectTerminal(r.jobID, outcome)
		}
		return
	}

	r.logger.Debug("discarding duplicate terminal snapshot", "job_id", r.jobID, "status", snap.Status)
}

// ApplyStreamTerminal applies a completion or error hint from the stream.
// Hints are acted on only when no channel has resolved the job yet.
func (r *Reconciler) ApplyStreamTerminal(jobID string, kind domain.ProgressKind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if jobID != r.jobID {
		r.logger.Warn("ignoring terminal hint for unknown job", "job_id", jobID, "tracked", r.jobID)
		return
	}
	if r.terminal {
		r.logger.Debug("discarding duplicate terminal hint", "job_id", r.jobID, "kind", kind)
		return
	}

	outcome := Outcome{Message: message}
	switch kind {
	case domain.ProgressCompletion:
		outcome.Status = domain.JobStatusCompleted
	case domain.ProgressError:
		outcome.Status = domain.JobStatusFailed
	default:
		r.logger.Warn("non-terminal event routed to terminal entry point", "kind", kind)
		return
	}

	r.accept(sourceStream, outcome)
}

// accept performs the single terminal transition. Caller holds r.mu.
func (r *Reconciler) accept(source terminalSource, outcome Outcome) {
	r.terminal = true
	r.source = source
	r.outcome = outcome

	if r.onTerminal != nil {
		r.onTerminal()
	}

	r.sink.ShowTerminal(r.jobID, outcome)
	r.sink.UnlockSubmission()
}
