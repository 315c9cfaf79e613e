// Package track synchronizes one remote analysis job across two unreliable
// channels: the authoritative status poll and the best-effort progress
// stream. The reconciler merges both into a single job view and guarantees
// exactly one terminal notification per job.
package track

import (
	"time"

	"video-insights/internal/domain"
	"video-insights/internal/jobs"
)

// Outcome is the terminal payload handed to the presentation sink.
// Result is set only for completed jobs.
type Outcome struct {
	Status  domain.JobStatus
	Message string
	Result  *domain.AnalysisResult
}

// Sink receives every externally visible effect of tracking one job.
//
// ShowTerminal is invoked exactly once per job. CorrectTerminal is invoked
// at most once, and only when an authoritative poll contradicts or enriches
// a terminal outcome that was declared from a stream hint.
type Sink interface {
	ShowSubmitting()
	ShowProgressLine(jobID, text string, ts time.Time, severity jobs.Severity)
	ShowTerminal(jobID string, outcome Outcome)
	CorrectTerminal(jobID string, outcome Outcome)
	LockSubmission()
	UnlockSubmission()
}
