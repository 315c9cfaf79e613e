package domain

import "time"

// JobStatus tracks the lifecycle of one remote analysis job.
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusSubmitting JobStatus = "submitting"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CallbackLevel selects how verbose the executor's progress stream is.
type CallbackLevel string

const (
	CallbackLevelMinimal  CallbackLevel = "minimal"
	CallbackLevelClean    CallbackLevel = "clean"
	CallbackLevelDetailed CallbackLevel = "detailed"
)

// ValidCallbackLevel reports whether level is one of the executor presets.
func ValidCallbackLevel(level CallbackLevel) bool {
	switch level {
	case CallbackLevelMinimal, CallbackLevelClean, CallbackLevelDetailed:
		return true
	default:
		return false
	}
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	BackendURL    string        `json:"backendUrl"`
	CallbackLevel CallbackLevel `json:"callbackLevel"`
	HistoryPath   string        `json:"historyPath"`
}

// Job stores the current job identity, lifecycle status, and latest message.
type Job struct {
	ID       string    `json:"id"`
	Status   JobStatus `json:"status"`
	Message  string    `json:"message"`
	VideoURL string    `json:"videoUrl"`
}

// SegmentInsight is the per-segment record produced by the executor.
type SegmentInsight struct {
	SegmentName         string   `json:"segment_name"`
	Summary             string   `json:"summary"`
	KeyInsights         []string `json:"key_insights"`
	ActionableTakeaways []string `json:"actionable_takeaways"`
}

// AnalysisResult is the completed-job payload rendered by the UI.
type AnalysisResult struct {
	TotalSegments int              `json:"total_segments"`
	Insights      []SegmentInsight `json:"insights"`
}

// JobSnapshot is one authoritative status read for a job.
// Result is populated only when Status is completed.
type JobSnapshot struct {
	JobID   string
	Status  JobStatus
	Message string
	Result  *AnalysisResult
}

// JobSummary is one row of the executor's job listing.
type JobSummary struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message"`
	VideoURL  string    `json:"video_url"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressKind classifies one push-channel message.
type ProgressKind string

const (
	ProgressHeartbeat  ProgressKind = "heartbeat"
	ProgressUpdate     ProgressKind = "progress"
	ProgressCompletion ProgressKind = "completion"
	ProgressError      ProgressKind = "error"
)

// ProgressEvent is one message delivered on the progress stream.
// Timestamp is producer-assigned and used for display ordering only.
type ProgressEvent struct {
	Kind      ProgressKind
	Text      string
	Timestamp time.Time
}

// RunRecord is one locally journaled analysis run.
type RunRecord struct {
	ID          string     `json:"id"`
	VideoURL    string     `json:"videoUrl"`
	Status      JobStatus  `json:"status"`
	Message     string     `json:"message"`
	SubmittedAt time.Time  `json:"submittedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}
