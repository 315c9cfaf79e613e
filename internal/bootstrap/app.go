// Package bootstrap wires configuration, tracking, history, and the Wails
// runtime into the desktop application.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	log "log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"video-insights/internal/api"
	"video-insights/internal/config"
	"video-insights/internal/diagnostics"
	"video-insights/internal/domain"
	"video-insights/internal/history"
	"video-insights/internal/jobs"
	"video-insights/internal/track"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// App wires configuration, job tracking, and UI runtime callbacks.
// It is also the presentation sink: every tracking side effect becomes one
// published bus event plus a runtime push to the frontend.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	logger      *log.Logger

	mu         sync.Mutex
	client     *api.Client
	journal    *history.Store
	trackers   map[string]*track.Tracker
	activeID   string
	events     *jobs.EventBus
	runtimeCtx context.Context
	trackOpts  track.Options
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".video-insights", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	logger := log.Default()
	journal, err := history.NewStore(settings.HistoryPath)
	if err != nil {
		// A broken journal degrades history, not tracking.
		logger.Warn("run history unavailable", "error", err)
		journal = nil
	}

	return &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		logger:      logger,
		client:      api.NewClient(settings.BackendURL, logger),
		journal:     journal,
		trackers:    map[string]*track.Tracker{},
		events:      jobs.NewEventBus(1000),
		trackOpts:   track.DefaultOptions(),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Video Insights",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown stops all trackers and closes the journal.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	trackers := make([]*track.Tracker, 0, len(a.trackers))
	for _, t := range a.trackers {
		trackers = append(trackers, t)
	}
	journal := a.journal
	a.runtimeCtx = nil
	a.mu.Unlock()

	for _, t := range trackers {
		t.Stop()
	}
	if journal != nil {
		journal.Close()
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	settings = config.Normalize(settings)
	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings)
	return a.Diagnostics, nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes the
// executor client and diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	a.client = api.NewClient(normalized.BackendURL, a.logger)
	a.mu.Unlock()

	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}

	return normalized, nil
}

// StartAnalysis submits a video for analysis and begins tracking the job.
// Submission failure is surfaced immediately and re-enables submission; no
// job is created.
func (a *App) StartAnalysis(videoURL string) (domain.Job, error) {
	if err := a.Jobs.Begin(videoURL); err != nil {
		return domain.Job{}, err
	}

	a.mu.Lock()
	client := a.client
	level := a.Settings.CallbackLevel
	a.mu.Unlock()

	a.LockSubmission()
	a.ShowSubmitting()

	go a.submitAndTrack(client, videoURL, level)
	return a.Jobs.Current(), nil
}

// submitAndTrack performs the submission and hands the job to a tracker.
func (a *App) submitAndTrack(client *api.Client, videoURL string, level domain.CallbackLevel) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobID, err := client.Submit(ctx, videoURL, level)
	if err != nil {
		a.logger.Warn("submission failed", "error", err)
		a.Jobs.Abort()
		a.publishEvent(jobs.Event{
			Type:     jobs.EventTypeError,
			Severity: jobs.SeverityError,
			Message:  fmt.Sprintf("Submission failed: %v", err),
		})
		a.UnlockSubmission()
		return
	}

	if err := a.Jobs.Started(jobID); err != nil {
		a.logger.Warn("job started in unexpected state", "error", err)
	}
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  domain.JobStatusQueued,
		Message: "Job accepted by the executor",
	})

	if journal := a.journalRef(); journal != nil {
		if err := journal.RecordSubmitted(ctx, jobID, videoURL); err != nil {
			a.logger.Warn("journal submission failed", "job_id", jobID, "error", err)
		}
	}

	tracker := track.New(jobID, executorClient{client}, a, a.trackOpts, a.logger)

	a.mu.Lock()
	a.trackers[jobID] = tracker
	a.activeID = jobID
	a.mu.Unlock()

	tracker.Run()
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// ListRemoteJobs reads the executor's job listing.
func (a *App) ListRemoteJobs() ([]domain.JobSummary, error) {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return client.Jobs(ctx)
}

// RunHistory returns locally journaled runs, newest first.
func (a *App) RunHistory(limit int) ([]domain.RunRecord, error) {
	journal := a.journalRef()
	if journal == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return journal.Recent(ctx, limit)
}

// ShowSubmitting implements track.Sink.
func (a *App) ShowSubmitting() {
	a.publishEvent(jobs.Event{
		Type:    jobs.EventTypeStatus,
		Status:  domain.JobStatusSubmitting,
		Message: "Submitting analysis request",
	})
}

// ShowProgressLine implements track.Sink.
func (a *App) ShowProgressLine(jobID, text string, ts time.Time, severity jobs.Severity) {
	a.Jobs.SetMessage(text)
	a.publishEvent(jobs.Event{
		JobID:     jobID,
		Timestamp: ts,
		Type:      jobs.EventTypeProgress,
		Severity:  severity,
		Message:   text,
	})
}

// ShowTerminal implements track.Sink. Called exactly once per job.
func (a *App) ShowTerminal(jobID string, outcome track.Outcome) {
	if err := a.Jobs.Transition(outcome.Status); err != nil {
		a.logger.Warn("terminal transition rejected by manager", "job_id", jobID, "error", err)
	}
	a.Jobs.SetMessage(outcome.Message)
	a.recordOutcome(jobID, outcome)

	event := jobs.Event{
		JobID:   jobID,
		Status:  outcome.Status,
		Message: outcome.Message,
	}
	if outcome.Status == domain.JobStatusCompleted {
		event.Type = jobs.EventTypeResult
		event.Result = outcome.Result
	} else {
		event.Type = jobs.EventTypeError
		event.Severity = jobs.SeverityError
	}
	a.publishEvent(event)
}

// CorrectTerminal implements track.Sink: an authoritative poll silently
// overwrote a stream-declared outcome. The view is updated in place; the
// job is not re-opened.
func (a *App) CorrectTerminal(jobID string, outcome track.Outcome) {
	a.Jobs.SetOutcome(outcome.Status, outcome.Message)
	a.recordOutcome(jobID, outcome)

	a.publishEvent(jobs.Event{
		JobID:     jobID,
		Type:      jobs.EventTypeNotice,
		Status:    outcome.Status,
		Message:   outcome.Message,
		Result:    outcome.Result,
		Corrected: true,
	})
}

// LockSubmission implements track.Sink.
func (a *App) LockSubmission() {
	a.emitRuntime("submission:locked", true)
}

// UnlockSubmission implements track.Sink.
func (a *App) UnlockSubmission() {
	a.emitRuntime("submission:locked", false)
}

// recordOutcome journals a terminal outcome, tolerating journal absence.
func (a *App) recordOutcome(jobID string, outcome track.Outcome) {
	journal := a.journalRef()
	if journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := journal.RecordOutcome(ctx, jobID, outcome.Status, outcome.Message); err != nil {
		a.logger.Warn("journal outcome failed", "job_id", jobID, "error", err)
	}
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)
	a.emitRuntime("job:event", published)
}

// emitRuntime pushes one event to the frontend when the runtime is up.
func (a *App) emitRuntime(name string, payload interface{}) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

// journalRef returns the journal under the app lock.
func (a *App) journalRef() *history.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.journal
}

// executorClient adapts api.Client's concrete stream type to track's
// interfaces.
type executorClient struct {
	*api.Client
}

// OpenProgress implements track.StreamOpener.
func (c executorClient) OpenProgress(ctx context.Context, jobID string) (track.EventSource, error) {
	stream, err := c.Client.OpenProgress(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
