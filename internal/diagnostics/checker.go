// Package diagnostics validates app configuration and executor reachability
// at startup, producing a report the UI can render with hints.
package diagnostics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"video-insights/internal/domain"
)

// doer abstracts HTTP execution for testability.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Checker validates settings and the configured executor endpoint.
type Checker struct {
	http       doer
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	timeout    time.Duration
}

// NewChecker builds a checker using real OS and network dependencies.
func NewChecker() *Checker {
	return &Checker{
		http:       &http.Client{Timeout: 5 * time.Second},
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		timeout:    10 * time.Second,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkBackendURL(settings.BackendURL),
		c.checkBackendReachable(settings.BackendURL),
		c.checkCallbackLevel(settings.CallbackLevel),
		c.checkHistoryPath(settings.HistoryPath),
	}

	report := domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		Items:       items,
	}
	for _, item := range items {
		switch item.Status {
		case domain.DiagnosticStatusFail:
			report.HasFailures = true
		case domain.DiagnosticStatusWarn:
			report.HasWarnings = true
		}
	}

	return report
}

// checkBackendURL validates the configured executor base URL.
func (c *Checker) checkBackendURL(backendURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "backend_url",
		Name: "Backend URL",
	}

	trimmed := strings.TrimSpace(backendURL)
	if trimmed == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Backend URL is empty."
		item.Hint = "Set the analysis backend address in settings, e.g. http://localhost:8000."
		return item
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Backend URL is not a valid http(s) address: %s", trimmed)
		item.Hint = "Use a full URL including the scheme, e.g. http://localhost:8000."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Configured backend: %s", trimmed)
	return item
}

// checkBackendReachable probes the executor's job listing endpoint.
// Transient startup races are absorbed with a short Fibonacci retry; an
// unreachable backend is a warning because the app remains usable.
func (c *Checker) checkBackendReachable(backendURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "backend_reachable",
		Name: "Backend reachability",
	}

	trimmed := strings.TrimRight(strings.TrimSpace(backendURL), "/")
	if _, err := url.Parse(trimmed); err != nil || trimmed == "" {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Skipped: backend URL is not usable."
		return item
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	probe := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed+"/api/jobs", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("backend returned HTTP %d", resp.StatusCode))
		}
		return nil
	}

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	if err := retry.Do(ctx, backoff, probe); err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Backend is not responding at %s", trimmed)
		item.Hint = "Start the analysis backend, or run the bundled stub server for local development."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Backend is reachable at %s", trimmed)
	return item
}

// checkCallbackLevel validates the progress verbosity preset.
func (c *Checker) checkCallbackLevel(level domain.CallbackLevel) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "callback_level",
		Name: "Progress verbosity",
	}

	if !domain.ValidCallbackLevel(level) {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Unknown progress verbosity: %q", level)
		item.Hint = "Choose one of minimal, clean, or detailed."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Progress verbosity: %s", level)
	return item
}

// checkHistoryPath validates the run journal location is writable.
func (c *Checker) checkHistoryPath(path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "history_path",
		Name: "Run history",
	}

	if strings.TrimSpace(path) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "History path is empty."
		item.Hint = "Set a file path for the local run journal."
		return item
	}

	dir := filepath.Dir(path)
	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create history directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("History directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for the run journal."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Journal location is writable: %s", dir)
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	httpClient doer,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		http:       httpClient,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		timeout:    2 * time.Second,
	}
}
