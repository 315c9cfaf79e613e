package history

import (
	"context"
	"path/filepath"
	"testing"

	"video-insights/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "journal", "history.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestStoreRecordAndRecent verifies the submit-then-outcome round trip.
func TestStoreRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if err := store.RecordSubmitted(ctx, "job-1", "https://youtu.be/abc"); err != nil {
		t.Fatalf("RecordSubmitted() error = %v", err)
	}
	if err := store.RecordOutcome(ctx, "job-1", domain.JobStatusCompleted, "Analysis complete"); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	runs, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}

	run := runs[0]
	if run.ID != "job-1" || run.VideoURL != "https://youtu.be/abc" {
		t.Fatalf("run = %+v", run)
	}
	if run.Status != domain.JobStatusCompleted || run.Message != "Analysis complete" {
		t.Fatalf("run outcome = %s %q", run.Status, run.Message)
	}
	if run.FinishedAt == nil {
		t.Fatal("expected finished timestamp")
	}
}

// TestStoreResubmissionIsIgnored verifies journaling the same job id twice
// keeps the original row.
func TestStoreResubmissionIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if err := store.RecordSubmitted(ctx, "job-1", "https://youtu.be/first"); err != nil {
		t.Fatalf("RecordSubmitted() error = %v", err)
	}
	if err := store.RecordSubmitted(ctx, "job-1", "https://youtu.be/second"); err != nil {
		t.Fatalf("second RecordSubmitted() error = %v", err)
	}

	runs, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 1 || runs[0].VideoURL != "https://youtu.be/first" {
		t.Fatalf("runs = %+v, want the original submission only", runs)
	}
}

// TestStoreOutcomeCorrectionKeepsFinishedAt verifies a corrected outcome
// updates status and message while preserving the first finish time.
func TestStoreOutcomeCorrectionKeepsFinishedAt(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if err := store.RecordSubmitted(ctx, "job-1", "https://youtu.be/abc"); err != nil {
		t.Fatalf("RecordSubmitted() error = %v", err)
	}
	if err := store.RecordOutcome(ctx, "job-1", domain.JobStatusFailed, "rate limited"); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	runs, _ := store.Recent(ctx, 1)
	first := runs[0].FinishedAt
	if first == nil {
		t.Fatal("expected finished timestamp after first outcome")
	}

	if err := store.RecordOutcome(ctx, "job-1", domain.JobStatusCompleted, "Analysis complete"); err != nil {
		t.Fatalf("correction RecordOutcome() error = %v", err)
	}

	runs, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if runs[0].Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want corrected to completed", runs[0].Status)
	}
	if runs[0].FinishedAt == nil || !runs[0].FinishedAt.Equal(*first) {
		t.Fatalf("finished at = %v, want original %v", runs[0].FinishedAt, first)
	}
}

// TestStoreRejectsNonTerminalOutcome verifies the journal only accepts
// terminal outcomes.
func TestStoreRejectsNonTerminalOutcome(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if err := store.RecordSubmitted(ctx, "job-1", "https://youtu.be/abc"); err != nil {
		t.Fatalf("RecordSubmitted() error = %v", err)
	}
	if err := store.RecordOutcome(ctx, "job-1", domain.JobStatusProcessing, "working"); err == nil {
		t.Fatal("expected rejection of non-terminal outcome")
	}
}

// TestStoreRecentNewestFirst verifies ordering and the limit.
func TestStoreRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		if err := store.RecordSubmitted(ctx, id, "https://youtu.be/"+id); err != nil {
			t.Fatalf("RecordSubmitted(%s) error = %v", id, err)
		}
	}

	runs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want limit of 2", len(runs))
	}
	// Same-second submissions fall back to id ordering.
	if runs[0].ID != "job-3" || runs[1].ID != "job-2" {
		t.Fatalf("order = %s, %s, want job-3 then job-2", runs[0].ID, runs[1].ID)
	}
}

// TestStoreSurvivesReopen verifies the journal is durable across restarts.
func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.RecordSubmitted(ctx, "job-1", "https://youtu.be/abc"); err != nil {
		t.Fatalf("RecordSubmitted() error = %v", err)
	}
	store.Close()

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	runs, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "job-1" {
		t.Fatalf("runs = %+v, want the journaled run", runs)
	}
}
