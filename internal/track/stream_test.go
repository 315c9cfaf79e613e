package track

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"video-insights/internal/domain"
)

// fakeSource replays a fixed event sequence, then reports closure.
type fakeSource struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
	err    error
}

func (s *fakeSource) Next() (domain.ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) == 0 {
		if s.err != nil {
			return domain.ProgressEvent{}, s.err
		}
		return domain.ProgressEvent{}, errors.New("connection reset")
	}

	event := s.events[0]
	s.events = s.events[1:]
	return event, nil
}

func (s *fakeSource) Close() error { return nil }

// fakeOpener hands out scripted sources, or open errors when a source is nil.
type fakeOpener struct {
	mu      sync.Mutex
	sources []*fakeSource
	opens   int
}

func (o *fakeOpener) OpenProgress(ctx context.Context, jobID string) (EventSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opens++
	if len(o.sources) == 0 {
		return nil, errors.New("connection refused")
	}

	source := o.sources[0]
	o.sources = o.sources[1:]
	if source == nil {
		return nil, errors.New("connection refused")
	}
	return source, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// testOptions returns compressed timers for stream tests.
func testOptions() Options {
	return Options{
		PollInterval:    5 * time.Millisecond,
		StreamOpenDelay: time.Millisecond,
		ReconnectUnit:   time.Millisecond,
		MaxReconnects:   3,
	}
}

func progressEvent(text string) domain.ProgressEvent {
	return domain.ProgressEvent{Kind: domain.ProgressUpdate, Text: text, Timestamp: time.Now().UTC()}
}

// TestStreamClientForwardsProgressAndDropsHeartbeats verifies filtering:
// heartbeats never produce a visible side effect.
func TestStreamClientForwardsProgressAndDropsHeartbeats(t *testing.T) {
	sink := &recordSink{}
	rec := NewReconciler("j1", sink, nil)
	opener := &fakeOpener{sources: []*fakeSource{{
		events: []domain.ProgressEvent{
			{Kind: domain.ProgressHeartbeat},
			progressEvent("Fetching transcript"),
			{Kind: domain.ProgressHeartbeat},
			progressEvent("Segmenting"),
			{Kind: domain.ProgressCompletion, Text: "Analysis complete"},
		},
	}}}

	client := NewStreamClient("j1", opener, rec, testOptions(), nil)
	client.Run(context.Background())

	progress, terminals, _, _ := sink.snapshot()
	if len(progress) != 2 {
		t.Fatalf("progress lines = %v, want exactly the two updates", progress)
	}
	if len(terminals) != 1 || terminals[0].Status != domain.JobStatusCompleted {
		t.Fatalf("terminals = %+v, want one completion", terminals)
	}
	if got := opener.openCount(); got != 1 {
		t.Fatalf("opens = %d, terminal hint must suppress reconnects", got)
	}
}

// TestStreamClientSkipsOpenWhenAlreadyTerminal verifies the subscription is
// never established for a job the poller already resolved.
func TestStreamClientSkipsOpenWhenAlreadyTerminal(t *testing.T) {
	sink := &recordSink{}
	rec := NewReconciler("j1", sink, nil)
	rec.ApplySnapshot(completedSnapshot("j1"))

	opener := &fakeOpener{sources: []*fakeSource{{events: []domain.ProgressEvent{progressEvent("late")}}}}
	client := NewStreamClient("j1", opener, rec, testOptions(), nil)
	client.Run(context.Background())

	if got := opener.openCount(); got != 0 {
		t.Fatalf("opens = %d, want 0 for an already terminal job", got)
	}
}

// TestStreamClientRetryBudgetThenFallback verifies the bounded reconnect
// policy: the initial open plus three delayed retries, then exactly one
// informational fallback line and no job failure.
func TestStreamClientRetryBudgetThenFallback(t *testing.T) {
	sink := &recordSink{}
	rec := NewReconciler("j1", sink, nil)
	opener := &fakeOpener{} // every open fails

	client := NewStreamClient("j1", opener, rec, testOptions(), nil)

	start := time.Now()
	client.Run(context.Background())
	elapsed := time.Since(start)

	if got := opener.openCount(); got != 4 {
		t.Fatalf("opens = %d, want initial attempt plus 3 retries", got)
	}

	// Delays are 1, 2, 3 units of the reconnect unit.
	if minimum := 6 * time.Millisecond; elapsed < minimum {
		t.Fatalf("elapsed = %v, want at least %v of linear backoff", elapsed, minimum)
	}

	progress, terminals, _, _ := sink.snapshot()
	notices := 0
	for _, line := range progress {
		if line == FallbackNotice {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("fallback notices = %d, want exactly 1", notices)
	}
	if len(terminals) != 0 {
		t.Fatal("stream exhaustion must not fail the job")
	}
	if rec.Terminated() {
		t.Fatal("job must remain trackable by polling alone")
	}
}

// TestStreamClientImmediateDropsBurnBudget verifies connections that open
// but deliver nothing do not reset the attempt counter.
func TestStreamClientImmediateDropsBurnBudget(t *testing.T) {
	sink := &recordSink{}
	rec := NewReconciler("j1", sink, nil)
	opener := &fakeOpener{sources: []*fakeSource{{}, {}, {}, {}}} // open fine, drop instantly

	client := NewStreamClient("j1", opener, rec, testOptions(), nil)

	done := make(chan struct{})
	go func() {
		client.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream client did not give up on repeated drops")
	}

	if got := opener.openCount(); got != 4 {
		t.Fatalf("opens = %d, want 4 before exhaustion", got)
	}

	progress, _, _, _ := sink.snapshot()
	notices := 0
	for _, line := range progress {
		if line == FallbackNotice {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("fallback notices = %d, want exactly 1", notices)
	}
}

// TestStreamClientDeliveringConnectionResetsBudget verifies the attempt
// counter resets after a connection that stayed open long enough to
// deliver events.
func TestStreamClientDeliveringConnectionResetsBudget(t *testing.T) {
	sink := &recordSink{}
	rec := NewReconciler("j1", sink, nil)

	// Three immediate-drop connections would exhaust the budget if the
	// delivering connection in between did not reset it.
	opener := &fakeOpener{sources: []*fakeSource{
		{}, {},
		{events: []domain.ProgressEvent{progressEvent("alive again")}},
		{}, {},
		{events: []domain.ProgressEvent{{Kind: domain.ProgressCompletion, Text: "done"}}},
	}}

	client := NewStreamClient("j1", opener, rec, testOptions(), nil)
	client.Run(context.Background())

	if !rec.Terminated() {
		t.Fatal("expected the final completion hint to land")
	}
	if got := opener.openCount(); got != 6 {
		t.Fatalf("opens = %d, want all six scripted connections used", got)
	}
}

// TestStreamClientStopsOnCancel verifies teardown on context cancellation.
func TestStreamClientStopsOnCancel(t *testing.T) {
	sink := &recordSink{}
	rec := NewReconciler("j1", sink, nil)
	opener := &fakeOpener{}

	opts := testOptions()
	opts.StreamOpenDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	client := NewStreamClient("j1", opener, rec, opts, nil)

	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream client did not stop on cancel")
	}
	if got := opener.openCount(); got != 0 {
		t.Fatalf("opens = %d, want 0 when cancelled during open delay", got)
	}
}
