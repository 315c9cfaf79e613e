package track

import (
	"context"
	log "log/slog"
	"sync"
	"time"
)

// Options tunes the tracking timers. Tests shrink them.
type Options struct {
	PollInterval    time.Duration
	StreamOpenDelay time.Duration
	ReconnectUnit   time.Duration
	MaxReconnects   uint64
}

// DefaultOptions returns the production timing profile.
func DefaultOptions() Options {
	return Options{
		PollInterval:    3 * time.Second,
		StreamOpenDelay: 500 * time.Millisecond,
		ReconnectUnit:   1 * time.Second,
		MaxReconnects:   3,
	}
}

// Client is the transport surface the tracker needs from the executor.
type Client interface {
	StatusClient
	StreamOpener
}

// Tracker is the per-job context object: it owns the reconciler and both
// producers for exactly one job id, so no tracking state is global.
type Tracker struct {
	jobID  string
	rec    *Reconciler
	poller *Poller
	stream *StreamClient

	cancel context.CancelFunc
	done   sync.WaitGroup
}

// New wires a tracker for one submitted job.
func New(jobID string, client Client, sink Sink, opts Options, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("job_id", jobID)

	rec := NewReconciler(jobID, sink, logger)
	t := &Tracker{
		jobID:  jobID,
		rec:    rec,
		poller: NewPoller(jobID, client, rec, opts.PollInterval, logger),
		stream: NewStreamClient(jobID, client, rec, opts, logger),
	}

	// Accepting a terminal transition tears down both producers. Stale
	// timers are additionally guarded by the reconciler's terminal check,
	// so teardown only has to land before the next tick or attempt.
	rec.onTerminal = func() {
		if t.cancel != nil {
			t.cancel()
		}
	}

	return t
}

// Run starts polling and streaming. It returns immediately; producers run
// until the job is terminal or Stop is called.
func (t *Tracker) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	t.done.Add(2)
	go func() {
		defer t.done.Done()
		t.poller.Run(ctx)
	}()
	go func() {
		defer t.done.Done()
		t.stream.Run(ctx)
	}()
}

// Stop cancels both producers and waits for them to exit.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.done.Wait()
}

// JobID returns the tracked job id.
func (t *Tracker) JobID() string {
	return t.jobID
}

// Terminated reports whether the tracked job reached a terminal state.
func (t *Tracker) Terminated() bool {
	return t.rec.Terminated()
}
