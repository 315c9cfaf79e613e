// Package stubserver is a development stand-in for the analysis executor.
// It speaks the same wire contract (analyze, status, progress stream, job
// listing) but runs a scripted fake pipeline on compressed timers, so the
// desktop app can be exercised without the real backend.
package stubserver

import (
	"io"
	log "log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"video-insights/internal/domain"
)

// script is the canned progress sequence for one fake run.
var script = []string{
	"Fetching video transcript",
	"Segmenting transcript into topics",
	"Extracting insights from segment 1/2",
	"Extracting insights from segment 2/2",
	"Aggregating segment insights",
}

// job is one scripted run with its subscriber channels.
type job struct {
	mu          sync.Mutex
	id          string
	videoURL    string
	status      domain.JobStatus
	message     string
	result      *domain.AnalysisResult
	createdAt   time.Time
	subscribers map[chan domain.ProgressEvent]struct{}
}

// Server simulates the executor in memory.
type Server struct {
	mu        sync.Mutex
	jobs      map[string]*job
	stepDelay time.Duration
	heartbeat time.Duration
	logger    *log.Logger
}

// New creates a stub executor with the given scripted step delay.
func New(stepDelay, heartbeat time.Duration, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		jobs:      map[string]*job{},
		stepDelay: stepDelay,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// Router builds the gin engine with the executor's route surface.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.POST("/analyze", s.handleAnalyze)
		api.GET("/status/:id", s.handleStatus)
		api.GET("/progress/:id", s.handleProgress)
		api.GET("/jobs", s.handleJobs)
	}

	return router
}

// analyzeRequest is the submission body.
type analyzeRequest struct {
	VideoURL      string `json:"video_url" binding:"required"`
	CallbackLevel string `json:"callback_level"`
}

// handleAnalyze accepts a submission and starts a scripted run.
// A fail=1 query scripts a failing run for error-path testing.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video_url is required"})
		return
	}

	j := &job{
		id:          uuid.New().String(),
		videoURL:    req.VideoURL,
		status:      domain.JobStatusQueued,
		message:     "Job accepted",
		createdAt:   time.Now().UTC(),
		subscribers: map[chan domain.ProgressEvent]struct{}{},
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	go s.runScript(j, c.Query("fail") == "1")

	s.logger.Info("stub job accepted", "job_id", j.id, "video_url", req.VideoURL)
	c.JSON(http.StatusCreated, gin.H{"job_id": j.id})
}

// handleStatus serves the authoritative job snapshot.
func (s *Server) handleStatus(c *gin.Context) {
	j := s.lookup(c.Param("id"))
	if j == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	body := gin.H{
		"status":  j.status,
		"message": j.message,
	}
	if j.result != nil {
		body["result"] = j.result
	}
	c.JSON(http.StatusOK, body)
}

// handleProgress serves the SSE push channel for one job.
func (s *Server) handleProgress(c *gin.Context) {
	j := s.lookup(c.Param("id"))
	if j == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	events := j.subscribe()
	defer j.unsubscribe(events)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			writeEvent(w, string(event.Kind), event.Text, event.Timestamp)
			return event.Kind != domain.ProgressCompletion && event.Kind != domain.ProgressError
		case <-heartbeat.C:
			writeEvent(w, string(domain.ProgressHeartbeat), "", time.Time{})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// handleJobs serves the read-only job listing.
func (s *Server) handleJobs(c *gin.Context) {
	s.mu.Lock()
	all := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		all = append(all, j)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, k int) bool { return all[i].createdAt.After(all[k].createdAt) })

	summaries := make([]domain.JobSummary, 0, len(all))
	for _, j := range all {
		j.mu.Lock()
		summaries = append(summaries, domain.JobSummary{
			ID:        j.id,
			Status:    j.status,
			Message:   j.message,
			VideoURL:  j.videoURL,
			CreatedAt: j.createdAt,
		})
		j.mu.Unlock()
	}

	c.JSON(http.StatusOK, gin.H{"jobs": summaries})
}

// writeEvent encodes one SSE frame with a JSON payload.
func writeEvent(w io.Writer, kind, message string, ts time.Time) {
	payload := gin.H{"type": kind}
	if message != "" {
		payload["message"] = message
	}
	if !ts.IsZero() {
		payload["timestamp"] = ts.Format(time.RFC3339)
	}

	_ = sse.Encode(w, sse.Event{Event: "message", Data: payload})
}

// lookup returns the job for id, or nil.
func (s *Server) lookup(id string) *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// subscribe attaches one progress listener.
func (j *job) subscribe() chan domain.ProgressEvent {
	ch := make(chan domain.ProgressEvent, 16)
	j.mu.Lock()
	j.subscribers[ch] = struct{}{}
	j.mu.Unlock()
	return ch
}

// unsubscribe detaches one progress listener.
func (j *job) unsubscribe(ch chan domain.ProgressEvent) {
	j.mu.Lock()
	delete(j.subscribers, ch)
	j.mu.Unlock()
}

// publish updates job state and fans one event out to subscribers.
func (j *job) publish(status domain.JobStatus, kind domain.ProgressKind, message string, result *domain.AnalysisResult) {
	j.mu.Lock()
	j.status = status
	if message != "" {
		j.message = message
	}
	if result != nil {
		j.result = result
	}

	event := domain.ProgressEvent{Kind: kind, Text: message, Timestamp: time.Now().UTC()}
	for ch := range j.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber; the status endpoint remains authoritative.
		}
	}
	j.mu.Unlock()
}

// runScript advances one fake run through its scripted stages.
func (s *Server) runScript(j *job, fail bool) {
	time.Sleep(s.stepDelay)
	j.publish(domain.JobStatusProcessing, domain.ProgressUpdate, "Analysis started", nil)

	for i, line := range script {
		time.Sleep(s.stepDelay)

		if fail && i == 2 {
			j.publish(domain.JobStatusFailed, domain.ProgressError, "insight extraction failed: rate limited", nil)
			return
		}
		j.publish(domain.JobStatusProcessing, domain.ProgressUpdate, line, nil)
	}

	time.Sleep(s.stepDelay)
	j.publish(domain.JobStatusCompleted, domain.ProgressCompletion, "Analysis complete", cannedResult())
}

// cannedResult is the fixed two-segment payload completed stub runs return.
func cannedResult() *domain.AnalysisResult {
	return &domain.AnalysisResult{
		TotalSegments: 2,
		Insights: []domain.SegmentInsight{
			{
				SegmentName:         "Introduction",
				Summary:             "The speaker frames the core problem and previews the argument.",
				KeyInsights:         []string{"The problem is framed as a trade-off, not a defect"},
				ActionableTakeaways: []string{"Write down the trade-off before proposing a fix"},
			},
			{
				SegmentName:         "Main argument",
				Summary:             "Three supporting examples are developed in increasing depth.",
				KeyInsights:         []string{"Examples escalate from anecdote to measured data"},
				ActionableTakeaways: []string{"Collect one measurable example before presenting"},
			},
		},
	}
}
