package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"video-insights/internal/domain"
)

// TestClientSubmit verifies the analyze request body and job id extraction.
func TestClientSubmit(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/analyze" {
			t.Errorf("request = %s %s, want POST /api/analyze", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-42"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	jobID, err := client.Submit(context.Background(), "https://youtu.be/abc", domain.CallbackLevelDetailed)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if jobID != "job-42" {
		t.Fatalf("job id = %q, want job-42", jobID)
	}
	if gotBody["video_url"] != "https://youtu.be/abc" || gotBody["callback_level"] != "detailed" {
		t.Fatalf("request body = %v", gotBody)
	}
}

// TestClientSubmitExecutorError verifies the error body surfaces verbatim.
func TestClientSubmitExecutorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "video_url is required"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Submit(context.Background(), "", domain.CallbackLevelClean)
	if err == nil {
		t.Fatal("expected submission error")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error type = %T, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusBadRequest || reqErr.Message != "video_url is required" {
		t.Fatalf("error = %+v", reqErr)
	}
}

// TestClientSubmitMissingJobID verifies an accepted submission without a job
// id is reported as an error rather than tracked as an empty job.
func TestClientSubmitMissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	if _, err := client.Submit(context.Background(), "https://youtu.be/abc", domain.CallbackLevelClean); err == nil {
		t.Fatal("expected error for missing job id")
	}
}

// TestClientStatus verifies snapshot decoding including the result payload.
func TestClientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status/job-42" {
			t.Errorf("path = %s, want /api/status/job-42", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "completed",
			"message": "Analysis complete",
			"result": map[string]any{
				"total_segments": 1,
				"insights": []map[string]any{{
					"segment_name": "Intro",
					"summary":      "Opening remarks",
					"key_insights": []string{"a"},
				}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	snap, err := client.Status(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if snap.JobID != "job-42" || snap.Status != domain.JobStatusCompleted {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Result == nil || len(snap.Result.Insights) != 1 {
		t.Fatalf("result = %+v, want one insight", snap.Result)
	}
	if snap.Result.Insights[0].SegmentName != "Intro" {
		t.Fatalf("segment name = %q", snap.Result.Insights[0].SegmentName)
	}
}

// TestClientStatusUnknownJob verifies a 404 becomes a typed request error.
func TestClientStatusUnknownJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "job not found"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Status(context.Background(), "nope")

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusNotFound {
		t.Fatalf("error = %v, want 404 request error", err)
	}
}

// TestClientJobs verifies the listing decode.
func TestClientJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs" {
			t.Errorf("path = %s, want /api/jobs", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jobs": []map[string]any{
				{"id": "a", "status": "processing"},
				{"id": "b", "status": "completed"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	jobs, err := client.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "a" || jobs[1].Status != domain.JobStatusCompleted {
		t.Fatalf("jobs = %+v", jobs)
	}
}
