package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"castreel/internal/config"
	"castreel/internal/queue"
)

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:7490":       "http://127.0.0.1:7490",
		":7490":                "http://127.0.0.1:7490",
		"0.0.0.0:7490":         "http://127.0.0.1:7490",
		"http://example.test/": "http://example.test",
		"":                     "",
	}
	for input, want := range cases {
		if got := BaseURL(input); got != want {
			t.Fatalf("BaseURL(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestClientSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/api/jobs" && r.URL.Query().Get("state") == "failed":
			_ = json.NewEncoder(w).Encode(JobListResponse{Jobs: []Job{{ID: "a", State: "failed"}}})
		case r.URL.Path == "/api/jobs/a/retry" && r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(JobResponse{Job: Job{ID: "a", State: "ingested"}})
		case strings.HasPrefix(r.URL.Path, "/api/jobs/"):
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "job not found"})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := NewClient(config.API{Bind: srv.URL, Token: "secret"}, nil)
	ctx := context.Background()

	jobs, err := client.ListJobs(ctx, queue.StateFailed)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "a" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	job, err := client.RetryJob(ctx, "a")
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if job.State != "ingested" {
		t.Fatalf("unexpected retry result %+v", job)
	}
	if _, err := client.GetJob(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientReportsUnreachableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client := NewClient(config.API{Bind: addr}, nil)
	if _, err := client.Status(context.Background()); !errors.Is(err, ErrDaemonUnavailable) {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}
