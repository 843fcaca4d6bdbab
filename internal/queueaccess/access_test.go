package queueaccess_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"castreel/internal/api"
	"castreel/internal/config"
	"castreel/internal/queue"
	"castreel/internal/queueaccess"
	"castreel/internal/testsupport"
)

func TestFallbackToStoreWhenDaemonDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seed := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, seed, "cast:3")

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	client := api.NewClient(config.API{Bind: addr}, nil)

	session, err := queueaccess.OpenWithFallback(context.Background(), client, func() (*queue.Store, error) {
		return queue.Open(cfg)
	})
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if session.Access.Remote() {
		t.Fatal("expected direct store access")
	}

	ctx := context.Background()
	jobs, err := session.Access.List(ctx, queue.StateIngested)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	metrics, err := session.Access.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if metrics.Waiting != 1 || metrics.Total != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
	if _, err := session.Access.Get(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := session.Access.Retry(ctx, job.ID); !errors.Is(err, queue.ErrStaleState) {
		t.Fatalf("expected ErrStaleState retrying an ingested job, got %v", err)
	}
}

func TestUsesDaemonWhenReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/metrics":
			_ = json.NewEncoder(w).Encode(api.Metrics{Counts: map[string]int{"published": 2}, Total: 2, Published: 2})
		case "/api/jobs/abc":
			_ = json.NewEncoder(w).Encode(api.JobResponse{Job: api.Job{ID: "abc", State: "published"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	opened := false
	session, err := queueaccess.OpenWithFallback(context.Background(), api.NewClient(config.API{Bind: srv.URL}, nil), func() (*queue.Store, error) {
		opened = true
		return nil, errors.New("should not open")
	})
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if opened || !session.Access.Remote() {
		t.Fatal("expected daemon-backed access")
	}
	job, err := session.Access.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.State != "published" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestDaemonAuthErrorIsNotMasked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := queueaccess.OpenWithFallback(context.Background(), api.NewClient(config.API{Bind: srv.URL}, nil), func() (*queue.Store, error) {
		t.Fatal("store should not be opened")
		return nil, nil
	})
	if err == nil || errors.Is(err, api.ErrDaemonUnavailable) {
		t.Fatalf("expected auth error, got %v", err)
	}
}
