package testsupport

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"castreel/internal/config"
	"castreel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates an ingested job for sourceRef with a minimal cast payload.
func NewJob(t testing.TB, store *queue.Store, sourceRef string) *queue.Job {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"id":   strings.TrimPrefix(sourceRef, "cast:"),
		"text": "cast text for " + sourceRef,
		"author": map[string]string{
			"username": "tester",
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	job, err := store.Create(context.Background(), sourceRef, payload)
	if err != nil {
		t.Fatalf("store.Create(%s): %v", sourceRef, err)
	}
	return job
}

// MustGet fetches a job or fails the test.
func MustGet(t testing.TB, store *queue.Store, id string) *queue.Job {
	t.Helper()

	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get(%s): %v", id, err)
	}
	return job
}
