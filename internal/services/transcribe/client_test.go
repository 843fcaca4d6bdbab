package transcribe_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"castreel/internal/config"
	"castreel/internal/services"
	"castreel/internal/services/transcribe"
)

func serviceConfig(url string) config.Service {
	return config.Service{BaseURL: url, APIKey: "k", Timeout: 5, PollInterval: 0}
}

func TestSubmitPollsUntilCompleted(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/transcriptions":
			var req transcribe.Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.SourceRef != "cast:42" || req.Text != "hello" {
				t.Errorf("unexpected request: %+v", req)
			}
			_, _ = w.Write([]byte(`{"id":"run-42","status":"queued"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/transcriptions/run-42":
			if polls.Add(1) < 2 {
				_, _ = w.Write([]byte(`{"id":"run-42","status":"running"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"run-42","status":"completed","transcript_uri":"t:42"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := transcribe.NewClient(serviceConfig(server.URL), nil)
	handle, err := client.Submit(context.Background(), transcribe.Request{JobID: "j", SourceRef: "cast:42", Text: "hello"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if handle.URI != "t:42" || handle.RunID != "run-42" {
		t.Fatalf("unexpected handle: %+v", handle)
	}
}

func TestSubmitFailedRunIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"run-7","status":"failed","error":"no audio"}`))
	}))
	defer server.Close()

	_, err := transcribe.NewClient(serviceConfig(server.URL), nil).Submit(context.Background(), transcribe.Request{SourceRef: "cast:7"})
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestSubmitServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := transcribe.NewClient(serviceConfig(server.URL), nil).Submit(context.Background(), transcribe.Request{SourceRef: "cast:1"})
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("expected transient failure, got %v", err)
	}
}
