package generate_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"castreel/internal/config"
	"castreel/internal/services"
	"castreel/internal/services/generate"
)

func TestSubmitReturnsVideoURI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/videos":
			_, _ = w.Write([]byte(`{"id":"vid-1","status":"running"}`))
		case "/v1/videos/vid-1":
			_, _ = w.Write([]byte(`{"id":"vid-1","status":"completed","video_uri":"v:42"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := generate.NewClient(config.Service{BaseURL: server.URL, Timeout: 5}, nil)
	handle, err := client.Submit(context.Background(), generate.Request{JobID: "j", TranscriptURI: "t:42"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if handle.URI != "v:42" {
		t.Fatalf("unexpected video uri %q", handle.URI)
	}
}

func TestSubmitRejectsMissingTranscript(t *testing.T) {
	client := generate.NewClient(config.Service{BaseURL: "http://127.0.0.1:1", Timeout: 1}, nil)
	_, err := client.Submit(context.Background(), generate.Request{JobID: "j"})
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestSubmitValidationErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unsupported transcript"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := generate.NewClient(config.Service{BaseURL: server.URL, Timeout: 5}, nil)
	_, err := client.Submit(context.Background(), generate.Request{TranscriptURI: "t:1"})
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}
