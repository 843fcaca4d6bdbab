package services_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"castreel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrPermanent, "generation", "submit", "rejected", base)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	for _, fragment := range []string{"generation", "submit", "rejected", "boom"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error string %q", fragment, err.Error())
		}
	}
	service, operation, _, ok := services.Details(err)
	if !ok || service != "generation" || operation != "submit" {
		t.Fatalf("unexpected details: %q %q %v", service, operation, ok)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, ""},
		{"permanent", services.Wrap(services.ErrPermanent, "feed", "fetch", "bad", nil), services.KindPermanent},
		{"configuration", services.Wrap(services.ErrConfiguration, "feed", "fetch", "no url", nil), services.KindPermanent},
		{"transient", services.Wrap(services.ErrTransient, "feed", "fetch", "503", nil), services.KindTransient},
		{"default marker", services.Wrap(nil, "feed", "fetch", "", nil), services.KindTransient},
		{"unmarked", context.DeadlineExceeded, services.KindTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStatusMarker(t *testing.T) {
	cases := map[int]error{
		http.StatusBadRequest:          services.ErrPermanent,
		http.StatusNotFound:            services.ErrPermanent,
		http.StatusUnprocessableEntity: services.ErrPermanent,
		http.StatusRequestTimeout:      services.ErrTransient,
		http.StatusTooManyRequests:     services.ErrTransient,
		http.StatusInternalServerError: services.ErrTransient,
		http.StatusBadGateway:          services.ErrTransient,
	}
	for status, want := range cases {
		if got := services.StatusMarker(status); got != want {
			t.Fatalf("status %d: got %v want %v", status, got, want)
		}
	}
}

func TestJSONClientClassifiesResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"id":"run-1","status":"queued"}`))
		case "/garbage":
			_, _ = w.Write([]byte(`{not json`))
		case "/unavailable":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/invalid":
			http.Error(w, "bad payload", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := services.NewJSONClient("engine", server.URL+"/", "secret", nil)
	ctx := context.Background()

	var status services.RunStatus
	if err := client.Do(ctx, "submit", http.MethodPost, "/ok", map[string]string{"a": "b"}, &status); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if status.ID != "run-1" {
		t.Fatalf("unexpected decoded status: %+v", status)
	}

	err := client.Do(ctx, "submit", http.MethodGet, "/garbage", nil, &status)
	if services.Classify(err) != services.KindPermanent {
		t.Fatalf("malformed payload should be permanent, got %v", err)
	}
	err = client.Do(ctx, "submit", http.MethodGet, "/unavailable", nil, nil)
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("503 should be transient, got %v", err)
	}
	err = client.Do(ctx, "submit", http.MethodGet, "/invalid", nil, nil)
	if services.Classify(err) != services.KindPermanent || !strings.Contains(err.Error(), "bad payload") {
		t.Fatalf("400 should be permanent with body, got %v", err)
	}
	if _, _, status, _ := services.Details(err); status != http.StatusBadRequest {
		t.Fatalf("expected status in details, got %d", status)
	}
}

func TestJSONClientTransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := services.NewJSONClient("engine", server.URL, "", nil).Do(ctx, "submit", http.MethodGet, "/", nil, nil)
	if err == nil || services.Classify(err) != services.KindTransient {
		t.Fatalf("timeout should be transient, got %v", err)
	}
}

func TestJSONClientRequiresBaseURL(t *testing.T) {
	err := services.NewJSONClient("engine", "", "", nil).Do(context.Background(), "submit", http.MethodGet, "/", nil, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPollRun(t *testing.T) {
	calls := 0
	status, err := services.PollRun(context.Background(), "engine", time.Millisecond, func(context.Context) (services.RunStatus, error) {
		calls++
		if calls < 3 {
			return services.RunStatus{ID: "r", Status: services.RunRunning}, nil
		}
		return services.RunStatus{ID: "r", Status: services.RunCompleted}, nil
	})
	if err != nil || status.Status != services.RunCompleted || calls != 3 {
		t.Fatalf("unexpected poll result: %+v %v calls=%d", status, err, calls)
	}

	_, err = services.PollRun(context.Background(), "engine", time.Millisecond, func(context.Context) (services.RunStatus, error) {
		return services.RunStatus{ID: "r", Status: services.RunFailed, Error: "bad audio"}, nil
	})
	if !services.IsPermanent(err) || !strings.Contains(err.Error(), "bad audio") {
		t.Fatalf("failed run should be permanent, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = services.PollRun(ctx, "engine", time.Hour, func(context.Context) (services.RunStatus, error) {
		return services.RunStatus{ID: "r", Status: services.RunQueued}, nil
	})
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("expired poll should be transient, got %v", err)
	}
}
