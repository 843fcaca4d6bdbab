package stage

import (
	"errors"
	"strings"
	"testing"

	"castreel/internal/queue"
	"castreel/internal/services"
)

func TestDecodeCast_Valid(t *testing.T) {
	job := &queue.Job{Payload: []byte(`{"id":42,"author":{"username":"dwr"},"text":"gm"}`)}
	cast, err := DecodeCast(job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cast.ID != "42" || cast.Author.Username != "dwr" || cast.Text != "gm" {
		t.Fatalf("unexpected cast: %+v", cast)
	}
	if string(cast.Raw) != string(job.Payload) {
		t.Fatalf("expected raw payload preserved")
	}
}

func TestDecodeCast_MissingOrInvalidIsPermanent(t *testing.T) {
	for _, job := range []*queue.Job{{}, {Payload: []byte("{invalid")}} {
		_, err := DecodeCast(job)
		if err == nil {
			t.Fatal("expected error")
		}
		if !errors.Is(err, services.ErrPermanent) {
			t.Fatalf("expected permanent error, got %v", err)
		}
	}
}

func TestRequireArtifact(t *testing.T) {
	job := &queue.Job{Artifacts: map[string]string{queue.ArtifactTranscript: "t:1"}}
	uri, err := RequireArtifact(job, queue.ArtifactTranscript)
	if err != nil || uri != "t:1" {
		t.Fatalf("RequireArtifact = %q, %v", uri, err)
	}
	if _, err := RequireArtifact(job, queue.ArtifactVideo); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error for missing artifact, got %v", err)
	}
}

func TestCaption(t *testing.T) {
	job := &queue.Job{Payload: []byte(`{"id":"1","author":{"username":"v"},"text":"  hello\n  world "}`)}
	cast, err := DecodeCast(job)
	if err != nil {
		t.Fatal(err)
	}
	if got := Caption(cast); got != "hello world (@v)" {
		t.Fatalf("unexpected caption %q", got)
	}

	cast.Text = strings.Repeat("a", 400)
	cast.Author.Username = ""
	if got := []rune(Caption(cast)); len(got) != 280 {
		t.Fatalf("expected caption truncated to 280 runes, got %d", len(got))
	}
}

func TestCheckReportsFirstUnmetRequirement(t *testing.T) {
	h := Check("publish",
		Needs(true, "backend unavailable"),
		Configured("publisher.bucket", "  "),
		Needs(false, "never reached"),
	)
	if h.Ready || h.Name != "publish" || h.Detail != "publisher.bucket not configured" {
		t.Fatalf("unexpected health %+v", h)
	}
	if h := Check("publish", Configured("publisher.bucket", "reels")); !h.Ready || h.Detail != "" {
		t.Fatalf("expected ready, got %+v", h)
	}
}
