package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"castreel/internal/api"
	"castreel/internal/preflight"
)

func plainPrinter() (*printer, *bytes.Buffer) {
	var buf bytes.Buffer
	return newPrinter(&buf), &buf
}

func TestStatusLineWithoutColor(t *testing.T) {
	p, _ := plainPrinter()
	got := p.statusLine("castreel", levelError, "  Not running ")
	want := fmt.Sprintf("  %-*s %s", labelWidth, "castreel:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("statusLine mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := p.statusLine("Workflow", levelWarn, ""); !strings.HasSuffix(got, "[WARN]") {
		t.Fatalf("expected bare tag, got %q", got)
	}
}

func TestSectionSeparatesLaterSections(t *testing.T) {
	p, buf := plainPrinter()
	p.section("Daemon", true)
	p.section("queue", false)
	if got := buf.String(); got != "DAEMON\n\nQUEUE\n" {
		t.Fatalf("unexpected sections %q", got)
	}
}

func TestStateLevel(t *testing.T) {
	cases := map[string]level{
		"published":    levelOK,
		"failed":       levelError,
		"generating":   levelInfo,
		"ingested":     levelWarn,
		"transcribed":  levelWarn,
		"transcribing": levelInfo,
	}
	for state, want := range cases {
		if got := stateLevel(state); got != want {
			t.Fatalf("stateLevel(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestServiceLines(t *testing.T) {
	p, _ := plainPrinter()
	lines := serviceLines(p, []preflight.Result{
		{Name: "Feed", Passed: true, Detail: "http://feed (HTTP 200)"},
		{Name: "Generation", Detail: "not configured"},
	})
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[OK] http://feed") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] not configured") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestRenderStageTable(t *testing.T) {
	p, _ := plainPrinter()
	table := renderStageTable(p, []api.StageStatus{
		{Name: "generate", Label: "Generate", Limit: 1, InFlight: 1, Health: api.StageHealth{Ready: false, Detail: "generation.base_url not configured"}},
	})
	for _, want := range []string{"Generate", "In Flight", "not ready: generation.base_url not configured"} {
		if !strings.Contains(table, want) {
			t.Fatalf("expected table to contain %q:\n%s", want, table)
		}
	}
}

func TestRenderJobTableColorsStates(t *testing.T) {
	jobs := []api.Job{
		{ID: "0123456789abcdef", SourceRef: "cast:1", State: "failed", Attempts: map[string]int{"transcribe": 2},
			LastError: &api.ErrorInfo{Kind: "retry_exhausted", Message: "engine unavailable"}},
		{ID: "fedcba", SourceRef: "cast:2", State: "published"},
	}
	plain, _ := plainPrinter()
	out := renderJobTable(plain, jobs)
	for _, want := range []string{"01234567", "cast:1", "failed", "engine unavailable", "published"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in job table:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("plain output should carry no escape codes:\n%s", out)
	}

	colored := &printer{out: io.Discard, color: true}
	if out := renderJobTable(colored, jobs); !strings.Contains(out, "failed") || !strings.Contains(out, "published") {
		t.Fatalf("colored table lost state text:\n%s", out)
	}
}

func TestParseStates(t *testing.T) {
	states, err := parseStates([]string{"failed, published", "ingested"})
	if err != nil {
		t.Fatalf("parseStates: %v", err)
	}
	if len(states) != 3 || states[0] != "failed" || states[2] != "ingested" {
		t.Fatalf("unexpected states %v", states)
	}
	if _, err := parseStates([]string{"nope"}); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
