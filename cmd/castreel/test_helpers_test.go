package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"castreel/internal/config"
	"castreel/internal/daemon"
	"castreel/internal/generation"
	"castreel/internal/logging"
	"castreel/internal/publishing"
	"castreel/internal/queue"
	"castreel/internal/testsupport"
	"castreel/internal/transcription"
	"castreel/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	configPath string
}

// setupCLITestEnv starts an in-process daemon with fake services and writes
// a config file pointing the CLI at its API.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger, workflow.WithPollInterval(10*time.Millisecond))
	mgr.ConfigureStages(workflow.StageSet{
		Transcribe: transcription.NewTranscriberWithEngine(cfg,
			testsupport.FakeTranscriber{Recorder: testsupport.NewRecorder(testsupport.PrefixResponder("t:"))}, logger),
		Generate: generation.NewGeneratorWithBackend(cfg,
			testsupport.FakeGenerator{Recorder: testsupport.NewRecorder(testsupport.PrefixResponder("v:"))}, logger),
		Publish: publishing.NewPublisherWithBackend(cfg,
			testsupport.FakePublisher{Recorder: testsupport.NewRecorder(testsupport.PrefixResponder("p:"))}, logger),
	})

	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg, d.APIAddr())

	return &cliTestEnv{cfg: cfg, store: store, daemon: d, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config, bind string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[api]
bind = %q

[retry]
base_delay_ms = 1
max_delay_ms = 8
`, cfg.Paths.DataDir, cfg.Paths.LogDir, bind)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// deadAddr returns an address nothing listens on.
func deadAddr(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()
	return addr
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
