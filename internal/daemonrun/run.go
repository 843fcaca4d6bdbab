package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"castreel/internal/config"
	"castreel/internal/daemon"
	"castreel/internal/generation"
	"castreel/internal/ingest"
	"castreel/internal/logging"
	"castreel/internal/publishing"
	"castreel/internal/queue"
	"castreel/internal/transcription"
	"castreel/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the castreel daemon and blocks until the context is cancelled
// or the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "castreel.log")
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logServiceSnapshot(logger, cfg)
	pidPath := filepath.Join(cfg.Paths.LogDir, "castreel.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	workflowManager := workflow.NewManager(cfg, store, logger)
	if err := registerStages(signalCtx, workflowManager, cfg, store, logger); err != nil {
		return err
	}

	d, err := daemon.New(cfg, store, logger, workflowManager)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, directories, and that no other daemon is running"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("castreel daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	d.Stop()
	return nil
}

func registerStages(ctx context.Context, mgr *workflow.Manager, cfg *config.Config, store *queue.Store, logger *slog.Logger) error {
	publisher, err := publishing.NewPublisher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	mgr.ConfigureStages(workflow.StageSet{
		Ingest:     ingest.NewIngestor(cfg, store, logger),
		Transcribe: transcription.NewTranscriber(cfg, logger),
		Generate:   generation.NewGenerator(cfg, logger),
		Publish:    publisher,
	})
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logServiceSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("service snapshot",
		logging.String(logging.FieldEventType, "service_snapshot"),
		logging.String("feed_url", cfg.Feed.BaseURL),
		logging.String("transcription_url", cfg.Transcription.BaseURL),
		logging.Bool("transcription_key_present", strings.TrimSpace(cfg.Transcription.APIKey) != ""),
		logging.String("generation_url", cfg.Generation.BaseURL),
		logging.Bool("generation_key_present", strings.TrimSpace(cfg.Generation.APIKey) != ""),
		logging.String("publisher_kind", cfg.Publisher.Kind),
		logging.Int("max_attempts", cfg.Retry.MaxAttempts),
		logging.String("api_bind", cfg.API.Bind),
	)
}
