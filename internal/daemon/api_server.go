package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"castreel/internal/api"
	"castreel/internal/config"
	"castreel/internal/logging"
	"castreel/internal/queue"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func newAPIServer(cfg config.API, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Bind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
	}
	srv.server = &http.Server{
		Handler:           newRouter(d, strings.TrimSpace(cfg.Token)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func newRouter(d *Daemon, token string) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(token))
		r.Get("/status", handleStatus(d))
		r.Get("/metrics", handleMetrics(d))
		r.Get("/jobs", handleListJobs(d))
		r.Get("/jobs/{id}", handleGetJob(d))
		r.Post("/jobs/{id}/retry", handleRetryJob(d))
		r.Post("/notifications/test", handleTestNotification(d))
	})
	return r
}

func (s *apiServer) start() error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func handleStatus(d *Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := d.Status(r.Context())
		payload := api.DaemonStatus{
			Running:      status.Running,
			PID:          status.PID,
			QueueDBPath:  status.QueueDBPath,
			LockFilePath: status.LockFilePath,
			Database: api.DatabaseStatus{
				Path:           status.Database.DBPath,
				IntegrityCheck: status.Database.IntegrityCheck,
				TotalJobs:      status.Database.TotalJobs,
				Error:          status.Database.Error,
			},
			Workflow: api.FromStatusSummary(status.Workflow),
		}
		if !status.StartedAt.IsZero() {
			payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func handleMetrics(d *Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, err := d.Metrics(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, api.FromStats(metrics.Counts))
	}
}

func handleListJobs(d *Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var states []queue.State
		for _, value := range r.URL.Query()["state"] {
			for _, part := range strings.Split(value, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				state, ok := queue.ParseState(part)
				if !ok {
					writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", part))
					return
				}
				states = append(states, state)
			}
		}
		jobs, err := d.ListJobs(r.Context(), states...)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
	}
}

func handleGetJob(d *Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := d.JobStatus(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
	}
}

func handleRetryJob(d *Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := d.RetryJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
	}
}

func handleTestNotification(d *Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sent, message, err := d.TestNotification(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, message+": "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, api.NotificationResponse{Sent: sent, Message: message})
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrStaleState), errors.Is(err, queue.ErrIllegalTransition), errors.Is(err, queue.ErrDuplicateSourceRef):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}
