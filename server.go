package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"amd-helper/config"
	"amd-helper/models"
	"amd-helper/notify"
	"amd-helper/pipeline"
	"amd-helper/storage"
)

const maxHistory = 200

type Server struct {
	logger   *slog.Logger
	orch     *pipeline.Orchestrator
	store    storage.RunHistory
	notifier *notify.Desktop
	cfgPath  string
	// guards cfg against concurrent engine switches
	mu  sync.Mutex
	cfg *config.Config
	// in-flight runs started by /trigger
	runs sync.WaitGroup
}

type statusResponse struct {
	Version  string `json:"version"`
	Busy     bool   `json:"busy"`
	Engine   string `json:"engine"`
	Provider string `json:"provider"`
	Language string `json:"language"`
}

type triggerResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

func NewServer(logger *slog.Logger, cfg *config.Config, cfgPath string, orch *pipeline.Orchestrator,
	store storage.RunHistory, notifier *notify.Desktop) *Server {
	return &Server{
		logger:   logger.With("component", "rpc"),
		orch:     orch,
		store:    store,
		notifier: notifier,
		cfgPath:  cfgPath,
		cfg:      cfg.Clone(),
	}
}

func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", srv.pingHandler)
	mux.HandleFunc("GET /status", srv.statusHandler)
	mux.HandleFunc("POST /trigger", srv.triggerHandler)
	mux.HandleFunc("POST /cancel", srv.cancelHandler)
	mux.HandleFunc("POST /engine", srv.engineHandler)
	mux.HandleFunc("GET /history", srv.historyHandler)
	return mux
}

// ListenToRequests serves on loopback until ctx is done, then cancels any run and drains.
func (srv *Server) ListenToRequests(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:         net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Second * 5,
		WriteTimeout: time.Second * 5,
	}
	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("rpc server: %w", err)
	case <-ctx.Done():
	}
	srv.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	srv.orch.Cancel()
	srv.runs.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (srv *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.logger.Error("failed to write response", "error", err)
	}
}

func (srv *Server) pingHandler(w http.ResponseWriter, req *http.Request) {
	if _, err := w.Write([]byte("pong")); err != nil {
		srv.logger.Error("server ping", "error", err)
	}
}

func (srv *Server) statusHandler(w http.ResponseWriter, req *http.Request) {
	srv.mu.Lock()
	resp := statusResponse{
		Version:  version,
		Busy:     srv.orch.Busy(),
		Engine:   srv.cfg.TTS_ENGINE,
		Provider: srv.cfg.TTS_ONLINE_PROVIDER,
		Language: srv.cfg.Language,
	}
	srv.mu.Unlock()
	srv.writeJSON(w, http.StatusOK, resp)
}

// triggerHandler starts a run and returns at once; the run outlives the request.
func (srv *Server) triggerHandler(w http.ResponseWriter, req *http.Request) {
	run, ok := srv.orch.Start()
	if !ok {
		srv.writeJSON(w, http.StatusConflict, triggerResponse{Message: "a run is in progress"})
		return
	}
	srv.runs.Add(1)
	go func() {
		defer srv.runs.Done()
		res := run(context.Background())
		srv.logger.Info("run finished", "run", res.RunID, "outcome", res.Outcome, "error", res.Err)
	}()
	srv.writeJSON(w, http.StatusAccepted, triggerResponse{Accepted: true, Message: "started"})
}

func (srv *Server) cancelHandler(w http.ResponseWriter, req *http.Request) {
	cancelled := srv.orch.Cancel()
	srv.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// engineHandler persists the engine choice and swaps the synthesizer.
func (srv *Server) engineHandler(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("name")
	provider := req.URL.Query().Get("provider")
	if name != config.EngineOnline && name != config.EngineLocal {
		http.Error(w, fmt.Sprintf("unknown engine %q, want %s or %s", name, config.EngineOnline, config.EngineLocal),
			http.StatusBadRequest)
		return
	}
	srv.mu.Lock()
	next := srv.cfg.Clone()
	next.TTS_ENGINE = name
	if provider != "" {
		next.TTS_ONLINE_PROVIDER = provider
	}
	if err := next.Save(srv.cfgPath); err != nil {
		srv.mu.Unlock()
		srv.logger.Error("failed to save config", "path", srv.cfgPath, "error", err)
		http.Error(w, "failed to save config", http.StatusInternalServerError)
		return
	}
	srv.cfg = next
	srv.mu.Unlock()
	srv.orch.Reconfigure(next)
	srv.notifier.Notify(notify.KeyEngineSwitch, name)
	srv.writeJSON(w, http.StatusOK, statusResponse{
		Version:  version,
		Busy:     srv.orch.Busy(),
		Engine:   next.TTS_ENGINE,
		Provider: next.TTS_ONLINE_PROVIDER,
		Language: next.Language,
	})
}

func (srv *Server) historyHandler(w http.ResponseWriter, req *http.Request) {
	if srv.store == nil {
		http.Error(w, "history is disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistory)
	}
	runs, err := srv.store.ListRuns(limit)
	if err != nil {
		srv.logger.Error("failed to list runs", "error", err)
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	srv.writeJSON(w, http.StatusOK, runs)
}
