package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fentz26/tripassist/internal/apperr"
	"github.com/fentz26/tripassist/internal/callback"
	"github.com/fentz26/tripassist/internal/logging"
	"github.com/fentz26/tripassist/internal/metrics"
	"github.com/fentz26/tripassist/internal/models"
)

const (
	maxSubmitBytes   = 1 << 20
	maxCallbackBytes = 10 << 20
)

// ServerOptions tunes the HTTP server.
type ServerOptions struct {
	// KeepAlive is the interval between stream keep-alive comments.
	KeepAlive time.Duration
	// StreamTimeout closes a stream with a timeout failure when no result arrives.
	StreamTimeout time.Duration
	// StoreBackend names the store in health output.
	StoreBackend string
	// Version is reported by /health.
	Version string
}

// Server provides the HTTP API for tripassist.
type Server struct {
	service *Service
	metrics *metrics.Metrics
	opts    ServerOptions
	addr    string
	server  *http.Server
	logger  *logrus.Entry
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, m *metrics.Metrics, addr string, opts ServerOptions) *Server {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 20 * time.Second
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = 180 * time.Second
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		service: service,
		metrics: m,
		opts:    opts,
		addr:    addr,
		logger:  logging.NewLogger("server"),
	}
	// No WriteTimeout: streams and sync submissions legitimately run for minutes.
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc(callback.WebhookPath, s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())

	return mux
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.WithFields(logrus.Fields{"addr": s.addr, "discipline": s.service.Discipline()}).Info("Starting tripassist server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// --- Submission ---

// handleSubmit handles POST /submit
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var prefs models.Preferences
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSubmitBytes)).Decode(&prefs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json", Code: apperr.CodeInvalidInput})
		return
	}

	sub, err := s.service.Submit(r.Context(), &prefs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if sub.Mode == models.SubmissionAsync {
		status = http.StatusAccepted
	}
	writeJSON(w, status, sub)
}

// --- Delivery ---

// handleResult handles GET /result?sessionId=
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get(callback.SessionParam)
	result, err := s.service.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.Deliveries.WithLabelValues("poll", string(result.Status)).Inc()
	writeJSON(w, http.StatusOK, result)
}

// --- Callback ---

type ackResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleWebhook handles POST /webhook?sessionId=
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get(callback.SessionParam)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ackResponse{Error: "Session ID is required"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ackResponse{Error: "failed to read body"})
		return
	}

	// The ack means "received": a payload recorded as a failed session is still a success.
	if _, err := s.service.Callback(r.Context(), id, body); err != nil {
		status := httpStatus(err)
		s.logger.WithError(err).WithField("session_id", id).Warn("Callback not recorded")
		writeJSON(w, status, ackResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Success: true})
}

// --- Health ---

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Store   string `json:"store"`
	Backend string `json:"backend,omitempty"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		OK:      true,
		Store:   "ok",
		Backend: s.opts.StoreBackend,
		Version: s.opts.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.service.CheckStore(ctx); err != nil {
		resp.OK = false
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// --- helpers ---

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(r.Context().Err(), context.Canceled) {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	writeJSON(w, status, newErrorResponse(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
