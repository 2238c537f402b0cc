// Package api exposes the viewer session over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kamkard/gltfview/internal/auth"
	"github.com/kamkard/gltfview/internal/controller"
	"github.com/kamkard/gltfview/internal/deeplink"
	"github.com/kamkard/gltfview/internal/events"
	"github.com/kamkard/gltfview/internal/history"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/metrics"
	"github.com/kamkard/gltfview/internal/objurl"
	"github.com/kamkard/gltfview/internal/protocol"
	"github.com/kamkard/gltfview/internal/validator"
)

// ReportSource returns the latest validation report.
type ReportSource interface {
	Latest() *validator.Report
}

// Deps bundles the server's collaborators. Reports and History are optional.
type Deps struct {
	Controller    *controller.Controller
	Broker        *objurl.Broker
	Broadcaster   *events.Broadcaster
	Auth          *auth.Auth
	Reports       ReportSource
	History       history.Recorder
	Options       deeplink.Options
	MaxUploadSize int64
	Version       string
}

// Server serves the HTTP API.
type Server struct {
	ctrl          *controller.Controller
	broker        *objurl.Broker
	broadcaster   *events.Broadcaster
	auth          *auth.Auth
	reports       ReportSource
	history       history.Recorder
	options       deeplink.Options
	maxUploadSize int64
	version       string
}

// NewServer creates a new server.
func NewServer(d Deps) *Server {
	a := d.Auth
	if a == nil {
		a = auth.New("")
	}
	return &Server{
		ctrl:          d.Controller,
		broker:        d.Broker,
		broadcaster:   d.Broadcaster,
		auth:          a,
		reports:       d.Reports,
		history:       d.History,
		options:       d.Options,
		maxUploadSize: d.MaxUploadSize,
		version:       d.Version,
	}
}

// Handler returns the HTTP handler with auth, logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/options", s.handleOptions)
	mux.HandleFunc("GET /api/v1/session", s.handleSession)
	mux.HandleFunc("GET /api/v1/report", s.handleReport)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.Handle("GET /blob/{id}", s.broker)

	// Write endpoints
	mux.Handle("POST /api/v1/load", s.auth.Middleware(http.HandlerFunc(s.handleLoadFiles)))
	mux.Handle("POST /api/v1/load/url", s.auth.Middleware(http.HandlerFunc(s.handleLoadURL)))

	// Metrics sits inside logging so it sees the matched route pattern.
	return logging.Middleware(metrics.Middleware(mux))
}

// ─── Health & options ───────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:   "ok",
		Version:  s.version,
		LiveURLs: s.broker.Live(),
	})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.OptionsResponse{
		Options: s.options,
		Chrome:  s.options.Chrome(),
	})
}

// ─── Session state ──────────────────────────────────────────────────────────

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.ctrl.Session().Snapshot())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.sendError(w, http.StatusNotFound, "validation disabled")
		return
	}
	report := s.reports.Latest()
	if report == nil {
		s.sendError(w, http.StatusNotFound, "no report yet")
		return
	}
	s.sendJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.sendJSON(w, http.StatusOK, protocol.HistoryResponse{Attempts: []history.Attempt{}})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.sendError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	attempts, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.sendErrorDetails(w, http.StatusInternalServerError, "failed to read history", err.Error())
		return
	}
	if attempts == nil {
		attempts = []history.Attempt{}
	}
	s.sendJSON(w, http.StatusOK, protocol.HistoryResponse{Attempts: attempts})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	// Current state first so late subscribers know whether to show the
	// loading indicator.
	snap := s.ctrl.Session().Snapshot()
	writeEvent(w, events.Event{Type: events.EventState, Seq: snap.Seq, State: string(snap.State)})
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, event)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, e events.Event) {
	data, err := events.MarshalEvent(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendErrorDetails(w, code, message, "")
}

func (s *Server) sendErrorDetails(w http.ResponseWriter, code int, message, details string) {
	s.sendJSON(w, code, protocol.ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
