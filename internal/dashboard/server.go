// Package dashboard serves the read API over the relational telemetry
// sink: session listings, per-session timelines, and message ingestion.
// When the sink has latched disabled every endpoint answers 503 with a
// stable error body so the dashboard can distinguish "unavailable" from
// "empty".
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"govgate/internal/telemetry"
	"govgate/pkg/logging"
)

// Server is the dashboard HTTP surface.
type Server struct {
	listen     string
	store      *telemetry.Store
	httpServer *http.Server
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorBody struct {
	Error apiError `json:"error"`
}

// New creates a dashboard server reading from the given store.
func New(listen string, store *telemetry.Store) *Server {
	return &Server{listen: listen, store: store}
}

// Router builds the dashboard routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/sessions", s.listSessions)
	r.Get("/sessions/{id}/timeline", s.sessionTimeline)
	r.Post("/sessions/{id}/messages", s.appendMessages)

	return r
}

// Start serves the dashboard in the background.
func (s *Server) Start() error {
	if s.httpServer != nil {
		return fmt.Errorf("dashboard server already started")
	}

	s.httpServer = &http.Server{
		Addr:              s.listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Dashboard", "Serving dashboard API on %s", s.listen)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Dashboard", err, "Dashboard server error")
		}
	}()
	return nil
}

// Stop shuts the dashboard down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.httpServer = nil
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.store.Disabled() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	pageSize := 0
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErr(w, http.StatusBadRequest, "invalid_page_size", "page_size must be a non-negative integer")
			return
		}
		pageSize = parsed
	}

	page, err := s.store.ListSessions(r.Context(), pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) sessionTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if entries == nil {
		entries = []telemetry.TimelineEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"timeline": entries})
}

func (s *Server) appendMessages(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Messages []telemetry.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if len(body.Messages) == 0 {
		writeErr(w, http.StatusBadRequest, "empty_messages", "messages must not be empty")
		return
	}

	if err := s.store.InsertMessages(r.Context(), chi.URLParam(r, "id"), body.Messages); err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": len(body.Messages)})
}

// writeStoreErr maps the disabled-sink latch to the stable 503 body.
func writeStoreErr(w http.ResponseWriter, err error) {
	if errors.Is(err, telemetry.ErrStoreDisabled) {
		writeErr(w, http.StatusServiceUnavailable, "store_disabled", "relational telemetry store is disabled")
		return
	}
	writeErr(w, http.StatusInternalServerError, "store_error", err.Error())
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, apiErrorBody{Error: apiError{Code: errCode, Message: message}})
}
