// Package server exposes the bot control surface over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lacymorrow/trade/internal/interfaces"
	"github.com/lacymorrow/trade/internal/logger"
)

// Server routes control requests to the bot controller and serves recent
// trade data.
type Server struct {
	controller interfaces.Controller
	data       interfaces.DataEngine
	http       *http.Server
}

// response is the uniform envelope every endpoint answers with.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New builds the server with its routes and middleware.
func New(addr string, controller interfaces.Controller, data interfaces.DataEngine) *Server {
	s := &Server{controller: controller, data: data}

	r := mux.NewRouter()
	r.Use(loggingMiddleware, recoveryMiddleware)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/bot/start", s.handleStart).Methods(http.MethodPost)
	v1.HandleFunc("/bot/stop", s.handleStop).Methods(http.MethodPost)
	v1.HandleFunc("/bot/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/bot/run-once", s.handleRunOnce).Methods(http.MethodPost)
	v1.HandleFunc("/trades/{symbol}", s.handleTrades).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	logger.Info(context.Background(), "control server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func writeJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error(context.Background(), "failed to encode response", "error", err)
	}
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func fail(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, response{Success: false, Error: err.Error()})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Start(r.Context()); err != nil {
		fail(w, http.StatusConflict, err)
		return
	}
	ok(w, s.controller.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Stop(r.Context()); err != nil {
		fail(w, http.StatusConflict, err)
		return
	}
	ok(w, s.controller.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ok(w, s.controller.Status())
}

func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	summary, err := s.controller.RunOnce(r.Context())
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, summary)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	trades, err := s.data.GetRecentTrades(r.Context(), symbol, limit)
	if err != nil {
		fail(w, http.StatusBadGateway, err)
		return
	}
	ok(w, trades)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]string{"status": "healthy"})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug(r.Context(), "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error(r.Context(), "handler panic", "panic", rec, "path", r.URL.Path)
				http.Error(w, `{"success":false,"error":"internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
