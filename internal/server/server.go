// Package server exposes the compliance ledger over HTTP. Handlers validate
// and authorize, then delegate every state change to the reconciliation
// engine; they hold no business rules of their own.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/complyhq/comply/internal/database"
	"github.com/complyhq/comply/internal/ingest"
	"github.com/complyhq/comply/internal/reconcile"
	"github.com/complyhq/comply/pkg/logger"
)

// Server wires the HTTP API to the engine, ingestor, and store.
type Server struct {
	db       *database.DB
	engine   *reconcile.Engine
	ingestor *ingest.Ingestor
	logger   logger.Logger
	router   *mux.Router
}

// New creates a server with all routes registered.
func New(db *database.DB, engine *reconcile.Engine, ingestor *ingest.Ingestor, log logger.Logger) *Server {
	s := &Server{
		db:       db,
		engine:   engine,
		ingestor: ingestor,
		logger:   log,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/controls", s.requireMember(s.handleListControls)).Methods(http.MethodGet)
	api.HandleFunc("/controls/{controlID}/status", s.requireMember(s.handleSetControlStatus)).Methods(http.MethodPut)

	api.HandleFunc("/frameworks/assign", s.requireMember(s.handleAssignFramework)).Methods(http.MethodPost)
	api.HandleFunc("/frameworks/assignments/{id}", s.requireMember(s.handleRemoveFramework)).Methods(http.MethodDelete)

	api.HandleFunc("/policies/{policyID}", s.requireMember(s.handleUpdatePolicy)).Methods(http.MethodPatch)

	api.HandleFunc("/findings", s.requireMember(s.handleIngestFinding)).Methods(http.MethodPost)
	api.HandleFunc("/findings", s.requireMember(s.handleListFindings)).Methods(http.MethodGet)

	api.HandleFunc("/risks", s.requireMember(s.handleCreateRisk)).Methods(http.MethodPost)
	api.HandleFunc("/risks", s.requireMember(s.handleListRisks)).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

// ListenAndServe runs the server until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Conn().PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
