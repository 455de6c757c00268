package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/john/conveyor_client/job"
	"github.com/john/conveyor_client/printer"
)

// Printers is the read side of the printer registry.
type Printers interface {
	Snapshots() []printer.Snapshot
	Get(uniqueName string) (*printer.State, error)
}

// Jobs is the read side of the job tracker.
type Jobs interface {
	List(printer string) []*job.Job
	Totals() job.Totals
}

// Config holds the listen address of the status endpoint, as host:port.
type Config struct {
	Addr string
}

// Server is a read-only HTTP view of the mirrored printers and jobs.
type Server struct {
	printers   Printers
	jobs       Jobs
	log        zerolog.Logger
	httpServer *http.Server
}

// NewServer creates the status server. Call Start to serve.
func NewServer(cfg Config, printers Printers, jobs Jobs, log zerolog.Logger) *Server {
	s := &Server{
		printers: printers,
		jobs:     jobs,
		log:      log,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleRoot)
	r.Get("/printers", s.handlePrinters)
	r.Get("/printers/{name}", s.handlePrinter)
	r.Get("/jobs", s.handleJobs)
	r.Get("/jobs/totals", s.handleJobTotals)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("status server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": "conveyor client",
	})
}

func (s *Server) handlePrinters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": s.printers.Snapshots(),
	})
}

func (s *Server) handlePrinter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, err := s.printers.Get(name)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("printer %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": st.Snapshot(),
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.List(r.URL.Query().Get("printer"))
	out := make([]job.Data, len(jobs))
	for i, j := range jobs {
		out[i] = j.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": out,
	})
}

func (s *Server) handleJobTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": s.jobs.Totals(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
		},
	})
}
