package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/runs"
	"github.com/desertthunder/chatmigrate/internal/shared"
	"github.com/desertthunder/chatmigrate/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Executor runs one migration request. [runs.Service] implements it.
type Executor interface {
	Execute(ctx context.Context, req runs.Request, progress chan<- tasks.ProgressUpdate) (*runs.Execution, error)
}

// History reads stored runs. [repositories.RunRepository] implements it.
type History interface {
	Get(id string) (*models.MigrationRun, error)
	List(criteria map[string]any) ([]*models.MigrationRun, error)
}

// Outcomes reads the per-entity outcomes of a run. [repositories.OutcomeRepository] implements it.
type Outcomes interface {
	ListByRun(runID string, disposition *models.Disposition) ([]*models.EntityOutcome, error)
}

// Opts configures a [Server]. Executor is required; without History the run routes answer 503.
type Opts struct {
	Executor Executor
	History  History
	Outcomes Outcomes
	Logger   *log.Logger
	Host     string
	Port     int
}

// Server serves the HTTP trigger API.
type Server struct {
	executor Executor
	history  History
	outcomes Outcomes
	logger   *log.Logger
	router   chi.Router
	addr     string
}

// New creates a [Server] and registers its routes.
func New(opts Opts) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 3000
	}

	s := &Server{
		executor: opts.Executor,
		history:  opts.History,
		outcomes: opts.Outcomes,
		logger:   logger,
		addr:     net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/migrations", func(r chi.Router) {
		r.Post("/users", s.handleMigrate(models.OperationUsers))
		r.Post("/channels", s.handleMigrate(models.OperationChannels))
		r.Post("/accounts/{id}", s.handleMigrate(models.OperationAccount))
		r.Post("/channels/{id}", s.handleMigrate(models.OperationChannel))
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
	})

	return r
}

// ServeHTTP implements [http.Handler] for the whole API.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string { return s.addr }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	case <-ctx.Done():
		s.logger.Info("shutting down", "addr", s.addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RequestLogger logs one line per request with its status and duration.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			kv := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Microsecond),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if status >= http.StatusInternalServerError {
				logger.Error("request", kv...)
			} else {
				logger.Info("request", kv...)
			}
		})
	}
}
