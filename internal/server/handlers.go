package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/desertthunder/chatmigrate/internal/formatter"
	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/runs"
	"github.com/desertthunder/chatmigrate/internal/shared"
	"github.com/desertthunder/chatmigrate/internal/tasks"
)

// MigrationRequest is the optional JSON body of the migration routes.
type MigrationRequest struct {
	Before    string `json:"before"` // YYYY-MM-DD or RFC 3339
	After     string `json:"after"`
	Limit     int    `json:"limit"`
	PageSize  int    `json:"page_size"`
	LogToFile bool   `json:"log_to_file"`
}

// RunDetail is the body of GET /runs/{id}.
type RunDetail struct {
	Run      formatter.RunView `json:"run"`
	Outcomes []OutcomeView     `json:"outcomes"`
}

// OutcomeView is the serialisable form of a [models.EntityOutcome].
type OutcomeView struct {
	Kind        string `json:"kind"`
	EntityID    string `json:"entity_id"`
	Disposition string `json:"disposition"`
	Message     string `json:"message,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "chatmigrate"})
}

func (s *Server) handleMigrate(op models.RunOperation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body MigrationRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "request body must be JSON: "+err.Error())
			return
		}

		window, err := tasks.ParseWindow(body.Before, body.After)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		exec, err := s.executor.Execute(r.Context(), runs.Request{
			Operation: op,
			TargetID:  chi.URLParam(r, "id"),
			Window:    window,
			Limit:     body.Limit,
			PageSize:  body.PageSize,
			LogToFile: body.LogToFile,
		}, nil)

		if exec != nil && exec.Run.ID() != "" {
			w.Header().Set("X-Run-ID", exec.Run.ID())
		}

		switch {
		case err != nil && goerr.HasTag(err, tasks.ErrTagValidation):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case err != nil && exec == nil:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		case err != nil:
			s.writeJSON(w, http.StatusBadGateway, exec.Result)
		default:
			s.writeJSON(w, http.StatusOK, exec.Result)
		}
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	criteria := map[string]any{
		"operation": r.URL.Query().Get("operation"),
		"status":    r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		criteria["limit"] = limit
	}

	list, err := s.history.List(criteria)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	views := make([]formatter.RunView, 0, len(list))
	for _, run := range list {
		views = append(views, formatter.NewRunView(run))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.history.Get(id)
	if errors.Is(err, shared.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run "+id+" not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get run", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	detail := RunDetail{Run: formatter.NewRunView(run), Outcomes: []OutcomeView{}}
	if s.outcomes != nil {
		var filter *models.Disposition
		if raw := r.URL.Query().Get("disposition"); raw != "" {
			d, err := models.ParseDisposition(raw)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter = &d
		}

		outcomes, err := s.outcomes.ListByRun(id, filter)
		if err != nil {
			s.logger.Error("failed to list outcomes", "run_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to list outcomes")
			return
		}
		for _, o := range outcomes {
			detail.Outcomes = append(detail.Outcomes, OutcomeView{
				Kind:        o.Kind().String(),
				EntityID:    o.EntityID(),
				Disposition: o.Disposition().String(),
				Message:     o.Message(),
			})
		}
	}

	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}
