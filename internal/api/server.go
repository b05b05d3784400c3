package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/quantbt-lab/quantbt/internal/backtest/service"
	"github.com/quantbt-lab/quantbt/internal/logger"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// Server exposes the backtest service over HTTP.
type Server struct {
	svc    *service.Service
	logger *logger.Logger
	router *mux.Router
}

// NewServer wires the HTTP routes.
func NewServer(svc *service.Service, log *logger.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: log,
		router: mux.NewRouter(),
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/backtests", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/backtests/{id}", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/backtests/{id}", s.handleCancel).Methods(http.MethodDelete)
	api.HandleFunc("/backtests/{id}/result", s.handleResult).Methods(http.MethodGet)
	api.HandleFunc("/strategies", s.handleStrategies).Methods(http.MethodGet)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type statusResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type strategyInfo struct {
	ID          string             `json:"id"`
	Description string             `json:"description"`
	ParamSchema *jsonschema.Schema `json:"param_schema,omitempty"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidSubmission, "malformed request body", err))
		return
	}

	taskID, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, submitResponse{TaskID: taskID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	status, err := s.svc.Status(taskID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{TaskID: taskID, Status: string(status)})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	result, err := s.svc.Result(r.Context(), taskID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	if err := s.svc.Cancel(taskID); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	registrations := s.svc.Strategies()

	infos := make([]strategyInfo, 0, len(registrations))
	for _, reg := range registrations {
		infos = append(infos, strategyInfo{
			ID:          reg.ID,
			Description: reg.Description,
			ParamSchema: reg.ParamSchema,
		})
	}

	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps error codes to HTTP statuses: validation errors are 400,
// unknown tasks and not-yet-terminal results 404, everything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)

	status := http.StatusInternalServerError

	switch {
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case code == errors.ErrCodeRunNotFound || code == errors.ErrCodeStrategyNotFound:
		status = http.StatusNotFound
	case code == errors.ErrCodeResultIncomplete:
		// A result does not exist until its run reaches a terminal state.
		status = http.StatusNotFound
	}

	s.writeJSON(w, status, errorResponse{
		Code:    int(code),
		Message: err.Error(),
	})
}
