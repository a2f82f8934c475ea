// Package server exposes the task service over HTTP.
//
// Callers are identified by the X-User-ID header set by the session layer in
// front of this server. The Authorization bearer token, when present, is the
// caller's remote provider credential and is passed through untouched.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/harrisonrobin/trashtasker/pkg/metrics"
	"github.com/harrisonrobin/trashtasker/pkg/model"
	"github.com/harrisonrobin/trashtasker/pkg/reconcile"
	"github.com/harrisonrobin/trashtasker/pkg/service"
	"github.com/sirupsen/logrus"
)

// UserHeader names the owning user of a request.
const UserHeader = "X-User-ID"

type noteRequest struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type pullResponse struct {
	Message string `json:"message"`
	reconcile.Result
}

// Server routes HTTP requests to a task service.
type Server struct {
	tasks  *service.Tasks
	logger logrus.FieldLogger
}

// New returns a Server for tasks.
func New(tasks *service.Tasks, logger logrus.FieldLogger) *Server {
	return &Server{tasks: tasks, logger: logger.WithField("component", "http")}
}

// Handler returns the routed handler wrapped in request id, logging and
// metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tasks", s.createTask)
	mux.HandleFunc("GET /v1/tasks", s.listTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", s.getTask)
	mux.HandleFunc("PATCH /v1/tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /v1/tasks/{id}", s.deleteTask)
	mux.HandleFunc("POST /v1/tasks/{id}/notes", s.addNote)
	mux.HandleFunc("POST /v1/sync/pull", s.pull)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	return withRequestID(withLogging(s.logger, mux))
}

// identity returns the owner and bearer credential of a request. It writes
// a 401 and returns ok=false when the owner is missing.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (owner, credential string, ok bool) {
	owner = strings.TrimSpace(r.Header.Get(UserHeader))
	if owner == "" {
		s.writeError(w, r, http.StatusUnauthorized, "missing "+UserHeader)
		return "", "", false
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		credential = strings.TrimSpace(auth[7:])
	}
	return owner, credential, true
}

func (s *Server) entry(r *http.Request, handler string) logrus.FieldLogger {
	return s.logger.WithFields(logrus.Fields{
		"handler":    handler,
		"request_id": requestID(r.Context()),
	})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	owner, cred, ok := s.identity(w, r)
	if !ok {
		return
	}
	var in service.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	task, err := s.tasks.Create(r.Context(), owner, cred, in)
	if err != nil {
		s.fail(w, r, "createTask", err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	owner, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	tasks, err := s.tasks.List(r.Context(), owner)
	if err != nil {
		s.fail(w, r, "listTasks", err)
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	s.writeJSON(w, r, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	owner, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	task, err := s.tasks.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "getTask", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	owner, cred, ok := s.identity(w, r)
	if !ok {
		return
	}
	var p service.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	task, err := s.tasks.Update(r.Context(), owner, cred, r.PathValue("id"), p)
	if err != nil {
		s.fail(w, r, "updateTask", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	owner, cred, ok := s.identity(w, r)
	if !ok {
		return
	}
	if err := s.tasks.Delete(r.Context(), owner, cred, r.PathValue("id")); err != nil {
		s.fail(w, r, "deleteTask", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	owner, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Author == "" {
		req.Author = owner
	}
	task, err := s.tasks.AddNote(r.Context(), owner, r.PathValue("id"), req.Content, req.Author)
	if err != nil {
		s.fail(w, r, "addNote", err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, task)
}

func (s *Server) pull(w http.ResponseWriter, r *http.Request) {
	owner, cred, ok := s.identity(w, r)
	if !ok {
		return
	}
	res, err := s.tasks.Reconcile(r.Context(), owner, cred)
	if err != nil {
		s.fail(w, r, "pull", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, pullResponse{Message: "Sync completed", Result: res})
}

// fail maps service errors to status codes. Provider failures during a pull
// become a 502 with a single message; anything unclassified is a 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, handler string, err error) {
	log := s.entry(r, handler).WithError(err)
	var pErr *reconcile.ProviderError
	switch {
	case errors.Is(err, service.ErrInvalid):
		log.Warn("rejected request")
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "task not found")
	case errors.As(err, &pErr):
		log.Error("remote provider failed")
		s.writeError(w, r, http.StatusBadGateway, "Failed to sync from Google Tasks")
	default:
		log.Error("request failed")
		s.writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes v with status. The status line is already out when
// encoding fails, so the error can only be logged.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.entry(r, r.Pattern).WithError(err).Error("could not encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, errorResponse{Error: msg})
}
