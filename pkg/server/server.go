// Package server exposes the dialogue pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hibiki-ai/hibiki-go/pkg/core"
	"github.com/hibiki-ai/hibiki-go/pkg/observability"
)

// RequestIDHeader carries the request id in requests and responses.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds the size of a message request body.
const maxBodyBytes = 1 << 20

// Pipeline runs one dialogue turn. *core.Client and *core.Runner satisfy it.
type Pipeline interface {
	Run(ctx context.Context, userID, utterance string) (*core.Result, error)
}

// Server serves the pipeline API.
type Server struct {
	pipeline Pipeline
	metrics  http.Handler
}

// New creates a server. metrics may be nil, in which case /metrics is not routed.
func New(pipeline Pipeline, metrics http.Handler) *Server {
	return &Server{
		pipeline: pipeline,
		metrics:  metrics,
	}
}

// Router returns the HTTP handler of the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Post("/v1/users/{userID}/messages", s.handleMessage)

	return r
}

type messageRequest struct {
	Text *string `json:"text"`
}

type messageResponse struct {
	Reply         string `json:"reply"`
	Guidance      string `json:"guidance"`
	MemoryWritten bool   `json:"memory_written"`
	MemoryKey     string `json:"memory_key,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Stage string `json:"stage,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id", "")
		return
	}

	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		observability.LoggerFromContext(r.Context()).Debug("bad request body", "error", err)
		respondError(w, http.StatusBadRequest, "invalid_request", decodeMessage(err), "")
		return
	}
	if req.Text == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required", "")
		return
	}

	log := observability.LoggerFromContext(r.Context()).With("user_id", userID)

	result, err := s.pipeline.Run(r.Context(), userID, *req.Text)
	if result == nil {
		status, code, stage := classify(err)
		log.Error("message failed", "code", code, "error", err)
		respondError(w, status, code, publicMessage(code), stage)
		return
	}

	resp := messageResponse{
		Reply:         result.Reply,
		Guidance:      result.Guidance,
		MemoryWritten: result.MemoryWritten,
		MemoryKey:     result.MemoryKey,
	}
	if err != nil {
		log.Warn("reply delivered without memory", "error", err)
		resp.Warning = "this exchange could not be remembered"
	}

	respondJSON(w, http.StatusOK, resp)
}

// classify maps a pipeline error to a status, an error code and the failed stage.
func classify(err error) (int, string, string) {
	if err == nil {
		return http.StatusInternalServerError, "internal", ""
	}
	if errors.Is(err, core.ErrInvalidInput) {
		return http.StatusBadRequest, "invalid_input", ""
	}

	var stageErr *core.StageError
	if errors.As(err, &stageErr) {
		return http.StatusBadGateway, core.KindName(err), string(stageErr.Stage)
	}
	return http.StatusInternalServerError, "internal", ""
}

// publicMessages are the client-facing texts of pipeline error codes.
// Causes stay in the server log.
var publicMessages = map[string]string{
	"invalid_input":       "invalid input",
	"store_unavailable":   "memory store unavailable",
	"planning_failed":     "planning failed",
	"response_failed":     "reply generation failed",
	"memory_write_failed": "memory write failed",
}

func publicMessage(code string) string {
	if msg, ok := publicMessages[code]; ok {
		return msg
	}
	return "internal error"
}

// requestID propagates or generates the request id and stores it in the context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func decodeMessage(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, errEmptyBody):
		return "request body is empty"
	case errors.As(err, &tooLarge):
		return "request body too large"
	default:
		return "malformed request body"
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message, stage string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code, Stage: stage})
}
