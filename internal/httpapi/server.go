// Package httpapi implements the conversation engine's synchronous HTTP
// surface: enqueue a turn, submit a tool result, cancel, and poll status.
// The Streaming Endpoint lives in internal/streaming and is wired in
// alongside these on the same mux by the caller.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/internal/conversation"
	"github.com/loomrun/loom/internal/loomerr"
	"github.com/loomrun/loom/internal/observability"
	"github.com/loomrun/loom/internal/storage"
	"github.com/loomrun/loom/internal/tooldispatch"
	"github.com/loomrun/loom/pkg/models"
)

// Server implements the engine's four request/response endpoints over
// stdlib net/http.ServeMux, responding with a plain map[string]any
// marshaled through json.Marshal rather than per-endpoint response types.
type Server struct {
	Processor *conversation.Processor
	Logger    *observability.Logger

	// Metrics records HTTP request latency and counts. Nil disables
	// metric recording.
	Metrics *observability.Metrics
}

// Routes registers every endpoint on a fresh ServeMux using Go's pattern
// matching (method + {wildcard} path segments) rather than a router
// framework, with each handler wrapped for request-latency metrics.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /conversations/{id}/messages", s.instrument("POST", "/conversations/{id}/messages", s.handleEnqueueMessage))
	mux.HandleFunc("POST /conversations/{id}/tool-results", s.instrument("POST", "/conversations/{id}/tool-results", s.handleSubmitToolResult))
	mux.HandleFunc("POST /conversations/{id}/stop", s.instrument("POST", "/conversations/{id}/stop", s.handleStop))
	mux.HandleFunc("GET /conversations/{id}/status", s.instrument("GET", "/conversations/{id}/status", s.handleStatus))
	return mux
}

// statusRecorder captures the status code a handler writes so instrument
// can label the request metric with it; http.ResponseWriter has no getter
// for what WriteHeader was called with.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps a handler with request-duration and count metrics,
// labeled by the route's path template rather than the resolved {id} so
// cardinality stays bounded to the number of routes.
func (s *Server) instrument(method, path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics == nil {
			next(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		statusCode := fmt.Sprintf("%d", rec.status)
		s.Metrics.RecordHTTPRequest(method, path, statusCode, time.Since(start).Seconds())
	}
}

type enqueueMessageRequest struct {
	Content     string   `json:"content"`
	Images      []string `json:"images,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// handleEnqueueMessage implements POST /conversations/{id}/messages: appends
// a user message and enqueues a turn.
func (s *Server) handleEnqueueMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()
	var body enqueueMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(ctx, w, loomerr.NewValidationError("body", "invalid JSON: "+err.Error()))
		return
	}
	if body.Content == "" {
		s.writeError(ctx, w, loomerr.NewValidationError("content", "content is required"))
		return
	}

	conv, err := s.Processor.Conversations.Get(ctx, id)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if conv.Status != models.StatusActive {
		s.writeError(ctx, w, loomerr.NewValidationError("status", "conversation is not accepting a new message in status "+string(conv.Status)))
		return
	}

	conv.Messages = append(conv.Messages, models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   body.Content,
		Images:    body.Images,
		CreatedAt: time.Now(),
	})
	conv.Status = models.StatusActiveProcessing
	conv.LastActivityAt = time.Now()

	if err := s.Processor.Conversations.Update(ctx, conv); err != nil {
		s.writeError(ctx, w, loomerr.NewInternalError("persist conversation", err))
		return
	}
	if err := s.Processor.Queue.Enqueue(ctx, conv.ID); err != nil {
		s.writeError(ctx, w, loomerr.NewInternalError("enqueue turn", err))
		return
	}
	if s.Metrics != nil {
		s.Metrics.ConversationStarted(string(conv.Status))
	}

	s.writeJSON(ctx, w, http.StatusAccepted, statusResponse(conv))
}

type submitToolResultRequest struct {
	CallID  string `json:"call_id"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleSubmitToolResult implements POST /conversations/{id}/tool-results:
// validates the submitted call_id against the conversation's pending
// request, appends the result as a tool message, then resumes via the Turn
// Processor.
func (s *Server) handleSubmitToolResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()
	var body submitToolResultRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(ctx, w, loomerr.NewValidationError("body", "invalid JSON: "+err.Error()))
		return
	}

	conv, err := s.Processor.Conversations.Get(ctx, id)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if conv.Status != models.StatusPaused {
		s.writeError(ctx, w, loomerr.NewValidationError("status", "conversation has no pending tool request"))
		return
	}
	if err := tooldispatch.ValidateSubmission(conv.PendingToolRequest, body.CallID); err != nil {
		s.writeError(ctx, w, loomerr.NewValidationError("call_id", err.Error()))
		return
	}

	result := models.ToolResult{ToolCallID: body.CallID, Success: body.Success, Output: body.Output, Error: body.Error}
	conv.Messages = append(conv.Messages, models.ChatMessage{
		ID:         uuid.NewString(),
		Role:       models.RoleTool,
		Content:    result.Render(),
		ToolCallID: body.CallID,
		CreatedAt:  time.Now(),
	})
	conv.PendingToolRequest = nil

	if err := s.Processor.ResumeToolResult(ctx, conv); err != nil {
		s.writeError(ctx, w, err)
		return
	}

	s.writeJSON(ctx, w, http.StatusAccepted, statusResponse(conv))
}

// handleStop implements POST /conversations/{id}/stop: idempotent outside
// {active, active-processing, paused}.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	conv, err := s.Processor.Conversations.Get(ctx, id)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	switch conv.Status {
	case models.StatusActive, models.StatusActiveProcessing, models.StatusPaused:
		conv.Status = models.StatusCancelled
		conv.LastActivityAt = time.Now()
		if err := s.Processor.Conversations.Update(ctx, conv); err != nil {
			s.writeError(ctx, w, loomerr.NewInternalError("persist conversation", err))
			return
		}
		if perr := s.Processor.Events.Publish(ctx, conv.ID, models.NewEvent(conv.ID, models.EventCancelled, nil)); perr != nil && s.Logger != nil {
			s.Logger.Warn(ctx, "publish cancelled failed", "conversation_id", conv.ID, "error", perr)
		}
	}

	s.writeJSON(ctx, w, http.StatusOK, statusResponse(conv))
}

// handleStatus implements GET /conversations/{id}/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()
	conv, err := s.Processor.Conversations.Get(ctx, id)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	s.writeJSON(ctx, w, http.StatusOK, statusResponse(conv))
}

// statusResponse builds the {status, conversation_id, stats, tool_request?,
// messages?} payload every endpoint here returns, since each one mirrors
// the enqueue response.
func statusResponse(conv *models.Conversation) map[string]any {
	out := map[string]any{
		"status":          conv.Status.ClientStatus(),
		"conversation_id": conv.ID,
		"stats": map[string]any{
			"turns":  conv.TurnCount,
			"tokens": conv.TotalTokens,
		},
	}
	if conv.PendingToolRequest != nil {
		out["tool_request"] = conv.PendingToolRequest
	}
	if conv.Status == models.StatusCompleted {
		if msg, ok := conv.LastAssistantMessage(); ok {
			out["messages"] = []models.ChatMessage{msg}
		}
	}
	return out
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error(ctx, "marshal response failed", "error", err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil && s.Logger != nil {
		s.Logger.Warn(ctx, "write response failed", "error", err)
	}
}

// writeError maps the engine's error taxonomy onto HTTP status codes:
// ValidationError and a not-found storage lookup are the caller's fault
// (4xx, no state change); anything else is an InternalError (5xx).
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *loomerr.ValidationError
	var aerr *loomerr.AuthorizationError
	switch {
	case errors.As(err, &verr):
		s.writeJSON(ctx, w, http.StatusBadRequest, map[string]any{"error": verr.Error()})
	case errors.As(err, &aerr):
		s.writeJSON(ctx, w, http.StatusForbidden, map[string]any{"error": aerr.Error()})
	case errors.Is(err, storage.ErrNotFound):
		s.writeJSON(ctx, w, http.StatusNotFound, map[string]any{"error": "not found"})
	default:
		if s.Logger != nil {
			s.Logger.Error(ctx, "internal error", "error", err)
		}
		s.writeJSON(ctx, w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}
