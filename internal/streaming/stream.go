// Package streaming implements the Streaming Endpoint: a long-lived SSE
// response that relays a Conversation's event queue to one subscriber at a
// time, closing itself once a terminal or tool_request event is reached.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/loomrun/loom/internal/eventqueue"
	"github.com/loomrun/loom/internal/observability"
	"github.com/loomrun/loom/internal/storage"
	"github.com/loomrun/loom/pkg/models"
)

// popTimeout is the queue's blocking-pop interval; a miss emits a
// heartbeat and loops.
const popTimeout = 2 * time.Second

// Handler serves GET /conversations/{id}/stream using stdlib
// net/http.ServeMux rather than a router framework.
type Handler struct {
	Conversations storage.ConversationStore
	Events        eventqueue.Queue
	Logger        *observability.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if conversationID == "" {
		http.Error(w, "conversation id is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable proxy buffering (nginx)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	writeEvent(w, models.Event{Kind: models.EventConnected, ConversationID: conversationID, Time: time.Now()})
	flusher.Flush()

	conv, err := h.Conversations.Get(ctx, conversationID)
	if err != nil {
		h.logWarn(ctx, "stream: load conversation failed", "conversation_id", conversationID, "error", err)
		return
	}
	if conv.Status.IsTerminal() || conv.Status == models.StatusPaused {
		writeEvent(w, terminalEventFor(conv))
		flusher.Flush()
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		event, hit, err := h.Events.Pop(ctx, conversationID, popTimeout)
		if err != nil {
			return // client disconnected or context canceled
		}
		if !hit {
			writeEvent(w, models.Event{Kind: models.EventHeartbeat, ConversationID: conversationID, Time: time.Now()})
			flusher.Flush()
			continue
		}

		writeEvent(w, event)
		flusher.Flush()
		if event.Kind.Terminal() {
			return
		}
	}
}

// terminalEventFor synthesizes the matching event when a subscriber
// connects to a conversation that has already reached a terminal or paused
// state, so a fresh subscriber's last event is always one of those kinds
// even though the queue itself may be empty by the time it connects.
func terminalEventFor(conv *models.Conversation) models.Event {
	switch conv.Status {
	case models.StatusCompleted:
		msg, _ := conv.LastAssistantMessage()
		return models.NewEvent(conv.ID, models.EventCompleted, models.CompletedData{MessageID: msg.ID, Content: msg.Content})
	case models.StatusFailed:
		return models.NewEvent(conv.ID, models.EventFailed, models.FailedData{Reason: conv.FailureReason})
	case models.StatusCancelled:
		return models.NewEvent(conv.ID, models.EventCancelled, nil)
	case models.StatusPaused:
		if conv.PendingToolRequest != nil {
			data := models.ToolRequestData{
				CallID:    conv.PendingToolRequest.CallID,
				Name:      conv.PendingToolRequest.Name,
				Arguments: conv.PendingToolRequest.Arguments,
			}
			return models.NewEvent(conv.ID, models.EventToolRequest, data)
		}
	}
	return models.NewEvent(conv.ID, models.EventHeartbeat, nil)
}

// writeEvent renders ev in the `event: <kind>\ndata: <json>\n\n` envelope.
// A heartbeat carries no data.
func writeEvent(w http.ResponseWriter, ev models.Event) {
	data := ev.Data
	if data == nil {
		data = json.RawMessage("{}")
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
}

func (h *Handler) logWarn(ctx context.Context, msg string, args ...any) {
	if h.Logger != nil {
		h.Logger.Warn(ctx, msg, args...)
	}
}
