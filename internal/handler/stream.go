package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	llmcontext "github.com/companion-ai/companion-core/internal/llm/context"
	"github.com/companion-ai/companion-core/internal/middleware"
	"github.com/companion-ai/companion-core/internal/model"
	"github.com/companion-ai/companion-core/internal/service"
	"github.com/companion-ai/companion-core/internal/store"
	"github.com/companion-ai/companion-core/pkg/logger"
	"github.com/companion-ai/companion-core/pkg/metrics"
)

const heartbeatInterval = 30 * time.Second

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	store  *store.Store
	chat   *service.ChatService
	logger *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(st *store.Store, chat *service.ChatService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		store:  st,
		chat:   chat,
		logger: log,
	}
}

// ReplayCompleteEvent closes the replay phase of a GET stream.
type ReplayCompleteEvent struct {
	MessageCount int   `json:"message_count"`
	LastCreated  int64 `json:"last_created_at"`
}

// Stream handles GET /api/v1/conversations/{id}/stream: replays the
// stored history as SSE message events, then holds the connection open
// with heartbeats. ?after=<epoch-millis> resumes past already-seen
// messages.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.store.GetConversation(conversationID)
	if err != nil {
		h.logger.Error("failed to get conversation", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			after = n
		}
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conversationID,
	})

	messages, err := h.store.GetMessages(conversationID, store.MessageListOptions{})
	if err != nil {
		h.logger.Error("failed to replay messages", logger.Err(err),
			zap.String("conversation_id", conversationID))
		sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
			Code:    "replay_error",
			Message: "failed to replay messages",
		})
		return
	}

	var replayed int
	var lastCreated int64
	for _, msg := range messages {
		if msg.CreatedAt <= after {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		sendSSEEvent(w, flusher, "message", msg)
		lastCreated = msg.CreatedAt
		replayed++
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		MessageCount: replayed,
		LastCreated:  lastCreated,
	})

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

// StreamWithMessage handles POST /api/v1/conversations/{id}/stream: it
// persists the user message, streams the assistant reply token by
// token, and closes with the persisted assistant message.
func (h *StreamHandler) StreamWithMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	userMsg, assistantMsg, err := h.chat.SendStream(ctx, conversationID, &req,
		func(token string, index int) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return sendSSEEvent(w, flusher, "token", &model.TokenEvent{
				Token: token,
				Index: index,
			})
		},
	)
	if err != nil {
		code := "stream_error"
		switch {
		case errors.Is(err, store.ErrConversationNotFound):
			code = "not_found"
		case errors.Is(err, llmcontext.ErrNoRoomForHistory):
			code = "context_overflow"
		}
		sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
			Code:    code,
			Message: err.Error(),
		})
		return
	}

	sendSSEEvent(w, flusher, "user_message", userMsg)
	sendSSEEvent(w, flusher, "message_complete", &model.MessageCompleteEvent{
		Message: *assistantMsg,
	})
	sendSSEEvent(w, flusher, "done", map[string]bool{"success": true})
}

// beginSSE sets SSE headers and returns the flusher, erroring out when
// the connection cannot stream.
func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
