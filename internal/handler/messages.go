package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	llmcontext "github.com/companion-ai/companion-core/internal/llm/context"
	"github.com/companion-ai/companion-core/internal/middleware"
	"github.com/companion-ai/companion-core/internal/model"
	"github.com/companion-ai/companion-core/internal/service"
	"github.com/companion-ai/companion-core/internal/store"
	"github.com/companion-ai/companion-core/pkg/logger"
)

// MessageHandler handles message and context endpoints.
type MessageHandler struct {
	store  *store.Store
	chat   *service.ChatService
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(st *store.Store, chat *service.ChatService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		store:  st,
		chat:   chat,
		logger: log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.requireConversation(w, conversationID) {
		return
	}

	opts := store.MessageListOptions{}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}

	messages, err := h.store.GetMessages(conversationID, opts)
	if err != nil {
		h.logger.Error("failed to get messages", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
		Messages: messages,
		Count:    len(messages),
	})
}

// SendMessageResponse carries both persisted messages of a send round
// trip.
type SendMessageResponse struct {
	UserMessage      *model.Message `json:"user_message"`
	AssistantMessage *model.Message `json:"assistant_message"`
}

// Send handles POST /api/v1/conversations/{id}/messages. The assistant
// reply is generated synchronously; clients wanting live tokens use
// the stream endpoint instead.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
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

	userMsg, assistantMsg, err := h.chat.Send(r.Context(), conversationID, &req)
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	case errors.Is(err, llmcontext.ErrNoRoomForHistory):
		writeError(w, http.StatusRequestEntityTooLarge, "conversation is too large for this model")
		return
	case err != nil:
		h.logger.Error("failed to send message", logger.Err(err))
		writeError(w, http.StatusBadGateway, "failed to generate response")
		return
	}

	writeJSON(w, http.StatusCreated, &SendMessageResponse{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	})
}

// Delete handles DELETE /api/v1/conversations/{id}/messages/{messageID}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.store.DeleteMessage(messageID)
	if err != nil {
		h.logger.Error("failed to delete message", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ContextUsage handles GET /api/v1/conversations/{id}/context. It
// feeds the UI's context meter; ?model= overrides the default model.
func (h *MessageHandler) ContextUsage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.requireConversation(w, conversationID) {
		return
	}

	usage, err := h.chat.ContextUsage(conversationID, r.URL.Query().Get("model"))
	if err != nil {
		h.logger.Error("failed to compute context usage", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to compute context usage")
		return
	}

	writeJSON(w, http.StatusOK, usage)
}

// PreflightRequest asks whether content would still fit the model's
// budget.
type PreflightRequest struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// PreflightResponse answers the would-it-fit question.
type PreflightResponse struct {
	WouldExceed bool `json:"would_exceed"`
}

// Preflight handles POST /api/v1/conversations/{id}/preflight.
func (h *MessageHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.requireConversation(w, conversationID) {
		return
	}

	var req PreflightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exceeds, err := h.chat.Preflight(conversationID, req.Model, req.Content)
	if err != nil {
		h.logger.Error("preflight failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "preflight failed")
		return
	}

	writeJSON(w, http.StatusOK, &PreflightResponse{WouldExceed: exceeds})
}

// requireConversation 404s when the conversation does not exist.
func (h *MessageHandler) requireConversation(w http.ResponseWriter, conversationID string) bool {
	conv, err := h.store.GetConversation(conversationID)
	if err != nil {
		h.logger.Error("failed to get conversation", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return false
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return false
	}
	return true
}
