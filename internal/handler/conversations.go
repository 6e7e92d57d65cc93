// Package handler provides HTTP handlers for the local API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/companion-ai/companion-core/internal/middleware"
	"github.com/companion-ai/companion-core/internal/model"
	"github.com/companion-ai/companion-core/internal/store"
	"github.com/companion-ai/companion-core/pkg/logger"
	"github.com/companion-ai/companion-core/pkg/metrics"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(st *store.Store, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  st,
		logger: log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.store.CreateConversation(req.Title)
	if err != nil {
		h.logger.Error("failed to create conversation", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	metrics.ConversationsTotal.Inc()

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	q := r.URL.Query()

	if v := q.Get("include_archived"); v != "" {
		opts.IncludeArchived, _ = strconv.ParseBool(v)
	}
	if v := q.Get("pinned_first"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.PinnedFirst = b
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	opts.Search = q.Get("search")

	convs, err := h.store.ListConversations(opts)
	if err != nil {
		h.logger.Error("failed to list conversations", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: convs,
		Count:         len(convs),
	})
}

// Get handles GET /api/v1/conversations/{id}. With ?include_messages=true
// the full history rides along.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	includeMessages, _ := strconv.ParseBool(r.URL.Query().Get("include_messages"))
	if includeMessages {
		conv, err := h.store.GetConversationWithMessages(conversationID)
		if err != nil {
			h.logger.Error("failed to get conversation", logger.Err(err))
			writeError(w, http.StatusInternalServerError, "failed to get conversation")
			return
		}
		if conv == nil {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeJSON(w, http.StatusOK, conv)
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

	writeJSON(w, http.StatusOK, conv)
}

// Update handles PUT /api/v1/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		if err := middleware.ValidateTitle(*req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := h.store.UpdateConversation(conversationID, req)
	if err != nil {
		h.logger.Error("failed to update conversation", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to update conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.store.DeleteConversation(conversationID)
	if err != nil {
		h.logger.Error("failed to delete conversation", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/v1/stats
func (h *ConversationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("failed to read stats", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
