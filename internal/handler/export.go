package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/companion-ai/companion-core/internal/export"
	"github.com/companion-ai/companion-core/internal/middleware"
	"github.com/companion-ai/companion-core/internal/model"
	"github.com/companion-ai/companion-core/internal/store"
	"github.com/companion-ai/companion-core/pkg/logger"
	"github.com/companion-ai/companion-core/pkg/metrics"
)

const maxImportBytes = 32 << 20 // 32 MiB

// ExportHandler handles export and import endpoints.
type ExportHandler struct {
	store        *store.Store
	defaultModel string
	logger       *logger.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(st *store.Store, defaultModel string, log *logger.Logger) *ExportHandler {
	return &ExportHandler{
		store:        st,
		defaultModel: defaultModel,
		logger:       log,
	}
}

// Export handles GET /api/v1/conversations/{id}/export?format=markdown|json|text
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.store.GetConversationWithMessages(conversationID)
	if err != nil {
		h.logger.Error("failed to load conversation for export", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to export conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "markdown"
	}

	var body []byte
	var contentType, ext string
	switch format {
	case "markdown", "md":
		body = []byte(export.ToMarkdown(conv, h.defaultModel))
		contentType, ext = "text/markdown; charset=utf-8", "md"
	case "json":
		body, err = export.ToJSON(conv)
		if err != nil {
			h.logger.Error("failed to serialize conversation", logger.Err(err))
			writeError(w, http.StatusInternalServerError, "failed to export conversation")
			return
		}
		contentType, ext = "application/json", "json"
	case "text", "txt":
		body = []byte(export.ToText(conv))
		contentType, ext = "text/plain; charset=utf-8", "txt"
	default:
		writeError(w, http.StatusBadRequest, "unknown export format")
		return
	}

	filename := export.FileName(conv.Title, ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ImportResponse reports what an import did.
type ImportResponse struct {
	Imported      int                  `json:"imported"`
	Conversations []model.Conversation `json:"conversations"`
	Errors        []export.ItemError   `json:"errors,omitempty"`
}

// Import handles POST /api/v1/import. Valid conversations are
// persisted; structural rejects come back as per-item errors alongside
// the successes.
func (h *ExportHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := export.ParseImport(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unparseable import payload")
		return
	}

	resp := &ImportResponse{Errors: result.Errors}
	for i, conv := range result.Conversations {
		stored, err := h.store.ImportConversation(conv)
		if err != nil {
			h.logger.Error("failed to persist imported conversation", logger.Err(err))
			resp.Errors = append(resp.Errors, export.ItemError{
				Index:  i,
				Reason: "failed to persist conversation",
			})
			metrics.ImportsTotal.WithLabelValues("error").Inc()
			continue
		}
		resp.Conversations = append(resp.Conversations, *stored)
		resp.Imported++
		metrics.ImportsTotal.WithLabelValues("ok").Inc()
	}
	for range result.Errors {
		metrics.ImportsTotal.WithLabelValues("invalid").Inc()
	}

	writeJSON(w, http.StatusOK, resp)
}
