package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/companion-ai/companion-core/internal/store"
	"github.com/companion-ai/companion-core/pkg/logger"
)

// SettingsHandler exposes the key/value settings sidecar the overlay
// uses for UI preferences (theme, last selected model, and the like).
type SettingsHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(st *store.Store, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		store:  st,
		logger: log,
	}
}

// SettingValue is the wire shape for a single setting.
type SettingValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Get handles GET /api/v1/settings/{key}
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, ok, err := h.store.GetSetting(key)
	if err != nil {
		h.logger.Error("failed to read setting", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to read setting")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}

	writeJSON(w, http.StatusOK, &SettingValue{Key: key, Value: value})
}

// Put handles PUT /api/v1/settings/{key}
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" || len(key) > 128 {
		writeError(w, http.StatusBadRequest, "invalid setting key")
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.SetSetting(key, body.Value); err != nil {
		h.logger.Error("failed to write setting", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to write setting")
		return
	}

	writeJSON(w, http.StatusOK, &SettingValue{Key: key, Value: body.Value})
}
