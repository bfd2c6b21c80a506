package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/arrosemoi-app/server/internal/auth"
	"github.com/arrosemoi-app/server/internal/model"
	"github.com/arrosemoi-app/server/internal/store"
)

type ProfileHandler struct {
	users  *store.UserStore
	logger *slog.Logger
}

func NewProfileHandler(users *store.UserStore, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{users: users, logger: logger}
}

// maskKey shows only the tail of a stored key so the UI can indicate that
// one is configured without ever returning it.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// GetAPIKeys handles GET /api/profile/api-keys
func (h *ProfileHandler) GetAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.users.GetAPIKeys(auth.UserID(r.Context()))
	if err != nil || keys == nil {
		h.logger.Error("get api keys", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"openai_api_key":   maskKey(keys.OpenAI),
		"plantnet_api_key": maskKey(keys.PlantNet),
	})
}

type apiKeysRequest struct {
	OpenAIAPIKey   *string `json:"openai_api_key"`
	PlantNetAPIKey *string `json:"plantnet_api_key"`
}

// UpdateAPIKeys handles PUT /api/profile/api-keys. Omitted fields keep
// their current value; an explicit empty string clears the key.
func (h *ProfileHandler) UpdateAPIKeys(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req apiKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	current, err := h.users.GetAPIKeys(userID)
	if err != nil || current == nil {
		h.logger.Error("get api keys", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	next := model.APIKeys{OpenAI: current.OpenAI, PlantNet: current.PlantNet}
	if req.OpenAIAPIKey != nil {
		next.OpenAI = strings.TrimSpace(*req.OpenAIAPIKey)
	}
	if req.PlantNetAPIKey != nil {
		next.PlantNet = strings.TrimSpace(*req.PlantNetAPIKey)
	}

	if err := h.users.SetAPIKeys(userID, next); err != nil {
		h.logger.Error("set api keys", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"openai_api_key":   maskKey(next.OpenAI),
		"plantnet_api_key": maskKey(next.PlantNet),
	})
}
