package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go.uber.org/multierr"

	"github.com/arrosemoi-app/server/internal/auth"
	"github.com/arrosemoi-app/server/internal/push"
	"github.com/arrosemoi-app/server/internal/store"
)

type PushHandler struct {
	pushStore      *store.PushStore
	sender         push.Sender
	vapidPublicKey string
	logger         *slog.Logger
}

func NewPushHandler(ps *store.PushStore, sender push.Sender, vapidPublicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, sender: sender, vapidPublicKey: vapidPublicKey, logger: logger}
}

// VAPIDPublicKey handles GET /api/notifications/vapid-public-key.
// Public: the browser needs it before the user is signed in.
func (h *PushHandler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.vapidPublicKey})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Subscribe handles POST /api/notifications/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh and auth are required")
		return
	}

	sub, err := h.pushStore.Subscribe(userID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		h.logger.Error("subscribe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe handles DELETE /api/notifications/subscribe
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := h.pushStore.Unsubscribe(userID, req.Endpoint); err != nil {
		h.logger.Error("unsubscribe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/notifications/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Test handles POST /api/notifications/test. Sends an immediate
// notification to every one of the caller's subscriptions, outside the
// daily digest: last_notified is neither consulted nor touched. Expired
// endpoints are cleaned up exactly as in the scheduled path; transient
// failures surface as a request-level error when nothing was delivered.
func (h *PushHandler) Test(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	subs, err := h.pushStore.ListByUser(userID)
	if err != nil {
		h.logger.Error("list subscriptions for test", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if len(subs) == 0 {
		writeError(w, http.StatusNotFound, "no subscription found; enable notifications first")
		return
	}

	payload := push.Payload{
		Title: "ArroseMoi",
		Body:  "Les notifications fonctionnent ! Tu recevras des rappels d'arrosage.",
		Tag:   "arrosemoi-test",
		URL:   "/",
	}

	sent := 0
	var sendErr error
	for _, sub := range subs {
		err := h.sender.Send(&sub, payload)
		if err == nil {
			sent++
			continue
		}
		if errors.Is(err, push.ErrExpired) {
			if delErr := h.pushStore.DeleteByEndpoint(sub.Endpoint); delErr != nil {
				h.logger.Error("delete expired subscription", "error", delErr)
			}
		}
		sendErr = multierr.Append(sendErr, err)
	}

	if sent == 0 {
		h.logger.Error("test notification failed", "error", sendErr)
		writeError(w, http.StatusInternalServerError, "delivery failed; try re-enabling notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent, "total": len(subs)})
}
