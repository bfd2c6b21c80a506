package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arrosemoi-app/server/internal/auth"
	"github.com/arrosemoi-app/server/internal/database"
	"github.com/arrosemoi-app/server/internal/model"
	"github.com/arrosemoi-app/server/internal/push"
	"github.com/arrosemoi-app/server/internal/store"
)

// fakeSender records deliveries and fails selected endpoints.
type fakeSender struct {
	sent   []string
	errFor map[string]error
}

func (f *fakeSender) Send(sub *model.PushSubscription, payload push.Payload) error {
	if err, ok := f.errFor[sub.Endpoint]; ok {
		return err
	}
	f.sent = append(f.sent, sub.Endpoint)
	return nil
}

func setupPushHandler(t *testing.T) (*PushHandler, *fakeSender, *store.PushStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	result, err := db.Exec("INSERT INTO users (email, password) VALUES ('test@example.com', 'hash')")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	userID, _ := result.LastInsertId()

	sender := &fakeSender{errFor: make(map[string]error)}
	ps := store.NewPushStore(db)
	return NewPushHandler(ps, sender, "test-vapid-public", slog.Default()), sender, ps, userID
}

func doTestSend(h *PushHandler, userID int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/notifications/test", nil)
	ctx := auth.WithContext(context.Background(), auth.Context{UserID: userID, Email: "test@example.com"})
	rec := httptest.NewRecorder()
	h.Test(rec, req.WithContext(ctx))
	return rec
}

func TestTestSendDoesNotTouchLastNotified(t *testing.T) {
	h, sender, ps, uid := setupPushHandler(t)

	sub, _ := ps.Subscribe(uid, "https://push.example.com/a", "k", "a")

	rec := doTestSend(h, uid)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %v, want 1 delivery", sender.sent)
	}

	// The daily-digest dedup state is not consumed by a test send.
	subs, _ := ps.ListByUser(uid)
	if len(subs) != 1 || subs[0].ID != sub.ID {
		t.Fatalf("subs = %+v, want the original row", subs)
	}
	if subs[0].LastNotified != "" {
		t.Errorf("last_notified = %q, want empty after test send", subs[0].LastNotified)
	}
}

func TestTestSendRemovesGoneEndpoint(t *testing.T) {
	h, sender, ps, uid := setupPushHandler(t)

	ps.Subscribe(uid, "https://push.example.com/dead", "k1", "a1")
	ps.Subscribe(uid, "https://push.example.com/alive", "k2", "a2")
	sender.errFor["https://push.example.com/dead"] = push.ErrExpired

	rec := doTestSend(h, uid)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Sent  int `json:"sent"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Sent != 1 || resp.Total != 2 {
		t.Errorf("sent/total = %d/%d, want 1/2", resp.Sent, resp.Total)
	}

	// Same cleanup as the daily scan: the gone row is deleted, the live
	// one survives with its dedup state untouched.
	subs, _ := ps.ListByUser(uid)
	if len(subs) != 1 {
		t.Fatalf("subs = %d, want 1 after cleanup", len(subs))
	}
	if subs[0].Endpoint != "https://push.example.com/alive" {
		t.Errorf("surviving endpoint = %q", subs[0].Endpoint)
	}
	if subs[0].LastNotified != "" {
		t.Errorf("last_notified = %q, want empty", subs[0].LastNotified)
	}
}

func TestTestSendAllTransientFails(t *testing.T) {
	h, sender, ps, uid := setupPushHandler(t)

	ps.Subscribe(uid, "https://push.example.com/flaky", "k", "a")
	sender.errFor["https://push.example.com/flaky"] = errors.New("503 from push service")

	rec := doTestSend(h, uid)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	// Transient failure leaves the subscription in place.
	subs, _ := ps.ListByUser(uid)
	if len(subs) != 1 {
		t.Errorf("subs = %d, want subscription intact", len(subs))
	}
}

func TestTestSendNoSubscriptions(t *testing.T) {
	h, _, _, uid := setupPushHandler(t)

	rec := doTestSend(h, uid)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
