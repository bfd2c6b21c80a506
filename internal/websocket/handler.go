package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/arrosemoi-app/server/internal/auth"
	"github.com/arrosemoi-app/server/internal/store"
)

// Handle returns an HTTP handler that upgrades the connection and runs it
// as a hub client scoped to the authenticated user's houses.
func Handle(hub *Hub, houses *store.HouseStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())

		houseIDs, err := houses.HouseIDsForUser(userID)
		if err != nil {
			logger.Error("websocket: list houses", "user_id", userID, "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // same-origin PWA plus native wrappers
		})
		if err != nil {
			logger.Error("websocket: accept", "error", err)
			return
		}

		client := NewClient(hub, conn, userID, houseIDs)
		client.Run(r.Context())
	}
}
