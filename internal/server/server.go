package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/arrosemoi-app/server/internal/auth"
	"github.com/arrosemoi-app/server/internal/handler"
	"github.com/arrosemoi-app/server/internal/identify"
	"github.com/arrosemoi-app/server/internal/middleware"
	"github.com/arrosemoi-app/server/internal/push"
	"github.com/arrosemoi-app/server/internal/store"
	ws "github.com/arrosemoi-app/server/internal/websocket"
)

// Config holds the server-level settings resolved in main.
type Config struct {
	JWTSecret  string
	NotifyHour int
	Push       push.Config
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	authH         *handler.AuthHandler
	plantH        *handler.PlantHandler
	houseH        *handler.HouseHandler
	pushH         *handler.PushHandler
	profileH      *handler.ProfileHandler
	tokens        *auth.Tokens
	userStore     *store.UserStore
	houseStore    *store.HouseStore
	pushStore     *store.PushStore
	pushService   *push.Service
	pushScheduler *push.Scheduler
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	plantStore := store.NewPlantStore(db)
	houseStore := store.NewHouseStore(db)
	pushStore := store.NewPushStore(db)

	tokens := auth.NewTokens(cfg.JWTSecret)
	identifySvc := identify.NewService()

	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey)
	pushSched := push.NewScheduler(pushSvc, pushStore, plantStore, cfg.NotifyHour,
		logger.With("component", "push_scheduler"))

	return &Server{
		db:            db,
		hub:           hub,
		authH:         handler.NewAuthHandler(userStore, tokens, logger.With("component", "auth")),
		plantH:        handler.NewPlantHandler(plantStore, houseStore, userStore, identifySvc, hub, logger.With("component", "plant")),
		houseH:        handler.NewHouseHandler(houseStore, plantStore, logger.With("component", "house")),
		pushH:         handler.NewPushHandler(pushStore, pushSvc, pushSvc.VAPIDPublicKey(), logger.With("component", "push")),
		profileH:      handler.NewProfileHandler(userStore, logger.With("component", "profile")),
		tokens:        tokens,
		userStore:     userStore,
		houseStore:    houseStore,
		pushStore:     pushStore,
		pushService:   pushSvc,
		pushScheduler: pushSched,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// PushScheduler returns the reminder scheduler so main can manage its
// lifecycle alongside the HTTP server.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// RateLimiter returns the limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.Handle("POST /api/auth/register", s.rateLimited(s.authH.Register))
	outerMux.Handle("POST /api/auth/login", s.rateLimited(s.authH.Login))
	outerMux.HandleFunc("GET /api/notifications/vapid-public-key", s.pushH.VAPIDPublicKey)
	outerMux.HandleFunc("GET /api/health", s.healthHandler)

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens, s.userStore)
	outerMux.Handle("/api/", authMiddleware(protectedMux))
	outerMux.Handle("GET /ws", authMiddleware(ws.Handle(s.hub, s.houseStore, s.logger.With("component", "websocket"))))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	// Plants
	mux.HandleFunc("GET /api/plants", s.plantH.List)
	mux.HandleFunc("POST /api/plants", s.plantH.Create)
	mux.HandleFunc("POST /api/plants/identify", s.plantH.Identify)
	mux.HandleFunc("GET /api/plants/{id}", s.plantH.Get)
	mux.HandleFunc("PUT /api/plants/{id}", s.plantH.Update)
	mux.HandleFunc("DELETE /api/plants/{id}", s.plantH.Delete)
	mux.HandleFunc("PATCH /api/plants/{id}/water", s.plantH.Water)
	mux.HandleFunc("PATCH /api/plants/{id}/repot", s.plantH.Repot)
	mux.HandleFunc("PATCH /api/plants/{id}/fertilize", s.plantH.Fertilize)
	mux.HandleFunc("PATCH /api/plants/{id}/favorite", s.plantH.Favorite)

	// Houses
	mux.HandleFunc("GET /api/houses", s.houseH.List)
	mux.HandleFunc("POST /api/houses", s.houseH.Create)
	mux.HandleFunc("POST /api/houses/join", s.houseH.Join)
	mux.HandleFunc("GET /api/houses/{id}", s.houseH.Get)
	mux.HandleFunc("DELETE /api/houses/{id}", s.houseH.Delete)
	mux.HandleFunc("POST /api/houses/{id}/leave", s.houseH.Leave)
	mux.HandleFunc("DELETE /api/houses/{id}/members/{user_id}", s.houseH.RemoveMember)

	// Push notifications
	mux.HandleFunc("POST /api/notifications/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/notifications/subscribe", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/notifications/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("POST /api/notifications/test", s.pushH.Test)

	// Profile
	mux.HandleFunc("GET /api/profile/api-keys", s.profileH.GetAPIKeys)
	mux.HandleFunc("PUT /api/profile/api-keys", s.profileH.UpdateAPIKeys)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// rateLimited wraps credential endpoints with a per-IP limit to slow
// password guessing.
func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)(h)
}
