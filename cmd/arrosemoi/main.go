package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/arrosemoi-app/server/internal/database"
	"github.com/arrosemoi-app/server/internal/logging"
	"github.com/arrosemoi-app/server/internal/push"
	"github.com/arrosemoi-app/server/internal/server"
	"github.com/arrosemoi-app/server/internal/store"
)

func main() {
	logger := logging.Setup(envOr("ARROSEMOI_LOG_LEVEL", "info"))

	secret := os.Getenv("ARROSEMOI_JWT_SECRET")
	if secret == "" {
		logger.Error("ARROSEMOI_JWT_SECRET is required")
		os.Exit(1)
	}

	dbPath := envOr("ARROSEMOI_DB_PATH", "arrosemoi.db")
	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	notifyHour := push.DefaultNotifyHour
	if raw := os.Getenv("ARROSEMOI_NOTIFY_HOUR"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil || h < 0 || h > 23 {
			logger.Error("invalid ARROSEMOI_NOTIFY_HOUR", "value", raw)
			os.Exit(1)
		}
		notifyHour = h
	}

	vapidPub, vapidPriv, err := loadVAPIDKeys(store.NewSettingsStore(db))
	if err != nil {
		logger.Error("failed to provision VAPID keys", "error", err)
		os.Exit(1)
	}

	srv := server.New(db, server.Config{
		JWTSecret:  secret,
		NotifyHour: notifyHour,
		Push: push.Config{
			VAPIDPublicKey:  vapidPub,
			VAPIDPrivateKey: vapidPriv,
		},
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.PushScheduler().Start(ctx)
	defer srv.PushScheduler().Stop()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	port := envOr("ARROSEMOI_PORT", "3001")
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// loadVAPIDKeys returns the persisted VAPID key pair, generating and
// storing a fresh one on first boot so push subscriptions survive
// restarts.
func loadVAPIDKeys(settings *store.SettingsStore) (string, string, error) {
	pub, err := settings.Get(store.SettingVAPIDPublicKey)
	if err != nil {
		return "", "", err
	}
	priv, err := settings.Get(store.SettingVAPIDPrivateKey)
	if err != nil {
		return "", "", err
	}
	if pub != "" && priv != "" {
		return pub, priv, nil
	}

	pub, priv, err = push.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generating VAPID keys: %w", err)
	}
	if err := settings.Set(store.SettingVAPIDPublicKey, pub); err != nil {
		return "", "", err
	}
	if err := settings.Set(store.SettingVAPIDPrivateKey, priv); err != nil {
		return "", "", err
	}
	return pub, priv, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
