// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vistahub/license-gate/internal/config"
	"github.com/vistahub/license-gate/internal/database"
	"github.com/vistahub/license-gate/internal/i18n"
	"github.com/vistahub/license-gate/internal/router"
	"github.com/vistahub/license-gate/internal/services"
	"github.com/vistahub/license-gate/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	setupLogging(cfg.Log)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}

	// Initialize i18n
	if err := i18n.Initialize(); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nonces, closeNonces, err := nonceStore(ctx, cfg, db)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize nonce store")
	}
	defer closeNonces()

	if cfg.Signature.BypassEnabled {
		logrus.WithField("environment", cfg.Environment).Warn("SIGNATURE BYPASS IS ENABLED: requests carrying the bypass token skip signature checks")
	}

	// Initialize router
	rt, err := router.Initialize(db, cfg, nonces)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize router")
	}
	rt.Start(ctx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      rt.Engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}

	// Flush access records written by in-flight requests
	rt.Close()

	logrus.Info("Server exited")
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
}

// nonceStore builds the replay cache selected by NONCE_BACKEND. The returned
// store is nil when replay detection is disabled.
func nonceStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (services.NonceStore, func(), error) {
	switch cfg.Nonce.Backend {
	case config.NonceBackendRedis:
		client, err := store.ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		logrus.Info("Using Redis nonce store")
		return store.NewRedisNonceStore(client), func() { client.Close() }, nil

	case config.NonceBackendDatabase:
		nonces := store.NewDatabaseNonceStore(db)
		go nonces.RunPruner(ctx, cfg.Nonce.PruneInterval)
		logrus.Info("Using database nonce store")
		return nonces, func() {}, nil
	}

	logrus.Warn("Replay nonce store disabled: signed requests can be replayed inside the replay window")
	return nil, func() {}, nil
}
