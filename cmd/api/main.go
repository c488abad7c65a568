// server/cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pharmacy-cart-api-server/config"
	"pharmacy-cart-api-server/internal/api/handlers"
	"pharmacy-cart-api-server/internal/api/routes"
	"pharmacy-cart-api-server/internal/auth"
	"pharmacy-cart-api-server/internal/backend"
	"pharmacy-cart-api-server/internal/billing"
	"pharmacy-cart-api-server/internal/database"
	"pharmacy-cart-api-server/internal/logger"
	"pharmacy-cart-api-server/internal/s3"
	"pharmacy-cart-api-server/internal/session"
	"pharmacy-cart-api-server/internal/socket"
	"pharmacy-cart-api-server/internal/stockrequest"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 1. Environment and configuration
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Could not build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Activity journal (optional)
	var journal interface {
		stockrequest.Recorder
		handlers.ActivityReader
	} = database.NopJournal{}
	if cfg.Mongo.URI != "" {
		client, db, err := database.Connect(ctx, cfg.Mongo)
		if err != nil {
			zlog.Fatal("could not connect to MongoDB", zap.Error(err))
		}
		defer client.Disconnect(context.Background())
		j := database.NewJournal(db)
		if err := j.EnsureIndexes(ctx); err != nil {
			zlog.Warn("could not create journal indexes", zap.Error(err))
		}
		journal = j
		zlog.Info("activity journal enabled", zap.String("db", cfg.Mongo.DBName))
	}

	// 3. Bill archive (optional)
	var archive billing.Archiver
	if cfg.S3.Bucket != "" {
		uploader, err := s3.NewUploader(ctx, cfg.S3)
		if err != nil {
			zlog.Fatal("could not set up S3", zap.Error(err))
		}
		archive = uploader
		zlog.Info("bill archive enabled", zap.String("bucket", cfg.S3.Bucket))
	}

	// 4. Backend client, push hub and sessions
	api := backend.New(cfg.Backend, zlog)
	hub := socket.NewHub(zlog)
	parser := auth.NewParser(cfg.JWT.Secret)
	if !parser.Verifies() {
		zlog.Info("no JWT secret configured, new tokens are confirmed with the backend")
	}

	sessions := session.NewManager(api, session.Options{
		Cart:        cfg.Cart,
		Timeout:     cfg.Backend.Timeout,
		IdleTTL:     cfg.Session.IdleTTL,
		TrustClaims: parser.Verifies(),
		Archive:     archive,
		Journal:     journal,
		Notifier:    hub,
		Logger:      zlog,
	})
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	// 5. Router
	router := routes.SetupRouter(cfg, zlog, parser, sessions, api, journal, hub)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("shutdown", zap.Error(err))
		}
	}()

	// 6. Start server
	zlog.Info("starting API server", zap.String("port", cfg.Server.Port), zap.String("backend", cfg.Backend.BaseURL))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zlog.Fatal("failed to run server", zap.Error(err))
	}
}
