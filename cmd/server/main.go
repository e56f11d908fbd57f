// Command server runs the storefront backend: a catalog of digital products,
// a Paystack-verified purchase ledger, and token-gated file downloads.
//
// Configuration comes from the environment (optionally a .env file in dev);
// see internal/config for every knob and its default.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	_ "github.com/tbourn/go-store-backend/docs"
	"github.com/tbourn/go-store-backend/internal/config"
	httpapi "github.com/tbourn/go-store-backend/internal/http"
	"github.com/tbourn/go-store-backend/internal/observability"
	"github.com/tbourn/go-store-backend/internal/payment"
	"github.com/tbourn/go-store-backend/internal/repo"
	"github.com/tbourn/go-store-backend/internal/storage"
	"github.com/tbourn/go-store-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// @title           Store Backend API
// @version         1.0
// @description     Digital goods storefront: catalog, Paystack checkout ledger, and signed download URLs.
// @BasePath        /api/v1
//
// @securityDefinitions.apikey AdminKey
// @in   header
// @name X-Admin-Key
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	zerolog.TimeFieldFormat = time.RFC3339
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("gin_mode", cfg.GinMode).Msg("starting store backend")

	// Tracing
	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	// Persistence
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("gorm tracing plugin")
		}
	}

	// Object store for product files and thumbnails
	store, err := storage.NewLocalStore(cfg.Storage.Dir, cfg.Storage.FilesBaseURL, []byte(cfg.Storage.Secret))
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Storage.Dir).Msg("open object store")
	}

	// Payment gateway (nil when no secret is configured: webhooks are then
	// rejected and client-side verification fails closed)
	var gateway *payment.Client
	if cfg.Paystack.SecretKey != "" {
		gateway = payment.NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey).RequireCurrency(cfg.Currency)
	} else {
		log.Warn().Msg("PAYSTACK_SECRET_KEY not set: payment verification disabled")
	}

	// HTTP
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, store, gateway, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}
