package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/identikit/samlidp/internal/assets"
	"github.com/identikit/samlidp/internal/core"
	"github.com/identikit/samlidp/internal/flowtrace"
	"github.com/identikit/samlidp/internal/idp"
	"github.com/identikit/samlidp/internal/metrics"
	"github.com/identikit/samlidp/internal/realm"
	"github.com/identikit/samlidp/internal/replay"
)

func main() {
	// Load .env if present; real environment wins
	_ = godotenv.Load()

	cfg := core.LoadConfig()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Resolve the realm, deriving federation URLs from the SID when not
	// set explicitly
	audience, acs := realm.DeriveURLs(cfg.FederationBaseURL, cfg.RealmSID)
	if cfg.AudienceURI != "" {
		audience = cfg.AudienceURI
	}
	if cfg.ACSURL != "" {
		acs = cfg.ACSURL
	}
	rlm := &realm.Realm{
		SID:          cfg.RealmSID,
		Issuer:       cfg.Issuer,
		AudienceURI:  audience,
		ACSURL:       acs,
		SignResponse: cfg.SignResponse,
		CertAsset:    cfg.CertAsset,
		KeyAsset:     cfg.KeyAsset,
	}
	if err := rlm.Validate(); err != nil {
		logger.Warn("realm incomplete, logins will fail until configured", zap.Error(err))
	}

	store := assets.NewDir(cfg.AssetDir)
	recorder := metrics.NewRecorder()
	trace := flowtrace.NewEngine()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	responder := &idp.Responder{
		Realm: rlm,
		Credentials: idp.Credentials{
			UserName: cfg.Username,
			Password: cfg.Password,
			RealmSID: cfg.RealmSID,
		},
		Assets:  store,
		Logger:  logger,
		Metrics: recorder,
		Trace:   trace,
	}

	if cfg.ReplayDB != "" {
		guard, err := replay.Open(cfg.ReplayDB)
		if err != nil {
			logger.Fatal("failed to open replay store", zap.Error(err))
		}
		defer guard.Close()
		go guard.PruneLoop(ctx, time.Minute)
		responder.Replay = guard
		logger.Info("replay guard enabled", zap.String("path", cfg.ReplayDB))
	}

	handlers := &idp.Handlers{Responder: responder, Logger: logger}
	server := core.NewServer(cfg, handlers, trace, recorder, logger)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.ListenAddr),
			zap.String("issuer", cfg.Issuer),
			zap.String("acs_url", rlm.ACSURL))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}

func newLogger(cfg *core.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() || cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
