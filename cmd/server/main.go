package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"event-analytics-api/internal/analytics"
	analyticshandler "event-analytics-api/internal/analytics/handler"
	"event-analytics-api/internal/archival"
	archivalhandler "event-analytics-api/internal/archival/handler"
	"event-analytics-api/internal/audit"
	audithandler "event-analytics-api/internal/audit/handler"
	auditrepo "event-analytics-api/internal/audit/repository"
	authhandler "event-analytics-api/internal/auth/handler"
	authservice "event-analytics-api/internal/auth/service"
	"event-analytics-api/internal/coldstore"
	"event-analytics-api/internal/config"
	"event-analytics-api/internal/db"
	eventhandler "event-analytics-api/internal/event/handler"
	eventrepo "event-analytics-api/internal/event/repository"
	eventservice "event-analytics-api/internal/event/service"
	"event-analytics-api/internal/metrics"
	"event-analytics-api/internal/security"
	"event-analytics-api/internal/server"
	"event-analytics-api/internal/server/middleware"
	"event-analytics-api/internal/stream"
	otelsetup "event-analytics-api/internal/telemetry/otel"
	tokenrepo "event-analytics-api/internal/token/repository"
	userrepo "event-analytics-api/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "event-analytics-api").Logger()
	if cfg.Env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx := context.Background()
	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "event-analytics-api", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	metrics.Register()

	users := userrepo.NewPostgresRepository(conn)
	refreshTokens := tokenrepo.NewPostgresRepository(conn)
	events := eventrepo.NewPostgresRepository(conn)
	auditLogs := auditrepo.NewPostgresRepository(conn)
	auditLog := audit.NewLogger(auditLogs, middleware.ClientIP)

	cold := coldstore.New(coldstore.Config{
		BaseURL:  cfg.ClickHouseURL,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})

	publisher := stream.NewKafkaPublisher(cfg.StreamKafkaBrokersList(), cfg.StreamKafkaTopic)
	defer publisher.Close()

	authSvc := authservice.NewAuthService(users, refreshTokens, hasher, tokens, cfg.RefreshTTL())
	eventSvc := eventservice.NewEventService(events, publisher)
	statsSvc := analytics.NewService(events)

	engine := archival.NewEngine(events, cold, archival.Config{
		HotRetentionDays:  cfg.HotRetentionDays,
		MaxArchiveAgeDays: cfg.MaxArchiveAgeDays,
		BatchSize:         cfg.ArchiveBatchSize,
		BatchDelay:        cfg.ArchiveBatchDelayDuration(),
	}, nil)
	// The periodic loop lives in cmd/archiver; the API only serves manual
	// triggers and status lookups.
	runner := archival.NewRunner(engine, cfg.ArchiveIntervalDuration(), nil)

	authn := middleware.NewAuth(authSvc, authSvc)
	rateLimit, err := middleware.NewIPRateLimiter(cfg.RateLimitPerIP)
	if err != nil {
		log.Fatalf("rate limit: %v", err)
	}

	router := server.NewRouter(server.RouterConfig{
		Auth:        authhandler.New(authSvc, auditLog),
		Events:      eventhandler.New(eventSvc),
		Stats:       analyticshandler.New(statsSvc),
		ColdStorage: archivalhandler.New(engine, runner, cold, auditLog),
		AuditLogs:   audithandler.New(auditLogs),
		RequireAuth: authn.RequireAuth,
		IPRateLimit: rateLimit,
		Log:         logger,
		Metrics:     true,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown")
	}
	logger.Info().Msg("http server stopped")
}
