// archiver runs the archival daemon: a periodic pass that moves aged events
// from Postgres to ClickHouse, plus the refresh-token cleanup sweep.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"event-analytics-api/internal/archival"
	authservice "event-analytics-api/internal/auth/service"
	"event-analytics-api/internal/coldstore"
	"event-analytics-api/internal/config"
	"event-analytics-api/internal/db"
	eventrepo "event-analytics-api/internal/event/repository"
	"event-analytics-api/internal/metrics"
	"event-analytics-api/internal/security"
	otelsetup "event-analytics-api/internal/telemetry/otel"
	tokenrepo "event-analytics-api/internal/token/repository"
	userrepo "event-analytics-api/internal/user/repository"
)

// tokenCleanupInterval is how often expired refresh token rows are swept.
const tokenCleanupInterval = 6 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "event-analytics-archiver", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	metrics.Register()

	events := eventrepo.NewPostgresRepository(conn)
	cold := coldstore.New(coldstore.Config{
		BaseURL:  cfg.ClickHouseURL,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})

	if err := cold.EnsureSchema(ctx); err != nil {
		// The cold store may come up after us; the first pass will surface
		// the same failure in its run record.
		log.Printf("cold schema: %v", err)
	}

	engine := archival.NewEngine(events, cold, archival.Config{
		HotRetentionDays:  cfg.HotRetentionDays,
		MaxArchiveAgeDays: cfg.MaxArchiveAgeDays,
		BatchSize:         cfg.ArchiveBatchSize,
		BatchDelay:        cfg.ArchiveBatchDelayDuration(),
	}, nil)

	runner := archival.NewRunner(engine, cfg.ArchiveIntervalDuration(), nil)
	if err := runner.Start(ctx); err != nil {
		log.Fatalf("runner: %v", err)
	}
	log.Printf("archiver running, interval %s", cfg.ArchiveIntervalDuration())

	// Token cleanup shares the daemon process; it needs no keys beyond a
	// working hasher/provider, so wire the auth service with just the repos.
	authSvc := authservice.NewAuthService(
		userrepo.NewPostgresRepository(conn),
		tokenrepo.NewPostgresRepository(conn),
		security.NewHasher(cfg.BcryptCost),
		nil,
		cfg.RefreshTTL(),
	)
	go func() {
		ticker := time.NewTicker(tokenCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := authSvc.CleanupExpiredTokens(ctx)
				if err != nil {
					log.Printf("token cleanup: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("token cleanup: removed %d expired rows", n)
				}
			}
		}
	}()

	<-ctx.Done()
	log.Println("shutting down archiver...")
	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("archiver stopped")
}
