// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. The merge logic lives in internal/identity.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"unify/internal/audit"
	"unify/internal/identity"
	idmetrics "unify/internal/identity/metrics"
	"unify/internal/platform/config"
	"unify/internal/platform/httpserver"
	"unify/internal/platform/logger"
	"unify/internal/platform/postgres"
	platformredis "unify/internal/platform/redis"
	httptransport "unify/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	var (
		contactStore identity.Store
		auditStore   audit.Store
		checks       = map[string]httptransport.HealthChecker{}
	)

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("database init failed", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		contactStore = identity.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		checks["postgres"] = dbHealth{db}
		log.Info("using postgres contact store")
	} else {
		contactStore = identity.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory contact store")
	}

	var lock identity.ResolutionLock = identity.NoopLock{}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		lock = identity.NewRedisLock(redisClient.Client, cfg.LockTTL, cfg.LockWait)
		checks["redis"] = redisClient
		log.Info("resolution lock enabled")
	} else {
		log.Info("REDIS_URL not set, resolutions run unserialized")
	}

	resolver := identity.NewResolver(
		contactStore,
		lock,
		audit.NewService(auditStore, log),
		log,
		idmetrics.New(),
	)

	identifyHandler := httptransport.NewIdentifyHandler(resolver, log)
	router := httptransport.NewRouter(identifyHandler, log, checks)
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting unify", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// dbHealth adapts *sql.DB to the router's health check interface.
type dbHealth struct {
	db *sql.DB
}

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
