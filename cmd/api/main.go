package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/splax/hackhub/internal/app/migrate"
	"github.com/splax/hackhub/internal/domain"
	httpx "github.com/splax/hackhub/internal/http"
	"github.com/splax/hackhub/internal/repository"
	"github.com/splax/hackhub/internal/repository/memory"
	"github.com/splax/hackhub/internal/repository/postgres"
	"github.com/splax/hackhub/internal/service/auth"
	"github.com/splax/hackhub/internal/service/profile"
	"github.com/splax/hackhub/internal/service/storage"
	"github.com/splax/hackhub/internal/service/team"
	"github.com/splax/hackhub/internal/ws"
	"github.com/splax/hackhub/pkg/config"
	"github.com/splax/hackhub/pkg/logger"
)

// store is everything the services need from persistence.
type store interface {
	repository.UserRepository
	repository.ProfileRepository
	repository.TeamRepository
	repository.BlobRepository
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, dbHealth, closeRepo, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", "error", err, "driver", cfg.DBDriver)
		os.Exit(1)
	}
	defer closeRepo()

	hub := ws.NewHub(log)
	defer hub.Close()
	var publisher domain.EventPublisher = hub
	if addr := strings.TrimSpace(cfg.LiveRedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.LiveRedisPass})
		defer client.Close()
		relay := ws.NewRedisRelay(client, hub, cfg.LiveRedisChannel, log)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("live relay stopped", "error", err)
			}
		}()
		publisher = relay
	}

	blobs := storage.New(repo, log, cfg)
	profileSvc := profile.New(repo, blobs, publisher, log)
	teamSvc := team.New(repo, profileSvc, blobs, publisher, log, team.WithCommentMaxLength(cfg.CommentMaxLength))
	authSvc := auth.New(repo, log, cfg)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, httpx.Services{
		Auth:     authSvc,
		Profiles: profileSvc,
		Teams:    teamSvc,
		Storage:  blobs,
	}, hub, limiter, cfg.LiveHeartbeat, dbHealth)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "driver", cfg.DBDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (store, func(context.Context) error, func(), error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil, func() {}, nil
	case config.DriverPostgres, "":
	default:
		return nil, nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("configure migrations: %w", err)
	}
	if err := runner.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if err := runner.Ensure(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return postgres.New(pool), pool.Ping, pool.Close, nil
}
