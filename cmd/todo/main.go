package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"todotracker/internal/config"
	"todotracker/internal/server"
	"todotracker/internal/service"
	"todotracker/internal/storage"
	"todotracker/internal/storage/cache"
	"todotracker/internal/storage/mongo"
	"todotracker/internal/storage/sqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(2)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("unable to open store", slog.String("backend", cfg.Backend), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	svc := service.New(store, cfg.Identity)
	srv := server.New(svc, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr), slog.String("backend", cfg.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// openStore provisions the configured backend before any request is served and
// layers the optional cache and the error logging on top of it.
func openStore(cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	var base storage.Store
	switch cfg.Backend {
	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDB, logger)
		if err != nil {
			return nil, err
		}
		base = s
	default:
		s, err := sqlite.Open(cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
		base = s
	}

	if cfg.Redis != "" {
		logger.Info("query cache enabled", slog.String("redis", cfg.Redis), slog.Duration("ttl", cfg.CacheTTL))
		base = cache.New(base, redis.NewClient(&redis.Options{Addr: cfg.Redis}), cfg.CacheTTL, logger)
	}
	return storage.WithLogging(base, logger), nil
}
