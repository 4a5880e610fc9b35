package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/auth"
	"github.com/UkralStul/promptkaart/internal/changefeed"
	"github.com/UkralStul/promptkaart/internal/config"
	"github.com/UkralStul/promptkaart/internal/logging"
	"github.com/UkralStul/promptkaart/internal/seed"
	"github.com/UkralStul/promptkaart/internal/server"
	"github.com/UkralStul/promptkaart/internal/storage"
	"github.com/UkralStul/promptkaart/internal/storage/inmemory"
	"github.com/UkralStul/promptkaart/internal/storage/mongo"
	"github.com/UkralStul/promptkaart/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, !cfg.IsProduction())
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := changefeed.NewBroker(logger, cfg.FeedBuffer)

	// Без Redis хранилище публикует прямо в локальный брокер
	var pub changefeed.Publisher = broker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		bridge := changefeed.NewRedisBridge(rdb, broker, logger)
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		pub = bridge
		logger.Info("change feed bridged through redis", zap.String("addr", opts.Addr))
	}

	store, err := openStorage(ctx, cfg, pub, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	if cfg.Seed {
		sum, err := seed.Fill(ctx, store, seed.DefaultOptions, logger)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("mock data filled",
			zap.Int("users", len(sum.Users)),
			zap.Int("posts", len(sum.Posts)),
			zap.Int("comments", sum.Comments))
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.New(store, broker, tokens, logger, cfg.RequestTimeout).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, pub changefeed.Publisher, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		store, err := postgres.New(cfg.DatabaseURL, pub, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return store, nil
	case config.StorageMongo:
		store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB, pub, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		return store, nil
	default:
		return inmemory.New(pub, logger), nil
	}
}
