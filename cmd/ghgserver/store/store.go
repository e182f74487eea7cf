// Package store builds the result cache backend for the ghgcast server.
//
// The server caches complete predict and explain responses keyed by the
// normalized request. Two backends are available:
//
//   - memory: snapshots live in the process and expire after cfg.CacheTTL.
//     Each replica keeps its own cache and everything is lost on restart.
//
//   - redis: snapshots are shared by every replica pointed at the same
//     Redis and expire after cfg.RedisTTL. Use this when the server runs
//     behind a load balancer so a forecast computed once is served by all.
//
// Initialization is fail-fast. A Redis that cannot be reached at startup
// exits the process instead of letting it serve without its configured cache.
//
// Usage:
//
//	st := store.New(cfg, logger)
//	if closer, ok := st.(io.Closer); ok {
//	    defer closer.Close()
//	}
package store

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/HatiCode/ghgcast/cmd/ghgserver/config"
	"github.com/HatiCode/ghgcast/pkg/storage"
)

// New creates the storage.Store selected by cfg.Storage.
//
// For "redis" the connection is verified with a PING bounded to five seconds
// before New returns. An unknown backend name, a bad address or a failed
// PING is logged and ends the process with os.Exit(1).
//
// Parameters:
//
//   - cfg: server configuration. Storage selects the backend; RedisAddr,
//     RedisPassword, RedisDB and RedisTTL configure redis; CacheTTL
//     configures memory.
//
//   - logger: receives the initialization events and the fatal error, if any.
//
// Returns:
//
//	A ready storage.Store. It is never nil. The redis store also implements
//	io.Closer and should be closed on shutdown.
func New(cfg *config.Config, logger *slog.Logger) storage.Store {
	switch cfg.Storage {
	case "redis":
		logger.Info("initializing redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.RedisTTL,
		)
		redisStore, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(ctx); err != nil {
			logger.Error("redis health check failed", "error", err)
			os.Exit(1)
		}
		logger.Info("redis storage initialized successfully")

		return redisStore
	case "memory":
		logger.Info("initializing in-memory storage", "ttl", cfg.CacheTTL)
		return storage.NewMemoryStore(cfg.CacheTTL)

	default:
		logger.Error("invalid storage type", "storage", cfg.Storage)
		os.Exit(1)
	}

	return nil
}
