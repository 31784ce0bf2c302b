package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pulse/internal/config"
	"pulse/internal/constants"
	"pulse/internal/kv"
	"pulse/internal/logger"
	"pulse/internal/storage"
)

// DatabaseConnector opens the kv store and the upload log selected by configuration.
type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.KV.Redis.Host, dc.Config.KV.Redis.Port),
		Password: dc.Config.KV.Redis.Password,
		DB:       dc.Config.KV.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

// InitKVStore returns the memory store, or a breaker-guarded Redis store together
// with its client.
func (dc *DatabaseConnector) InitKVStore(ctx context.Context) (kv.Store, *redis.Client, error) {
	switch dc.Config.KV.Type {
	case "", constants.KVTypeMemory:
		return kv.NewMemoryStore(), nil, nil
	case constants.KVTypeRedis:
		rdb, err := dc.InitRedis(ctx)
		if err != nil {
			return nil, nil, err
		}
		ttl := time.Duration(dc.Config.KV.Redis.TTLSeconds) * time.Second
		store := kv.NewRedisStore(rdb, dc.Config.KV.Prefix, ttl)
		return kv.NewCircuitBreakerStore(store, dc.Config.CircuitBreaker), rdb, nil
	default:
		return nil, nil, fmt.Errorf("unknown kv type: %s", dc.Config.KV.Type)
	}
}

func (dc *DatabaseConnector) InitUploadLog() (storage.Log, error) {
	l, err := storage.Open(dc.Config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload log: %w", err)
	}
	dc.Logger.Infow("Upload log opened", "type", dc.Config.Storage.Type, "path", dc.Config.Storage.Path)
	return l, nil
}

func (dc *DatabaseConnector) ShutdownDatabases(rdb *redis.Client) []error {
	var errs []error

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	return errs
}
