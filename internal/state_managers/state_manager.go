package state_managers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/utils"
	"github.com/benmeehan/geofence-agent/pkg/file"
)

// Storage backends accepted in the storage.backend config key.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// StateManager is a durable string key-value store. Every Set is atomic on its own;
// SetAll writes all values as one unit.
type StateManager interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetAll(ctx context.Context, values map[string]string) error
	Ping(ctx context.Context) error
	Close() error
}

// NewStateManager opens the backend selected in the storage config.
func NewStateManager(ctx context.Context, cfg utils.StorageConfig, fileClient file.FileOperations, logger zerolog.Logger) (StateManager, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStateManager(cfg.File.Path, fileClient, logger)
	case BackendSQLite:
		return NewSQLiteStateManager(ctx, cfg.SQLite.Path, logger)
	case BackendRedis:
		return NewRedisStateManager(ctx, RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
