package repository

import (
	"context"
	"fmt"

	"github.com/taskmaster/taskflow/internal/infrastructure/config"
	"github.com/taskmaster/taskflow/internal/infrastructure/database"
	"github.com/taskmaster/taskflow/internal/ports"
)

// Open returns the key-value store selected by cfg.Driver
func Open(cfg config.StorageConfig) (ports.KeyValueStore, error) {
	switch cfg.Driver {
	case config.DriverFile:
		return NewFileStore(cfg.Path)
	case config.DriverSQLite, config.DriverPostgres:
		db, err := database.Open(cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db), nil
	case config.DriverRedis:
		return NewRedisStore(context.Background(), cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
