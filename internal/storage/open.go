package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/facefind/internal/config"
)

// Open connects the record and vector store selected by cfg.Driver and
// brings its schema up to date.
func Open(ctx context.Context, cfg config.DatabaseConfig, dim int) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := NewPostgresStore(ctx, cfg, dim)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case config.DriverSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath, dim)
	case config.DriverMemory:
		slog.Warn("using in-memory store, data is lost on restart")
		return NewMemoryStore(dim), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenObjects returns a MinIO-backed ObjectStore, or an in-memory one when
// no endpoint is configured.
func OpenObjects(ctx context.Context, cfg config.MinIOConfig) (ObjectStore, error) {
	if cfg.Endpoint == "" {
		slog.Warn("minio endpoint not set, keeping objects in memory")
		return NewMemoryObjectStore(), nil
	}
	m, err := NewMinIOStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
