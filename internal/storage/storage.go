// Package storage holds the catalog store backends and the file exporters.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/config"
)

// Exporter is the interface for catalog dump backends.
type Exporter interface {
	// Write persists a batch of records.
	Write(recs []catalog.Record) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the exporter identifier.
	Name() string
}

// Open returns the catalog store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (catalog.Store, error) {
	switch cfg.Driver {
	case "postgres", "sqlite":
		return OpenSQL(ctx, cfg.Driver, cfg.DSN, cfg.MaxOpenConns, logger)
	case "mongodb":
		return NewMongoStore(ctx, cfg.DSN, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
