package checkpoint

import (
	"context"
	"path/filepath"

	"github.com/gear6io/scylla-backfill/config"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

// Open builds the store selected by the backfill configuration
func Open(ctx context.Context, cfg config.BackfillConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.CheckpointBackend {
	case "", config.CheckpointBackendFile:
		return NewFileStore(cfg.CheckpointDir, logger), nil
	case config.CheckpointBackendSQLite:
		store, err := NewSQLiteStore(ctx, filepath.Join(cfg.CheckpointDir, DefaultSQLiteFile), logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.New(ErrStoreOpen, "unsupported checkpoint backend", nil).
			AddContext("backend", cfg.CheckpointBackend)
	}
}
