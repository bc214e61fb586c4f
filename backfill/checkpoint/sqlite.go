package checkpoint

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// DefaultSQLiteFile is the database file created inside the checkpoint directory
const DefaultSQLiteFile = "checkpoints.db"

type checkpointRow struct {
	bun.BaseModel `bun:"table:backfill_checkpoints"`

	TableName      string `bun:"table_name,pk"`
	ProcessedCount int64  `bun:"processed_count,notnull"`
	TotalCount     int64  `bun:"total_count,notnull"`
	Timestamp      string `bun:"timestamp,notnull"`
	BatchSize      int    `bun:"batch_size,notnull"`
}

func (r *checkpointRow) checkpoint() Checkpoint {
	return Checkpoint{
		TableName:      r.TableName,
		ProcessedCount: r.ProcessedCount,
		TotalCount:     r.TotalCount,
		Timestamp:      r.Timestamp,
		BatchSize:      r.BatchSize,
	}
}

// SQLiteStore keeps checkpoints in a single SQLite table through bun
type SQLiteStore struct {
	db     *bun.DB
	path   string
	clock  *clock
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.New(ErrStoreOpen, "failed to create checkpoint directory", err).AddContext("path", path)
	}

	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.New(ErrStoreOpen, "failed to open SQLite database", err).AddContext("path", path)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.NewCreateTable().Model((*checkpointRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		db.Close()
		return nil, errors.New(ErrStoreOpen, "failed to create checkpoint table", err).AddContext("path", path)
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		clock:  newClock(nil),
		logger: logger.With().Str("component", "checkpoint-store").Str("path", path).Logger(),
	}, nil
}

// WithClock replaces the time source
func (s *SQLiteStore) WithClock(now func() time.Time) *SQLiteStore {
	s.clock = newClock(now)
	return s
}

func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	cp, err := prepare(cp, s.clock)
	if err != nil {
		return err
	}

	row := &checkpointRow{
		TableName:      cp.TableName,
		ProcessedCount: cp.ProcessedCount,
		TotalCount:     cp.TotalCount,
		Timestamp:      cp.Timestamp,
		BatchSize:      cp.BatchSize,
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (table_name) DO UPDATE").
		Set("processed_count = EXCLUDED.processed_count").
		Set("total_count = EXCLUDED.total_count").
		Set("timestamp = EXCLUDED.timestamp").
		Set("batch_size = EXCLUDED.batch_size").
		Exec(ctx)
	if err != nil {
		return errors.New(ErrCheckpointIO, "failed to save checkpoint", err).AddContext("table", cp.TableName)
	}

	s.logger.Debug().
		Str("table", cp.TableName).
		Int64("processed", cp.ProcessedCount).
		Int64("total", cp.TotalCount).
		Msg("Checkpoint saved")
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, table string) *Checkpoint {
	row := new(checkpointRow)
	err := s.db.NewSelect().Model(row).Where("table_name = ?", table).Scan(ctx)
	if err != nil {
		if !stderrors.Is(err, sql.ErrNoRows) {
			s.logger.Warn().Err(err).Str("table", table).Msg("Failed to read checkpoint")
		}
		return nil
	}

	cp := row.checkpoint()
	if err := cp.Validate(); err != nil {
		s.logger.Warn().Err(err).Str("table", table).Msg("Ignoring invalid checkpoint")
		return nil
	}
	return &cp
}

func (s *SQLiteStore) Clear(ctx context.Context, table string) error {
	_, err := s.db.NewDelete().Model((*checkpointRow)(nil)).Where("table_name = ?", table).Exec(ctx)
	if err != nil {
		return errors.New(ErrCheckpointIO, "failed to remove checkpoint", err).AddContext("table", table)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Checkpoint, error) {
	var rows []checkpointRow
	if err := s.db.NewSelect().Model(&rows).Order("table_name ASC").Scan(ctx); err != nil {
		return nil, errors.New(ErrCheckpointIO, "failed to list checkpoints", err)
	}

	out := make([]Checkpoint, 0, len(rows))
	for i := range rows {
		cp := rows[i].checkpoint()
		if err := cp.Validate(); err != nil {
			s.logger.Warn().Err(err).Str("table", cp.TableName).Msg("Skipping invalid checkpoint")
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
