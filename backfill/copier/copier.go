// Package copier streams one table from the source store to the target.
package copier

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gear6io/scylla-backfill/backfill/checkpoint"
	"github.com/gear6io/scylla-backfill/backfill/executor"
	"github.com/gear6io/scylla-backfill/backfill/metrics"
	"github.com/gear6io/scylla-backfill/config"
	"github.com/gear6io/scylla-backfill/dbclient"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

// TableResult is the outcome of copying one table
type TableResult struct {
	Table              string                     `json:"table"`
	RowsCopied         int64                      `json:"rows_copied"`
	Batches            int                        `json:"batches"`
	Skipped            bool                       `json:"skipped"`
	Metrics            metrics.PerformanceMetrics `json:"metrics"`
	PreviousCheckpoint *checkpoint.Checkpoint     `json:"previous_checkpoint,omitempty"`
}

// Copier is the Table Copier
type Copier struct {
	source    dbclient.Client
	target    dbclient.Client
	store     checkpoint.Store
	executor  *executor.Executor
	collector *metrics.Collector
	cfg       config.BackfillConfig
	logger    zerolog.Logger
}

// New wires a copier. cfg supplies resume, parallelism and checkpoint cadence.
func New(
	source, target dbclient.Client,
	store checkpoint.Store,
	exec *executor.Executor,
	collector *metrics.Collector,
	cfg config.BackfillConfig,
	logger zerolog.Logger,
) *Copier {
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 10
	}
	if cfg.WriteBatchSize <= 0 {
		cfg.WriteBatchSize = 50
	}
	return &Copier{
		source:    source,
		target:    target,
		store:     store,
		executor:  exec,
		collector: collector,
		cfg:       cfg,
		logger:    logger.With().Str("component", "copier").Logger(),
	}
}

// tableCopy is the state of one Copy call
type tableCopy struct {
	*Copier
	table     string
	batchSize int
	total     int64
	processed int64
	batches   int
	upsert    string
	stmt      dbclient.Statement
	logger    zerolog.Logger
}

// Copy streams every row of table into the target in batches of batchSize.
// A table that is missing or has no columns is skipped and reported as such
// with a nil error. Read and write failures abort the table, leaving its
// checkpoint in place.
func (c *Copier) Copy(ctx context.Context, table string, batchSize int) (*TableResult, error) {
	if batchSize <= 0 {
		return nil, errors.New(ErrInvalidBatchSize, "batch size must be positive", nil).
			AddContext("batch_size", strconv.Itoa(batchSize))
	}

	start := time.Now()
	tc := &tableCopy{
		Copier:    c,
		table:     table,
		batchSize: batchSize,
		logger:    c.logger.With().Str("table", table).Logger(),
	}
	result := &TableResult{Table: table}

	schema, err := c.source.Schema(ctx, table)
	if err != nil || len(schema.Columns) == 0 {
		if err != nil && !stderrors.Is(err, dbclient.ErrTableNotFound) {
			return nil, errors.New(ErrReadFailed, "failed to read table schema", err).AddContext("table", table)
		}
		schemaErr := errors.New(ErrSchemaUnavailable, "no columns found for table", err).AddContext("table", table)
		tc.logger.Warn().Err(schemaErr).Msg("Skipping table without schema")
		result.Skipped = true
		return result, nil
	}

	tc.total, err = dbclient.CountRows(ctx, c.source, table)
	if err != nil {
		tc.logger.Warn().Err(err).Msg("Failed to count source rows, progress will be approximate")
	}
	tc.logger.Info().Int64("total", tc.total).Msg("Starting table copy")

	if c.cfg.EnableResume {
		if prev := c.store.Load(ctx, table); prev != nil {
			result.PreviousCheckpoint = prev
			tc.logger.Info().
				Int64("previous_processed", prev.ProcessedCount).
				Int64("previous_total", prev.TotalCount).
				Str("previous_timestamp", prev.Timestamp).
				Msg("Found checkpoint from an earlier run, copying the full table again")
		}
	}

	columns := schema.ColumnNames()
	if len(schema.PrimaryKey) == 0 {
		tc.logger.Warn().Msg("Table has no primary key, re-runs may duplicate rows in the target")
	}
	tc.upsert = c.target.Dialect().UpsertQuery(table, columns, schema.PrimaryKey)

	if !c.cfg.EnableParallel {
		tc.stmt, err = c.target.Prepare(ctx, tc.upsert)
		if err != nil {
			return nil, errors.New(ErrWriteFailed, "failed to prepare insert", err).AddContext("table", table)
		}
	}

	rows, err := c.source.Execute(ctx, c.source.Dialect().SelectQuery(table, columns, 0))
	if err != nil {
		return nil, errors.New(ErrReadFailed, "failed to query source table", err).AddContext("table", table)
	}
	defer rows.Close()

	batch := make([]dbclient.Row, 0, batchSize)
	for rows.Next() {
		batch = append(batch, rows.Values())
		if len(batch) < batchSize {
			continue
		}
		if err := tc.flush(ctx, batch); err != nil {
			return nil, err
		}
		batch = make([]dbclient.Row, 0, batchSize)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(ErrReadFailed, "failed to read source rows", err).
			AddContext("table", table).
			AddContext("processed", strconv.FormatInt(tc.processed, 10))
	}
	if len(batch) > 0 {
		if err := tc.flush(ctx, batch); err != nil {
			return nil, err
		}
	}

	if tc.processed > 0 {
		tc.saveCheckpoint(ctx)
	}

	result.RowsCopied = tc.processed
	result.Batches = tc.batches
	result.Metrics = c.collector.Snapshot(ctx, time.Since(start), tc.processed)

	if err := c.store.Clear(ctx, table); err != nil {
		tc.logger.Warn().Err(err).Msg("Failed to clear checkpoint")
	}

	tc.logger.Info().
		Int64("rows", tc.processed).
		Int("batches", tc.batches).
		Float64("records_per_second", result.Metrics.RecordsPerSecond).
		Float64("duration_seconds", result.Metrics.DurationSeconds).
		Msg("Table copy completed")
	return result, nil
}

func (tc *tableCopy) flush(ctx context.Context, batch []dbclient.Row) error {
	var err error
	if tc.cfg.EnableParallel {
		err = tc.writeParallel(ctx, batch)
	} else {
		err = tc.writeSequential(ctx, batch)
	}
	if err != nil {
		return err
	}

	tc.processed += int64(len(batch))
	tc.batches++

	event := tc.logger.Info().Int64("processed", tc.processed).Int64("total", tc.total)
	if tc.total > 0 {
		event = event.Str("progress", fmt.Sprintf("%.1f%%", float64(tc.processed)/float64(tc.total)*100))
	}
	event.Msg("Batch written")

	if tc.batches%tc.cfg.CheckpointEvery == 0 {
		tc.saveCheckpoint(ctx)
	}
	return nil
}

func (tc *tableCopy) writeSequential(ctx context.Context, batch []dbclient.Row) error {
	for i, row := range batch {
		if err := tc.stmt.Exec(ctx, row...); err != nil {
			return errors.New(ErrWriteFailed, "failed to write row", err).
				AddContext("table", tc.table).
				AddContext("row", strconv.FormatInt(tc.processed+int64(i), 10))
		}
	}
	return nil
}

func (tc *tableCopy) writeParallel(ctx context.Context, batch []dbclient.Row) error {
	res := tc.executor.Apply(ctx, split(batch, tc.executor.MaxWorkers()), tc.writeChunk)
	if res.RowsApplied < int64(len(batch)) {
		return errors.New(ErrWriteFailed, "batch was only partially applied", nil).
			AddContext("table", tc.table).
			AddContext("applied", strconv.FormatInt(res.RowsApplied, 10)).
			AddContext("expected", strconv.Itoa(len(batch))).
			AddContext("failed_chunks", strconv.Itoa(res.BatchesFailed))
	}
	return nil
}

// writeChunk sends rows as statement batches of at most WriteBatchSize
func (tc *tableCopy) writeChunk(ctx context.Context, rows []dbclient.Row) error {
	for start := 0; start < len(rows); start += tc.cfg.WriteBatchSize {
		end := start + tc.cfg.WriteBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		entries := make([]dbclient.BatchEntry, 0, end-start)
		for _, row := range rows[start:end] {
			entries = append(entries, dbclient.BatchEntry{Query: tc.upsert, Values: row})
		}
		if err := tc.target.ExecuteBatch(ctx, entries); err != nil {
			return err
		}
	}
	return nil
}

func (tc *tableCopy) saveCheckpoint(ctx context.Context) {
	err := tc.store.Save(ctx, checkpoint.Checkpoint{
		TableName:      tc.table,
		ProcessedCount: tc.processed,
		TotalCount:     tc.total,
		BatchSize:      tc.batchSize,
	})
	if err != nil {
		tc.logger.Warn().Err(err).Int64("processed", tc.processed).Msg("Failed to save checkpoint")
	}
}

// split divides batch into at most n contiguous chunks of near-equal size
func split(batch []dbclient.Row, n int) [][]dbclient.Row {
	if n < 1 {
		n = 1
	}
	size := (len(batch) + n - 1) / n
	if size == 0 {
		return nil
	}
	chunks := make([][]dbclient.Row, 0, n)
	for start := 0; start < len(batch); start += size {
		end := start + size
		if end > len(batch) {
			end = len(batch)
		}
		chunks = append(chunks, batch[start:end])
	}
	return chunks
}
