// Package orchestrator runs the backfill over a list of tables.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/gear6io/scylla-backfill/backfill/checkpoint"
	"github.com/gear6io/scylla-backfill/backfill/copier"
	"github.com/gear6io/scylla-backfill/backfill/executor"
	"github.com/gear6io/scylla-backfill/backfill/metrics"
	"github.com/gear6io/scylla-backfill/backfill/validator"
	"github.com/gear6io/scylla-backfill/config"
	"github.com/gear6io/scylla-backfill/dbclient"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/gear6io/scylla-backfill/utils"
	"github.com/rs/zerolog"
)

// Role names passed to a Connector
const (
	RoleSource = "source"
	RoleTarget = "target"
)

// Connector opens a client for one side of the copy
type Connector func(ctx context.Context, role string, cfg config.DatabaseConfig) (dbclient.Client, error)

// DefaultConnector opens real stores, retrying up to maxRetries attempts
func DefaultConnector(maxRetries int, logger zerolog.Logger) Connector {
	return func(ctx context.Context, role string, cfg config.DatabaseConfig) (dbclient.Client, error) {
		retry := dbclient.DefaultRetryConfig()
		if maxRetries > 0 {
			retry.MaxAttempts = maxRetries
		}
		return dbclient.Open(ctx, cfg, retry, logger.With().Str("role", role).Logger())
	}
}

// Orchestrator is the Run Orchestrator
type Orchestrator struct {
	cfg     *config.Config
	connect Connector
	store   checkpoint.Store
	sampler metrics.HostSampler
	logger  zerolog.Logger

	mu      sync.RWMutex
	stats   *RunStatistics
	current string
	running bool
}

// Option customises an Orchestrator
type Option func(*Orchestrator)

// WithConnector replaces how source and target clients are opened
func WithConnector(c Connector) Option {
	return func(o *Orchestrator) { o.connect = c }
}

// WithStore supplies the checkpoint store. The caller keeps ownership.
func WithStore(s checkpoint.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithHostSampler replaces the host metrics source
func WithHostSampler(s metrics.HostSampler) Option {
	return func(o *Orchestrator) { o.sampler = s }
}

// New builds an orchestrator for cfg
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.connect == nil {
		o.connect = DefaultConnector(cfg.Backfill.MaxRetries, logger)
	}
	if o.sampler == nil {
		o.sampler = metrics.SystemSampler{}
	}
	return o
}

// Run copies tables in order. ctx is the shutdown token: once it is
// cancelled no further table is started, but the table in progress runs to
// completion. Only initialization failures are returned as errors; per-table
// failures are recorded in the statistics.
func (o *Orchestrator) Run(ctx context.Context, tables []string) (*RunStatistics, error) {
	stats := newRunStatistics(utils.NewRunID(), time.Now())
	logger := o.logger.With().Str("run_id", stats.RunID).Logger()
	o.begin(stats)
	defer o.end()

	logger.Info().
		Strs("tables", tables).
		Int("batch_size", o.cfg.Backfill.BatchSize).
		Int("max_workers", o.cfg.Backfill.MaxWorkers).
		Bool("parallel", o.cfg.Backfill.EnableParallel).
		Bool("resume", o.cfg.Backfill.EnableResume).
		Msg("Starting backfill run")

	source, err := o.connect(ctx, RoleSource, o.cfg.Source)
	if err != nil {
		o.finish(logger)
		return stats.Copy(), errors.New(ErrInitFailed, "failed to connect to source", err).AddContext("run_id", stats.RunID)
	}
	defer closeClient(source, RoleSource, logger)

	target, err := o.connect(ctx, RoleTarget, o.cfg.Target)
	if err != nil {
		o.finish(logger)
		return stats.Copy(), errors.New(ErrInitFailed, "failed to connect to target", err).AddContext("run_id", stats.RunID)
	}
	defer closeClient(target, RoleTarget, logger)

	store := o.store
	if store == nil {
		store, err = checkpoint.Open(ctx, o.cfg.Backfill, logger)
		if err != nil {
			o.finish(logger)
			return stats.Copy(), errors.New(ErrInitFailed, "failed to open checkpoint store", err).AddContext("run_id", stats.RunID)
		}
		defer store.Close()
	}

	cp := copier.New(
		source, target, store,
		executor.New(o.cfg.Backfill.MaxWorkers, logger),
		metrics.NewCollectorWithSampler(o.sampler, logger),
		o.cfg.Backfill,
		logger,
	)
	var v *validator.Validator
	if o.cfg.Backfill.ValidateAfterCopy {
		v = validator.New(source, target, o.cfg.Backfill.SampleSize, logger)
	}

	// tables are never interrupted halfway
	copyCtx := context.WithoutCancel(ctx)

	for i, table := range tables {
		if ctx.Err() != nil {
			logger.Warn().
				Int("remaining", len(tables)-i).
				Str("next_table", table).
				Msg("Shutdown requested, not starting further tables")
			break
		}
		o.setCurrent(table)
		o.copyTable(copyCtx, cp, v, table, logger)
	}
	o.setCurrent("")

	o.finish(logger)
	return stats.Copy(), nil
}

func (o *Orchestrator) copyTable(ctx context.Context, cp *copier.Copier, v *validator.Validator, table string, logger zerolog.Logger) {
	res, err := cp.Copy(ctx, table, o.cfg.Backfill.BatchSize)
	if err != nil {
		logger.Error().Err(err).Str("table", table).Msg("Table copy failed")
		o.update(func(s *RunStatistics) {
			s.Errors++
			s.FailedTables = append(s.FailedTables, table)
		})
		return
	}

	o.update(func(s *RunStatistics) {
		s.TablesProcessed++
		if res.Skipped {
			s.TablesSkipped++
			return
		}
		s.RecordsProcessed += res.RowsCopied
		s.PerTableMetrics[table] = res.Metrics
	})

	if v == nil || res.Skipped {
		return
	}
	report, err := v.Compare(ctx, table)
	if err != nil {
		logger.Error().Err(err).Str("table", table).Msg("Validation could not run")
		o.update(func(s *RunStatistics) { s.ValidationFailures++ })
		return
	}
	if !report.Match {
		logger.Warn().Err(report.Err()).Str("table", table).Msg("Validation failed")
		o.update(func(s *RunStatistics) { s.ValidationFailures++ })
	}
}

func (o *Orchestrator) finish(logger zerolog.Logger) {
	o.update(func(s *RunStatistics) {
		s.EndTime = time.Now()
		s.DurationSeconds = s.EndTime.Sub(s.StartTime).Seconds()
	})
	snap := o.Status().Stats
	logger.Info().
		Int("tables_processed", snap.TablesProcessed).
		Int("tables_skipped", snap.TablesSkipped).
		Int64("records_processed", snap.RecordsProcessed).
		Int("errors", snap.Errors).
		Int("validation_failures", snap.ValidationFailures).
		Strs("failed_tables", snap.FailedTables).
		Float64("duration_seconds", snap.DurationSeconds).
		Msg("Backfill run finished")
}

func closeClient(c dbclient.Client, role string, logger zerolog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn().Err(err).Str("role", role).Msg("Failed to close client")
	}
}

func (o *Orchestrator) begin(stats *RunStatistics) {
	o.mu.Lock()
	o.stats = stats
	o.running = true
	o.mu.Unlock()
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.running = false
	o.current = ""
	o.mu.Unlock()
}

func (o *Orchestrator) setCurrent(table string) {
	o.mu.Lock()
	o.current = table
	o.mu.Unlock()
}

func (o *Orchestrator) update(fn func(*RunStatistics)) {
	o.mu.Lock()
	fn(o.stats)
	o.mu.Unlock()
}

// Status is a point-in-time view of the run for the status endpoint
type Status struct {
	Running      bool          `json:"running"`
	CurrentTable string        `json:"current_table,omitempty"`
	Stats        RunStatistics `json:"stats"`
}

// Status returns a copy of the live statistics; safe to call from any goroutine
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := Status{Running: o.running, CurrentTable: o.current}
	if o.stats != nil {
		st.Stats = *o.stats.Copy()
	}
	return st
}
