package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/gear6io/scylla-backfill/backfill/orchestrator"
	"github.com/gear6io/scylla-backfill/config"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/gear6io/scylla-backfill/status"
	"github.com/spf13/cobra"
)

type runOptions struct {
	tables     []string
	batchSize  int
	maxWorkers int
	noResume   bool
	noParallel bool
	noValidate bool
	strict     bool
	statusAddr string
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [tables...]",
		Short: "Copy the configured tables from source to target",
		Long: `Copy every configured table in order. Tables can be named as arguments, with
--tables, in the config file or in a tables file (tables.json by default).

SIGINT or SIGTERM stops the run after the table in progress.`,
		Example: `  backfill run --tables users orders
  backfill run users orders --batch-size 1000 --max-workers 8
  backfill run --no-resume --status-addr :8080`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd, args, global, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringSliceVarP(&opts.tables, "tables", "t", nil, "tables to copy (comma separated or repeated)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "rows per batch (default from config, 5000)")
	cmd.Flags().IntVar(&opts.maxWorkers, "max-workers", 0, "parallel writers per batch (default from config, 4)")
	cmd.Flags().BoolVar(&opts.noResume, "no-resume", false, "ignore existing checkpoints")
	cmd.Flags().BoolVar(&opts.noParallel, "no-parallel", false, "apply batches sequentially")
	cmd.Flags().BoolVar(&opts.noValidate, "no-validate", false, "skip integrity validation after each table")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero when any table fails to copy or validate")
	cmd.Flags().StringVar(&opts.statusAddr, "status-addr", "", "serve /health and /status on this address")
}

// applyRunFlags overlays explicitly set run flags on cfg
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	flags := cmd.Flags()
	if flags.Changed("batch-size") {
		cfg.Backfill.BatchSize = opts.batchSize
	}
	if flags.Changed("max-workers") {
		cfg.Backfill.MaxWorkers = opts.maxWorkers
	}
	if opts.noResume {
		cfg.Backfill.EnableResume = false
	}
	if opts.noParallel {
		cfg.Backfill.EnableParallel = false
	}
	if opts.noValidate {
		cfg.Backfill.ValidateAfterCopy = false
	}
	if opts.strict {
		cfg.Backfill.FailOnTableError = true
	}
	if opts.statusAddr != "" {
		cfg.Status.Addr = opts.statusAddr
	}
}

func runBackfill(cmd *cobra.Command, args []string, global *globalOptions, opts *runOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}
	tables, err := cfg.ResolveTables(append(append([]string{}, opts.tables...), args...))
	if err != nil {
		return err
	}

	logger, closer, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(closer)

	orch := orchestrator.New(cfg, logger, orchestrator.WithConnector(newConnector(cfg, logger)))

	if cfg.Status.Addr != "" {
		srv := status.NewServer(orch, logger)
		if err := srv.Start(cfg.Status.Addr); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Failed to stop status server")
			}
		}()
	}

	stats, err := orch.Run(ctx, tables)
	if err != nil {
		return err
	}

	if err := renderRunSummary(cmd.OutOrStdout(), stats); err != nil {
		logger.Warn().Err(err).Msg("Failed to render summary")
	}

	if cfg.Backfill.FailOnTableError && stats.HasFailures() {
		return errors.New(ErrRunFailed, "backfill finished with failures", nil).
			AddContext("errors", strconv.Itoa(stats.Errors)).
			AddContext("validation_failures", strconv.Itoa(stats.ValidationFailures))
	}
	return nil
}
