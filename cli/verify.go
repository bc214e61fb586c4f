package cli

import (
	"context"
	"strconv"

	"github.com/gear6io/scylla-backfill/backfill/orchestrator"
	"github.com/gear6io/scylla-backfill/backfill/validator"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/spf13/cobra"
)

type verifyOptions struct {
	tables     []string
	detailed   bool
	sampleSize int
}

func newVerifyCmd(global *globalOptions) *cobra.Command {
	opts := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify [tables...]",
		Short: "Compare source and target tables without copying",
		Long: `Compare row counts between source and target for each table. With --detailed
the first rows of both sides are also compared column by column. This is a
smoke test, not a proof of equality.

Exits non-zero when any table mismatches or cannot be checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args, global, opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.tables, "tables", "t", nil, "tables to verify (comma separated or repeated)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "also compare a sample of rows")
	cmd.Flags().IntVar(&opts.sampleSize, "sample-size", 0, "rows compared per table with --detailed (default from config, 100)")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string, global *globalOptions, opts *verifyOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("sample-size") {
		cfg.Backfill.SampleSize = opts.sampleSize
	}
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

	connect := newConnector(cfg, logger)
	source, err := connect(ctx, orchestrator.RoleSource, cfg.Source)
	if err != nil {
		return err
	}
	defer source.Close()
	target, err := connect(ctx, orchestrator.RoleTarget, cfg.Target)
	if err != nil {
		return err
	}
	defer target.Close()

	v := validator.New(source, target, cfg.Backfill.SampleSize, logger)

	results := make([]verifyResult, 0, len(tables))
	failed := 0
	for _, table := range tables {
		if ctx.Err() != nil {
			break
		}
		var report *validator.Report
		if opts.detailed {
			report, err = v.Compare(ctx, table)
		} else {
			report, err = v.CountOnly(ctx, table)
		}
		if err != nil || !report.Match {
			failed++
		}
		results = append(results, verifyResult{table: table, report: report, err: err})
	}

	if err := renderVerifyReport(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	if failed > 0 {
		return errors.New(ErrVerifyFailed, "verification failed", nil).
			AddContext("failed_tables", strconv.Itoa(failed))
	}
	return nil
}
