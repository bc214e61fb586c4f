package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gear6io/scylla-backfill/backfill/checkpoint"
	"github.com/gear6io/scylla-backfill/config"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newCheckpointsCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoints",
		Aliases: []string{"cp"},
		Short:   "Inspect and clear saved checkpoints",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tables with a saved checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, global, func(ctx context.Context, store checkpoint.Store, _ zerolog.Logger) error {
				cps, err := store.List(ctx)
				if err != nil {
					return err
				}
				if len(cps) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints found")
					return nil
				}
				return renderCheckpoints(cmd.OutOrStdout(), cps)
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <table>",
		Short: "Print the checkpoint of one table as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, global, func(ctx context.Context, store checkpoint.Store, _ zerolog.Logger) error {
				cp := store.Load(ctx, args[0])
				if cp == nil {
					return errors.New(ErrCheckpointNotFound, "no checkpoint for table", nil).AddContext("table", args[0])
				}
				data, err := json.MarshalIndent(cp, "", "  ")
				if err != nil {
					return errors.New(ErrRenderFailed, "failed to encode checkpoint", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}

	var all bool
	clearCmd := &cobra.Command{
		Use:   "clear [tables...]",
		Short: "Delete checkpoints so the next run starts from scratch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, global, func(ctx context.Context, store checkpoint.Store, logger zerolog.Logger) error {
				tables := args
				if all {
					cps, err := store.List(ctx)
					if err != nil {
						return err
					}
					tables = nil
					for _, cp := range cps {
						tables = append(tables, cp.TableName)
					}
				}
				if len(tables) == 0 {
					if all {
						fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints found")
						return nil
					}
					return errors.New(ErrNothingToClear, "name at least one table or pass --all", nil)
				}
				for _, table := range tables {
					if err := store.Clear(ctx, table); err != nil {
						return err
					}
					logger.Info().Str("table", table).Msg("Cleared checkpoint")
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared checkpoint for %s\n", table)
				}
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVar(&all, "all", false, "clear every saved checkpoint")

	cmd.AddCommand(listCmd, showCmd, clearCmd)
	return cmd
}

// withStore opens the configured checkpoint store around fn. Only the
// backfill section of the config is validated; no database is contacted.
func withStore(cmd *cobra.Command, global *globalOptions, fn func(context.Context, checkpoint.Store, zerolog.Logger) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if err := cfg.Backfill.Validate(); err != nil {
		return errors.New(config.ErrBackfillValidationFailed, "backfill validation failed", err)
	}

	logger, closer, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(closer)

	store, err := checkpoint.Open(ctx, cfg.Backfill, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, store, logger)
}
