package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Context key types to avoid collisions
type contextKey string

const loggerKey contextKey = "logger"

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configFile    string
	envFile       string
	logLevel      string
	checkpointDir string
}

func newRootCmd() *cobra.Command {
	global := &globalOptions{}
	run := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "backfill [tables...]",
		Short: "Copy tables from a source ScyllaDB cluster to a target",
		Long: `backfill streams every row of the configured tables from a source store to a
target store with the same schema. Progress is checkpointed so an interrupted
run resumes, batches can be applied in parallel, and each copied table is
verified against the source.

Running backfill without a subcommand is the same as "backfill run".`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd, args, global, run)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&global.configFile, "config", "c", "", "yaml config file (default backfill.yml when present)")
	rootCmd.PersistentFlags().StringVar(&global.envFile, "env-file", "", "dotenv file to load (default proto_backfill.env, then .env)")
	rootCmd.PersistentFlags().StringVar(&global.logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&global.checkpointDir, "checkpoint-dir", "", "directory holding checkpoint records")
	addRunFlags(rootCmd, run)

	rootCmd.AddCommand(newRunCmd(global))
	rootCmd.AddCommand(newVerifyCmd(global))
	rootCmd.AddCommand(newCheckpointsCmd(global))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return ExecuteWithContext(context.Background())
}

// ExecuteWithContext runs the root command. Cancelling ctx asks a running
// backfill to stop after the current table.
func ExecuteWithContext(ctx context.Context) error {
	logger := getLoggerFromContext(ctx)
	logger.Debug().Str("cmd", "root").Msg("Executing root command")
	return newRootCmd().ExecuteContext(ctx)
}

// WithLogger stores the bootstrap logger used before the config is loaded
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// getLoggerFromContext retrieves the logger from context
func getLoggerFromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
			return logger
		}
	}
	return zerolog.Nop()
}
