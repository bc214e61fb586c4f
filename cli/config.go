package cli

import (
	"io"
	"os"
	"strings"

	"github.com/gear6io/scylla-backfill/backfill/orchestrator"
	"github.com/gear6io/scylla-backfill/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// DefaultConfigFile is read when --config is not given and the file exists
const DefaultConfigFile = "backfill.yml"

// newConnector opens source and target clients. Tests replace it.
var newConnector = func(cfg *config.Config, logger zerolog.Logger) orchestrator.Connector {
	return orchestrator.DefaultConnector(cfg.Backfill.MaxRetries, logger)
}

// loadConfig layers defaults, the yaml file, dotenv files, the environment
// and the persistent flags. Command specific flags are applied by the caller.
func loadConfig(global *globalOptions) (*config.Config, error) {
	path := global.configFile
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	cfg := config.LoadDefaultConfig()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	envFiles := config.DefaultEnvFiles
	if global.envFile != "" {
		envFiles = []string{global.envFile}
	}
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if global.logLevel != "" {
		cfg.Log.Level = strings.ToLower(global.logLevel)
	}
	if global.checkpointDir != "" {
		cfg.Backfill.CheckpointDir = global.checkpointDir
	}
	return cfg, nil
}

// setupLogger builds the configured logger on the command's stderr
func setupLogger(cmd *cobra.Command, cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	return config.SetupLogger(&cfg.Log, cmd.ErrOrStderr())
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
