package main

import (
	"context"
	"os"

	"github.com/gear6io/scylla-backfill/backfill/shutdown"
	"github.com/gear6io/scylla-backfill/cli"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

func main() {
	// Bootstrap logger until the config is loaded
	logger := setupLogger()

	ctrl := shutdown.New(context.Background(), logger)
	stopWatching := ctrl.WatchSignals()

	ctx := cli.WithLogger(ctrl.Context(), logger)
	err := cli.ExecuteWithContext(ctx)
	stopWatching()

	if err != nil {
		logger.Error().
			Str("cmd", "main").
			Str("code", errors.GetCode(err)).
			Interface("context", errors.GetContext(err)).
			Err(err).
			Msg("Backfill failed")
		os.Exit(1)
	}
}

func setupLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().
		Timestamp().
		Str("component", "backfill").
		Logger()
}
