package dbclient

import (
	"context"
	"database/sql"

	"github.com/cenkalti/backoff/v4"
	"github.com/gear6io/scylla-backfill/config"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

// Open connects to the store described by cfg, retrying transient
// connection failures. Every failure is reported as ErrConnectionFailed.
func Open(ctx context.Context, cfg config.DatabaseConfig, retry *RetryConfig, logger zerolog.Logger) (Client, error) {
	if retry == nil {
		retry = DefaultRetryConfig()
	}

	var client Client
	connect := func(ctx context.Context) error {
		c, err := open(ctx, cfg, logger)
		if err != nil {
			if errors.HasCode(err, ErrUnsupportedDriver) {
				return backoff.Permanent(err)
			}
			return err
		}
		client = c
		return nil
	}

	if err := RetryWithBackoff(ctx, retry, connect, logger); err != nil {
		return nil, errors.New(ErrConnectionFailed, "failed to connect", err).
			AddContext("driver", cfg.Driver).
			AddContext("keyspace", cfg.Keyspace)
	}
	return client, nil
}

func open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (Client, error) {
	if cfg.Driver == config.DriverCQL {
		client, err := NewCQLClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	name, ok := sqlDriverNames[cfg.Driver]
	if !ok {
		return nil, errors.New(ErrUnsupportedDriver, "unsupported driver", nil).AddContext("driver", cfg.Driver)
	}
	db, err := sql.Open(name, cfg.DSN)
	if err != nil {
		return nil, errors.New(ErrConnectionFailed, "failed to open database", err).AddContext("driver", cfg.Driver)
	}
	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.New(ErrConnectionFailed, "failed to reach database", err).AddContext("driver", cfg.Driver)
	}
	client, err := NewSQLClient(db, cfg.Driver, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}
