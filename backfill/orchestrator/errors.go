package orchestrator

import "github.com/gear6io/scylla-backfill/pkg/errors"

// orchestrator error codes
var (
	ErrInitFailed = errors.MustNewCode("orchestrator.init_failed")
)
