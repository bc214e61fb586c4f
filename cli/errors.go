package cli

import "github.com/gear6io/scylla-backfill/pkg/errors"

// cli error codes
var (
	ErrRunFailed          = errors.MustNewCode("cli.run_failed")
	ErrVerifyFailed       = errors.MustNewCode("cli.verify_failed")
	ErrCheckpointNotFound = errors.MustNewCode("cli.checkpoint_not_found")
	ErrNothingToClear     = errors.MustNewCode("cli.nothing_to_clear")
	ErrRenderFailed       = errors.MustNewCode("cli.render_failed")
)
