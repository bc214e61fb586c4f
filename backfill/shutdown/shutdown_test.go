package shutdown

import (
	"context"
	stderrors "errors"
	"syscall"
	"testing"
	"time"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerStop(t *testing.T) {
	c := New(context.Background(), zerolog.Nop())
	assert.False(t, c.Stopping())
	assert.NoError(t, c.Cause())

	first := stderrors.New("operator request")
	c.Stop(first)
	c.Stop(stderrors.New("second"))

	assert.True(t, c.Stopping())
	assert.ErrorIs(t, c.Cause(), first)
	select {
	case <-c.Context().Done():
	default:
		t.Fatal("context should be cancelled")
	}
}

func TestControllerStopDefaultCause(t *testing.T) {
	c := New(context.Background(), zerolog.Nop())
	c.Stop(nil)
	assert.True(t, errors.HasCode(c.Cause(), errors.CommonCancelled))
}

func TestControllerFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	c := New(parent, zerolog.Nop())
	cancel()
	assert.True(t, c.Stopping())
}

func TestWatchSignals(t *testing.T) {
	c := New(context.Background(), zerolog.Nop())
	stop := c.WatchSignals(syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-c.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not translated into a stop")
	}
	assert.Equal(t, "user defined signal 1", errors.GetContext(c.Cause())["signal"])
}

func TestWatchSignalsStopFunc(t *testing.T) {
	c := New(context.Background(), zerolog.Nop())
	stop := c.WatchSignals(syscall.SIGUSR2)
	stop()
	stop()
	assert.False(t, c.Stopping())
}
