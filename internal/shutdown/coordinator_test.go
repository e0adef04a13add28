package shutdown_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/mvrp/internal/adapters/logging"
	"github.com/sufield/mvrp/internal/shutdown"
)

type fakeServer struct {
	stopped atomic.Int32
	block   bool
	err     error
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.stopped.Add(1)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func TestCoordinator_StopsServersThenCleansUp(t *testing.T) {
	t.Parallel()

	var order []string
	var started, completed atomic.Bool
	c := shutdown.NewCoordinator(shutdown.Config{
		Logger:             logging.Discard(),
		OnShutdownStart:    func() { started.Store(true) },
		OnShutdownComplete: func(err error) { completed.Store(err == nil) },
	})

	a, b := &fakeServer{}, &fakeServer{}
	c.RegisterServer("mvrp", a)
	c.RegisterServer("metrics", b)
	c.RegisterCleanupFunc(func() error { order = append(order, "first"); return nil })
	c.RegisterCleanupFunc(func() error { order = append(order, "second"); return nil })

	require.NoError(t, c.Shutdown(context.Background()))

	assert.Equal(t, int32(1), a.stopped.Load())
	assert.Equal(t, int32(1), b.stopped.Load())
	assert.Equal(t, []string{"second", "first"}, order)
	assert.True(t, started.Load())
	assert.True(t, completed.Load())
}

func TestCoordinator_GracePeriodBoundsServers(t *testing.T) {
	t.Parallel()

	c := shutdown.NewCoordinator(shutdown.Config{GracePeriod: 20 * time.Millisecond, Logger: logging.Discard()})
	c.RegisterServer("stuck", &fakeServer{block: true})

	start := time.Now()
	err := c.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "stop stuck")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCoordinator_JoinsErrorsAndRunsOnce(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c := shutdown.NewCoordinator(shutdown.Config{Logger: logging.Discard()})
	s := &fakeServer{err: boom}
	c.RegisterServer("mvrp", s)
	c.RegisterCleanupFunc(func() error { return errors.New("flush failed") })

	err := c.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "flush failed")

	assert.Equal(t, err, c.Shutdown(context.Background()))
	assert.Equal(t, int32(1), s.stopped.Load())
}

func TestCoordinator_IgnoresLateRegistrations(t *testing.T) {
	t.Parallel()

	c := shutdown.NewCoordinator(shutdown.Config{Logger: logging.Discard()})
	require.NoError(t, c.Shutdown(context.Background()))

	late := &fakeServer{}
	c.RegisterServer("late", late)
	c.RegisterServer("nil", nil)
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Zero(t, late.stopped.Load())
}
