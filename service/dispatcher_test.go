package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish")
		return nil
	}
}

func TestDispatcherRunsTasks(t *testing.T) {
	d := NewDispatcher(2, 4, 0, zerolog.Nop())
	defer d.Shutdown(context.Background())

	done := make(chan error, 1)
	require.NoError(t, d.Dispatch("job-1", func(context.Context) error { return nil }, func(err error) { done <- err }))
	assert.NoError(t, waitResult(t, done))

	boom := errors.New("boom")
	require.NoError(t, d.Dispatch("job-2", func(context.Context) error { return boom }, func(err error) { done <- err }))
	assert.ErrorIs(t, waitResult(t, done), boom)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(1, 1, 0, zerolog.Nop())
	defer d.Shutdown(context.Background())

	done := make(chan error, 1)
	require.NoError(t, d.Dispatch("job-1", func(context.Context) error { panic("kaboom") }, func(err error) { done <- err }))
	assert.EqualError(t, waitResult(t, done), "panic: kaboom")

	// The worker survives the panic.
	require.NoError(t, d.Dispatch("job-2", func(context.Context) error { return nil }, func(err error) { done <- err }))
	assert.NoError(t, waitResult(t, done))
}

func TestDispatcherTimeout(t *testing.T) {
	d := NewDispatcher(1, 1, 50*time.Millisecond, zerolog.Nop())
	defer d.Shutdown(context.Background())

	done := make(chan error, 1)
	require.NoError(t, d.Dispatch("job-1", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, func(err error) { done <- err }))

	err := waitResult(t, done)
	assert.ErrorIs(t, err, ErrJobTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(1, 0, 0, zerolog.Nop())
	defer d.Shutdown(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	require.Eventually(t, func() bool {
		return d.Dispatch("busy", func(context.Context) error {
			close(started)
			<-release
			return nil
		}, func(err error) { done <- err }) == nil
	}, time.Second, 5*time.Millisecond)
	<-started

	err := d.Dispatch("overflow", func(context.Context) error { return nil }, nil)
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	assert.NoError(t, waitResult(t, done))
}

func TestDispatcherShutdownDrainsQueue(t *testing.T) {
	d := NewDispatcher(1, 8, 0, zerolog.Nop())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Dispatch("job", func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
			return nil
		}, nil))
	}

	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, int32(5), ran.Load())
	assert.ErrorIs(t, d.Dispatch("late", func(context.Context) error { return nil }, nil), ErrDispatcherClosed)
}

func TestDispatcherShutdownDeadlineCancelsJobs(t *testing.T) {
	d := NewDispatcher(1, 1, 0, zerolog.Nop())

	started := make(chan struct{})
	done := make(chan error, 1)
	require.NoError(t, d.Dispatch("stuck", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, func(err error) { done <- err }))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
	assert.ErrorIs(t, waitResult(t, done), context.Canceled)
}
