package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned when every worker is busy and the queue is at capacity.
	ErrQueueFull = errors.New("job queue full")

	// ErrDispatcherClosed is returned after Shutdown.
	ErrDispatcherClosed = errors.New("dispatcher closed")

	// ErrJobTimeout is reported when a job outlives the dispatcher timeout.
	ErrJobTimeout = errors.New("job timed out")
)

// Task is the unit of background work. ctx carries the per-job timeout.
type Task func(ctx context.Context) error

type queuedTask struct {
	id   string
	run  Task
	done func(error)
}

// Dispatcher runs tasks on a fixed pool of workers fed by a bounded queue.
// Panics are recovered and reported to the task's done callback as errors.
type Dispatcher struct {
	queue   chan queuedTask
	timeout time.Duration
	logger  zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers immediately. A zero timeout leaves jobs unbounded.
func NewDispatcher(workers, queueSize int, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	base, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:   make(chan queuedTask, queueSize),
		timeout: timeout,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		base:    base,
		cancel:  cancel,
	}

	// Start job queue processors
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.processQueue(i)
	}
	return d
}

// Dispatch enqueues a task without blocking. done is called exactly once with
// the task result, but only if Dispatch returned nil.
func (d *Dispatcher) Dispatch(id string, run Task, done func(error)) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- queuedTask{id: id, run: run, done: done}:
		d.logger.Debug().Str("job", id).Int("queued", len(d.queue)).Msg("job queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for queued jobs to drain.
// When ctx expires first, running jobs are cancelled and Shutdown waits for them to return.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.logger.Warn().Msg("shutdown deadline reached, cancelling running jobs")
		d.cancel()
		<-drained
		return ctx.Err()
	}
}

// processQueue processes jobs from the queue
func (d *Dispatcher) processQueue(worker int) {
	defer d.wg.Done()
	for task := range d.queue {
		start := time.Now()
		d.logger.Info().Str("job", task.id).Int("worker", worker).Msg("job started")

		err := d.execute(task)

		event := d.logger.Info()
		if err != nil {
			event = d.logger.Error().Err(err)
		}
		event.Str("job", task.id).Dur("took", time.Since(start)).Msg("job finished")

		if task.done != nil {
			task.done(err)
		}
	}
}

func (d *Dispatcher) execute(task queuedTask) (err error) {
	ctx := d.base
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("job", task.id).Str("stack", string(debug.Stack())).Msg("job panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	err = task.run(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrJobTimeout, d.timeout, err)
	}
	return err
}
