// Package remote builds and executes the shell and FTP operations that move
// save directories between the server and devices.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrCommandFailed is returned when a command wrote disqualifying output to stderr.
var ErrCommandFailed = errors.New("failure in command")

// ErrCommandTimeout is returned when a command outlived the runner timeout.
var ErrCommandTimeout = errors.New("command timed out")

// connectionClosed marks a dropped control connection. Lenient runs only fail on it.
const connectionClosed = "Connection closed"

// waitDelay bounds how long Wait keeps reading pipes after the process is killed.
const waitDelay = 5 * time.Second

// Journal receives the per-job command log.
type Journal interface {
	Append(ctx context.Context, jobID, line string) error
}

// Runner executes one shell command line.
// jobID may be empty, in which case nothing is journaled.
type Runner interface {
	Run(ctx context.Context, jobID, cmd string, lenient bool) error
}

// ShellRunner runs commands through bash and classifies their outcome.
type ShellRunner struct {
	Shell   string
	Timeout time.Duration

	journal Journal
	logger  zerolog.Logger
}

// NewShellRunner creates a runner. A zero timeout leaves commands unbounded.
func NewShellRunner(journal Journal, timeout time.Duration, logger zerolog.Logger) *ShellRunner {
	return &ShellRunner{
		Shell:   "bash",
		Timeout: timeout,
		journal: journal,
		logger:  logger.With().Str("component", "runner").Logger(),
	}
}

// Run spawns cmd and streams its output into the job journal.
//
// Any stderr line fails the command unless lenient is set and the line does
// not report a closed connection. The first disqualifying line kills the
// process. A non-zero exit without disqualifying stderr is logged but tolerated.
func (r *ShellRunner) Run(ctx context.Context, jobID, cmd string, lenient bool) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	// Journal writes must survive the command being killed.
	logCtx := context.WithoutCancel(ctx)

	r.logger.Debug().Str("cmd", cmd).Msg("?")
	r.record(logCtx, jobID, "CMD: "+cmd)

	var (
		failed    atomic.Bool
		firstErr  string
		firstOnce sync.Once
	)

	proc := exec.CommandContext(runCtx, r.Shell, "-c", cmd)
	proc.WaitDelay = waitDelay
	stdout := &lineWriter{emit: func(line string) {
		r.record(logCtx, jobID, "STDOUT: "+line)
	}}
	stderr := &lineWriter{emit: func(line string) {
		r.record(logCtx, jobID, "STDERR: "+line)
		if lenient && !strings.Contains(line, connectionClosed) {
			return
		}
		firstOnce.Do(func() { firstErr = line })
		if failed.CompareAndSwap(false, true) {
			abort()
		}
	}}
	proc.Stdout = stdout
	proc.Stderr = stderr

	if err := proc.Start(); err != nil {
		r.record(logCtx, jobID, "EXIT: unknown (failure)")
		return fmt.Errorf("start %q: %w", cmd, err)
	}
	waitErr := proc.Wait()
	stdout.Flush()
	stderr.Flush()

	code := "unknown"
	if proc.ProcessState != nil {
		code = fmt.Sprint(proc.ProcessState.ExitCode())
	}

	switch {
	case failed.Load():
		r.logger.Error().Str("cmd", cmd).Str("stderr", firstErr).Msg("N")
		r.record(logCtx, jobID, fmt.Sprintf("EXIT: %s (failure)", code))
		return fmt.Errorf("%w: %s", ErrCommandFailed, firstErr)
	case ctx.Err() != nil:
		r.logger.Error().Str("cmd", cmd).Err(ctx.Err()).Msg("N")
		r.record(logCtx, jobID, fmt.Sprintf("EXIT: %s (failure)", code))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %s", ErrCommandTimeout, r.Timeout, cmd)
		}
		return ctx.Err()
	case waitErr == nil:
		r.logger.Info().Str("cmd", cmd).Msg("Y")
		r.record(logCtx, jobID, "EXIT: 0 (ok)")
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		r.logger.Warn().Str("cmd", cmd).Int("exit", exitErr.ExitCode()).Msg("~")
		r.record(logCtx, jobID, fmt.Sprintf("EXIT: %s (non-zero)", code))
		return nil
	}
	r.record(logCtx, jobID, fmt.Sprintf("EXIT: %s (failure)", code))
	return fmt.Errorf("wait %q: %w", cmd, waitErr)
}

func (r *ShellRunner) record(ctx context.Context, jobID, line string) {
	if jobID == "" || r.journal == nil {
		return
	}
	if err := r.journal.Append(ctx, jobID, line); err != nil {
		r.logger.Warn().Err(err).Str("job", jobID).Msg("failed to append job log")
	}
}

// lineWriter splits a byte stream into lines. exec feeds each stream from
// a single goroutine, the mutex only guards Flush racing a late Write.
type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf.Next(i+1)), "\r\n")
		w.emit(line)
	}
	return len(p), nil
}

// Flush emits a trailing line that had no newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() == 0 {
		return
	}
	line := strings.TrimRight(w.buf.String(), "\r\n")
	w.buf.Reset()
	w.emit(line)
}
