// Package linter runs an external text linter for one document at a time
// with debounce, supersession and a hard timeout, so rapid edits never pile
// up concurrent linter processes.
package linter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teranos/storyline/logger"
	"go.uber.org/zap"
)

// Default timings. DefaultDebounce is what configuration starts from; a
// Worker built with a zero Debounce runs at once.
const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultTimeout  = 30 * time.Second
)

// State is the worker's position in its request lifecycle:
//
//	idle -> debouncing -> running -> (completed | timed-out | canceled) -> idle
//
// A new Lint call in debouncing or running moves the previous request to
// canceled and starts a new debouncing window.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateRunning
	StateCompleted
	StateTimedOut
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed-out"
	case StateCanceled:
		return "canceled"
	}
	return "unknown"
}

// Config configures a Worker.
type Config struct {
	// Debounce is the quiet period before the backend runs; zero or negative
	// runs without waiting
	Debounce time.Duration

	// Timeout bounds one backend run (default DefaultTimeout)
	Timeout time.Duration

	Backend Backend
	Logger  *zap.SugaredLogger
}

// request is one Lint call; cancel ends its debounce wait or backend run
type request struct {
	id     string
	path   string
	cancel context.CancelFunc
}

// Worker serializes lint requests for one document. The most recent request
// supersedes any earlier one still debouncing or running; superseded calls
// return a Result with an empty FilePath.
type Worker struct {
	debounce time.Duration
	timeout  time.Duration
	backend  Backend
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	state    State
	last     State
	current  *request
	disposed bool
}

// NewWorker creates an idle worker.
func NewWorker(cfg Config) *Worker {
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Worker{
		debounce: cfg.Debounce,
		timeout:  cfg.Timeout,
		backend:  cfg.Backend,
		logger:   logger.OrGlobal(cfg.Logger, "linter"),
		state:    StateIdle,
		last:     StateIdle,
	}
}

// State returns the current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// LastOutcome returns the terminal state of the most recently finished request.
func (w *Worker) LastOutcome() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Lint debounces, runs the backend and parses its output. It never returns
// an error: failure, timeout and malformed output all yield an empty result
// for path, and cancellation (by a newer Lint, Cancel, Dispose or ctx)
// yields a result with an empty FilePath.
func (w *Worker) Lint(ctx context.Context, content, path string) Result {
	w.mu.Lock()
	if w.disposed || w.backend == nil {
		w.mu.Unlock()
		return canceledResult()
	}
	if w.current != nil {
		w.current.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	req := &request{id: uuid.NewString(), path: path, cancel: cancel}
	w.current = req
	w.state = StateDebouncing
	w.mu.Unlock()

	log := w.logger.With(logger.FieldRequestID, req.id, logger.FieldPath, path)
	log.Debugw("Lint requested", logger.FieldState, StateDebouncing.String())

	timer := time.NewTimer(w.debounce)
	select {
	case <-reqCtx.Done():
		timer.Stop()
		return w.finish(req, log, StateCanceled, canceledResult())
	case <-timer.C:
	}

	if !w.transition(req, StateRunning) {
		return w.finish(req, log, StateCanceled, canceledResult())
	}

	start := time.Now()
	runCtx, cancelRun := context.WithTimeout(reqCtx, w.timeout)
	defer cancelRun()

	type outcome struct {
		out []byte
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := w.backend.Run(runCtx, content, path)
		done <- outcome{out: out, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-runCtx.Done():
		// stop waiting; the backend goroutine drains into the buffered channel
	}

	if reqCtx.Err() != nil {
		return w.finish(req, log, StateCanceled, canceledResult())
	}
	if runCtx.Err() != nil {
		log.Warnw("Linter timed out",
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
			"timeout_ms", w.timeout.Milliseconds())
		return w.finish(req, log, StateTimedOut, emptyResult(path))
	}
	if o.err != nil {
		log.Warnw("Linter failed", logger.FieldError, o.err)
		return w.finish(req, log, StateCompleted, emptyResult(path))
	}

	res, err := ParseOutput(o.out, path)
	if err != nil {
		log.Warnw("Ignoring linter output", logger.FieldError, err)
	}
	log.Debugw("Lint completed",
		logger.FieldCount, len(res.Messages),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return w.finish(req, log, StateCompleted, res)
}

// transition moves the worker to s if req is still the current request.
func (w *Worker) transition(req *request, s State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != req {
		return false
	}
	w.state = s
	return true
}

// finish records the terminal state of req and returns the worker to idle
// unless a newer request has already taken over.
func (w *Worker) finish(req *request, log *zap.SugaredLogger, outcome State, res Result) Result {
	req.cancel()
	w.mu.Lock()
	if w.current == req {
		w.current = nil
		w.state = StateIdle
		w.last = outcome
	}
	w.mu.Unlock()
	if outcome == StateCanceled {
		log.Debugw("Lint canceled")
	}
	return res
}

// Cancel stops the current request, if any. Safe to call at any time.
func (w *Worker) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		w.current.cancel()
	}
}

// Dispose cancels the current request and makes every later Lint return a
// canceled result. Idempotent.
func (w *Worker) Dispose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disposed = true
	if w.current != nil {
		w.current.cancel()
	}
}
