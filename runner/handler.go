package runner

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type Option func(*Handler)

func WithTimeout(t time.Duration) Option {
	return func(r *Handler) {
		r.timeout = t
	}
}

func WithMaxRetries(max int) Option {
	return func(r *Handler) {
		if max < 0 {
			max = 0
		}
		r.maxRetries = max
	}
}

func WithErrorHandler(h func(error)) Option {
	return func(r *Handler) {
		if h == nil {
			h = func(err error) {}
		}
		r.errorHandler = h
	}
}

func WithLogger(l Logger) Option {
	return func(r *Handler) {
		r.logger = l
	}
}

// WithRetryStrategy lets you define a custom retry/backoff approach.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(r *Handler) {
		r.retryStrategy = s
	}
}

// WithRetryable restricts retries to errors accepted by fn.
func WithRetryable(fn func(error) bool) Option {
	return func(r *Handler) {
		r.retryable = fn
	}
}

// Handler runs a function under a per-attempt timeout with bounded retries.
type Handler struct {
	mu sync.Mutex

	logger        Logger
	errorHandler  func(error)
	retryStrategy RetryStrategy
	retryable     func(error) bool

	runs           int
	successfulRuns int

	maxRetries int
	timeout    time.Duration
}

// NewHandler constructs a Handler from various options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	r := &Handler{
		errorHandler:  func(err error) {},
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	return r
}

// Run calls fn until it succeeds or the retry budget is spent. The returned
// error is the last attempt's error.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	retryable := h.retryable
	h.mu.Unlock()

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = h.attempt(ctx, fn)
		if err == nil {
			break
		}
		if ctx.Err() != nil || (retryable != nil && !retryable(err)) {
			break
		}

		if attempt < maxRetries {
			h.handleError(fmt.Errorf("run failed, attempt %d of %d: %w", attempt+1, maxRetries+1, err))
			if strategy != nil {
				if serr := Sleep(ctx, strategy.SleepDuration(attempt, err)); serr != nil {
					err = serr
					break
				}
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs++
	if err == nil {
		h.successfulRuns++
		return nil
	}
	h.logError("run failed after %d attempts: %v", maxRetries+1, err)
	return err
}

func (h *Handler) attempt(ctx context.Context, fn func(context.Context) error) error {
	if h.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return fn(ctx)
}

// Stats returns total and successful run counts.
func (h *Handler) Stats() (runs, successful int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, h.successfulRuns
}

func (h *Handler) handleError(err error) {
	h.errorHandler(err)
}

func (h *Handler) logError(format string, args ...any) {
	if h.logger != nil {
		h.logger.Error(format, args...)
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunQuery runs fn through h and returns its result.
func RunQuery[R any](ctx context.Context, h *Handler, fn func(context.Context) (R, error)) (R, error) {
	var result R
	err := h.Run(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
