package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/runner"
	"golang.org/x/time/rate"
)

// ErrPermanent marks failures that repeating the call cannot fix.
var ErrPermanent = errors.New("gateway: permanent failure")

// Permanent wraps err so Resilient gives up after the first attempt.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func retryable(err error) bool {
	return !errors.Is(err, ErrPermanent) && !shipment.HasCode(err, shipment.ErrCodeValidation)
}

// Resilient wraps a Gateway with a per-call timeout, transparent retries and
// an optional rate limit. Errors that survive the retry budget come back as
// shipment.ErrGatewayFailure.
type Resilient struct {
	next    Gateway
	limiter *rate.Limiter
	logger  shipment.Logger

	timeout  time.Duration
	retries  int
	strategy runner.RetryStrategy
}

type ResilientOption func(*Resilient)

func WithCallTimeout(d time.Duration) ResilientOption {
	return func(r *Resilient) {
		r.timeout = d
	}
}

func WithRetries(n int, strategy runner.RetryStrategy) ResilientOption {
	return func(r *Resilient) {
		r.retries = n
		if strategy != nil {
			r.strategy = strategy
		}
	}
}

// WithRateLimit allows perSecond calls with the given burst. Zero disables it.
func WithRateLimit(perSecond float64, burst int) ResilientOption {
	return func(r *Resilient) {
		if perSecond <= 0 {
			r.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithGatewayLogger(l shipment.Logger) ResilientOption {
	return func(r *Resilient) {
		r.logger = l
	}
}

func NewResilient(next Gateway, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		next:     next,
		timeout:  10 * time.Second,
		retries:  2,
		strategy: runner.ExponentialBackoffStrategy{Base: 100 * time.Millisecond, Factor: 2, Max: 2 * time.Second},
		logger:   shipment.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Resilient) Invoke(ctx context.Context, req Request) (Result, error) {
	logger := shipment.WithLoggerFields(r.logger.WithContext(ctx), map[string]any{
		"shipment_id": req.ShipmentID,
		"check":       string(req.Check),
		"attempt":     req.Attempt,
	})

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Result{}, shipment.GatewayFailure(string(req.Check), err)
		}
	}

	h := runner.NewHandler(
		runner.WithTimeout(r.timeout),
		runner.WithMaxRetries(r.retries),
		runner.WithRetryStrategy(r.strategy),
		runner.WithRetryable(retryable),
		runner.WithErrorHandler(func(err error) {
			logger.Warn("external operation retry: %v", err)
		}),
	)

	res, err := runner.RunQuery(ctx, h, func(ctx context.Context) (Result, error) {
		return r.next.Invoke(ctx, req)
	})
	if err != nil {
		logger.Error("external operation failed: %v", err)
		return Result{}, shipment.GatewayFailure(string(req.Check), err)
	}
	logger.Trace("external operation completed ok=%t", res.OK)
	return res, nil
}
