package shipment

import (
	"context"
	"time"
)

// Commander handles a message that changes shipment state.
type Commander[T any] interface {
	Execute(ctx context.Context, msg T) error
}

// CommandFunc adapts a function to Commander.
type CommandFunc[T any] func(ctx context.Context, msg T) error

func (f CommandFunc[T]) Execute(ctx context.Context, msg T) error { return f(ctx, msg) }

// Querier answers a message without side effects.
type Querier[T, R any] interface {
	Query(ctx context.Context, msg T) (R, error)
}

// QueryFunc adapts a function to Querier.
type QueryFunc[T, R any] func(ctx context.Context, msg T) (R, error)

func (f QueryFunc[T, R]) Query(ctx context.Context, msg T) (R, error) { return f(ctx, msg) }

// HandlerConfig bounds one handler or scheduled job. Expression is a cron
// spec and only applies to scheduled jobs.
type HandlerConfig struct {
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	Expression string        `json:"expression" yaml:"expression"`
}
