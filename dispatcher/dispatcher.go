// Package dispatcher routes command and query messages to their handlers by
// message type.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/runner"
)

// Dispatcher holds the handlers registered per message type. Commands fan
// out to every handler; queries need exactly one.
type Dispatcher struct {
	mu        sync.RWMutex
	handlers  map[string][]any
	exitOnErr bool
}

type Option func(*Dispatcher)

// WithExitOnError stops a command dispatch at the first failing handler.
func WithExitOnError() Option {
	return func(d *Dispatcher) { d.exitOnErr = true }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{handlers: map[string][]any{}}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Default serves calls made with a nil *Dispatcher.
var Default = NewDispatcher()

func orDefault(d *Dispatcher) *Dispatcher {
	if d == nil {
		return Default
	}
	return d
}

func (d *Dispatcher) RegisterHandler(msgType string, handler any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = append(d.handlers[msgType], handler)
}

// GetHandlers returns a copy of the handlers for msgType.
func (d *Dispatcher) GetHandlers(msgType string) []any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]any(nil), d.handlers[msgType]...)
}

type commandWrapper[T shipment.Message] struct {
	runner *runner.Handler
	cmd    shipment.Commander[T]
}

type queryWrapper[T shipment.Message, R any] struct {
	runner *runner.Handler
	qry    shipment.Querier[T, R]
}

func subscribe[T shipment.Message](d *Dispatcher, wrapper any) Subscription {
	d = orDefault(d)
	msgType := typeOf[T]()
	d.RegisterHandler(msgType, wrapper)
	return &registration{dispatcher: d, msgType: msgType, handler: wrapper}
}

// SubscribeCommand registers cmd for the message type of T. runnerOpts
// bound each execution.
func SubscribeCommand[T shipment.Message](d *Dispatcher, cmd shipment.Commander[T], runnerOpts ...runner.Option) Subscription {
	return subscribe[T](d, &commandWrapper[T]{runner: runner.NewHandler(runnerOpts...), cmd: cmd})
}

func SubscribeCommandFunc[T shipment.Message](d *Dispatcher, handler shipment.CommandFunc[T], runnerOpts ...runner.Option) Subscription {
	return SubscribeCommand[T](d, handler, runnerOpts...)
}

// SubscribeQuery registers qry for T. A second query handler for the same
// type makes Query fail as ambiguous.
func SubscribeQuery[T shipment.Message, R any](d *Dispatcher, qry shipment.Querier[T, R], runnerOpts ...runner.Option) Subscription {
	return subscribe[T](d, &queryWrapper[T, R]{runner: runner.NewHandler(runnerOpts...), qry: qry})
}

func SubscribeQueryFunc[T shipment.Message, R any](d *Dispatcher, qry shipment.QueryFunc[T, R], runnerOpts ...runner.Option) Subscription {
	return SubscribeQuery[T, R](d, qry, runnerOpts...)
}

func typeOf[T shipment.Message]() string {
	var zero T
	return zero.Type()
}

// handlersOf returns the handlers for msgType that are of type W.
func handlersOf[W any](d *Dispatcher, msgType string) ([]W, error) {
	registered := d.GetHandlers(msgType)
	if len(registered) == 0 {
		return nil, fmt.Errorf("no handlers for message type %s", msgType)
	}
	out := make([]W, 0, len(registered))
	for _, h := range registered {
		w, ok := h.(W)
		if !ok {
			return nil, fmt.Errorf("handler registered for %s has type %T", msgType, h)
		}
		out = append(out, w)
	}
	return out, nil
}

func contextDone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return shipment.WrapError("ContextError", "context canceled or deadline exceeded", err)
	}
	return nil
}

// Dispatch validates msg and runs every command handler registered for T.
// Handler errors are joined unless the dispatcher exits on the first one.
func Dispatch[T shipment.Message](ctx context.Context, d *Dispatcher, msg T) error {
	d = orDefault(d)
	if err := shipment.ValidateMessage(msg); err != nil {
		return err
	}
	wrappers, err := handlersOf[*commandWrapper[T]](d, msg.Type())
	if err != nil {
		return shipment.WrapError("DispatchHandlerError", err.Error(), err)
	}
	if err := contextDone(ctx); err != nil {
		return err
	}

	var errs error
	for _, w := range wrappers {
		err := w.runner.Run(ctx, func(ctx context.Context) error {
			return w.cmd.Execute(ctx, msg)
		})
		if err == nil {
			continue
		}
		if d.exitOnErr {
			return shipment.WrapError("HandlerExecutionFailed", "handler failed for type "+msg.Type(), err)
		}
		errs = errors.Join(errs, err)
	}
	return errs
}

// Query validates msg and runs the single query handler registered for T.
func Query[T shipment.Message, R any](ctx context.Context, d *Dispatcher, msg T) (R, error) {
	d = orDefault(d)
	var zero R
	if err := shipment.ValidateMessage(msg); err != nil {
		return zero, err
	}
	wrappers, err := handlersOf[*queryWrapper[T, R]](d, msg.Type())
	if err == nil && len(wrappers) > 1 {
		err = fmt.Errorf("%d query handlers for message type %s, ambiguous query", len(wrappers), msg.Type())
	}
	if err != nil {
		return zero, shipment.WrapError("QueryHandlerError", err.Error(), err)
	}
	if err := contextDone(ctx); err != nil {
		return zero, err
	}

	qw := wrappers[0]
	result, err := runner.RunQuery(ctx, qw.runner, func(ctx context.Context) (R, error) {
		return qw.qry.Query(ctx, msg)
	})
	if err != nil {
		return zero, shipment.WrapError("HandlerExecutionFailed", "query handler failed for type "+msg.Type(), err)
	}
	return result, nil
}
