package rpc

import (
	"context"
	"time"

	"github.com/goliatone/go-shipment"
)

// InvokeRequest is what middleware sees of a call before the endpoint runs.
type InvokeRequest struct {
	Method   string
	Endpoint Endpoint
	Payload  any
}

type InvokeHandler func(context.Context, InvokeRequest) (any, error)

// Middleware wraps every Invoke. The first registered runs outermost.
type Middleware func(next InvokeHandler) InvokeHandler

func applyMiddleware(chain []Middleware, invoke func(context.Context, any) (any, error)) InvokeHandler {
	var h InvokeHandler = func(ctx context.Context, req InvokeRequest) (any, error) {
		return invoke(ctx, req.Payload)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i] != nil {
			h = chain[i](h)
		}
	}
	return h
}

// LoggingMiddleware logs one line per call with the method, its kind and the
// elapsed time. Failures are logged at warn with their error code.
func LoggingMiddleware(logger shipment.Logger) Middleware {
	logger = shipment.NormalizeLogger(logger)
	return func(next InvokeHandler) InvokeHandler {
		return func(ctx context.Context, req InvokeRequest) (any, error) {
			started := time.Now()
			out, err := next(ctx, req)

			fields := map[string]any{
				"method":  req.Method,
				"kind":    req.Endpoint.HandlerKind,
				"elapsed": time.Since(started).Round(time.Microsecond).String(),
			}
			if meta, ok := MetaOf(req.Payload); ok {
				if meta.RequestID != "" {
					fields["request_id"] = meta.RequestID
				}
				if meta.ActorID != "" {
					fields["actor"] = meta.ActorID
				}
			}
			log := shipment.WithLoggerFields(logger.WithContext(ctx), fields)
			if err != nil {
				log.Warn("rpc call failed code=" + shipment.ErrorCode(err) + " err=" + err.Error())
				return out, err
			}
			log.Debug("rpc call " + req.Method)
			return out, nil
		}
	}
}
