package rpc

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/goliatone/go-shipment"
)

// RequestMeta is transport metadata that travels with every request.
type RequestMeta struct {
	ActorID       string            `json:"actorId,omitempty"`
	RequestID     string            `json:"requestId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
}

// RequestEnvelope wraps the message a method accepts.
type RequestEnvelope[T any] struct {
	Data T           `json:"data"`
	Meta RequestMeta `json:"meta,omitempty"`
}

func (e *RequestEnvelope[T]) requestMeta() *RequestMeta { return &e.Meta }

type metaCarrier interface {
	requestMeta() *RequestMeta
}

// MetaOf returns the metadata of a request envelope payload.
func MetaOf(payload any) (RequestMeta, bool) {
	switch p := payload.(type) {
	case metaCarrier:
		if reflect.ValueOf(p).IsNil() {
			return RequestMeta{}, false
		}
		return *p.requestMeta(), true
	case nil:
		return RequestMeta{}, false
	}
	v := reflect.ValueOf(payload)
	if v.Kind() == reflect.Struct {
		if f := v.FieldByName("Meta"); f.IsValid() {
			meta, ok := f.Interface().(RequestMeta)
			return meta, ok
		}
	}
	return RequestMeta{}, false
}

// Error is the wire form of a failed call.
type Error struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Category string         `json:"category,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

type ResponseEnvelope[T any] struct {
	Data  T      `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ErrorFrom maps err through the shipment transport table. Category carries
// the gRPC code name.
func ErrorFrom(err error) *Error {
	env := shipment.RPCErrorForError(err)
	if env == nil {
		return nil
	}
	code := env.Code
	if rpcCode := shipment.ErrorCode(err); rpcCode == ErrCodeMethodNotFound || rpcCode == ErrCodeMethodRequired {
		code = rpcCode
	}
	return &Error{
		Code:     code,
		Message:  env.Message,
		Category: shipment.MapRuntimeError(err).GRPCCode,
		Details:  env.Metadata,
	}
}

// MethodKind is whether a method changes a shipment or only reads it.
type MethodKind string

const (
	MethodKindCommand MethodKind = HandlerKindExecute
	MethodKindQuery   MethodKind = HandlerKindQuery
)

// EndpointSpec is the metadata a method is registered with. An empty
// MessageType is filled from the request data type.
type EndpointSpec struct {
	Method      string
	MessageType string
	Kind        MethodKind
	Timeout     time.Duration
	Idempotent  bool
	Summary     string
	Tags        []string
}

// EndpointDefinition is what the server needs to publish and run a method.
type EndpointDefinition interface {
	Spec() EndpointSpec
	NewRequest() any
	RequestType() reflect.Type
	ResponseType() reflect.Type
	Invoke(context.Context, any) (any, error)
}

type typedEndpoint[Req, Res any] struct {
	spec    EndpointSpec
	handler func(context.Context, RequestEnvelope[Req]) (ResponseEnvelope[Res], error)
}

// NewEndpoint binds handler to spec. Request data is validated with
// shipment.ValidateMessage before handler runs.
func NewEndpoint[Req, Res any](
	spec EndpointSpec,
	handler func(context.Context, RequestEnvelope[Req]) (ResponseEnvelope[Res], error),
) EndpointDefinition {
	spec.Tags = cloneStrings(spec.Tags)
	return &typedEndpoint[Req, Res]{spec: spec, handler: handler}
}

func (e *typedEndpoint[Req, Res]) Spec() EndpointSpec {
	spec := e.spec
	spec.Tags = cloneStrings(spec.Tags)
	return spec
}

func (e *typedEndpoint[Req, Res]) NewRequest() any { return &RequestEnvelope[Req]{} }

func (e *typedEndpoint[Req, Res]) RequestType() reflect.Type {
	return reflect.TypeFor[*RequestEnvelope[Req]]()
}

func (e *typedEndpoint[Req, Res]) ResponseType() reflect.Type {
	return reflect.TypeFor[ResponseEnvelope[Res]]()
}

func (e *typedEndpoint[Req, Res]) Invoke(ctx context.Context, payload any) (any, error) {
	if e.handler == nil {
		return nil, fmt.Errorf("rpc method %q has no handler", e.spec.Method)
	}
	v, err := coerce(e.RequestType(), payload)
	if err != nil {
		return nil, err
	}
	req, _ := v.Interface().(*RequestEnvelope[Req])
	if req == nil {
		req = &RequestEnvelope[Req]{}
	}
	if err := shipment.ValidateMessage(req.Data); err != nil {
		return nil, err
	}
	return e.handler(ctx, *req)
}
