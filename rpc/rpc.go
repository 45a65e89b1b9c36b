// Package rpc publishes shipment commands and queries as named methods that
// transports can decode into and invoke.
package rpc

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

const (
	HandlerKindExecute = "execute"
	HandlerKindQuery   = "query"
)

// Endpoint is the published metadata of one method.
type Endpoint struct {
	Method       string        `json:"method"`
	MessageType  string        `json:"messageType"`
	HandlerKind  string        `json:"handlerKind"`
	RequestType  *TypeRef      `json:"requestType,omitempty"`
	ResponseType *TypeRef      `json:"responseType,omitempty"`
	Timeout      time.Duration `json:"timeout"`
	Idempotent   bool          `json:"idempotent"`
	Summary      string        `json:"summary,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
}

func (e Endpoint) clone() Endpoint {
	e.Tags = cloneStrings(e.Tags)
	e.RequestType = e.RequestType.clone()
	e.ResponseType = e.ResponseType.clone()
	return e
}

type method struct {
	meta   Endpoint
	def    EndpointDefinition
	invoke func(context.Context, any) (any, error)
}

// Server holds the registered methods. It is safe for concurrent use.
type Server struct {
	mu        sync.RWMutex
	methods   map[string]method
	chain     []Middleware
	strategy  FailureStrategy
	onFailure FailureLogger
}

// NewServer returns an empty server. Failures are rejected unless an option
// says otherwise.
func NewServer(opts ...Option) *Server {
	s := &Server{methods: map[string]method{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RegisterEndpoint adds def. Method names are unique.
func (s *Server) RegisterEndpoint(def EndpointDefinition) error {
	if s == nil {
		return errNoServer
	}
	if def == nil {
		return s.rejectRegistration("", fmt.Errorf("rpc endpoint definition required"))
	}
	spec := def.Spec()
	if spec.Method == "" {
		return s.rejectRegistration("", ErrMethodRequired.Clone())
	}

	kind := string(spec.Kind)
	if kind == "" {
		kind = HandlerKindQuery
	}
	msgType := spec.MessageType
	if msgType == "" {
		msgType = messageTypeName(def.RequestType())
	}
	m := method{
		meta: Endpoint{
			Method:       spec.Method,
			MessageType:  msgType,
			HandlerKind:  kind,
			RequestType:  refOf(def.RequestType()),
			ResponseType: refOf(def.ResponseType()),
			Timeout:      spec.Timeout,
			Idempotent:   spec.Idempotent,
			Summary:      spec.Summary,
			Tags:         cloneStrings(spec.Tags),
		},
		def:    def,
		invoke: def.Invoke,
	}

	s.mu.Lock()
	_, taken := s.methods[spec.Method]
	if !taken {
		s.methods[spec.Method] = m
	}
	s.mu.Unlock()
	if taken {
		return s.rejectRegistration(spec.Method, fmt.Errorf("rpc method %q already registered", spec.Method))
	}
	return nil
}

// RegisterEndpoints adds defs in order and stops at the first error.
func (s *Server) RegisterEndpoints(defs ...EndpointDefinition) error {
	for _, def := range defs {
		if err := s.RegisterEndpoint(def); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) lookup(name string) (method, []Middleware, error) {
	if s == nil {
		return method{}, nil, errNoServer
	}
	if name == "" {
		return method{}, nil, ErrMethodRequired.Clone()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.methods[name]
	if !ok {
		return method{}, nil, NotFound(name)
	}
	return m, slices.Clone(s.chain), nil
}

// Invoke runs name with a payload already decoded by the transport, usually
// the value returned by NewRequestForMethod. The endpoint timeout bounds ctx.
func (s *Server) Invoke(ctx context.Context, name string, payload any) (out any, err error) {
	m, chain, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if m.meta.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.meta.Timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			out, err = nil, s.recoverInvoke(name, p)
		}
	}()
	req := InvokeRequest{Method: name, Endpoint: m.meta.clone(), Payload: payload}
	return applyMiddleware(chain, m.invoke)(ctx, req)
}

// Endpoint returns a copy of the metadata for name.
func (s *Server) Endpoint(name string) (Endpoint, bool) {
	m, _, err := s.lookup(name)
	if err != nil {
		return Endpoint{}, false
	}
	return m.meta.clone(), true
}

// Endpoints lists copies of all metadata ordered by method.
func (s *Server) Endpoints() []Endpoint {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	out := make([]Endpoint, 0, len(s.methods))
	for _, m := range s.methods {
		out = append(out, m.meta.clone())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Endpoint) int { return cmp.Compare(a.Method, b.Method) })
	return out
}

// NewRequestForMethod returns a fresh request envelope for the transport to
// decode into.
func (s *Server) NewRequestForMethod(name string) (any, error) {
	m, _, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return m.def.NewRequest(), nil
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return slices.Clone(values)
}
