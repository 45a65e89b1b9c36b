// Package router fans lifecycle events out to subscribers by topic pattern.
package router

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Event is one published lifecycle occurrence.
type Event struct {
	Topic      string
	ShipmentID string
	Kind       string
	Payload    any
	At         time.Time
}

// Handler receives events matching a subscription pattern.
type Handler func(ctx context.Context, evt Event) error

type Subscription interface {
	Unsubscribe()
}

type Option func(m *Mux)

// WithRouteMatcher replaces the pattern matcher. The matcher receives the
// registered pattern first and the published topic second.
func WithRouteMatcher(matcher func(pattern, topic string) bool) Option {
	return func(m *Mux) {
		if matcher != nil {
			m.routeMatch = matcher
		}
	}
}

// WithClock sets the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(m *Mux) {
		if now != nil {
			m.now = now
		}
	}
}

type Mux struct {
	mu         sync.RWMutex
	sorted     []string
	handlers   map[string][]*entry
	routeMatch func(pattern, topic string) bool
	now        func() time.Time
}

type entry struct {
	mux     *Mux
	pattern string
	handler Handler
}

func (e *entry) Unsubscribe() {
	m := e.mux
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.handlers[e.pattern]
	kept := make([]*entry, 0, len(old))
	for _, x := range old {
		if x != e {
			kept = append(kept, x)
		}
	}
	if len(kept) == 0 {
		delete(m.handlers, e.pattern)
	} else {
		m.handlers[e.pattern] = kept
	}
	m.resort()
}

// NewMux builds a mux using dot separated topics with "*" matching one
// segment and "#" matching any number of segments.
func NewMux(opts ...Option) *Mux {
	m := &Mux{
		handlers:   make(map[string][]*entry),
		routeMatch: MakeRouteMatcher(MakeRouteMatcherOptions{Separator: "."}),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Subscribe registers handler for pattern.
func (m *Mux) Subscribe(pattern string, handler Handler) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &entry{mux: m, pattern: pattern, handler: handler}
	m.handlers[pattern] = append(m.handlers[pattern], e)
	m.resort()
	return e
}

func (m *Mux) resort() {
	keys := make([]string, 0, len(m.handlers))
	for k := range m.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m.sorted = keys
}

// Match returns the number of handlers subscribed to patterns matching topic.
func (m *Mux) Match(topic string) int {
	return len(m.match(topic))
}

func (m *Mux) match(topic string) []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*entry
	for _, p := range m.sorted {
		if m.routeMatch(p, topic) {
			out = append(out, m.handlers[p]...)
		}
	}
	return out
}

// Publish delivers evt to every matching handler in pattern order. All
// handlers run; their errors are joined.
func (m *Mux) Publish(ctx context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = m.now()
	}
	var errs error
	for _, e := range m.match(evt.Topic) {
		if err := e.handler(ctx, evt); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// Topic joins segments with the default separator.
func Topic(segments ...string) string {
	out := ""
	for i, s := range segments {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}
