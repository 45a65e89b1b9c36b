// Package store persists shipment records with optimistic versioning and an
// append-only journal of the transitions and inputs that produced them.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/google/uuid"
)

// Journal entry kinds.
const (
	KindTransition = "transition"
	KindDecision   = "decision"
	KindCheck      = "check"
	KindSuspension = "suspension"
	KindControl    = "control"
)

// Event is one journal entry.
type Event struct {
	ID         string          `json:"id"`
	ShipmentID string          `json:"shipment_id"`
	Version    int             `json:"version"`
	Kind       string          `json:"kind"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	At         time.Time       `json:"at"`
}

// NewEvent builds an event with a fresh id, encoding payload as JSON.
func NewEvent(shipmentID, kind, name string, payload any) Event {
	evt := Event{
		ID:         uuid.NewString(),
		ShipmentID: shipmentID,
		Kind:       kind,
		Name:       name,
		At:         time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			evt.Payload = raw
		}
	}
	return evt
}

// Filter narrows List results.
type Filter struct {
	ActiveOnly bool
}

// Store is the persist boundary for shipment records.
type Store interface {
	// Load returns nil, nil when the shipment is unknown.
	Load(ctx context.Context, id string) (*shipment.Record, error)
	// Commit saves rec when the stored version equals expected and appends
	// events in the same step. It returns the new version.
	Commit(ctx context.Context, rec shipment.Record, expected int, events ...Event) (int, error)
	Events(ctx context.Context, id string) ([]Event, error)
	List(ctx context.Context, filter Filter) ([]string, error)
}

var errRecordID = errors.New("store: record shipment id required")

// Memory is a thread-safe in-memory Store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]shipment.Record
	events  map[string][]Event
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]shipment.Record),
		events:  make(map[string][]Event),
	}
}

func (m *Memory) Load(_ context.Context, id string) (*shipment.Record, error) {
	id = strings.TrimSpace(id)
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := rec.Clone()
	return &cp, nil
}

func (m *Memory) Commit(_ context.Context, rec shipment.Record, expected int, events ...Event) (int, error) {
	rec.ShipmentID = strings.TrimSpace(rec.ShipmentID)
	if rec.ShipmentID == "" {
		return 0, errRecordID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[rec.ShipmentID]
	actual := 0
	if ok {
		actual = current.Version
	}
	if actual != expected {
		return 0, shipment.VersionConflict(rec.ShipmentID, expected, actual)
	}

	next := rec.Clone()
	next.Version = expected + 1
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	m.records[next.ShipmentID] = next
	for _, evt := range events {
		evt.ShipmentID = next.ShipmentID
		evt.Version = next.Version
		m.events[next.ShipmentID] = append(m.events[next.ShipmentID], evt)
	}
	return next.Version, nil
}

func (m *Memory) Events(_ context.Context, id string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events[strings.TrimSpace(id)]...), nil
}

func (m *Memory) List(_ context.Context, filter Filter) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id, rec := range m.records {
		if filter.ActiveOnly && rec.State.Terminal() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
