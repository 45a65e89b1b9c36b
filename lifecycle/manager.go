// Package lifecycle runs shipments through the fulfillment pipeline. Each
// shipment is owned by one goroutine that applies commands, suspends on
// stage failures and races the hard deadline of raced categories.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/gateway"
	"github.com/goliatone/go-shipment/router"
	"github.com/goliatone/go-shipment/store"
	"github.com/google/uuid"
)

type Option func(*Manager)

func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// WithGateway sets the external operation gateway. Defaults to the simulator.
func WithGateway(g gateway.Gateway) Option {
	return func(m *Manager) {
		if g != nil {
			m.gateway = g
		}
	}
}

func WithCatalog(c *shipment.Catalog) Option {
	return func(m *Manager) {
		if c != nil {
			m.catalog = c
		}
	}
}

// WithStore sets the snapshot and journal store. Defaults to memory.
func WithStore(s store.Store) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithMux publishes lifecycle events on mux.
func WithMux(mux *router.Mux) Option {
	return func(m *Manager) {
		m.mux = mux
	}
}

func WithLogger(l shipment.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator sets the generator used when start omits a shipment id.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Manager owns one Instance per shipment id.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*Instance

	cfg     Config
	gateway gateway.Gateway
	catalog *shipment.Catalog
	store   store.Store
	mux     *router.Mux
	logger  shipment.Logger
	now     func() time.Time
	newID   func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		instances: make(map[string]*Instance),
		cfg:       DefaultConfig(),
		gateway:   gateway.NewSimulator(),
		catalog:   shipment.DefaultCatalog(),
		store:     store.NewMemory(),
		logger:    shipment.NopLogger{},
		now:       time.Now,
		newID:     uuid.NewString,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.cfg = m.cfg.normalize()
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Start creates the shipment and drives it until it rests: terminal, suspended
// awaiting a decision, or done with payment and awaiting allocate_warehouse.
func (m *Manager) Start(ctx context.Context, input shipment.Input) (shipment.Record, error) {
	if err := shipment.ValidateMessage(shipment.StartShipment{Input: input}); err != nil {
		return shipment.Record{}, err
	}
	input = input.Clone()
	input.ShipmentID = strings.TrimSpace(input.ShipmentID)
	if input.ShipmentID == "" {
		input.ShipmentID = m.newID()
	}
	id := input.ShipmentID

	m.mu.Lock()
	if _, ok := m.instances[id]; ok {
		m.mu.Unlock()
		return shipment.Record{}, shipment.AlreadyStarted(id)
	}
	existing, err := m.store.Load(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return shipment.Record{}, err
	}
	if existing != nil {
		m.mu.Unlock()
		return shipment.Record{}, shipment.AlreadyStarted(id)
	}

	rec := shipment.NewRecord(input, m.now())
	version, err := m.store.Commit(ctx, rec, 0,
		store.NewEvent(id, store.KindTransition, string(rec.State), map[string]string{"command": string(shipment.CommandStart)}))
	if err != nil {
		m.mu.Unlock()
		if shipment.HasCode(err, shipment.ErrCodeVersionConflict) {
			return shipment.Record{}, shipment.AlreadyStarted(id)
		}
		return shipment.Record{}, err
	}
	rec.Version = version

	in := newInstance(m, rec)
	m.instances[id] = in
	m.mu.Unlock()

	in.logger.Info("shipment started")
	env := &envelope{cmd: shipment.CommandStart, at: m.now(), reply: make(chan reply, 1)}
	in.launch(env)
	return env.wait(ctx, in)
}

// Execute applies an advance or control command.
func (m *Manager) Execute(ctx context.Context, id string, cmd shipment.Command) (shipment.Record, error) {
	switch cmd {
	case shipment.CommandCancel:
		return m.Cancel(ctx, id)
	case shipment.CommandPause:
		return m.Pause(ctx, id)
	case shipment.CommandResume:
		return m.Resume(ctx, id)
	case shipment.CommandStart:
		return shipment.Record{}, shipment.AlreadyStarted(id)
	}

	in, err := m.running(ctx, id, cmd)
	if err != nil {
		return shipment.Record{}, err
	}
	if !cmd.Advance() {
		rec := in.Record()
		return rec, shipment.InvalidTransition(cmd, rec.State)
	}
	return in.send(ctx, envelope{cmd: cmd})
}

// Resolve applies an operator choice to the open suspension of category.
func (m *Manager) Resolve(ctx context.Context, id string, category shipment.Category, choice shipment.Choice) (shipment.Record, error) {
	msg := shipment.ResolveIssue{ShipmentRef: shipment.ShipmentRef{ShipmentID: id}, Category: category, Choice: choice}
	if err := shipment.ValidateMessage(msg); err != nil {
		return shipment.Record{}, err
	}
	in, err := m.running(ctx, id, shipment.CommandResolve)
	if err != nil {
		return shipment.Record{}, err
	}
	return in.send(ctx, envelope{cmd: shipment.CommandResolve, category: category, choice: choice})
}

func (m *Manager) Cancel(ctx context.Context, id string) (shipment.Record, error) {
	in, err := m.running(ctx, id, shipment.CommandCancel)
	if err != nil {
		return shipment.Record{}, err
	}
	return in.cancel(ctx)
}

func (m *Manager) Pause(ctx context.Context, id string) (shipment.Record, error) {
	in, err := m.running(ctx, id, shipment.CommandPause)
	if err != nil {
		return shipment.Record{}, err
	}
	return in.pause(ctx)
}

func (m *Manager) Resume(ctx context.Context, id string) (shipment.Record, error) {
	in, err := m.running(ctx, id, shipment.CommandResume)
	if err != nil {
		return shipment.Record{}, err
	}
	return in.resume(ctx)
}

// running returns the live instance of id. Stored records of terminal
// shipments reject cmd as an invalid transition.
func (m *Manager) running(ctx context.Context, id string, cmd shipment.Command) (*Instance, error) {
	if in, ok := m.instance(id); ok {
		return in, nil
	}
	rec, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, shipment.NotFound(id)
	}
	if rec.State.Terminal() {
		return nil, shipment.InvalidTransition(cmd, rec.State)
	}
	return nil, fmt.Errorf("shipment %s is not loaded, run recovery first: %w", id, shipment.NotFound(id))
}

func (m *Manager) instance(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instances[strings.TrimSpace(id)]
	return in, ok
}

// Record returns the current record of id, falling back to the store for
// shipments not loaded in this process.
func (m *Manager) Record(ctx context.Context, id string) (shipment.Record, error) {
	if in, ok := m.instance(id); ok {
		return in.Record(), nil
	}
	rec, err := m.store.Load(ctx, id)
	if err != nil {
		return shipment.Record{}, err
	}
	if rec == nil {
		return shipment.Record{}, shipment.NotFound(id)
	}
	return *rec, nil
}

func (m *Manager) Status(ctx context.Context, id string) (shipment.State, error) {
	rec, err := m.Record(ctx, id)
	return rec.State, err
}

func (m *Manager) DeliveryUpdate(ctx context.Context, id string) (*shipment.DeliveryUpdate, error) {
	rec, err := m.Record(ctx, id)
	return rec.DeliveryUpdate, err
}

func (m *Manager) CurrentError(ctx context.Context, id string) (*shipment.ErrorDetails, error) {
	rec, err := m.Record(ctx, id)
	return rec.CurrentError, err
}

func (m *Manager) Summary(ctx context.Context, id string) (shipment.WorkflowSummary, error) {
	rec, err := m.Record(ctx, id)
	return rec.Summary, err
}

func (m *Manager) IsPaused(ctx context.Context, id string) (bool, error) {
	rec, err := m.Record(ctx, id)
	return rec.Paused, err
}

func (m *Manager) Decisions(ctx context.Context, id string) ([]shipment.Decision, error) {
	rec, err := m.Record(ctx, id)
	return rec.Decisions, err
}

// Events returns the journal of id.
func (m *Manager) Events(ctx context.Context, id string) ([]store.Event, error) {
	if _, err := m.Record(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Events(ctx, id)
}

// List returns the ids known to this process and to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	stored, err := m.store.List(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(stored))
	ids := make([]string, 0, len(stored))
	for _, id := range stored {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	m.mu.RLock()
	for id := range m.instances {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Recover loads every non-terminal stored shipment without a live instance
// and resumes it from its resting point. It returns the number resumed.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	ids, err := m.store.List(ctx, store.Filter{ActiveOnly: true})
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, id := range ids {
		if existing, ok := m.instance(id); ok && existing.alive() {
			continue
		}
		rec, err := m.store.Load(ctx, id)
		if err != nil {
			return resumed, err
		}
		if rec == nil || rec.State.Terminal() {
			continue
		}

		in := newInstance(m, *rec)
		if rec.Paused {
			in.ctl.Pause()
		}
		m.mu.Lock()
		m.instances[id] = in
		m.mu.Unlock()

		in.logger.Info("shipment recovered in state %s", rec.State)
		in.launch(nil)
		resumed++
	}
	return resumed, nil
}

// Remind re-notifies the operator of every suspension open for at least minAge.
func (m *Manager) Remind(ctx context.Context, minAge time.Duration) int {
	m.mu.RLock()
	instances := make([]*Instance, 0, len(m.instances))
	for _, in := range m.instances {
		instances = append(instances, in)
	}
	m.mu.RUnlock()

	now := m.now()
	sent := 0
	for _, in := range instances {
		rec := in.Record()
		if rec.State.Terminal() || rec.Suspension == nil || rec.CurrentError == nil {
			continue
		}
		if now.Sub(rec.Suspension.OpenedAt) < minAge {
			continue
		}
		in.notify(ctx, rec.Suspension.Category, reminderMessage(rec, now), true, rec.CurrentError.ResolutionOptions)
		sent++
	}
	return sent
}

// WarnDeadline re-notifies the operator when the category suspension of id
// is still open and raced against a deadline.
func (m *Manager) WarnDeadline(ctx context.Context, id string, category shipment.Category) bool {
	in, ok := m.instance(id)
	if !ok {
		return false
	}
	rec := in.Record()
	sus := rec.Suspension
	if rec.State.Terminal() || sus == nil || rec.CurrentError == nil || sus.Category != category || sus.Deadline.IsZero() {
		return false
	}
	in.notify(ctx, category, "Deadline approaching. "+reminderMessage(rec, m.now()), true, rec.CurrentError.ResolutionOptions)
	return true
}

func reminderMessage(rec shipment.Record, now time.Time) string {
	sus := rec.Suspension
	msg := fmt.Sprintf("Reminder: %s issue (%s) awaiting decision since %s",
		sus.Category, rec.CurrentError.Reason, sus.OpenedAt.UTC().Format(time.RFC3339))
	if !sus.Deadline.IsZero() {
		left := sus.Deadline.Sub(now)
		if left < 0 {
			left = 0
		}
		msg += fmt.Sprintf(", %s left before the production line stops", left.Round(time.Second))
	}
	return msg + "\n" + gateway.FormatOptions(rec.CurrentError.ResolutionOptions)
}

// Close stops every instance. Non-terminal shipments keep their stored
// snapshot and can be resumed with Recover.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
