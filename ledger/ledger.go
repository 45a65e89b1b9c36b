// Package ledger keeps the append-only record of operator decisions and the
// summary aggregates derived from it.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/shopspring/decimal"
)

var (
	ErrFrozen       = errors.New("ledger is frozen")
	ErrNegativeCost = errors.New("decision cost must not be negative")
)

// State is the serializable content of a ledger.
type State struct {
	Decisions []shipment.Decision      `json:"decisions"`
	Summary   shipment.WorkflowSummary `json:"summary"`
}

// Ledger is safe for concurrent use. Every mutation updates the decision
// list and the summary under the same lock.
type Ledger struct {
	mu        sync.RWMutex
	decisions []shipment.Decision
	summary   shipment.WorkflowSummary
	frozen    bool
	now       func() time.Time
}

type Option func(*Ledger)

// WithClock sets the time source used to stamp decisions.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		decisions: []shipment.Decision{},
		summary:   shipment.WorkflowSummary{DecisionsMade: []string{}},
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Restore rebuilds a ledger from persisted state. A summary with a final
// status stays frozen.
func Restore(state State, opts ...Option) *Ledger {
	l := New(opts...)
	l.decisions = slices.Clone(state.Decisions)
	if l.decisions == nil {
		l.decisions = []shipment.Decision{}
	}
	l.summary = state.Summary.Clone()
	if l.summary.DecisionsMade == nil {
		l.summary.DecisionsMade = []string{}
	}
	l.frozen = l.summary.FinalStatus != ""
	return l
}

// Record appends d and folds it into the summary. Nothing is applied when
// the decision is rejected.
func (l *Ledger) Record(d shipment.Decision) (shipment.Decision, error) {
	if d.Cost.IsNegative() {
		return shipment.Decision{}, fmt.Errorf("%w: %s", ErrNegativeCost, d.Cost)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return shipment.Decision{}, ErrFrozen
	}
	if d.RecordedAt.IsZero() {
		d.RecordedAt = l.now()
	}

	l.decisions = append(l.decisions, d)
	l.summary.TotalCost = l.summary.TotalCost.Add(d.Cost)
	l.summary.TimeSavedHours += d.TimeImpactHours
	l.summary.DecisionsMade = append(l.summary.DecisionsMade, d.Description)
	return d, nil
}

// MarkAvoidedStop records that a mitigating choice kept the line running.
func (l *Ledger) MarkAvoidedStop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return ErrFrozen
	}
	l.summary.AvoidedProductionStop = true
	return nil
}

// MarkProductionStop records a halted production line and its loss.
func (l *Ledger) MarkProductionStop(durationHours float64, loss decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return ErrFrozen
	}
	l.summary.ProductionLineStopped = true
	l.summary.ProductionStopDurationHours = durationHours
	l.summary.ProductionLossCost = loss
	return nil
}

// Freeze stamps the final status. Later mutations fail with ErrFrozen.
func (l *Ledger) Freeze(final shipment.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return
	}
	l.summary.FinalStatus = string(final)
	l.frozen = true
}

func (l *Ledger) Frozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen
}

func (l *Ledger) Summary() shipment.WorkflowSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.summary.Clone()
}

func (l *Ledger) Decisions() []shipment.Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.decisions)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.decisions)
}

// State returns a copy suitable for persistence.
func (l *Ledger) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return State{
		Decisions: slices.Clone(l.decisions),
		Summary:   l.summary.Clone(),
	}
}

// ProductionLoss is capacity times the per-unit loss rate.
func ProductionLoss(capacity float64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(capacity).Mul(rate)
}
