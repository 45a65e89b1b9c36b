package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-shipment"
)

// Simulation flags read from the order details.
const (
	FlagValidationFailure = "simulate_validation_failure"
	FlagStockIssue        = "simulate_stock_issue"
	FlagTransportDelay    = "simulate_transport_delay"
	FlagCustomsIssue      = "simulate_customs_issue"
	FlagDeliveryDelay     = "simulate_delivery_delay"
)

const etaLayout = "2006-01-02"

var flagFor = map[shipment.Category]string{
	shipment.CategoryOrder:     FlagValidationFailure,
	shipment.CategoryWarehouse: FlagStockIssue,
	shipment.CategoryTransport: FlagTransportDelay,
	shipment.CategoryCustoms:   FlagCustomsIssue,
	shipment.CategoryDelivery:  FlagDeliveryDelay,
}

// ReasonKey is the order detail key overriding the simulated reason of a category.
func ReasonKey(category shipment.Category) string {
	return string(category) + "_reason"
}

// Simulator is a deterministic Gateway driven by the simulation flags.
type Simulator struct {
	baseDate     time.Time
	warehouseID  string
	alternatives []string
	notifier     Notifier
}

type SimulatorOption func(*Simulator)

// WithBaseDate sets the date every estimate starts from.
func WithBaseDate(d time.Time) SimulatorOption {
	return func(s *Simulator) {
		if !d.IsZero() {
			s.baseDate = d
		}
	}
}

func WithNotifier(n Notifier) SimulatorOption {
	return func(s *Simulator) {
		s.notifier = n
	}
}

func WithWarehouses(primary string, alternatives ...string) SimulatorOption {
	return func(s *Simulator) {
		if primary != "" {
			s.warehouseID = primary
		}
		if len(alternatives) > 0 {
			s.alternatives = alternatives
		}
	}
}

func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		baseDate:     time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC),
		warehouseID:  "WH001",
		alternatives: []string{"WH002", "WH003"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Simulator) Invoke(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	switch req.Check {
	case CheckValidateOrder:
		return s.stage(shipment.CategoryOrder, req.Input)
	case CheckVerifyPayment:
		return s.payment(req.Input)
	case CheckWarehouseAllocation:
		res, err := s.stage(shipment.CategoryWarehouse, req.Input)
		res.Warehouse = &WarehouseAllocation{
			WarehouseID:           s.warehouseID,
			StockAvailable:        res.OK,
			AlternativeWarehouses: append([]string(nil), s.alternatives...),
		}
		return res, err
	case CheckTransportStatus:
		return s.stage(shipment.CategoryTransport, req.Input)
	case CheckCustomsStatus:
		return s.stage(shipment.CategoryCustoms, req.Input)
	case CheckDeliveryStatus:
		return s.stage(shipment.CategoryDelivery, req.Input)
	case CheckUpdateDeliveryEstimate:
		return Result{OK: true, Delivery: Estimate(s.baseDate, req.Error)}, nil
	case CheckNotifyOperator:
		if req.Notification == nil {
			return Result{}, Permanent(fmt.Errorf("%s without notification", req.Check))
		}
		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, *req.Notification); err != nil {
				return Result{}, err
			}
		}
		return Result{OK: true}, nil
	}
	return Result{}, Permanent(fmt.Errorf("unknown check %q", req.Check))
}

func (s *Simulator) stage(category shipment.Category, in shipment.Input) (Result, error) {
	if !in.Flag(flagFor[category]) {
		return Result{OK: true}, nil
	}
	return failure(category, in.String(ReasonKey(category)))
}

func (s *Simulator) payment(in shipment.Input) (Result, error) {
	if !in.SimulatePaymentFailure {
		return Result{OK: true}, nil
	}
	return failure(shipment.CategoryPayment, in.PaymentFailureReason)
}

func failure(category shipment.Category, code string) (Result, error) {
	reason, ok := shipment.LookupReason(category, code)
	if !ok {
		return Result{}, fmt.Errorf("gateway: unknown %s reason %q", category, code)
	}
	return Result{
		OK:        false,
		Reason:    reason.Code,
		Details:   reason.Details,
		ETAImpact: reason.ETAImpact,
	}, nil
}

// Estimate computes the delivery estimate from base, shifted by the ETA
// impact of failure when there is one.
func Estimate(base time.Time, failure *shipment.ErrorDetails) *shipment.DeliveryUpdate {
	date := base.Format(etaLayout)
	if failure == nil || failure.ETAImpact <= 0 {
		return &shipment.DeliveryUpdate{
			EstimatedDeliveryDate: date,
			Status:                shipment.DeliveryOnTime,
			Issues:                []string{},
		}
	}
	return &shipment.DeliveryUpdate{
		EstimatedDeliveryDate: date,
		OriginalETA:           date,
		Status:                shipment.DeliveryDelayed,
		Issues:                []string{failure.Details},
		DelayReason:           failure.Reason,
		NewETA:                base.Add(failure.ETAImpact).Format(etaLayout),
	}
}
