// Package gateway is the boundary to the external operations a shipment
// depends on: order validation, payment, warehouse, carrier, customs and
// delivery checks, delivery estimates and operator notifications.
package gateway

import (
	"context"
	"time"

	"github.com/goliatone/go-shipment"
)

// Check names an external operation.
type Check string

const (
	CheckValidateOrder          Check = "validate_order"
	CheckVerifyPayment          Check = "verify_payment"
	CheckWarehouseAllocation    Check = "check_warehouse_allocation"
	CheckTransportStatus        Check = "check_transport_status"
	CheckCustomsStatus          Check = "check_customs_status"
	CheckDeliveryStatus         Check = "check_delivery_status"
	CheckUpdateDeliveryEstimate Check = "update_delivery_estimate"
	CheckNotifyOperator         Check = "notify_operator"
)

// CheckFor returns the stage check of a category.
func CheckFor(category shipment.Category) Check {
	switch category {
	case shipment.CategoryOrder:
		return CheckValidateOrder
	case shipment.CategoryPayment:
		return CheckVerifyPayment
	case shipment.CategoryWarehouse:
		return CheckWarehouseAllocation
	case shipment.CategoryTransport:
		return CheckTransportStatus
	case shipment.CategoryCustoms:
		return CheckCustomsStatus
	case shipment.CategoryDelivery:
		return CheckDeliveryStatus
	}
	return ""
}

// Request carries the arguments of one invocation. Invocations must be safe
// to repeat.
type Request struct {
	Check        Check
	ShipmentID   string
	State        shipment.State
	Input        shipment.Input
	Attempt      int
	Error        *shipment.ErrorDetails
	Notification *Notification
}

// WarehouseAllocation is the warehouse check payload.
type WarehouseAllocation struct {
	WarehouseID           string   `json:"warehouse_id"`
	StockAvailable        bool     `json:"stock_available"`
	AlternativeWarehouses []string `json:"alternative_warehouses"`
}

// Result is the declared outcome of a check. A declared failure has OK
// false and a reason; transport level problems are returned as errors.
type Result struct {
	OK        bool
	Reason    string
	Details   string
	ETAImpact time.Duration
	Warehouse *WarehouseAllocation
	Delivery  *shipment.DeliveryUpdate
}

// Gateway invokes external checks.
type Gateway interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to Gateway.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Invoke(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Notification is a message for the human operator.
type Notification struct {
	ID             string                      `json:"id"`
	ShipmentID     string                      `json:"shipment_id"`
	Category       shipment.Category           `json:"category,omitempty"`
	Message        string                      `json:"message"`
	ActionRequired bool                        `json:"action_required"`
	Options        []shipment.ResolutionOption `json:"options,omitempty"`
	SentAt         time.Time                   `json:"sent_at"`
}

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
