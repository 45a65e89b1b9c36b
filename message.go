package shipment

import (
	"reflect"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Message is the interface command and query messages must implement
type Message interface {
	Type() string
	Validate() error
}

// CommandMessage is a message that maps onto a lifecycle command.
type CommandMessage interface {
	Message
	Command() Command
	Target() string
}

func IsNilMessage(msg any) bool {
	if msg == nil {
		return true
	}
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Ptr {
		return false
	}
	return v.IsNil()
}

// ValidateMessage runs the message validation and tags failures with ErrValidation.
func ValidateMessage(msg any) error {
	if IsNilMessage(msg) {
		return ValidationFailed("unknown_type", nil)
	}
	m, ok := msg.(Message)
	if !ok {
		return nil
	}
	if err := m.Validate(); err != nil {
		return ValidationFailed(m.Type(), err)
	}
	return nil
}

// ShipmentRef addresses one shipment.
type ShipmentRef struct {
	ShipmentID string `json:"shipment_id"`
}

func (r ShipmentRef) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ShipmentID, validation.Required, validation.Length(1, 128)),
	)
}

func (r ShipmentRef) Target() string { return r.ShipmentID }

// StartShipment begins a shipment run. An empty id is generated.
type StartShipment struct {
	Input
}

func (StartShipment) Type() string     { return "shipment.start" }
func (StartShipment) Command() Command { return CommandStart }
func (m StartShipment) Target() string { return m.ShipmentID }
func (m StartShipment) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ShipmentID, validation.Length(0, 128)),
		validation.Field(&m.OrderDetails, validation.Required),
		validation.Field(&m.PaymentInfo, validation.Required),
		validation.Field(&m.PaymentFailureReason, validation.By(knownReason(CategoryPayment))),
	)
}

type AllocateWarehouse struct{ ShipmentRef }

func (AllocateWarehouse) Type() string     { return "shipment.allocate_warehouse" }
func (AllocateWarehouse) Command() Command { return CommandAllocateWarehouse }

type StartTransport struct{ ShipmentRef }

func (StartTransport) Type() string     { return "shipment.start_transport" }
func (StartTransport) Command() Command { return CommandStartTransport }

type UpdateCustomsStatus struct{ ShipmentRef }

func (UpdateCustomsStatus) Type() string     { return "shipment.update_customs_status" }
func (UpdateCustomsStatus) Command() Command { return CommandUpdateCustomsStatus }

type StartLocalDelivery struct{ ShipmentRef }

func (StartLocalDelivery) Type() string     { return "shipment.start_local_delivery" }
func (StartLocalDelivery) Command() Command { return CommandStartLocalDelivery }

type MarkDelivered struct{ ShipmentRef }

func (MarkDelivered) Type() string     { return "shipment.mark_delivered" }
func (MarkDelivered) Command() Command { return CommandMarkDelivered }

type CancelShipment struct{ ShipmentRef }

func (CancelShipment) Type() string     { return "shipment.cancel" }
func (CancelShipment) Command() Command { return CommandCancel }

type PauseShipment struct{ ShipmentRef }

func (PauseShipment) Type() string     { return "shipment.pause" }
func (PauseShipment) Command() Command { return CommandPause }

type ResumeShipment struct{ ShipmentRef }

func (ResumeShipment) Type() string     { return "shipment.resume" }
func (ResumeShipment) Command() Command { return CommandResume }

// ResolveIssue applies an operator choice to the suspension of Category.
type ResolveIssue struct {
	ShipmentRef
	Category Category `json:"category"`
	Choice   Choice   `json:"choice"`
}

func (ResolveIssue) Type() string     { return "shipment.resolve" }
func (ResolveIssue) Command() Command { return CommandResolve }
func (m ResolveIssue) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ShipmentRef),
		validation.Field(&m.Category, validation.Required, validation.By(func(v any) error {
			if c, _ := v.(Category); !c.Valid() {
				return validation.NewError("validation_unknown_category", "unknown category")
			}
			return nil
		})),
		validation.Field(&m.Choice, validation.Required),
	)
}

func knownReason(category Category) validation.RuleFunc {
	return func(v any) error {
		code, _ := v.(string)
		if code == "" {
			return nil
		}
		if _, ok := LookupReason(category, code); !ok {
			return validation.NewError("validation_unknown_reason", "unknown "+string(category)+" reason")
		}
		return nil
	}
}

// Read-only probes.

type GetStatus struct{ ShipmentRef }

func (GetStatus) Type() string { return "shipment.get_status" }

type GetDeliveryUpdate struct{ ShipmentRef }

func (GetDeliveryUpdate) Type() string { return "shipment.get_delivery_update" }

type GetCurrentError struct{ ShipmentRef }

func (GetCurrentError) Type() string { return "shipment.get_current_error" }

type GetSummary struct{ ShipmentRef }

func (GetSummary) Type() string { return "shipment.get_summary" }

type IsPaused struct{ ShipmentRef }

func (IsPaused) Type() string { return "shipment.is_paused" }

type GetRecord struct{ ShipmentRef }

func (GetRecord) Type() string { return "shipment.get_record" }

type GetDecisions struct{ ShipmentRef }

func (GetDecisions) Type() string { return "shipment.get_decisions" }

type ListShipments struct{}

func (ListShipments) Type() string    { return "shipment.list" }
func (ListShipments) Validate() error { return nil }
