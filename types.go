package shipment

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Choice is an operator resolution choice. The same value may appear in more
// than one category; routing always goes through the active category first.
type Choice string

const (
	ChoiceUpdateOrder          Choice = "update_order"
	ChoiceAcceptNewPrice       Choice = "accept_new_price"
	ChoiceAdjustQuantity       Choice = "adjust_quantity"
	ChoiceCancelOrder          Choice = "cancel_order"
	ChoiceSendToTechSupport    Choice = "send_to_tech_support"
	ChoiceRetryPayment         Choice = "retry_payment"
	ChoiceResumeWhenReady      Choice = "resume_when_ready"
	ChoiceAllocateDifferent    Choice = "allocate_different"
	ChoiceWaitForStock         Choice = "wait_for_stock"
	ChoiceWaitForResolution    Choice = "wait_for_resolution"
	ChoiceRerouteShipment      Choice = "reroute_shipment"
	ChoiceExpediteService      Choice = "expedite_service"
	ChoiceProvideDocumentation Choice = "provide_documentation"
	ChoicePayExpeditedFee      Choice = "pay_expedited_fee"
	ChoiceAcceptDelay          Choice = "accept_delay"
	ChoiceReturnShipment       Choice = "return_shipment"
	ChoiceNotifyAllParties     Choice = "notify_all_parties"
	ChoiceRedirectToPickup     Choice = "redirect_to_pickup"
	ChoiceRescheduleDelivery   Choice = "reschedule_delivery"
)

// Effect is what applying a choice does to the suspended stage.
type Effect string

const (
	// EffectResume clears the error, records the decision and continues.
	EffectResume Effect = "resume"
	// EffectMitigate resumes and also marks the production stop as avoided.
	EffectMitigate Effect = "mitigate"
	// EffectCancel terminates the shipment as CANCELED.
	EffectCancel Effect = "cancel"
	// EffectRetry re-enters the payment loop with the attempt counter reset.
	EffectRetry Effect = "retry"
)

// ResolutionOption is one entry of the ordered option list offered to the operator.
type ResolutionOption struct {
	Choice          Choice          `json:"choice" yaml:"choice"`
	Text            string          `json:"text" yaml:"text"`
	Cost            decimal.Decimal `json:"cost" yaml:"cost"`
	TimeImpactHours float64         `json:"time_impact_hours" yaml:"time_impact_hours"`
	Effect          Effect          `json:"effect" yaml:"effect"`
}

// ErrorDetails describes a domain failure awaiting an operator decision.
type ErrorDetails struct {
	Category          Category           `json:"category"`
	Reason            string             `json:"reason"`
	Details           string             `json:"details"`
	ETAImpact         time.Duration      `json:"eta_impact,omitempty"`
	ResolutionOptions []ResolutionOption `json:"resolution_options"`
	// BufferCapacity is the production buffer left before the line stops.
	// Only deadline-raced categories carry it.
	BufferCapacity float64   `json:"buffer_capacity,omitempty"`
	Deadline       time.Time `json:"deadline,omitempty"`
	Alternatives   []string  `json:"alternatives,omitempty"`
}

// Option returns the offered option for choice.
func (e *ErrorDetails) Option(choice Choice) (ResolutionOption, bool) {
	if e == nil {
		return ResolutionOption{}, false
	}
	for _, opt := range e.ResolutionOptions {
		if opt.Choice == choice {
			return opt, true
		}
	}
	return ResolutionOption{}, false
}

func (e *ErrorDetails) Clone() *ErrorDetails {
	if e == nil {
		return nil
	}
	cp := *e
	cp.ResolutionOptions = slices.Clone(e.ResolutionOptions)
	cp.Alternatives = slices.Clone(e.Alternatives)
	return &cp
}

// Decision is an applied operator resolution. Immutable once recorded.
type Decision struct {
	Category        Category        `json:"category"`
	Choice          Choice          `json:"choice"`
	Description     string          `json:"description"`
	Cost            decimal.Decimal `json:"cost"`
	TimeImpactHours float64         `json:"time_impact_hours"`
	RecordedAt      time.Time       `json:"recorded_at"`
}

// WorkflowSummary is the aggregate view derived from the decision ledger.
type WorkflowSummary struct {
	TotalCost                   decimal.Decimal `json:"total_cost"`
	TimeSavedHours              float64         `json:"time_saved_hours"`
	DecisionsMade               []string        `json:"decisions_made"`
	ProductionLineStopped       bool            `json:"production_line_stopped"`
	ProductionStopDurationHours float64         `json:"production_stop_duration_hours"`
	ProductionLossCost          decimal.Decimal `json:"production_loss_cost"`
	AvoidedProductionStop       bool            `json:"avoided_production_stop"`
	FinalStatus                 string          `json:"final_status,omitempty"`
}

func (s WorkflowSummary) Clone() WorkflowSummary {
	s.DecisionsMade = slices.Clone(s.DecisionsMade)
	return s
}

// Delivery estimate status values.
const (
	DeliveryOnTime  = "ON_TIME"
	DeliveryDelayed = "DELAYED"
)

// DeliveryUpdate is the current delivery estimate.
type DeliveryUpdate struct {
	EstimatedDeliveryDate string   `json:"estimated_delivery_date"`
	OriginalETA           string   `json:"original_eta,omitempty"`
	Status                string   `json:"status"`
	Issues                []string `json:"issues"`
	DelayReason           string   `json:"delay_reason,omitempty"`
	NewETA                string   `json:"new_eta,omitempty"`
}

func (d *DeliveryUpdate) Clone() *DeliveryUpdate {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Issues = slices.Clone(d.Issues)
	return &cp
}

// SuspensionPoint marks a stage awaiting exactly one decision of Category.
type SuspensionPoint struct {
	Category Category  `json:"category"`
	OpenedAt time.Time `json:"opened_at"`
	// Deadline is zero for unbounded waits.
	Deadline time.Time `json:"deadline,omitempty"`
}

// PaymentFailure is the last failure reported by the payment check.
type PaymentFailure struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

// Input is the payload accepted by start.
type Input struct {
	ShipmentID             string         `json:"shipment_id"`
	OrderDetails           map[string]any `json:"order_details"`
	PaymentInfo            map[string]any `json:"payment_info"`
	SimulatePaymentFailure bool           `json:"simulate_payment_failure,omitempty"`
	PaymentFailureReason   string         `json:"payment_failure_reason,omitempty"`
}

// Flag reads a boolean simulation flag from the order details.
func (in Input) Flag(name string) bool {
	v, ok := in.OrderDetails[name]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// String reads a string value from the order details.
func (in Input) String(name string) string {
	v, _ := in.OrderDetails[name].(string)
	return v
}

func (in Input) Clone() Input {
	in.OrderDetails = maps.Clone(in.OrderDetails)
	in.PaymentInfo = maps.Clone(in.PaymentInfo)
	return in
}

// Record is the single owned record of one shipment.
type Record struct {
	ShipmentID     string           `json:"shipment_id"`
	State          State            `json:"state"`
	PaymentRetries int              `json:"payment_retries"`
	PaymentStatus  PaymentStatus    `json:"payment_status"`
	PaymentFailure *PaymentFailure  `json:"payment_failure,omitempty"`
	CurrentError   *ErrorDetails    `json:"current_error,omitempty"`
	Suspension     *SuspensionPoint `json:"suspension,omitempty"`
	DeliveryUpdate *DeliveryUpdate  `json:"delivery_update,omitempty"`
	Summary        WorkflowSummary  `json:"summary"`
	Decisions      []Decision       `json:"decisions"`
	Input          Input            `json:"input"`
	Paused         bool             `json:"paused"`
	Version        int              `json:"version"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`

	// OrderValidated is set once the order check passed or was resolved.
	OrderValidated bool `json:"order_validated"`
	// StageDone reports that the current state has no stage work left.
	StageDone   bool   `json:"stage_done"`
	WarehouseID string `json:"warehouse_id,omitempty"`
}

// NewRecord returns the initial record for input.
func NewRecord(input Input, now time.Time) Record {
	return Record{
		ShipmentID:    input.ShipmentID,
		State:         StateOrderReceived,
		PaymentStatus: PaymentPending,
		Summary: WorkflowSummary{
			DecisionsMade: []string{},
		},
		Decisions: []Decision{},
		Input:     input.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe to hand out to readers.
func (r Record) Clone() Record {
	cp := r
	if r.PaymentFailure != nil {
		pf := *r.PaymentFailure
		cp.PaymentFailure = &pf
	}
	cp.CurrentError = r.CurrentError.Clone()
	if r.Suspension != nil {
		sp := *r.Suspension
		cp.Suspension = &sp
	}
	cp.DeliveryUpdate = r.DeliveryUpdate.Clone()
	cp.Summary = r.Summary.Clone()
	cp.Decisions = slices.Clone(r.Decisions)
	cp.Input = r.Input.Clone()
	return cp
}

// Suspended reports whether a decision of category is awaited.
func (r Record) Suspended(category Category) bool {
	return r.Suspension != nil && r.Suspension.Category == category
}
