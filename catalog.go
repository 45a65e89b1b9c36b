package shipment

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Reason is a stable failure code with its operator text and ETA impact.
type Reason struct {
	Code      string
	Details   string
	ETAImpact time.Duration
}

var reasons = map[Category][]Reason{
	CategoryOrder: {
		{Code: "INVALID_ITEMS", Details: "One or more items are no longer available"},
		{Code: "PRICE_MISMATCH", Details: "Price has changed since order placement"},
		{Code: "QUANTITY_ERROR", Details: "Requested quantity exceeds maximum allowed"},
		{Code: "VALIDATION_FAILED", Details: "Order validation failed"},
		{Code: "SYSTEM_ERROR", Details: "Order system is experiencing issues"},
	},
	CategoryPayment: {
		{Code: "NETWORK_ERROR", Details: "Unable to connect to payment gateway"},
		{Code: "RECEIVER_ERROR", Details: "Receiving bank system error"},
		{Code: "SENDER_ERROR", Details: "Sending bank system error"},
		{Code: "INSUFFICIENT_FUNDS", Details: "Insufficient funds in account"},
		{Code: "BANK_SERVER_DOWN", Details: "Bank servers are currently unavailable"},
		{Code: "TRANSACTION_ERROR", Details: "Error processing transaction"},
		{Code: "RECEIVER_BANK_REJECTED", Details: "Payment rejected by receiving bank"},
	},
	CategoryWarehouse: {
		{Code: "NO_STOCK", Details: "Requested items are out of stock at the assigned warehouse", ETAImpact: 4 * day},
		{Code: "PARTIAL_STOCK", Details: "Only part of the order is in stock", ETAImpact: 2 * day},
		{Code: "SYSTEM_DOWN", Details: "Warehouse management system is unavailable", ETAImpact: 1 * day},
		{Code: "LOCATION_UNAVAILABLE", Details: "Storage location cannot be accessed", ETAImpact: 2 * day},
		{Code: "ITEM_DISCONTINUED", Details: "Item has been discontinued by the supplier", ETAImpact: 5 * day},
	},
	CategoryTransport: {
		{Code: "VEHICLE_BREAKDOWN", Details: "Vehicle requires emergency repair", ETAImpact: 2 * day},
		{Code: "WEATHER_DELAY", Details: "Severe weather conditions affecting route", ETAImpact: 3 * day},
		{Code: "ROUTE_BLOCKED", Details: "Main route is blocked, detour required", ETAImpact: 1 * day},
		{Code: "DRIVER_UNAVAILABLE", Details: "Driver unavailable due to emergency", ETAImpact: 1 * day},
		{Code: "LOADING_ISSUES", Details: "Issues with cargo loading", ETAImpact: 1 * day},
	},
	CategoryCustoms: {
		{Code: "DOCUMENTATION_MISSING", Details: "Required customs documentation missing", ETAImpact: 3 * day},
		{Code: "INSPECTION_REQUIRED", Details: "Package selected for detailed inspection", ETAImpact: 4 * day},
		{Code: "PROHIBITED_ITEMS", Details: "Potentially prohibited items detected", ETAImpact: 5 * day},
		{Code: "DUTY_PAYMENT_ISSUES", Details: "Issues with duty payment processing", ETAImpact: 2 * day},
		{Code: "CLEARANCE_DELAY", Details: "General customs clearance delay", ETAImpact: 2 * day},
	},
	CategoryDelivery: {
		{Code: "ADDRESS_NOT_FOUND", Details: "Delivery address could not be located", ETAImpact: 2 * day},
		{Code: "RECIPIENT_UNAVAILABLE", Details: "Recipient not available to accept the package", ETAImpact: 1 * day},
		{Code: "ACCESS_RESTRICTED", Details: "Access to the delivery location is restricted", ETAImpact: 1 * day},
		{Code: "LOCAL_RESTRICTIONS", Details: "Local regulations prevent delivery today", ETAImpact: 2 * day},
		{Code: "SCHEDULING_CONFLICT", Details: "Delivery slot conflicts with recipient schedule", ETAImpact: 1 * day},
	},
}

var defaultReasons = map[Category]string{
	CategoryOrder:     "PRICE_MISMATCH",
	CategoryPayment:   "BANK_SERVER_DOWN",
	CategoryWarehouse: "NO_STOCK",
	CategoryTransport: "WEATHER_DELAY",
	CategoryCustoms:   "DOCUMENTATION_MISSING",
	CategoryDelivery:  "RECIPIENT_UNAVAILABLE",
}

// PaymentInsufficientFunds is the payment reason no retry or operator can fix.
const PaymentInsufficientFunds = "INSUFFICIENT_FUNDS"

// Reasons lists the known reasons of a category.
func Reasons(category Category) []Reason {
	return slices.Clone(reasons[category])
}

// LookupReason finds a reason by code. An empty code selects the category default.
func LookupReason(category Category, code string) (Reason, bool) {
	if code == "" {
		code = defaultReasons[category]
	}
	for _, r := range reasons[category] {
		if r.Code == code {
			return r, true
		}
	}
	return Reason{}, false
}

func option(choice Choice, text string, cost int64, hours float64, effect Effect) ResolutionOption {
	return ResolutionOption{
		Choice:          choice,
		Text:            text,
		Cost:            decimal.NewFromInt(cost),
		TimeImpactHours: hours,
		Effect:          effect,
	}
}

func defaultOptions() map[Category][]ResolutionOption {
	return map[Category][]ResolutionOption{
		CategoryOrder: {
			option(ChoiceUpdateOrder, "Update order with available items", 0, -24, EffectMitigate),
			option(ChoiceAcceptNewPrice, "Accept new price", 25, 0, EffectResume),
			option(ChoiceAdjustQuantity, "Adjust quantity", 0, -12, EffectResume),
			option(ChoiceCancelOrder, "Cancel order", 0, 0, EffectCancel),
		},
		CategoryPayment: {
			option(ChoiceSendToTechSupport, "Send to tech support", 150, -48, EffectMitigate),
			option(ChoiceRetryPayment, "Retry payment", 0, 0, EffectRetry),
			option(ChoiceResumeWhenReady, "Resume when system is ready", 0, 0, EffectResume),
			option(ChoiceCancelOrder, "Cancel order", 0, 0, EffectCancel),
		},
		CategoryWarehouse: {
			option(ChoiceAllocateDifferent, "Allocate from alternative warehouse", 350, -24, EffectMitigate),
			option(ChoiceWaitForStock, "Wait for stock", 0, -96, EffectResume),
			option(ChoiceCancelOrder, "Cancel order", 0, 0, EffectCancel),
		},
		CategoryTransport: {
			option(ChoiceWaitForResolution, "Wait for resolution", 0, -48, EffectResume),
			option(ChoiceRerouteShipment, "Reroute shipment", 500, -12, EffectMitigate),
			option(ChoiceExpediteService, "Expedite with premium service", 1200, 24, EffectResume),
			option(ChoiceCancelOrder, "Cancel delivery", 0, 0, EffectCancel),
		},
		CategoryCustoms: {
			option(ChoiceProvideDocumentation, "Provide additional documentation", 50, -24, EffectResume),
			option(ChoicePayExpeditedFee, "Pay expedited processing fee", 800, 48, EffectMitigate),
			option(ChoiceAcceptDelay, "Accept delay", 0, -72, EffectResume),
			option(ChoiceReturnShipment, "Return shipment", 0, 0, EffectCancel),
		},
		CategoryDelivery: {
			option(ChoiceNotifyAllParties, "Notify all parties and adjust schedules", 0, -24, EffectResume),
			option(ChoiceRedirectToPickup, "Redirect to pickup point", 75, 0, EffectMitigate),
			option(ChoiceRescheduleDelivery, "Reschedule delivery", 0, -48, EffectResume),
			option(ChoiceReturnShipment, "Return shipment", 0, 0, EffectCancel),
		},
	}
}

var followUps = map[Category]map[Choice]string{
	CategoryOrder: {
		ChoiceUpdateOrder:    "Order updated. Proceeding with payment.",
		ChoiceAcceptNewPrice: "Order updated. Proceeding with payment.",
		ChoiceAdjustQuantity: "Order updated. Proceeding with payment.",
	},
	CategoryPayment: {
		ChoiceSendToTechSupport: "Issue sent to tech support. Will resume when fixed.",
		ChoiceRetryPayment:      "Retrying payment.",
		ChoiceResumeWhenReady:   "Payment marked as ready. Resuming shipment.",
	},
	CategoryWarehouse: {
		ChoiceAllocateDifferent: "Allocating from alternative warehouse.",
		ChoiceWaitForStock:      "Waiting for stock replenishment.",
	},
	CategoryTransport: {
		ChoiceWaitForResolution: "Waiting for transport issue resolution.",
		ChoiceRerouteShipment:   "Rerouting shipment to alternate route.",
		ChoiceExpediteService:   "Upgrading to expedited shipping service.",
	},
	CategoryCustoms: {
		ChoiceProvideDocumentation: "Additional documentation submitted to customs.",
		ChoicePayExpeditedFee:      "Expedited processing fee paid.",
		ChoiceAcceptDelay:          "Delay accepted. Will monitor for updates.",
	},
	CategoryDelivery: {
		ChoiceNotifyAllParties:   "Notifying all parties and adjusting schedules.",
		ChoiceRedirectToPickup:   "Redirecting package to pickup point.",
		ChoiceRescheduleDelivery: "Delivery rescheduled with recipient.",
	},
}

// FollowUp returns the informational notice sent after a resumed decision.
func FollowUp(category Category, choice Choice) string {
	return followUps[category][choice]
}

// Catalog holds the closed, ordered choice set of every category.
type Catalog struct {
	mu      sync.RWMutex
	options map[Category][]ResolutionOption
}

// DefaultCatalog returns the built-in choice sets.
func DefaultCatalog() *Catalog {
	return &Catalog{options: defaultOptions()}
}

// Options returns the ordered options offered for category.
func (c *Catalog) Options(category Category) []ResolutionOption {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.options[category])
}

// Lookup resolves choice within category only.
func (c *Catalog) Lookup(category Category, choice Choice) (ResolutionOption, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, opt := range c.options[category] {
		if opt.Choice == choice {
			return opt, true
		}
	}
	return ResolutionOption{}, false
}

// OptionOverride changes the text, cost or time impact of an existing choice.
type OptionOverride struct {
	Text            *string
	Cost            *decimal.Decimal
	TimeImpactHours *float64
}

// Override updates one choice. Choices and effects are closed and cannot be added.
func (c *Catalog) Override(category Category, choice Choice, o OptionOverride) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts := c.options[category]
	for i := range opts {
		if opts[i].Choice != choice {
			continue
		}
		if o.Text != nil {
			opts[i].Text = *o.Text
		}
		if o.Cost != nil {
			if o.Cost.IsNegative() {
				return fmt.Errorf("catalog %s/%s: cost must not be negative", category, choice)
			}
			opts[i].Cost = *o.Cost
		}
		if o.TimeImpactHours != nil {
			opts[i].TimeImpactHours = *o.TimeImpactHours
		}
		return nil
	}
	return fmt.Errorf("catalog: unknown choice %s for category %s", choice, category)
}

// Validate checks every category has exactly one mitigating choice and a way to cancel.
func (c *Catalog) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, category := range Categories {
		opts := c.options[category]
		if len(opts) == 0 {
			return fmt.Errorf("catalog: category %s has no choices", category)
		}
		var mitigate, cancel int
		for _, opt := range opts {
			switch opt.Effect {
			case EffectMitigate:
				mitigate++
			case EffectCancel:
				cancel++
			case EffectRetry:
				if category != CategoryPayment {
					return fmt.Errorf("catalog: retry choice %s outside payment", opt.Choice)
				}
			}
			if opt.Cost.IsNegative() {
				return fmt.Errorf("catalog %s/%s: cost must not be negative", category, opt.Choice)
			}
		}
		if mitigate != 1 {
			return fmt.Errorf("catalog: category %s must have exactly one mitigating choice, has %d", category, mitigate)
		}
		if cancel == 0 {
			return fmt.Errorf("catalog: category %s has no cancel choice", category)
		}
	}
	return nil
}
