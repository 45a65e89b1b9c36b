// Package scenario holds the canned shipment runs used for demos and smoke
// tests, and a driver that plays one through a dispatcher.
package scenario

import (
	"context"
	"fmt"
	"sort"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/dispatcher"
	"github.com/goliatone/go-shipment/gateway"
)

// maxSteps bounds a run; a full pipeline with one resolution per stage needs
// far fewer.
const maxSteps = 32

// Scenario describes the input flags of a run and the choice the operator
// makes for each category that suspends.
type Scenario struct {
	ID          string
	Description string
	Flags       []string
	// PaymentFailure forces every payment attempt to fail with
	// PaymentFailureReason, or the default reason when empty.
	PaymentFailure       bool
	PaymentFailureReason string
	Choices              map[shipment.Category]shipment.Choice
	Expect               shipment.State
}

var scenarios = map[string]Scenario{
	"happy-path": {
		ID:          "happy-path",
		Description: "No failures, straight to delivery",
		Expect:      shipment.StateDelivered,
	},
	"price-mismatch": {
		ID:          "price-mismatch",
		Description: "Order validation fails, operator accepts the new price",
		Flags:       []string{gateway.FlagValidationFailure},
		Choices:     map[shipment.Category]shipment.Choice{shipment.CategoryOrder: shipment.ChoiceAcceptNewPrice},
		Expect:      shipment.StateDelivered,
	},
	"warehouse-stock": {
		ID:          "warehouse-stock",
		Description: "Warehouse has no stock, operator waits for it",
		Flags:       []string{gateway.FlagStockIssue},
		Choices:     map[shipment.Category]shipment.Choice{shipment.CategoryWarehouse: shipment.ChoiceWaitForStock},
		Expect:      shipment.StateDelivered,
	},
	"transport-delay": {
		ID:          "transport-delay",
		Description: "Transport is delayed, operator reroutes",
		Flags:       []string{gateway.FlagTransportDelay},
		Choices:     map[shipment.Category]shipment.Choice{shipment.CategoryTransport: shipment.ChoiceRerouteShipment},
		Expect:      shipment.StateDelivered,
	},
	"customs-issue": {
		ID:          "customs-issue",
		Description: "Customs holds the shipment, operator pays the expedited fee",
		Flags:       []string{gateway.FlagCustomsIssue},
		Choices:     map[shipment.Category]shipment.Choice{shipment.CategoryCustoms: shipment.ChoicePayExpeditedFee},
		Expect:      shipment.StateDelivered,
	},
	"delivery-delay": {
		ID:          "delivery-delay",
		Description: "Local delivery fails, operator redirects to a pickup point",
		Flags:       []string{gateway.FlagDeliveryDelay},
		Choices:     map[shipment.Category]shipment.Choice{shipment.CategoryDelivery: shipment.ChoiceRedirectToPickup},
		Expect:      shipment.StateDelivered,
	},
	"payment-failure": {
		ID:             "payment-failure",
		Description:    "Payment fails three times, operator sends it to tech support",
		PaymentFailure: true,
		Choices:        map[shipment.Category]shipment.Choice{shipment.CategoryPayment: shipment.ChoiceSendToTechSupport},
		Expect:         shipment.StateDelivered,
	},
	"insufficient-funds": {
		ID:                   "insufficient-funds",
		Description:          "Payment fails with insufficient funds and the order is canceled",
		PaymentFailure:       true,
		PaymentFailureReason: shipment.PaymentInsufficientFunds,
		Expect:               shipment.StateCanceled,
	},
}

// Get returns the scenario registered under id.
func Get(id string) (Scenario, bool) {
	sc, ok := scenarios[id]
	if !ok {
		return Scenario{}, false
	}
	sc.Flags = append([]string(nil), sc.Flags...)
	return sc, true
}

// IDs lists the scenario ids in lexical order.
func IDs() []string {
	out := make([]string, 0, len(scenarios))
	for id := range scenarios {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Input builds the start payload: one mystery box paid by card, with every
// simulation flag present and only the scenario's own flags set.
func (s Scenario) Input(shipmentID string) shipment.Input {
	details := map[string]any{
		"items":    []any{"mystery-box"},
		"quantity": 1,
	}
	for _, flag := range []string{
		gateway.FlagValidationFailure,
		gateway.FlagStockIssue,
		gateway.FlagTransportDelay,
		gateway.FlagCustomsIssue,
		gateway.FlagDeliveryDelay,
	} {
		details[flag] = false
	}
	for _, flag := range s.Flags {
		details[flag] = true
	}
	return shipment.Input{
		ShipmentID:             shipmentID,
		OrderDetails:           details,
		PaymentInfo:            map[string]any{"method": "card", "amount": 100},
		SimulatePaymentFailure: s.PaymentFailure,
		PaymentFailureReason:   s.PaymentFailureReason,
	}
}

// Choice returns the operator's pick for category. Without an explicit pick
// the first offered option is taken.
func (s Scenario) Choice(issue *shipment.ErrorDetails) (shipment.Choice, error) {
	if choice, ok := s.Choices[issue.Category]; ok {
		return choice, nil
	}
	if len(issue.ResolutionOptions) == 0 {
		return "", fmt.Errorf("scenario %s: no options offered for %s", s.ID, issue.Category)
	}
	return issue.ResolutionOptions[0].Choice, nil
}

// Observer is told about every resting point a run reaches.
type Observer func(step string, rec shipment.Record)

// Run starts shipmentID with the scenario input and drives it through d
// until it reaches a terminal state. Each pending issue is resolved with the
// scenario's choice and each finished stage is advanced with the next
// command.
func Run(ctx context.Context, d *dispatcher.Dispatcher, s Scenario, shipmentID string, observe Observer) (shipment.Record, error) {
	if observe == nil {
		observe = func(string, shipment.Record) {}
	}
	ref := shipment.ShipmentRef{ShipmentID: shipmentID}

	if err := dispatcher.Dispatch(ctx, d, shipment.StartShipment{Input: s.Input(shipmentID)}); err != nil {
		return shipment.Record{}, err
	}

	for step := 0; step < maxSteps; step++ {
		rec, err := dispatcher.Query[shipment.GetRecord, shipment.Record](ctx, d, shipment.GetRecord{ShipmentRef: ref})
		if err != nil {
			return shipment.Record{}, err
		}
		if rec.State.Terminal() {
			observe("finished", rec)
			return rec, nil
		}

		if rec.CurrentError != nil {
			observe("issue", rec)
			choice, err := s.Choice(rec.CurrentError)
			if err != nil {
				return rec, err
			}
			err = dispatcher.Dispatch(ctx, d, shipment.ResolveIssue{
				ShipmentRef: ref,
				Category:    rec.CurrentError.Category,
				Choice:      choice,
			})
			if err != nil {
				return rec, err
			}
			continue
		}

		cmd, ok := nextCommand(rec.State)
		if !ok {
			return rec, fmt.Errorf("scenario %s: no command advances %s", s.ID, rec.State)
		}
		observe(string(cmd), rec)
		if err := advance(ctx, d, cmd, ref); err != nil {
			return rec, err
		}
	}
	return shipment.Record{}, fmt.Errorf("scenario %s: shipment %s did not finish in %d steps", s.ID, shipmentID, maxSteps)
}

// nextCommand returns the advance command whose predecessor is state.
func nextCommand(state shipment.State) (shipment.Command, bool) {
	for _, cmd := range shipment.Commands {
		if pred, ok := cmd.Predecessor(); ok && pred == state {
			return cmd, true
		}
	}
	return "", false
}

func advance(ctx context.Context, d *dispatcher.Dispatcher, cmd shipment.Command, ref shipment.ShipmentRef) error {
	switch cmd {
	case shipment.CommandAllocateWarehouse:
		return dispatcher.Dispatch(ctx, d, shipment.AllocateWarehouse{ShipmentRef: ref})
	case shipment.CommandStartTransport:
		return dispatcher.Dispatch(ctx, d, shipment.StartTransport{ShipmentRef: ref})
	case shipment.CommandUpdateCustomsStatus:
		return dispatcher.Dispatch(ctx, d, shipment.UpdateCustomsStatus{ShipmentRef: ref})
	case shipment.CommandStartLocalDelivery:
		return dispatcher.Dispatch(ctx, d, shipment.StartLocalDelivery{ShipmentRef: ref})
	case shipment.CommandMarkDelivered:
		return dispatcher.Dispatch(ctx, d, shipment.MarkDelivered{ShipmentRef: ref})
	}
	return fmt.Errorf("command %s is not an advance", cmd)
}
