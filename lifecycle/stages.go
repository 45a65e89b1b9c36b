package lifecycle

import (
	"context"
	"fmt"
	"slices"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/gateway"
	"github.com/goliatone/go-shipment/ledger"
	"github.com/goliatone/go-shipment/store"
)

// drive runs stage work until the record rests.
func (in *Instance) drive(ctx context.Context) error {
	for {
		rec := in.Record()
		switch {
		case rec.State.Terminal():
			return nil
		case rec.Suspension != nil:
			if err := in.await(ctx, *rec.Suspension); err != nil {
				return err
			}
			continue
		case rec.StageDone:
			return nil
		}

		in.setPhase(phaseBusy)
		if err := in.gate(ctx); err != nil {
			return err
		}

		var err error
		switch {
		case rec.State == shipment.StateOrderReceived && rec.OrderValidated:
			err = in.runPayment(ctx)
		default:
			category, ok := rec.State.Category()
			if !ok {
				return fmt.Errorf("shipment %s: no stage work in state %s", in.id, rec.State)
			}
			err = in.runStage(ctx, category)
		}
		if err != nil {
			return err
		}
	}
}

// runStage invokes the stage check and either completes the stage or
// suspends on the declared failure.
func (in *Instance) runStage(ctx context.Context, category shipment.Category) error {
	rec := in.Record()
	check := gateway.CheckFor(category)
	res, err := in.invoke(ctx, gateway.Request{Check: check, State: rec.State, Input: rec.Input})
	if err != nil {
		return err
	}
	if !res.OK {
		return in.suspend(ctx, category, res)
	}

	var update *shipment.DeliveryUpdate
	if category != shipment.CategoryOrder {
		if update, err = in.estimate(ctx, rec, nil); err != nil {
			return err
		}
	}

	journal := store.NewEvent(in.id, store.KindCheck, string(check), map[string]any{"ok": true})
	return in.complete(ctx, category, func(r *shipment.Record) {
		if update != nil {
			r.DeliveryUpdate = update
		}
		if res.Warehouse != nil {
			r.WarehouseID = res.Warehouse.WarehouseID
		}
	}, journal)
}

// complete marks the stage of category as done and moves to the state that
// follows it.
func (in *Instance) complete(ctx context.Context, category shipment.Category, fn func(*shipment.Record), events ...store.Event) error {
	switch category {
	case shipment.CategoryOrder:
		return in.mutate(ctx, func(r *shipment.Record) {
			r.OrderValidated = true
			fn(r)
		}, events...)
	case shipment.CategoryPayment:
		return in.transition(ctx, shipment.StatePaymentReceived, func(r *shipment.Record) {
			r.PaymentStatus = shipment.PaymentSuccess
			r.PaymentFailure = nil
			r.StageDone = true
			fn(r)
		}, events...)
	case shipment.CategoryWarehouse:
		return in.transition(ctx, shipment.StatePackaged, func(r *shipment.Record) {
			r.StageDone = true
			fn(r)
		}, events...)
	default:
		return in.mutate(ctx, func(r *shipment.Record) {
			r.StageDone = true
			fn(r)
		}, events...)
	}
}

// suspend stores the error details, opens the suspension point of category
// and notifies the operator with the options in the order offered.
func (in *Instance) suspend(ctx context.Context, category shipment.Category, res gateway.Result) error {
	rec := in.Record()
	now := in.m.now()

	details := &shipment.ErrorDetails{
		Category:          category,
		Reason:            res.Reason,
		Details:           res.Details,
		ETAImpact:         res.ETAImpact,
		ResolutionOptions: in.m.catalog.Options(category),
	}
	sus := &shipment.SuspensionPoint{Category: category, OpenedAt: now}
	if category.Raced() {
		details.BufferCapacity = in.m.cfg.capacity(category)
		details.Deadline = now.Add(in.m.cfg.DeadlineWindow)
		sus.Deadline = details.Deadline
	}
	if res.Warehouse != nil {
		details.Alternatives = slices.Clone(res.Warehouse.AlternativeWarehouses)
	}

	var update *shipment.DeliveryUpdate
	if category != shipment.CategoryOrder && category != shipment.CategoryPayment {
		var err error
		if update, err = in.estimate(ctx, rec, details); err != nil {
			return err
		}
	}

	err := in.mutate(ctx, func(r *shipment.Record) {
		r.CurrentError = details.Clone()
		r.Suspension = sus
		if update != nil {
			r.DeliveryUpdate = update
		}
		if category == shipment.CategoryPayment {
			r.PaymentStatus = shipment.PaymentWaitingForResolution
		}
	}, store.NewEvent(in.id, store.KindSuspension, string(category), details))
	if err != nil {
		return err
	}

	in.logger.Warn("%s issue %s, awaiting decision", category, details.Reason)
	in.publish(ctx, EventSuspended, details.Clone())
	in.notify(ctx, category, issueMessage(details), true, details.ResolutionOptions)
	return nil
}

func issueMessage(details *shipment.ErrorDetails) string {
	msg := fmt.Sprintf("%s issue: %s (%s)", details.Category, details.Details, details.Reason)
	if details.ETAImpact > 0 {
		msg += fmt.Sprintf(". Expected delay: %s", details.ETAImpact)
	}
	if !details.Deadline.IsZero() {
		msg += fmt.Sprintf(". Production buffer: %.0f hours", details.BufferCapacity)
	}
	return msg + "\n" + gateway.FormatOptions(details.ResolutionOptions)
}

func (in *Instance) estimate(ctx context.Context, rec shipment.Record, failure *shipment.ErrorDetails) (*shipment.DeliveryUpdate, error) {
	res, err := in.invoke(ctx, gateway.Request{
		Check: gateway.CheckUpdateDeliveryEstimate,
		State: rec.State,
		Input: rec.Input,
		Error: failure,
	})
	if err != nil {
		return nil, err
	}
	return res.Delivery, nil
}

// apply consumes the open suspension of category with opt.
func (in *Instance) apply(ctx context.Context, category shipment.Category, opt shipment.ResolutionOption) error {
	logger := shipment.WithLoggerFields(in.logger, map[string]any{
		"category": string(category),
		"choice":   string(opt.Choice),
	})

	if opt.Effect == shipment.EffectCancel {
		logger.Info("operator cancelled the shipment")
		return in.finish(ctx, shipment.StateCanceled, fmt.Sprintf("Shipment cancelled: %s.", opt.Text))
	}

	var alternatives []string
	if current := in.Record().CurrentError; current != nil {
		alternatives = current.Alternatives
	}

	book := in.book()
	decision, err := book.Record(shipment.Decision{
		Category:        category,
		Choice:          opt.Choice,
		Description:     fmt.Sprintf("%s: %s", category, opt.Text),
		Cost:            opt.Cost,
		TimeImpactHours: opt.TimeImpactHours,
	})
	if err != nil {
		return err
	}
	if opt.Effect == shipment.EffectMitigate {
		if err := book.MarkAvoidedStop(); err != nil {
			return err
		}
	}

	consume := func(r *shipment.Record) {
		r.CurrentError = nil
		r.Suspension = nil
		syncLedger(r, book)
	}
	journal := store.NewEvent(in.id, store.KindDecision, string(opt.Choice), decision)

	if opt.Effect == shipment.EffectRetry {
		err = in.mutate(ctx, func(r *shipment.Record) {
			consume(r)
			r.PaymentRetries = 0
			r.PaymentStatus = shipment.PaymentPending
			r.PaymentFailure = nil
		}, journal)
	} else {
		err = in.complete(ctx, category, func(r *shipment.Record) {
			consume(r)
			if category == shipment.CategoryWarehouse && opt.Effect == shipment.EffectMitigate && len(alternatives) > 0 {
				r.WarehouseID = alternatives[0]
			}
		}, journal)
	}
	if err != nil {
		return err
	}

	logger.Info("decision applied, cost %s, time impact %.0fh", opt.Cost, opt.TimeImpactHours)
	in.publish(ctx, EventDecision, decision)
	if text := shipment.FollowUp(category, opt.Choice); text != "" {
		in.notify(ctx, category, text, false, nil)
	}
	return nil
}

// halt stops the run after the deadline of sus elapsed with no decision.
func (in *Instance) halt(ctx context.Context, sus shipment.SuspensionPoint) error {
	var capacity float64
	if current := in.Record().CurrentError; current != nil {
		capacity = current.BufferCapacity
	}
	loss := ledger.ProductionLoss(capacity, in.m.cfg.LossRate)
	book := in.book()
	if err := book.MarkProductionStop(capacity, loss); err != nil {
		return err
	}

	err := in.finishWith(ctx, shipment.StateCriticalHalt, fmt.Sprintf(
		"CRITICAL: no %s decision before the deadline. Production line stopped, estimated loss %s.",
		sus.Category, loss.StringFixed(2)), book)
	if err != nil {
		return err
	}
	in.logger.Error("no %s decision before the deadline, production line stopped", sus.Category)
	return nil
}
