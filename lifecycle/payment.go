package lifecycle

import (
	"context"
	"errors"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/gateway"
	"github.com/goliatone/go-shipment/runner"
	"github.com/goliatone/go-shipment/store"
)

const insufficientFundsNote = "Order cancelled: Insufficient funds in account"

// runPayment makes up to PaymentAttempts payment checks, waiting the
// configured backoff between failures. The attempt counter lives in the
// record so a recovered run continues where it stopped.
func (in *Instance) runPayment(ctx context.Context) error {
	attempts := in.m.cfg.PaymentAttempts
	for {
		rec := in.Record()
		if rec.PaymentRetries >= attempts {
			return in.paymentExhausted(ctx, rec)
		}
		if err := in.gate(ctx); err != nil {
			return err
		}

		res, err := in.invoke(ctx, gateway.Request{
			Check:   gateway.CheckVerifyPayment,
			State:   rec.State,
			Input:   rec.Input,
			Attempt: rec.PaymentRetries,
		})
		if err != nil {
			return err
		}

		journal := store.NewEvent(in.id, store.KindCheck, string(gateway.CheckVerifyPayment), map[string]any{
			"attempt": rec.PaymentRetries,
			"ok":      res.OK,
			"reason":  res.Reason,
		})
		if res.OK {
			in.logger.Info("payment verified on attempt %d", rec.PaymentRetries+1)
			return in.complete(ctx, shipment.CategoryPayment, func(*shipment.Record) {}, journal)
		}

		failure := &shipment.PaymentFailure{Reason: res.Reason, Details: res.Details}
		err = in.mutate(ctx, func(r *shipment.Record) {
			r.PaymentRetries++
			r.PaymentStatus = shipment.PaymentFailed
			r.PaymentFailure = failure
		}, journal)
		if err != nil {
			return err
		}

		failed := rec.PaymentRetries + 1
		in.logger.Warn("payment attempt %d of %d failed: %s", failed, attempts, res.Reason)
		if failed < attempts {
			wait := in.m.cfg.PaymentBackoff.SleepDuration(failed-1, errors.New(res.Reason))
			if err := runner.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// paymentExhausted cancels on insufficient funds and escalates any other
// reason to the operator.
func (in *Instance) paymentExhausted(ctx context.Context, rec shipment.Record) error {
	failure := rec.PaymentFailure
	if failure != nil && failure.Reason == shipment.PaymentInsufficientFunds {
		in.logger.Warn("payment failed with insufficient funds, cancelling")
		return in.finish(ctx, shipment.StateCanceled, insufficientFundsNote)
	}

	res := gateway.Result{}
	if failure != nil {
		res.Reason, res.Details = failure.Reason, failure.Details
	} else {
		reason, _ := shipment.LookupReason(shipment.CategoryPayment, "")
		res.Reason, res.Details = reason.Code, reason.Details
	}
	return in.suspend(ctx, shipment.CategoryPayment, res)
}
