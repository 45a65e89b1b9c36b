package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/gateway"
	"github.com/goliatone/go-shipment/lifecycle"
	"github.com/goliatone/go-shipment/runner"
)

func newBoundDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := lifecycle.DefaultConfig()
	cfg.DeadlineWindow = 2 * time.Second
	cfg.PaymentBackoff = runner.NoDelayStrategy{}

	m := lifecycle.NewManager(lifecycle.WithConfig(cfg))
	t.Cleanup(m.Close)

	d := NewDispatcher(WithExitOnError())
	subs := Bind(d, m)
	t.Cleanup(func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	})
	return d
}

func TestBindRoutesShipmentLifecycle(t *testing.T) {
	d := newBoundDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ref := shipment.ShipmentRef{ShipmentID: "D-1"}
	require.NoError(t, Dispatch(ctx, d, shipment.StartShipment{Input: shipment.Input{
		ShipmentID:   "D-1",
		OrderDetails: map[string]any{"items": []string{"mystery-box"}, gateway.FlagTransportDelay: true},
		PaymentInfo:  map[string]any{"method": "card", "amount": 100},
	}}))

	state, err := Query[shipment.GetStatus, shipment.State](ctx, d, shipment.GetStatus{ShipmentRef: ref})
	require.NoError(t, err)
	assert.Equal(t, shipment.StatePaymentReceived, state)

	require.NoError(t, Dispatch(ctx, d, shipment.AllocateWarehouse{ShipmentRef: ref}))
	require.NoError(t, Dispatch(ctx, d, shipment.StartTransport{ShipmentRef: ref}))

	current, err := Query[shipment.GetCurrentError, *shipment.ErrorDetails](ctx, d, shipment.GetCurrentError{ShipmentRef: ref})
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, shipment.CategoryTransport, current.Category)

	err = Dispatch(ctx, d, shipment.UpdateCustomsStatus{ShipmentRef: ref})
	assert.True(t, shipment.HasCode(err, shipment.ErrCodeInvalidStateTransition), "got %v", err)

	require.NoError(t, Dispatch(ctx, d, shipment.ResolveIssue{
		ShipmentRef: ref,
		Category:    shipment.CategoryTransport,
		Choice:      shipment.ChoiceRerouteShipment,
	}))

	summary, err := Query[shipment.GetSummary, shipment.WorkflowSummary](ctx, d, shipment.GetSummary{ShipmentRef: ref})
	require.NoError(t, err)
	assert.True(t, summary.AvoidedProductionStop)
	assert.Equal(t, "500", summary.TotalCost.String())

	decisions, err := Query[shipment.GetDecisions, []shipment.Decision](ctx, d, shipment.GetDecisions{ShipmentRef: ref})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, shipment.ChoiceRerouteShipment, decisions[0].Choice)

	require.NoError(t, Dispatch(ctx, d, shipment.PauseShipment{ShipmentRef: ref}))
	paused, err := Query[shipment.IsPaused, bool](ctx, d, shipment.IsPaused{ShipmentRef: ref})
	require.NoError(t, err)
	assert.True(t, paused)
	require.NoError(t, Dispatch(ctx, d, shipment.ResumeShipment{ShipmentRef: ref}))

	require.NoError(t, Dispatch(ctx, d, shipment.UpdateCustomsStatus{ShipmentRef: ref}))
	require.NoError(t, Dispatch(ctx, d, shipment.StartLocalDelivery{ShipmentRef: ref}))
	require.NoError(t, Dispatch(ctx, d, shipment.MarkDelivered{ShipmentRef: ref}))

	rec, err := Query[shipment.GetRecord, shipment.Record](ctx, d, shipment.GetRecord{ShipmentRef: ref})
	require.NoError(t, err)
	assert.Equal(t, shipment.StateDelivered, rec.State)

	update, err := Query[shipment.GetDeliveryUpdate, *shipment.DeliveryUpdate](ctx, d, shipment.GetDeliveryUpdate{ShipmentRef: ref})
	require.NoError(t, err)
	require.NotNil(t, update)

	ids, err := Query[shipment.ListShipments, []string](ctx, d, shipment.ListShipments{})
	require.NoError(t, err)
	assert.Equal(t, []string{"D-1"}, ids)
}

func TestBindCancelAndValidation(t *testing.T) {
	d := newBoundDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ref := shipment.ShipmentRef{ShipmentID: "D-2"}
	require.NoError(t, Dispatch(ctx, d, shipment.StartShipment{Input: shipment.Input{
		ShipmentID:   "D-2",
		OrderDetails: map[string]any{"items": []string{"mystery-box"}},
		PaymentInfo:  map[string]any{"method": "card"},
	}}))

	err := Dispatch(ctx, d, shipment.StartShipment{Input: shipment.Input{
		ShipmentID:   "D-2",
		OrderDetails: map[string]any{"items": []string{"mystery-box"}},
		PaymentInfo:  map[string]any{"method": "card"},
	}})
	assert.True(t, shipment.HasCode(err, shipment.ErrCodeAlreadyStarted), "got %v", err)

	err = Dispatch(ctx, d, shipment.ResolveIssue{ShipmentRef: ref, Category: "billing", Choice: shipment.ChoiceCancelOrder})
	assert.True(t, shipment.HasCode(err, shipment.ErrCodeValidation), "got %v", err)

	require.NoError(t, Dispatch(ctx, d, shipment.CancelShipment{ShipmentRef: ref}))
	state, err := Query[shipment.GetStatus, shipment.State](ctx, d, shipment.GetStatus{ShipmentRef: ref})
	require.NoError(t, err)
	assert.Equal(t, shipment.StateCanceled, state)

	err = Dispatch(ctx, d, shipment.AllocateWarehouse{ShipmentRef: ref})
	assert.True(t, shipment.HasCode(err, shipment.ErrCodeInvalidStateTransition), "got %v", err)

	_, err = Query[shipment.GetStatus, shipment.State](ctx, d, shipment.GetStatus{ShipmentRef: shipment.ShipmentRef{ShipmentID: "missing"}})
	assert.True(t, shipment.HasCode(err, shipment.ErrCodeNotFound), "got %v", err)
}
