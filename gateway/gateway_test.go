package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/router"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputWith(details map[string]any) shipment.Input {
	return shipment.Input{
		ShipmentID:   "s-1",
		OrderDetails: details,
		PaymentInfo:  map[string]any{"method": "card", "amount": 100},
	}
}

func TestSimulatorSucceedsWithoutFlags(t *testing.T) {
	sim := NewSimulator()
	in := inputWith(map[string]any{"items": []string{"mystery-box"}})

	for _, check := range []Check{
		CheckValidateOrder, CheckVerifyPayment, CheckWarehouseAllocation,
		CheckTransportStatus, CheckCustomsStatus, CheckDeliveryStatus,
	} {
		res, err := sim.Invoke(context.Background(), Request{Check: check, Input: in})
		require.NoError(t, err, check)
		assert.True(t, res.OK, check)
	}
}

func TestSimulatorStockIssue(t *testing.T) {
	sim := NewSimulator()
	res, err := sim.Invoke(context.Background(), Request{
		Check: CheckWarehouseAllocation,
		Input: inputWith(map[string]any{FlagStockIssue: true}),
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "NO_STOCK", res.Reason)
	assert.Equal(t, 96*time.Hour, res.ETAImpact)
	require.NotNil(t, res.Warehouse)
	assert.Equal(t, "WH001", res.Warehouse.WarehouseID)
	assert.False(t, res.Warehouse.StockAvailable)
	assert.Equal(t, []string{"WH002", "WH003"}, res.Warehouse.AlternativeWarehouses)
}

func TestSimulatorReasonOverride(t *testing.T) {
	sim := NewSimulator()
	res, err := sim.Invoke(context.Background(), Request{
		Check: CheckTransportStatus,
		Input: inputWith(map[string]any{
			FlagTransportDelay:                    true,
			ReasonKey(shipment.CategoryTransport): "ROUTE_BLOCKED",
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "ROUTE_BLOCKED", res.Reason)
	assert.Equal(t, "Main route is blocked, detour required", res.Details)

	_, err = sim.Invoke(context.Background(), Request{
		Check: CheckCustomsStatus,
		Input: inputWith(map[string]any{
			FlagCustomsIssue:                    true,
			ReasonKey(shipment.CategoryCustoms): "NOPE",
		}),
	})
	assert.Error(t, err)
}

func TestSimulatorPaymentFailure(t *testing.T) {
	sim := NewSimulator()
	in := inputWith(map[string]any{})
	in.SimulatePaymentFailure = true

	res, err := sim.Invoke(context.Background(), Request{Check: CheckVerifyPayment, Input: in})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "BANK_SERVER_DOWN", res.Reason)

	in.PaymentFailureReason = shipment.PaymentInsufficientFunds
	res, err = sim.Invoke(context.Background(), Request{Check: CheckVerifyPayment, Input: in})
	require.NoError(t, err)
	assert.Equal(t, shipment.PaymentInsufficientFunds, res.Reason)
	assert.Equal(t, "Insufficient funds in account", res.Details)
}

func TestEstimate(t *testing.T) {
	base := time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)

	onTime := Estimate(base, nil)
	assert.Equal(t, "2025-11-15", onTime.EstimatedDeliveryDate)
	assert.Equal(t, shipment.DeliveryOnTime, onTime.Status)
	assert.Empty(t, onTime.Issues)

	delayed := Estimate(base, &shipment.ErrorDetails{
		Reason:    "WEATHER_DELAY",
		Details:   "Severe weather conditions affecting route",
		ETAImpact: 72 * time.Hour,
	})
	assert.Equal(t, shipment.DeliveryDelayed, delayed.Status)
	assert.Equal(t, "2025-11-15", delayed.OriginalETA)
	assert.Equal(t, "2025-11-18", delayed.NewETA)
	assert.Equal(t, "WEATHER_DELAY", delayed.DelayReason)
	assert.Equal(t, []string{"Severe weather conditions affecting route"}, delayed.Issues)
}

func TestSimulatorNotifyDelegates(t *testing.T) {
	rec := &Recorder{}
	sim := NewSimulator(WithNotifier(rec))

	_, err := sim.Invoke(context.Background(), Request{
		Check:        CheckNotifyOperator,
		ShipmentID:   "s-1",
		Notification: &Notification{ShipmentID: "s-1", Message: "hello"},
	})
	require.NoError(t, err)
	require.Len(t, rec.For("s-1"), 1)
	assert.Equal(t, "hello", rec.For("s-1")[0].Message)

	_, err = sim.Invoke(context.Background(), Request{Check: CheckNotifyOperator})
	assert.Error(t, err)
}

func TestResilientRetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	flaky := Func(func(ctx context.Context, req Request) (Result, error) {
		if calls.Add(1) < 3 {
			return Result{}, errors.New("connection reset")
		}
		return Result{OK: true}, nil
	})

	gw := NewResilient(flaky, WithRetries(2, nil), WithCallTimeout(time.Second))
	res, err := gw.Invoke(context.Background(), Request{Check: CheckVerifyPayment})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilientSkipsRetriesForPermanentFailures(t *testing.T) {
	var calls atomic.Int32
	rejecting := Func(func(ctx context.Context, req Request) (Result, error) {
		calls.Add(1)
		return NewSimulator().Invoke(ctx, Request{Check: "unknown"})
	})
	gw := NewResilient(rejecting, WithRetries(3, nil))

	_, err := gw.Invoke(context.Background(), Request{Check: CheckTransportStatus})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.True(t, shipment.HasCode(err, shipment.ErrCodeGatewayFailure))
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	invalid := Func(func(ctx context.Context, req Request) (Result, error) {
		calls.Add(1)
		return Result{}, shipment.ValidationFailed("shipment.start", errors.New("bad input"))
	})
	_, err = NewResilient(invalid, WithRetries(3, nil)).Invoke(context.Background(), Request{Check: CheckValidateOrder})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResilientWrapsExhaustedFailures(t *testing.T) {
	broken := Func(func(ctx context.Context, req Request) (Result, error) {
		return Result{}, errors.New("down")
	})
	gw := NewResilient(broken, WithRetries(1, nil), WithRateLimit(1000, 10))

	_, err := gw.Invoke(context.Background(), Request{Check: CheckCustomsStatus})
	require.Error(t, err)
	assert.True(t, shipment.HasCode(err, shipment.ErrCodeGatewayFailure))
}

func TestResilientTimesOutSlowCalls(t *testing.T) {
	slow := Func(func(ctx context.Context, req Request) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
	gw := NewResilient(slow, WithRetries(0, nil), WithCallTimeout(10*time.Millisecond))

	_, err := gw.Invoke(context.Background(), Request{Check: CheckDeliveryStatus})
	require.Error(t, err)
	assert.True(t, shipment.HasCode(err, shipment.ErrCodeGatewayFailure))
}

func TestFormatOptions(t *testing.T) {
	opts := shipment.DefaultCatalog().Options(shipment.CategoryTransport)
	assert.Equal(t,
		"Options:\n1. Wait for resolution\n2. Reroute shipment\n3. Expedite with premium service\n4. Cancel delivery",
		FormatOptions(opts),
	)
	assert.Equal(t, "", FormatOptions(nil))
}

func TestMuxNotifierPublishesOnShipmentTopic(t *testing.T) {
	mux := router.NewMux()
	var got []router.Event
	mux.Subscribe("shipment.*.notify", func(_ context.Context, evt router.Event) error {
		got = append(got, evt)
		return nil
	})

	n := MuxNotifier{Mux: mux}
	require.NoError(t, n.Notify(context.Background(), Notification{ShipmentID: "abc", Message: "m"}))
	require.Len(t, got, 1)
	assert.Equal(t, "shipment.abc.notify", got[0].Topic)
	assert.Equal(t, "abc", got[0].ShipmentID)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifierWithWriter(w)

	note := Notification{
		ID:             "n-1",
		ShipmentID:     "s-9",
		Category:       shipment.CategoryCustoms,
		Message:        "Customs issue",
		ActionRequired: true,
	}
	require.NoError(t, n.Notify(context.Background(), note))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("s-9"), w.msgs[0].Key)

	var decoded Notification
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "Customs issue", decoded.Message)
	assert.Equal(t, shipment.CategoryCustoms, decoded.Category)

	w.err = errors.New("broker unavailable")
	assert.Error(t, n.Notify(context.Background(), note))

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	m := MultiNotifier{rec, nil, NotifierFunc(func(context.Context, Notification) error { return boom })}

	err := m.Notify(context.Background(), Notification{ShipmentID: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.Notifications(), 1)
}
