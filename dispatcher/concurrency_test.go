package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-shipment"
)

type tickMessage struct {
	ID int
}

func (tickMessage) Type() string    { return "test.tick" }
func (tickMessage) Validate() error { return nil }

func TestConcurrentSubscribeUnsubscribe(t *testing.T) {
	d := NewDispatcher()

	var wg sync.WaitGroup
	numGoroutines := 100

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			sub := SubscribeCommandFunc(d, shipment.CommandFunc[tickMessage](func(context.Context, tickMessage) error {
				return nil
			}))
			time.Sleep(time.Millisecond)
			sub.Unsubscribe()
		}()
	}

	wg.Wait()
	if got := len(d.GetHandlers(tickMessage{}.Type())); got != 0 {
		t.Fatalf("expected all handlers removed, got %d", got)
	}
}

func TestConcurrentDispatch(t *testing.T) {
	d := NewDispatcher()

	var counter atomic.Int32
	numHandlers := 10
	numDispatches := 100

	subs := make([]Subscription, numHandlers)
	for i := 0; i < numHandlers; i++ {
		subs[i] = SubscribeCommandFunc(d, shipment.CommandFunc[tickMessage](func(context.Context, tickMessage) error {
			counter.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		}))
	}

	var wg sync.WaitGroup
	wg.Add(numDispatches)
	for i := 0; i < numDispatches; i++ {
		go func(id int) {
			defer wg.Done()
			_ = Dispatch(context.Background(), d, tickMessage{ID: id})
		}(i)
	}

	wg.Wait()

	expected := int32(numHandlers * numDispatches)
	if counter.Load() != expected {
		t.Fatalf("expected %d handler executions, got %d", expected, counter.Load())
	}

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func TestConcurrentSubscribeDispatch(t *testing.T) {
	d := NewDispatcher()

	var wg sync.WaitGroup
	numOperations := 100

	wg.Add(numOperations * 2)

	for i := 0; i < numOperations; i++ {
		go func() {
			defer wg.Done()
			sub := SubscribeCommandFunc(d, shipment.CommandFunc[tickMessage](func(context.Context, tickMessage) error {
				time.Sleep(time.Millisecond)
				return nil
			}))
			time.Sleep(time.Millisecond * 10)
			sub.Unsubscribe()
		}()
	}

	for i := 0; i < numOperations; i++ {
		go func(id int) {
			defer wg.Done()
			_ = Dispatch(context.Background(), d, tickMessage{ID: id})
		}(i)
	}

	wg.Wait()
}
