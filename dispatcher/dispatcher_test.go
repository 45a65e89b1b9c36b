package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/runner"
)

type noteMessage struct {
	ID string
}

func (noteMessage) Type() string { return "test.note" }

func (m noteMessage) Validate() error {
	if m.ID == "" {
		return errors.New("id required")
	}
	return nil
}

type lookupMessage struct {
	ID string
}

func (lookupMessage) Type() string    { return "test.lookup" }
func (lookupMessage) Validate() error { return nil }

type noteBook struct {
	notes map[string]int
}

func (b *noteBook) Execute(ctx context.Context, msg noteMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		b.notes[msg.ID]++
		return nil
	}
}

func (b *noteBook) Query(_ context.Context, msg lookupMessage) (int, error) {
	n, ok := b.notes[msg.ID]
	if !ok {
		return 0, errors.New("note not found")
	}
	return n, nil
}

func TestCommandDispatcher(t *testing.T) {
	t.Run("successful command execution", func(t *testing.T) {
		d := NewDispatcher()
		book := &noteBook{notes: map[string]int{}}
		SubscribeCommand[noteMessage](d, book)

		if err := Dispatch(context.Background(), d, noteMessage{ID: "a"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if book.notes["a"] != 1 {
			t.Fatalf("expected note to be recorded, got %v", book.notes)
		}
	})

	t.Run("validation runs before handlers", func(t *testing.T) {
		d := NewDispatcher()
		called := false
		SubscribeCommandFunc(d, shipment.CommandFunc[noteMessage](func(context.Context, noteMessage) error {
			called = true
			return nil
		}))

		err := Dispatch(context.Background(), d, noteMessage{})
		if !shipment.HasCode(err, shipment.ErrCodeValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if called {
			t.Fatal("handler ran for an invalid message")
		}
	})

	t.Run("missing handler", func(t *testing.T) {
		err := Dispatch(context.Background(), NewDispatcher(), noteMessage{ID: "a"})
		var msgErr *shipment.MessageError
		if !errors.As(err, &msgErr) || msgErr.Type != "DispatchHandlerError" {
			t.Fatalf("expected DispatchHandlerError, got %v", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		d := NewDispatcher()
		SubscribeCommandFunc(d, shipment.CommandFunc[noteMessage](func(ctx context.Context, _ noteMessage) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		}))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := Dispatch(ctx, d, noteMessage{ID: "a"})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded error, got %v", err)
		}
	})

	t.Run("exit on error", func(t *testing.T) {
		d := NewDispatcher(WithExitOnError())
		firstError := errors.New("handler error")
		var secondHandlerCalled bool

		SubscribeCommandFunc(d, shipment.CommandFunc[noteMessage](func(context.Context, noteMessage) error {
			return firstError
		}))
		SubscribeCommandFunc(d, shipment.CommandFunc[noteMessage](func(context.Context, noteMessage) error {
			secondHandlerCalled = true
			return nil
		}))

		err := Dispatch(context.Background(), d, noteMessage{ID: "a"})
		var msgErr *shipment.MessageError
		if !errors.As(err, &msgErr) {
			t.Fatalf("expected MessageError, got %v", err)
		}
		if !errors.Is(err, firstError) {
			t.Fatalf("expected wrapped handler error, got %v", err)
		}
		if secondHandlerCalled {
			t.Fatal("second handler was called despite exitOnErr being true")
		}
	})

	t.Run("errors are joined without exit on error", func(t *testing.T) {
		d := NewDispatcher()
		var calls int
		for range 2 {
			SubscribeCommandFunc(d, shipment.CommandFunc[noteMessage](func(context.Context, noteMessage) error {
				calls++
				return errors.New("boom")
			}))
		}
		if err := Dispatch(context.Background(), d, noteMessage{ID: "a"}); err == nil {
			t.Fatal("expected joined error")
		}
		if calls != 2 {
			t.Fatalf("expected both handlers to run, got %d", calls)
		}
	})

	t.Run("runner retries", func(t *testing.T) {
		d := NewDispatcher()
		var attempts int
		SubscribeCommandFunc(d, shipment.CommandFunc[noteMessage](func(context.Context, noteMessage) error {
			attempts++
			if attempts < 3 {
				return errors.New("flaky")
			}
			return nil
		}), runner.WithMaxRetries(2))

		if err := Dispatch(context.Background(), d, noteMessage{ID: "a"}); err != nil {
			t.Fatalf("expected retries to succeed, got %v", err)
		}
		if attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", attempts)
		}
	})
}

func TestQueryDispatcher(t *testing.T) {
	t.Run("successful query execution", func(t *testing.T) {
		d := NewDispatcher()
		book := &noteBook{notes: map[string]int{"a": 2}}
		SubscribeQuery[lookupMessage, int](d, book)

		n, err := Query[lookupMessage, int](context.Background(), d, lookupMessage{ID: "a"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2, got %d", n)
		}
	})

	t.Run("not found error", func(t *testing.T) {
		d := NewDispatcher()
		SubscribeQuery[lookupMessage, int](d, &noteBook{notes: map[string]int{}})

		if _, err := Query[lookupMessage, int](context.Background(), d, lookupMessage{ID: "x"}); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("ambiguous query", func(t *testing.T) {
		d := NewDispatcher()
		book := &noteBook{notes: map[string]int{}}
		SubscribeQuery[lookupMessage, int](d, book)
		SubscribeQuery[lookupMessage, int](d, book)

		if _, err := Query[lookupMessage, int](context.Background(), d, lookupMessage{ID: "a"}); err == nil {
			t.Fatal("expected ambiguous query error")
		}
	})

	t.Run("unsubscribe removes handler", func(t *testing.T) {
		d := NewDispatcher()
		sub := SubscribeQuery[lookupMessage, int](d, &noteBook{notes: map[string]int{"a": 1}})
		sub.Unsubscribe()

		if _, err := Query[lookupMessage, int](context.Background(), d, lookupMessage{ID: "a"}); err == nil {
			t.Fatal("expected missing handler error")
		}
	})
}

func TestNilDispatcherUsesDefault(t *testing.T) {
	book := &noteBook{notes: map[string]int{}}
	sub := SubscribeCommand[noteMessage](nil, book)
	defer sub.Unsubscribe()

	if err := Dispatch(context.Background(), nil, noteMessage{ID: "default"}); err != nil {
		t.Fatalf("dispatch on default: %v", err)
	}
	if book.notes["default"] != 1 {
		t.Fatal("expected default dispatcher to route the message")
	}
}

func TestUnsubscribeTwiceKeepsOtherHandlers(t *testing.T) {
	d := NewDispatcher()
	first := &noteBook{notes: map[string]int{}}
	second := &noteBook{notes: map[string]int{}}
	sub := SubscribeCommand[noteMessage](d, first)
	SubscribeCommand[noteMessage](d, second)

	sub.Unsubscribe()
	sub.Unsubscribe()

	if got := len(d.GetHandlers(noteMessage{}.Type())); got != 1 {
		t.Fatalf("expected 1 handler left, got %d", got)
	}
	if err := Dispatch(context.Background(), d, noteMessage{ID: "n"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if first.notes["n"] != 0 || second.notes["n"] != 1 {
		t.Fatalf("unexpected routing: first=%v second=%v", first.notes, second.notes)
	}
}
