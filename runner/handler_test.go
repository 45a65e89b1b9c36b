package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingFunc struct {
	mu        sync.Mutex
	calls     int
	failUntil int
}

func (c *countingFunc) fn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failUntil {
		return errors.New("simulated failure")
	}
	return nil
}

func TestHandler_NoError_NoRetries(t *testing.T) {
	h := NewHandler()

	cf := &countingFunc{}
	if err := h.Run(context.Background(), cf.fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cf.calls != 1 {
		t.Errorf("expected calls=1, got %d", cf.calls)
	}
	runs, ok := h.Stats()
	if runs != 1 || ok != 1 {
		t.Errorf("expected runs=1 successful=1, got %d/%d", runs, ok)
	}
}

func TestHandler_SuccessOnSecondAttempt(t *testing.T) {
	h := NewHandler(WithMaxRetries(3))

	cf := &countingFunc{failUntil: 1}
	if err := h.Run(context.Background(), cf.fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf.calls != 2 {
		t.Errorf("expected calls=2, got %d", cf.calls)
	}
}

func TestHandler_AllAttemptsFail(t *testing.T) {
	var reported []error
	h := NewHandler(WithMaxRetries(2), WithErrorHandler(func(err error) {
		reported = append(reported, err)
	}))

	cf := &countingFunc{failUntil: 5}
	if err := h.Run(context.Background(), cf.fn); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if cf.calls != 3 {
		t.Errorf("expected calls=3 (1 initial + 2 retries), got %d", cf.calls)
	}
	if len(reported) != 2 {
		t.Errorf("expected 2 intermediate errors reported, got %d", len(reported))
	}
	if _, ok := h.Stats(); ok != 0 {
		t.Errorf("expected successful=0, got %d", ok)
	}
}

func TestHandler_RetryableStopsEarly(t *testing.T) {
	fatal := errors.New("fatal")
	h := NewHandler(WithMaxRetries(5), WithRetryable(func(err error) bool {
		return !errors.Is(err, fatal)
	}))

	calls := 0
	err := h.Run(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestHandler_Timeout(t *testing.T) {
	h := NewHandler(WithTimeout(20 * time.Millisecond))

	err := h.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHandler_BackoffHonoursContext(t *testing.T) {
	h := NewHandler(
		WithMaxRetries(3),
		WithRetryStrategy(FixedDelayStrategy{Delay: time.Hour}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := h.Run(ctx, func(context.Context) error { return errors.New("boom") })
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("backoff did not observe context cancellation")
	}
}

func TestRunQuery(t *testing.T) {
	h := NewHandler(WithMaxRetries(1))
	calls := 0
	got, err := RunQuery(context.Background(), h, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("first")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
}

func TestStrategies(t *testing.T) {
	if d := (NoDelayStrategy{}).SleepDuration(3, nil); d != 0 {
		t.Errorf("no delay: got %v", d)
	}
	if d := (FixedDelayStrategy{Delay: time.Minute}).SleepDuration(2, nil); d != time.Minute {
		t.Errorf("fixed: got %v", d)
	}
	exp := ExponentialBackoffStrategy{Base: 100 * time.Millisecond, Factor: 2, Max: 300 * time.Millisecond}
	if d := exp.SleepDuration(1, nil); d != 200*time.Millisecond {
		t.Errorf("exponential attempt 1: got %v", d)
	}
	if d := exp.SleepDuration(5, nil); d != 300*time.Millisecond {
		t.Errorf("exponential cap: got %v", d)
	}
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("exponential", 100*time.Millisecond, 5)
	if err != nil {
		t.Fatalf("exponential: %v", err)
	}
	exp, ok := s.(ExponentialBackoffStrategy)
	if !ok {
		t.Fatalf("expected ExponentialBackoffStrategy, got %T", s)
	}
	if exp.Max != 1600*time.Millisecond {
		t.Errorf("cap: got %v", exp.Max)
	}

	s, err = NewStrategy(" Fixed ", time.Second, 3)
	if err != nil || s != (FixedDelayStrategy{Delay: time.Second}) {
		t.Errorf("fixed: got %v, %v", s, err)
	}
	s, err = NewStrategy("none", time.Second, 3)
	if err != nil || s != (NoDelayStrategy{}) {
		t.Errorf("none: got %v, %v", s, err)
	}
	if _, err := NewStrategy("linear", time.Second, 3); err == nil {
		t.Error("expected an error for an unknown strategy")
	}
}
