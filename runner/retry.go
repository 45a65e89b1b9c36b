package runner

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryStrategy picks the pause before the next attempt. attempt counts the
// failures so far, starting at 0.
type RetryStrategy interface {
	SleepDuration(attempt int, err error) time.Duration
}

// Strategy names accepted by NewStrategy.
const (
	StrategyNone        = "none"
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// NewStrategy builds a named strategy. The exponential strategy doubles delay
// on each failure and stops growing once attempts failures have been seen.
func NewStrategy(name string, delay time.Duration, attempts int) (RetryStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyNone:
		return NoDelayStrategy{}, nil
	case StrategyFixed, "":
		return FixedDelayStrategy{Delay: delay}, nil
	case StrategyExponential:
		ceiling := max(attempts-1, 0)
		return ExponentialBackoffStrategy{
			Base:   delay,
			Factor: 2,
			Max:    delay * time.Duration(1<<ceiling),
		}, nil
	}
	return nil, fmt.Errorf("runner: unknown retry strategy %q", name)
}

// NoDelayStrategy retries immediately.
type NoDelayStrategy struct{}

func (NoDelayStrategy) SleepDuration(int, error) time.Duration { return 0 }

// FixedDelayStrategy pauses Delay between attempts, as the payment check
// does between charges.
type FixedDelayStrategy struct {
	Delay time.Duration
}

func (f FixedDelayStrategy) SleepDuration(int, error) time.Duration {
	return max(f.Delay, 0)
}

// ExponentialBackoffStrategy grows Base by Factor per failure. A positive
// Max caps the pause.
type ExponentialBackoffStrategy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	factor := e.Factor
	if factor < 1 {
		factor = 1
	}
	pause := time.Duration(float64(e.Base) * math.Pow(factor, float64(max(attempt, 0))))
	if e.Max > 0 && (pause > e.Max || pause < 0) {
		return e.Max
	}
	return max(pause, 0)
}
