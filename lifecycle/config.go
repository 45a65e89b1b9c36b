package lifecycle

import (
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/runner"
	"github.com/shopspring/decimal"
)

const (
	DefaultDeadlineWindow  = 15 * time.Second
	DefaultPaymentAttempts = 3
	DefaultPaymentBackoff  = 60 * time.Second
)

// Config holds the timing and accounting parameters of a shipment run.
type Config struct {
	// DeadlineWindow bounds every deadline-raced suspension.
	DeadlineWindow  time.Duration
	PaymentAttempts int
	PaymentBackoff  runner.RetryStrategy
	// LossRate is the production loss per unit of buffer capacity.
	LossRate decimal.Decimal
	// BufferCapacity is the production buffer, in hours, left when a raced
	// category suspends.
	BufferCapacity map[shipment.Category]float64
}

// DefaultConfig returns the reference timing with a fixed payment backoff.
func DefaultConfig() Config {
	return Config{
		DeadlineWindow:  DefaultDeadlineWindow,
		PaymentAttempts: DefaultPaymentAttempts,
		PaymentBackoff:  runner.FixedDelayStrategy{Delay: DefaultPaymentBackoff},
		LossRate:        decimal.NewFromInt(1000),
		BufferCapacity: map[shipment.Category]float64{
			shipment.CategoryWarehouse: 40,
			shipment.CategoryTransport: 24,
			shipment.CategoryCustoms:   16,
		},
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.DeadlineWindow <= 0 {
		c.DeadlineWindow = def.DeadlineWindow
	}
	if c.PaymentAttempts <= 0 {
		c.PaymentAttempts = def.PaymentAttempts
	}
	if c.PaymentBackoff == nil {
		c.PaymentBackoff = def.PaymentBackoff
	}
	if c.BufferCapacity == nil {
		c.BufferCapacity = def.BufferCapacity
	}
	return c
}

func (c Config) capacity(category shipment.Category) float64 {
	return c.BufferCapacity[category]
}
