// Package config loads the shipment service configuration from YAML or JSON,
// applies SHIPMENT_* environment overrides and builds the runtime pieces.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/cron"
	"github.com/goliatone/go-shipment/lifecycle"
	"github.com/goliatone/go-shipment/runner"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHIPMENT_"

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"

	StrategyFixed       = runner.StrategyFixed
	StrategyExponential = runner.StrategyExponential
	StrategyNone        = runner.StrategyNone
)

const dateLayout = "2006-01-02"

type PaymentConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff" json:"backoff"`
	Strategy    string        `yaml:"strategy" json:"strategy"`
}

type ProductionConfig struct {
	// LossRate is the production loss per capacity unit.
	LossRate float64            `yaml:"loss_rate" json:"loss_rate"`
	Capacity map[string]float64 `yaml:"capacity" json:"capacity"`
}

type GatewayConfig struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	Retries   int           `yaml:"retries" json:"retries"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"`
	Burst     int           `yaml:"burst" json:"burst"`
}

type ETAConfig struct {
	BaseDate string `yaml:"base_date" json:"base_date"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
}

type NotifyConfig struct {
	Kafka KafkaConfig `yaml:"kafka" json:"kafka"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// OptionConfig overrides one catalog choice. Nil fields keep the default.
type OptionConfig struct {
	Text            *string  `yaml:"text" json:"text"`
	Cost            *float64 `yaml:"cost" json:"cost"`
	TimeImpactHours *float64 `yaml:"time_impact_hours" json:"time_impact_hours"`
}

// Config is the full service configuration.
type Config struct {
	DeadlineWindow time.Duration                      `yaml:"deadline_window" json:"deadline_window"`
	Payment        PaymentConfig                      `yaml:"payment" json:"payment"`
	Production     ProductionConfig                   `yaml:"production" json:"production"`
	Gateway        GatewayConfig                      `yaml:"gateway" json:"gateway"`
	ETA            ETAConfig                          `yaml:"eta" json:"eta"`
	Reminders      cron.ReminderConfig                `yaml:"reminders" json:"reminders"`
	Store          StoreConfig                        `yaml:"store" json:"store"`
	Notify         NotifyConfig                       `yaml:"notify" json:"notify"`
	HTTP           HTTPConfig                         `yaml:"http" json:"http"`
	Log            LogConfig                          `yaml:"log" json:"log"`
	Catalog        map[string]map[string]OptionConfig `yaml:"catalog" json:"catalog"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		DeadlineWindow: lifecycle.DefaultDeadlineWindow,
		Payment: PaymentConfig{
			MaxAttempts: lifecycle.DefaultPaymentAttempts,
			Backoff:     lifecycle.DefaultPaymentBackoff,
			Strategy:    StrategyFixed,
		},
		Production: ProductionConfig{
			LossRate: 1000,
			Capacity: map[string]float64{
				string(shipment.CategoryWarehouse): 40,
				string(shipment.CategoryTransport): 24,
				string(shipment.CategoryCustoms):   16,
			},
		},
		Gateway: GatewayConfig{
			Timeout: 10 * time.Second,
			Retries: 2,
			Burst:   1,
		},
		ETA: ETAConfig{BaseDate: "2025-11-15"},
		Reminders: cron.ReminderConfig{
			Expression:   cron.DefaultReminderExpression,
			MinAge:       time.Minute,
			Timeout:      10 * time.Second,
			DeadlineLead: 5 * time.Second,
		},
		Store: StoreConfig{Driver: StoreMemory},
		Notify: NotifyConfig{
			Kafka: KafkaConfig{Topic: "shipment.notifications"},
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "console"},
	}
}

// Parse decodes YAML or JSON on top of the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		// yaml handles JSON too
		return cfg, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, cfg.Validate()
}

// Load reads path when set, then applies environment overrides from the process.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from SHIPMENT_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	durations := map[string]*time.Duration{
		"DEADLINE_WINDOW":        &c.DeadlineWindow,
		"PAYMENT_BACKOFF":        &c.Payment.Backoff,
		"GATEWAY_TIMEOUT":        &c.Gateway.Timeout,
		"REMINDER_MIN_AGE":       &c.Reminders.MinAge,
		"REMINDER_DEADLINE_LEAD": &c.Reminders.DeadlineLead,
	}
	for key, dst := range durations {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"PAYMENT_MAX_ATTEMPTS": &c.Payment.MaxAttempts,
		"GATEWAY_RETRIES":      &c.Gateway.Retries,
	}
	for key, dst := range ints {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"LOSS_RATE":          &c.Production.LossRate,
		"GATEWAY_RATE_LIMIT": &c.Gateway.RateLimit,
	}
	for key, dst := range floats {
		if v, ok := get(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}

	strs := map[string]*string{
		"PAYMENT_STRATEGY":    &c.Payment.Strategy,
		"ETA_BASE_DATE":       &c.ETA.BaseDate,
		"REMINDER_EXPRESSION": &c.Reminders.Expression,
		"STORE_DRIVER":        &c.Store.Driver,
		"STORE_DSN":           &c.Store.DSN,
		"KAFKA_TOPIC":         &c.Notify.Kafka.Topic,
		"HTTP_ADDR":           &c.HTTP.Addr,
		"LOG_LEVEL":           &c.Log.Level,
		"LOG_FORMAT":          &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	if v, ok := get("KAFKA_BROKERS"); ok {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Notify.Kafka.Brokers = brokers
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.DeadlineWindow, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Payment),
		validation.Field(&c.Production),
		validation.Field(&c.Gateway),
		validation.Field(&c.ETA),
		validation.Field(&c.Store),
		validation.Field(&c.Notify),
	)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Reminders.DeadlineLead < 0 {
		return fmt.Errorf("config: reminders.deadline_lead must not be negative")
	}
	for category, choices := range c.Catalog {
		if !shipment.Category(category).Valid() {
			return fmt.Errorf("config: catalog: unknown category %s", category)
		}
		for choice, o := range choices {
			if o.Cost != nil && *o.Cost < 0 {
				return fmt.Errorf("config: catalog %s/%s: cost must not be negative", category, choice)
			}
		}
	}
	return nil
}

func (p PaymentConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&p.Backoff, validation.Min(time.Duration(0))),
		validation.Field(&p.Strategy, validation.In(StrategyFixed, StrategyExponential, StrategyNone)),
	)
}

func (p ProductionConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.LossRate, validation.Min(0.0)),
		validation.Field(&p.Capacity, validation.By(func(v any) error {
			capacity, _ := v.(map[string]float64)
			for k, hours := range capacity {
				if !shipment.Category(k).Raced() {
					return validation.NewError("validation_capacity_category", "capacity is only defined for warehouse, transport and customs")
				}
				if hours < 0 {
					return validation.NewError("validation_capacity_negative", "capacity must not be negative")
				}
			}
			return nil
		})),
	)
}

func (g GatewayConfig) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&g.Retries, validation.Min(0)),
		validation.Field(&g.RateLimit, validation.Min(0.0)),
	)
}

func (e ETAConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.BaseDate, validation.Date(dateLayout)),
	)
}

func (s StoreConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(StoreMemory, StoreSQLite)),
		validation.Field(&s.DSN, validation.When(s.Driver == StoreSQLite, validation.Required)),
	)
}

func (n NotifyConfig) Validate() error {
	return validation.ValidateStruct(&n.Kafka,
		validation.Field(&n.Kafka.Topic, validation.When(len(n.Kafka.Brokers) > 0, validation.Required)),
	)
}

// BaseDate returns the date delivery estimates start from.
func (c Config) BaseDate() time.Time {
	t, err := time.Parse(dateLayout, c.ETA.BaseDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// PaymentBackoff builds the retry strategy between payment attempts.
func (c Config) PaymentBackoff() runner.RetryStrategy {
	strategy, err := runner.NewStrategy(c.Payment.Strategy, c.Payment.Backoff, c.Payment.MaxAttempts)
	if err != nil {
		return runner.FixedDelayStrategy{Delay: c.Payment.Backoff}
	}
	return strategy
}

// Lifecycle converts to the lifecycle timing and accounting parameters.
func (c Config) Lifecycle() lifecycle.Config {
	capacity := make(map[shipment.Category]float64, len(c.Production.Capacity))
	for k, v := range c.Production.Capacity {
		capacity[shipment.Category(k)] = v
	}
	return lifecycle.Config{
		DeadlineWindow:  c.DeadlineWindow,
		PaymentAttempts: c.Payment.MaxAttempts,
		PaymentBackoff:  c.PaymentBackoff(),
		LossRate:        decimal.NewFromFloat(c.Production.LossRate),
		BufferCapacity:  capacity,
	}
}

// BuildCatalog returns the default catalog with the configured overrides applied.
func (c Config) BuildCatalog() (*shipment.Catalog, error) {
	cat := shipment.DefaultCatalog()
	for category, choices := range c.Catalog {
		for choice, o := range choices {
			override := shipment.OptionOverride{
				Text:            o.Text,
				TimeImpactHours: o.TimeImpactHours,
			}
			if o.Cost != nil {
				cost := decimal.NewFromFloat(*o.Cost)
				override.Cost = &cost
			}
			if err := cat.Override(shipment.Category(category), shipment.Choice(choice), override); err != nil {
				return nil, err
			}
		}
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}
