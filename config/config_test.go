package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/runner"
	"github.com/goliatone/go-shipment/store"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	lc := cfg.Lifecycle()
	assert.Equal(t, 15*time.Second, lc.DeadlineWindow)
	assert.Equal(t, 3, lc.PaymentAttempts)
	assert.Equal(t, runner.FixedDelayStrategy{Delay: 60 * time.Second}, lc.PaymentBackoff)
	assert.True(t, decimal.NewFromInt(1000).Equal(lc.LossRate))
	assert.Equal(t, 40.0, lc.BufferCapacity[shipment.CategoryWarehouse])
	assert.Equal(t, 24.0, lc.BufferCapacity[shipment.CategoryTransport])
	assert.Equal(t, 16.0, lc.BufferCapacity[shipment.CategoryCustoms])
	assert.Equal(t, time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC), cfg.BaseDate())
	assert.Equal(t, 5*time.Second, cfg.Reminders.DeadlineLead)
}

func TestParseYAMLOverlaysDefaults(t *testing.T) {
	data := []byte(`
deadline_window: 2s
payment:
  max_attempts: 5
  strategy: exponential
  backoff: 100ms
production:
  loss_rate: 250.5
  capacity:
    customs: 8
store:
  driver: sqlite
  dsn: file:test.db
catalog:
  transport:
    reroute_shipment:
      cost: 650
      text: Reroute via northern corridor
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.DeadlineWindow)
	assert.Equal(t, 5, cfg.Payment.MaxAttempts)
	assert.Equal(t, 8.0, cfg.Production.Capacity["customs"])
	assert.Equal(t, 40.0, cfg.Production.Capacity["warehouse"])
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)

	backoff, ok := cfg.PaymentBackoff().(runner.ExponentialBackoffStrategy)
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, backoff.Base)
	assert.Equal(t, 1600*time.Millisecond, backoff.Max)

	cat, err := cfg.BuildCatalog()
	require.NoError(t, err)
	opt, ok := cat.Lookup(shipment.CategoryTransport, shipment.ChoiceRerouteShipment)
	require.True(t, ok)
	assert.Equal(t, "Reroute via northern corridor", opt.Text)
	assert.True(t, decimal.NewFromInt(650).Equal(opt.Cost))
	assert.Equal(t, -12.0, opt.TimeImpactHours)
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"deadline_window": "30s", "http": {"addr": ":9090"}}`))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.DeadlineWindow)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"negative attempts":      "payment:\n  max_attempts: -1\n",
		"unknown strategy":       "payment:\n  strategy: linear\n",
		"sqlite without dsn":     "store:\n  driver: sqlite\n",
		"unknown driver":         "store:\n  driver: redis\n",
		"bad base date":          "eta:\n  base_date: 15/11/2025\n",
		"unraced capacity":       "production:\n  capacity:\n    delivery: 10\n",
		"kafka without topic":    "notify:\n  kafka:\n    brokers: [localhost:9092]\n    topic: \"\"\n",
		"unknown category":       "catalog:\n  billing:\n    refund:\n      cost: 1\n",
		"negative cost":          "catalog:\n  order:\n    accept_new_price:\n      cost: -5\n",
		"negative deadline lead": "reminders:\n  deadline_lead: -1s\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestBuildCatalogUnknownChoice(t *testing.T) {
	cfg, err := Parse([]byte("catalog:\n  order:\n    wait_for_stock:\n      cost: 1\n"))
	require.NoError(t, err)
	_, err = cfg.BuildCatalog()
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SHIPMENT_DEADLINE_WINDOW":        "5s",
		"SHIPMENT_PAYMENT_MAX_ATTEMPTS":   "4",
		"SHIPMENT_PAYMENT_STRATEGY":       "none",
		"SHIPMENT_LOSS_RATE":              "12.5",
		"SHIPMENT_KAFKA_BROKERS":          "a:9092, b:9092,",
		"SHIPMENT_HTTP_ADDR":              ":7000",
		"SHIPMENT_LOG_FORMAT":             "  ",
		"SHIPMENT_REMINDER_DEADLINE_LEAD": "2s",
	}))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.DeadlineWindow)
	assert.Equal(t, 4, cfg.Payment.MaxAttempts)
	assert.Equal(t, runner.NoDelayStrategy{}, cfg.PaymentBackoff())
	assert.Equal(t, 12.5, cfg.Production.LossRate)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Notify.Kafka.Brokers)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 2*time.Second, cfg.Reminders.DeadlineLead)
}

func TestApplyEnvRejectsMalformed(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ApplyEnv(envMap(map[string]string{"SHIPMENT_DEADLINE_WINDOW": "soon"})))
	assert.Error(t, cfg.ApplyEnv(envMap(map[string]string{"SHIPMENT_GATEWAY_RETRIES": "two"})))
	assert.Error(t, cfg.ApplyEnv(envMap(map[string]string{"SHIPMENT_LOSS_RATE": "lots"})))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipment.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deadline_window: 3s\n"), 0o600))
	t.Setenv("SHIPMENT_HTTP_ADDR", ":6060")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.DeadlineWindow)
	assert.Equal(t, ":6060", cfg.HTTP.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildRuntimeRunsShipment(t *testing.T) {
	cfg := Default()
	cfg.Payment.Strategy = StrategyNone
	cfg.Gateway.Retries = 0

	rt, err := cfg.Build(shipment.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := rt.Manager.Start(ctx, shipment.Input{
		ShipmentID:   "CFG-1",
		OrderDetails: map[string]any{"items": []any{"mystery-box"}},
		PaymentInfo:  map[string]any{"method": "card"},
	})
	require.NoError(t, err)
	assert.Equal(t, shipment.StatePaymentReceived, rec.State)

	ids, err := rt.Store.List(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Contains(t, ids, "CFG-1")
}

func TestBuildRuntimeSQLite(t *testing.T) {
	cfg := Default()
	cfg.Store = StoreConfig{Driver: StoreSQLite, DSN: "file:" + filepath.Join(t.TempDir(), "shipments.db")}

	rt, err := cfg.Build(nil)
	require.NoError(t, err)
	require.NoError(t, rt.Close())
}
