package config

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/gateway"
	"github.com/goliatone/go-shipment/lifecycle"
	"github.com/goliatone/go-shipment/router"
	"github.com/goliatone/go-shipment/store"
)

// Runtime bundles the long-lived pieces built from a Config.
type Runtime struct {
	Manager  *lifecycle.Manager
	Mux      *router.Mux
	Store    store.Store
	Notifier gateway.Notifier

	closers []func() error
}

// OpenStore opens the configured snapshot store. The returned close func is
// never nil.
func (c Config) OpenStore() (store.Store, func() error, error) {
	switch c.Store.Driver {
	case StoreSQLite:
		s, db, err := store.OpenSQLite(c.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("config: open store: %w", err)
		}
		return s, db.Close, nil
	case StoreMemory, "":
		return store.NewMemory(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
}

// BuildNotifier fans operator notifications out to the log, the mux and,
// when brokers are configured, Kafka.
func (c Config) BuildNotifier(mux *router.Mux, logger shipment.Logger) (gateway.Notifier, func() error) {
	notifiers := gateway.MultiNotifier{gateway.LogNotifier{Logger: logger}}
	if mux != nil {
		notifiers = append(notifiers, gateway.MuxNotifier{Mux: mux})
	}
	closer := func() error { return nil }
	if len(c.Notify.Kafka.Brokers) > 0 {
		k := gateway.NewKafkaNotifier(c.Notify.Kafka.Brokers, c.Notify.Kafka.Topic)
		notifiers = append(notifiers, k)
		closer = k.Close
	}
	return notifiers, closer
}

// BuildGateway wraps the simulator with the configured timeout, retries and
// rate limit.
func (c Config) BuildGateway(n gateway.Notifier, logger shipment.Logger) gateway.Gateway {
	sim := gateway.NewSimulator(
		gateway.WithBaseDate(c.BaseDate()),
		gateway.WithNotifier(n),
	)
	return gateway.NewResilient(sim,
		gateway.WithCallTimeout(c.Gateway.Timeout),
		gateway.WithRetries(c.Gateway.Retries, nil),
		gateway.WithRateLimit(c.Gateway.RateLimit, c.Gateway.Burst),
		gateway.WithGatewayLogger(logger),
	)
}

// Build wires store, notifiers, gateway and manager. Extra options are
// applied last.
func (c Config) Build(logger shipment.Logger, extra ...lifecycle.Option) (*Runtime, error) {
	logger = shipment.NormalizeLogger(logger)
	catalog, err := c.BuildCatalog()
	if err != nil {
		return nil, err
	}

	st, closeStore, err := c.OpenStore()
	if err != nil {
		return nil, err
	}

	mux := router.NewMux()
	notifier, closeNotifier := c.BuildNotifier(mux, logger)

	opts := []lifecycle.Option{
		lifecycle.WithConfig(c.Lifecycle()),
		lifecycle.WithCatalog(catalog),
		lifecycle.WithStore(st),
		lifecycle.WithMux(mux),
		lifecycle.WithLogger(logger),
		lifecycle.WithGateway(c.BuildGateway(notifier, logger)),
	}

	rt := &Runtime{
		Mux:      mux,
		Store:    st,
		Notifier: notifier,
		closers:  []func() error{closeStore, closeNotifier},
	}
	rt.Manager = lifecycle.NewManager(append(opts, extra...)...)
	return rt, nil
}

// Close stops every shipment actor and releases the store and notifiers.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	if r.Manager != nil {
		r.Manager.Close()
	}
	var errs error
	for _, fn := range r.closers {
		errs = errors.Join(errs, fn())
	}
	return errs
}
