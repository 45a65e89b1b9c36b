package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/config"
	"github.com/goliatone/go-shipment/cron"
	"github.com/goliatone/go-shipment/rpc"
)

const shutdownTimeout = 10 * time.Second

type ServeCmd struct {
	Addr      string `help:"Listen address; overrides http.addr."`
	NoRecover bool   `help:"Do not reload active shipments from the store." name:"no-recover"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.HTTP.Addr = c.Addr
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger, !c.NoRecover)
}

// serve runs the RPC server and the reminder sweep until ctx is done.
func serve(ctx context.Context, cfg config.Config, logger shipment.Logger, recoverActive bool) error {
	rt, err := cfg.Build(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("close runtime: %v", err)
		}
	}()

	level, err := cron.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		level = cron.LogLevelError
	}
	sched := cron.NewScheduler(
		cron.WithLogger(logger),
		cron.WithLogLevel(level),
		cron.WithErrorHandler(func(err error) {
			logger.Error("scheduled job failed: %v", err)
		}),
	)
	if _, err := cron.ScheduleReminders(sched, rt.Manager, cfg.Reminders); err != nil {
		return err
	}
	if sub := cron.WatchDeadlines(sched, rt.Mux, rt.Manager, cfg.Reminders.DeadlineLead); sub != nil {
		defer sub.Unsubscribe()
	}

	if recoverActive {
		n, err := rt.Manager.Recover(ctx)
		if err != nil {
			return fmt.Errorf("recover shipments: %w", err)
		}
		logger.Info("recovered %d active shipments", n)
	}

	srv, err := rpc.NewShipmentServer(rt.Manager,
		rpc.WithFailureMode(rpc.FailureModeRecover),
		rpc.WithMiddleware(rpc.LoggingMiddleware(logger)),
		rpc.WithFailureLogger(func(event rpc.FailureEvent) {
			logger.Error("rpc %s failure in %s: %v", event.Stage, event.Method, event.Err)
		}),
	)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           rpc.NewHTTPHandler(srv, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return sched.Start(gctx)
	})
	grp.Go(func() error {
		logger.Info("shipment rpc listening on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = sched.Stop(shutdownCtx)
		return httpSrv.Shutdown(shutdownCtx)
	})
	return grp.Wait()
}
