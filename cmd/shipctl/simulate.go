package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/config"
	"github.com/goliatone/go-shipment/dispatcher"
	"github.com/goliatone/go-shipment/scenario"
)

type SimulateCmd struct {
	Scenario string        `arg:"" help:"Scenario id: happy-path, price-mismatch, warehouse-stock, transport-delay, customs-issue, delivery-delay, payment-failure, insufficient-funds."`
	ID       string        `help:"Shipment id; generated when empty." name:"id"`
	Delays   bool          `help:"Keep the configured payment backoff."`
	JSON     bool          `help:"Print the final record as JSON." name:"json"`
	Timeout  time.Duration `help:"Give up after this long." default:"2m"`
}

func (c *SimulateCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	return c.run(ctx, cfg, newLogger(cfg.Log, os.Stderr), os.Stdout)
}

func (c *SimulateCmd) run(ctx context.Context, cfg config.Config, logger shipment.Logger, out io.Writer) error {
	sc, ok := scenario.Get(c.Scenario)
	if !ok {
		return fmt.Errorf("unknown scenario %q (known: %s)", c.Scenario, strings.Join(scenario.IDs(), ", "))
	}
	if !c.Delays {
		cfg.Payment.Strategy = config.StrategyNone
	}

	rt, err := cfg.Build(logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	d := dispatcher.NewDispatcher(dispatcher.WithExitOnError())
	dispatcher.Bind(d, rt.Manager)

	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	fmt.Fprintf(out, "scenario %s: %s\nshipment %s\n", sc.ID, sc.Description, id)

	rec, err := scenario.Run(ctx, d, sc, id, func(step string, rec shipment.Record) {
		switch step {
		case "issue":
			fmt.Fprintf(out, "  %-22s %s: %s\n", rec.State, rec.CurrentError.Category, rec.CurrentError.Reason)
		case "finished":
		default:
			fmt.Fprintf(out, "  %-22s -> %s\n", rec.State, step)
		}
	})
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	printSummary(out, rec)
	if rec.State != sc.Expect {
		return fmt.Errorf("scenario %s ended in %s, expected %s", sc.ID, rec.State, sc.Expect)
	}
	return nil
}

func printSummary(out io.Writer, rec shipment.Record) {
	sum := rec.Summary
	fmt.Fprintf(out, "final state:      %s\n", rec.State)
	fmt.Fprintf(out, "total cost:       %s\n", sum.TotalCost.StringFixed(2))
	fmt.Fprintf(out, "time saved (h):   %g\n", sum.TimeSavedHours)
	fmt.Fprintf(out, "line stopped:     %t\n", sum.ProductionLineStopped)
	if sum.ProductionLineStopped {
		fmt.Fprintf(out, "stop duration (h): %g\n", sum.ProductionStopDurationHours)
		fmt.Fprintf(out, "production loss:  %s\n", sum.ProductionLossCost.StringFixed(2))
	}
	fmt.Fprintf(out, "avoided stop:     %t\n", sum.AvoidedProductionStop)
	for i, d := range rec.Decisions {
		fmt.Fprintf(out, "decision %d:       %s/%s %s\n", i+1, d.Category, d.Choice, d.Cost.StringFixed(2))
	}
	if rec.DeliveryUpdate != nil {
		fmt.Fprintf(out, "delivery:         %s %s\n", rec.DeliveryUpdate.Status, rec.DeliveryUpdate.EstimatedDeliveryDate)
	}
}
