package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/config"
	"github.com/goliatone/go-shipment/store"
)

type StatusCmd struct {
	ID     string `arg:"" optional:"" help:"Shipment id; lists stored ids when empty."`
	Active bool   `help:"List only non-terminal shipments."`
	Events bool   `help:"Include the event journal."`
}

func (c *StatusCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	return c.run(context.Background(), cfg, os.Stdout)
}

func (c *StatusCmd) run(ctx context.Context, cfg config.Config, out io.Writer) error {
	st, closeStore, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if c.ID == "" {
		ids, err := st.List(ctx, store.Filter{ActiveOnly: c.Active})
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	rec, err := st.Load(ctx, c.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return shipment.NotFound(c.ID)
	}

	view := map[string]any{"record": rec}
	if c.Events {
		events, err := st.Events(ctx, c.ID)
		if err != nil {
			return err
		}
		view["events"] = events
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
