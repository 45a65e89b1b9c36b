package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goliatone/go-shipment/lifecycle"
	"github.com/goliatone/go-shipment/rpc"
)

type ContractCmd struct {
	Out    string `help:"Output file; stdout when empty." type:"path"`
	Export string `help:"Name of the exported endpoint array." default:"shipmentEndpoints"`
}

func (c *ContractCmd) Run(_ *Globals) error {
	content, err := contract(c.Export)
	if err != nil {
		return err
	}
	if c.Out == "" {
		_, err = os.Stdout.Write(content)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Out), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(c.Out, content, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}

func contract(exportName string) ([]byte, error) {
	m := lifecycle.NewManager()
	defer m.Close()

	srv, err := rpc.NewShipmentServer(m)
	if err != nil {
		return nil, err
	}
	return rpc.RenderTypeScript(srv.Endpoints(), exportName)
}
