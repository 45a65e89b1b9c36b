// Command shipctl runs and exercises the shipment lifecycle runtime.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/goliatone/go-shipment/config"
)

// Globals are the flags shared by every subcommand.
type Globals struct {
	Config   string `help:"YAML or JSON config file." type:"path" env:"SHIPMENT_CONFIG"`
	EnvFile  string `help:"Dotenv file loaded before the config." name:"env-file" default:".env"`
	LogLevel string `help:"Override the configured log level." name:"log-level"`
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" help:"Serve the shipment RPC API."`
	Simulate SimulateCmd `cmd:"" help:"Play a canned shipment scenario."`
	Status   StatusCmd   `cmd:"" help:"Show stored shipments."`
	Contract ContractCmd `cmd:"" help:"Write the TypeScript RPC contract."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("shipctl"),
		kong.Description("Shipment lifecycle runtime."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

// load reads the dotenv file, then the config file or the defaults, then
// the SHIPMENT_ environment.
func (g *Globals) load() (config.Config, error) {
	if g.EnvFile != "" {
		if err := godotenv.Load(g.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", g.EnvFile, err)
		}
	}

	var (
		cfg config.Config
		err error
	)
	if g.Config != "" {
		cfg, err = config.Load(g.Config)
	} else {
		cfg = config.Default()
		if err = cfg.ApplyEnv(os.LookupEnv); err == nil {
			err = cfg.Validate()
		}
	}
	if err != nil {
		return config.Config{}, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	return cfg, nil
}
