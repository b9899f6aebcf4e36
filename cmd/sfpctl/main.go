package main

import (
	"github.com/alecthomas/kong"

	"github.com/danmuck/sfpctl/internal/logging"
)

// CLI is the root command structure for sfpctl.
type CLI struct {
	Verbose bool `short:"v" help:"Enable verbose debug output"`

	Serve    ServeCmd    `cmd:"" help:"Run the discovery, command and diagnostics engine"`
	Decode   DecodeCmd   `cmd:"" help:"Decode an SFP memory dump offline"`
	Store    StoreCmd    `cmd:"" help:"Stored SFP memory"`
	Scenario ScenarioCmd `cmd:"" help:"Stress scenarios"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sfpctl"),
		kong.Description("SFP docking station communication and diagnostics."),
		kong.UsageOnError(),
	)
	logging.ConfigureRuntime()
	logging.SetVerbose(cli.Verbose)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
