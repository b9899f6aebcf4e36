package main

import (
	"context"
	"fmt"

	"github.com/danmuck/sfpctl/internal/scenario"
)

type ScenarioCmd struct {
	Import ScenarioImportCmd `cmd:"" help:"Validate and store a YAML batch of scenarios"`
	Add    ScenarioAddCmd    `cmd:"" help:"Add one scenario"`
}

type ScenarioImportCmd struct {
	StoreFlags
	Path string `arg:"" help:"YAML batch file"`
}

func (c *ScenarioImportCmd) Run(globals *CLI) error {
	rows, err := scenario.LoadFile(c.Path)
	if err != nil {
		return err
	}
	st, err := c.open()
	if err != nil {
		return err
	}
	if err := scenario.Save(context.Background(), st, rows); err != nil {
		return err
	}
	fmt.Printf("stored %d scenarios\n", len(rows))
	return nil
}

type ScenarioAddCmd struct {
	StoreFlags
	SFP       string `arg:"" name:"sfp-id" help:"Stored SFP id"`
	Name      string `required:"" help:"Scenario name"`
	Parameter string `required:"" help:"One of temperature, vcc, tx_bias, tx_power, rx_power"`
	Values    string `required:"" help:"Ten comma separated values"`
}

func (c *ScenarioAddCmd) Run(globals *CLI) error {
	values, err := scenario.ParseValues(c.Values)
	if err != nil {
		return err
	}
	row, err := scenario.Build(c.SFP, c.Name, c.Parameter, values)
	if err != nil {
		return err
	}
	st, err := c.open()
	if err != nil {
		return err
	}
	if err := scenario.Save(context.Background(), st, []scenario.Row{row}); err != nil {
		return err
	}
	fmt.Printf("stored %q for %s: % X\n", row.Name, row.SFPID, row.Encoded)
	return nil
}
