package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/danmuck/sfpctl/internal/sfp"
	"github.com/danmuck/sfpctl/internal/store"
)

type StoreCmd struct {
	Import StoreImportCmd `cmd:"" help:"Import a raw memory dump"`
	List   StoreListCmd   `cmd:"" help:"List stored SFPs"`
}

type StoreFlags struct {
	Dir string `help:"Store directory (default ~/.sfpctl/store)"`
}

func (f StoreFlags) open() (*store.Store, error) {
	dir := f.Dir
	if dir == "" {
		var err error
		if dir, err = store.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return store.Open(dir)
}

type StoreImportCmd struct {
	StoreFlags
	Path     string `arg:"" help:"Raw dump: 256 bytes of A0, optionally followed by 256 bytes of A2"`
	Checksum string `default:"warn" enum:"ignore,warn,reject" help:"CC_BASE checksum policy"`
}

func (c *StoreImportCmd) Run(globals *CLI) error {
	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	policy, err := sfp.ParseChecksumPolicy(c.Checksum)
	if err != nil {
		return err
	}
	a0, a2, err := sfp.SplitDump(raw)
	if err != nil {
		return err
	}
	st, err := c.open()
	if err != nil {
		return err
	}
	entry, created, err := st.ImportPages(context.Background(), a0, a2, policy)
	if err != nil {
		return err
	}
	verb := "updated"
	if created {
		verb = "imported"
	}
	fmt.Printf("%s %s (%s %s)\n", verb, entry.ID, entry.VendorName, entry.PartNumber)
	if !entry.ChecksumValid {
		fmt.Println("warning: CC_BASE checksum mismatch")
	}
	return nil
}

type StoreListCmd struct {
	StoreFlags
}

func (c *StoreListCmd) Run(globals *CLI) error {
	st, err := c.open()
	if err != nil {
		return err
	}
	entries, err := st.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No stored SFPs.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVENDOR\tPART\tSERIAL\tCALIBRATION\tSCENARIOS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			e.ID, e.VendorName, e.PartNumber, e.SerialNumber, e.Calibration, e.Scenarios)
	}
	return tw.Flush()
}
