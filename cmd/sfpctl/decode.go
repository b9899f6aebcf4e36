package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/danmuck/sfpctl/internal/sfp"
)

type DecodeCmd struct {
	Path     string `arg:"" help:"Raw dump: 256 bytes of A0, optionally followed by 256 bytes of A2"`
	Checksum string `default:"warn" enum:"ignore,warn,reject" help:"CC_BASE checksum policy"`
	JSON     bool   `help:"Print JSON instead of a table"`
}

// decodedSFP is the offline view of one dump.
type decodedSFP struct {
	Identifier  byte               `json:"identifier"`
	Vendor      string             `json:"vendor_name"`
	PartNumber  string             `json:"part_number"`
	Revision    string             `json:"revision"`
	Serial      string             `json:"serial_number"`
	Wavelength  int                `json:"wavelength_nm"`
	Calibration string             `json:"calibration"`
	DDM         bool               `json:"ddm"`
	Checksum    sfp.ChecksumResult `json:"checksum"`
	Readings    []sfp.Reading      `json:"readings,omitempty"`
	Thresholds  []sfp.Threshold    `json:"thresholds,omitempty"`
}

func (c *DecodeCmd) Run(globals *CLI) error {
	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	policy, err := sfp.ParseChecksumPolicy(c.Checksum)
	if err != nil {
		return err
	}
	out, err := decodeDump(raw, policy)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printDecoded(os.Stdout, out)
}

func decodeDump(raw []byte, policy sfp.ChecksumPolicy) (decodedSFP, error) {
	a0, a2, err := sfp.SplitDump(raw)
	if err != nil {
		return decodedSFP{}, err
	}
	module, err := sfp.FromPages(a0, a2)
	if err != nil {
		return decodedSFP{}, err
	}
	check, err := module.VerifyBaseChecksum(policy)
	if err != nil {
		return decodedSFP{}, err
	}
	out := decodedSFP{
		Identifier:  module.Identifier(),
		Vendor:      module.VendorName(),
		PartNumber:  module.VendorPartNumber(),
		Revision:    module.VendorRevision(),
		Serial:      module.VendorSerial(),
		Wavelength:  module.WavelengthNM(),
		Calibration: module.CalibrationType().String(),
		DDM:         module.DiagnosticsImplemented(),
		Checksum:    check,
	}
	if a2 != nil {
		out.Readings = module.Readings()
		out.Thresholds = module.Thresholds()
	}
	return out, nil
}

func printDecoded(w io.Writer, d decodedSFP) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Identifier:\t0x%02X\n", d.Identifier)
	fmt.Fprintf(tw, "Vendor:\t%s\n", d.Vendor)
	fmt.Fprintf(tw, "Part Number:\t%s\n", d.PartNumber)
	fmt.Fprintf(tw, "Revision:\t%s\n", d.Revision)
	fmt.Fprintf(tw, "Serial:\t%s\n", d.Serial)
	fmt.Fprintf(tw, "Wavelength:\t%d nm\n", d.Wavelength)
	fmt.Fprintf(tw, "Calibration:\t%s\n", d.Calibration)
	switch {
	case !d.Checksum.Checked:
		fmt.Fprintf(tw, "CC_BASE:\tnot checked\n")
	case d.Checksum.Mismatch:
		fmt.Fprintf(tw, "CC_BASE:\tMISMATCH (computed 0x%02X, stored 0x%02X)\n", d.Checksum.Computed, d.Checksum.Stored)
	default:
		fmt.Fprintf(tw, "CC_BASE:\tok (0x%02X)\n", d.Checksum.Stored)
	}
	if len(d.Readings) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Channel\tValue\tHigh Alarm\tLow Alarm\tHigh Warn\tLow Warn")
		for i, r := range d.Readings {
			th := d.Thresholds[i]
			fmt.Fprintf(tw, "%s\t%.4f %s\t%.4f\t%.4f\t%.4f\t%.4f\n",
				r.Name, r.Value, r.Unit, th.HighAlarm, th.LowAlarm, th.HighWarning, th.LowWarning)
		}
	}
	return tw.Flush()
}
