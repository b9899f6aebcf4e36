package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Batch is the on-disk form of several scenarios:
//
//	scenarios:
//	  - sfp_id: "7"
//	    name: hot soak
//	    parameter: temperature
//	    values: [25, 40, 55, 70, 85, 85, 70, 55, 40, 25]
type Batch struct {
	Scenarios []Entry `yaml:"scenarios"`
}

type Entry struct {
	SFPID     string    `yaml:"sfp_id"`
	Name      string    `yaml:"name"`
	Parameter string    `yaml:"parameter"`
	Values    []float64 `yaml:"values"`
}

// LoadFile reads and builds every scenario in a YAML batch file.
func LoadFile(path string) ([]Row, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(raw))
}

// Parse builds every entry of a batch. One invalid entry rejects the whole batch.
func Parse(r io.Reader) ([]Row, error) {
	var batch Batch
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&batch); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty batch", ErrInvalidScenario)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if len(batch.Scenarios) == 0 {
		return nil, fmt.Errorf("%w: batch has no scenarios", ErrInvalidScenario)
	}
	rows := make([]Row, 0, len(batch.Scenarios))
	for i, e := range batch.Scenarios {
		row, err := Build(e.SFPID, e.Name, e.Parameter, e.Values)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
