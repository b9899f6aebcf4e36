// Package scenario builds stress-test rows: ten values of one diagnostic
// parameter encoded as twenty register bytes, ready for a persistence
// collaborator. A row is either fully encoded or rejected; there are no partial rows.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/danmuck/sfpctl/internal/sfp"
)

const (
	ValueCount    = 10
	EncodedSize   = 2 * ValueCount
	MaxNameLength = 255
)

var ErrInvalidScenario = errors.New("scenario: invalid scenario")

// Row is one stress scenario for a stored SFP.
type Row struct {
	SFPID     string            `json:"sfp_id"`
	Name      string            `json:"name"`
	Parameter string            `json:"parameter"`
	Unit      string            `json:"unit"`
	Values    []float64         `json:"values"`
	Encoded   [EncodedSize]byte `json:"encoded"`
	CreatedAt time.Time         `json:"created_at"`
}

// Saver persists built rows.
type Saver interface {
	SaveScenario(ctx context.Context, row Row) error
}

// Parameters lists the accepted parameter names in channel-table order.
func Parameters() []string {
	specs := sfp.Channels()
	out := make([]string, 0, len(specs))
	for _, spec := range specs {
		out = append(out, spec.Name)
	}
	return out
}

// Build validates and encodes one scenario.
func Build(sfpID, name, parameter string, values []float64) (Row, error) {
	sfpID = strings.TrimSpace(sfpID)
	if sfpID == "" {
		return Row{}, fmt.Errorf("%w: sfp id is required", ErrInvalidScenario)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Row{}, fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return Row{}, fmt.Errorf("%w: name has %d characters, max %d", ErrInvalidScenario, n, MaxNameLength)
	}
	spec, ok := sfp.LookupChannelName(strings.ToLower(strings.TrimSpace(parameter)))
	if !ok {
		return Row{}, fmt.Errorf("%w: unknown parameter %q (want one of %s)",
			ErrInvalidScenario, parameter, strings.Join(Parameters(), ", "))
	}
	if len(values) != ValueCount {
		return Row{}, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidScenario, ValueCount, len(values))
	}

	row := Row{
		SFPID:     sfpID,
		Name:      name,
		Parameter: spec.Name,
		Unit:      spec.Unit,
		Values:    append([]float64(nil), values...),
	}
	for i, v := range values {
		b, err := spec.Encode(v)
		if err != nil {
			return Row{}, fmt.Errorf("%w: value %d: %w", ErrInvalidScenario, i, err)
		}
		row.Encoded[2*i] = b[0]
		row.Encoded[2*i+1] = b[1]
	}
	return row, nil
}

// ParseValues splits a comma separated list of numbers.
func ParseValues(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != ValueCount {
		return nil, fmt.Errorf("%w: expected %d values but got %d, check for extra commas",
			ErrInvalidScenario, ValueCount, len(parts))
	}
	out := make([]float64, 0, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %v", ErrInvalidScenario, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Save stamps and persists rows in order, stopping at the first failure.
func Save(ctx context.Context, saver Saver, rows []Row) error {
	now := time.Now().UTC()
	for _, row := range rows {
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		if err := saver.SaveScenario(ctx, row); err != nil {
			return fmt.Errorf("scenario: save %q: %w", row.Name, err)
		}
	}
	return nil
}
