package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/sfpctl/internal/convert"
	"github.com/danmuck/sfpctl/internal/testutil/testlog"
)

func tenOf(v float64) []float64 {
	out := make([]float64, ValueCount)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBuildTemperatureScenario(t *testing.T) {
	testlog.Start(t)
	values := []float64{25, -40, 0.5, 85, 127.99609375, -128, 1, 2, 3, 4}
	row, err := Build("7", "thermal sweep", "temperature", values)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if row.Unit != "C" || row.Parameter != "temperature" {
		t.Fatalf("row metadata %+v", row)
	}
	if row.Encoded[0] != 0x19 || row.Encoded[1] != 0x00 || row.Encoded[2] != 0xD8 || row.Encoded[3] != 0x00 {
		t.Fatalf("encoded prefix % x", row.Encoded[:4])
	}
	for i, v := range values {
		got := convert.BytesToSignedTemperature(row.Encoded[2*i], row.Encoded[2*i+1])
		if got != v {
			t.Fatalf("value %d decoded to %v want %v", i, got, v)
		}
	}
}

func TestBuildUnsignedParameter(t *testing.T) {
	testlog.Start(t)
	row, err := Build("7", "brownout", "VCC", tenOf(3.3))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if row.Encoded[0] != 0x80 || row.Encoded[1] != 0xE8 {
		t.Fatalf("3.3 V encoded as % x", row.Encoded[:2])
	}
}

func TestBuildRejections(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name      string
		sfpID     string
		scenario  string
		parameter string
		values    []float64
		wantRange bool
	}{
		{name: "empty name", sfpID: "1", scenario: " ", parameter: "temperature", values: tenOf(1)},
		{name: "long name", sfpID: "1", scenario: strings.Repeat("x", 256), parameter: "temperature", values: tenOf(1)},
		{name: "no sfp", sfpID: "", scenario: "a", parameter: "temperature", values: tenOf(1)},
		{name: "bad parameter", sfpID: "1", scenario: "a", parameter: "humidity", values: tenOf(1)},
		{name: "nine values", sfpID: "1", scenario: "a", parameter: "temperature", values: tenOf(1)[:9]},
		{name: "temp out of range", sfpID: "1", scenario: "a", parameter: "temperature", values: append(tenOf(1)[:9], 128), wantRange: true},
		{name: "negative power", sfpID: "1", scenario: "a", parameter: "rx_power", values: append(tenOf(1)[:9], -0.1), wantRange: true},
	}
	for _, tc := range cases {
		_, err := Build(tc.sfpID, tc.scenario, tc.parameter, tc.values)
		if !errors.Is(err, ErrInvalidScenario) {
			t.Fatalf("%s: expected ErrInvalidScenario, got %v", tc.name, err)
		}
		if tc.wantRange && !errors.Is(err, convert.ErrRange) {
			t.Fatalf("%s: expected wrapped ErrRange, got %v", tc.name, err)
		}
	}
	if _, err := Build("1", strings.Repeat("é", 255), "temperature", tenOf(1)); err != nil {
		t.Fatalf("255 characters should be accepted: %v", err)
	}
}

func TestParseValues(t *testing.T) {
	testlog.Start(t)
	got, err := ParseValues("1, 2,3,4,5,6,7,8,9, -10.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != ValueCount || got[9] != -10.5 {
		t.Fatalf("parsed %v", got)
	}
	if _, err := ParseValues("1,2,3,"); !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("expected count error, got %v", err)
	}
	if _, err := ParseValues("1,2,3,4,5,6,7,8,9,x"); !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("expected format error, got %v", err)
	}
}

type memSaver struct {
	rows []Row
	fail error
}

func (m *memSaver) SaveScenario(_ context.Context, row Row) error {
	if m.fail != nil {
		return m.fail
	}
	m.rows = append(m.rows, row)
	return nil
}

func TestLoadFileAndSave(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "batch.yaml")
	doc := `scenarios:
  - sfp_id: "7"
    name: hot soak
    parameter: temperature
    values: [25, 40, 55, 70, 85, 85, 70, 55, 40, 25]
  - sfp_id: "7"
    name: laser fade
    parameter: tx_power
    values: [1, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 2 || rows[1].Parameter != "tx_power" {
		t.Fatalf("rows %+v", rows)
	}

	saver := &memSaver{}
	if err := Save(context.Background(), saver, rows); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(saver.rows) != 2 || saver.rows[0].CreatedAt.IsZero() {
		t.Fatalf("saved rows %+v", saver.rows)
	}

	boom := errors.New("disk full")
	if err := Save(context.Background(), &memSaver{fail: boom}, rows); !errors.Is(err, boom) {
		t.Fatalf("expected saver error, got %v", err)
	}
}

func TestParseRejectsWholeBatch(t *testing.T) {
	testlog.Start(t)
	doc := `scenarios:
  - sfp_id: "1"
    name: ok
    parameter: vcc
    values: [3.3, 3.3, 3.3, 3.3, 3.3, 3.3, 3.3, 3.3, 3.3, 3.3]
  - sfp_id: "1"
    name: too hot
    parameter: temperature
    values: [200, 0, 0, 0, 0, 0, 0, 0, 0, 0]
`
	rows, err := Parse(strings.NewReader(doc))
	if !errors.Is(err, ErrInvalidScenario) || rows != nil {
		t.Fatalf("expected whole batch rejected, got %d rows, %v", len(rows), err)
	}
	if _, err := Parse(strings.NewReader("scenarios:\n  - sfp_id: 1\n    bogus: true\n")); !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("unknown field should be rejected, got %v", err)
	}
	if _, err := Parse(strings.NewReader("")); !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("empty batch should be rejected, got %v", err)
	}
}
