package sfp

import (
	"math"

	"github.com/danmuck/sfpctl/internal/convert"
)

// Channel names one real-time diagnostic measurement in page A2.
type Channel int

const (
	Temperature Channel = iota
	Vcc
	TxBias
	TxPower
	RxPower
)

// ChannelSpec is one row of the A2 channel layout. Value offsets point at the
// big-endian register pair; thresholds for the row start at 8*index.
type ChannelSpec struct {
	Channel Channel
	Name    string
	Unit    string
	Offset  int
	LSB     float64
	Signed  bool
	Power   bool

	// External calibration: a slope/offset pair, or a polynomial of five
	// IEEE-754 coefficients (highest order first) when PolyOffset is set.
	SlopeOffset  int
	OffsetOffset int
	PolyOffset   int
}

var channelTable = []ChannelSpec{
	{Channel: Temperature, Name: "temperature", Unit: "C", Offset: 96, LSB: convert.SignedFixedLSB, Signed: true, SlopeOffset: 84, OffsetOffset: 86},
	{Channel: Vcc, Name: "vcc", Unit: "V", Offset: 98, LSB: 0.0001, SlopeOffset: 88, OffsetOffset: 90},
	{Channel: TxBias, Name: "tx_bias", Unit: "mA", Offset: 100, LSB: 0.002, SlopeOffset: 76, OffsetOffset: 78},
	{Channel: TxPower, Name: "tx_power", Unit: "mW", Offset: 102, LSB: 0.0001, Power: true, SlopeOffset: 80, OffsetOffset: 82},
	{Channel: RxPower, Name: "rx_power", Unit: "mW", Offset: 104, LSB: 0.0001, Power: true, PolyOffset: 56},
}

const polyTerms = 5

// Threshold block layout within one channel row.
const (
	thrHighAlarm = 0
	thrLowAlarm  = 2
	thrHighWarn  = 4
	thrLowWarn   = 6
	thrRowSize   = 8
)

func Channels() []ChannelSpec {
	out := make([]ChannelSpec, len(channelTable))
	copy(out, channelTable)
	return out
}

func LookupChannel(ch Channel) (ChannelSpec, bool) {
	for _, spec := range channelTable {
		if spec.Channel == ch {
			return spec, true
		}
	}
	return ChannelSpec{}, false
}

func LookupChannelName(name string) (ChannelSpec, bool) {
	for _, spec := range channelTable {
		if spec.Name == name {
			return spec, true
		}
	}
	return ChannelSpec{}, false
}

func (c Channel) String() string {
	if spec, ok := LookupChannel(c); ok {
		return spec.Name
	}
	return "unknown"
}

// Decode converts a raw pair already in calibrated units.
func (spec ChannelSpec) Decode(high, low byte) float64 {
	if spec.Signed {
		return convert.BytesToSignedTemperature(high, low)
	}
	return convert.BytesToUnsigned(high, low, spec.LSB)
}

// Encode is the inverse of Decode for stress values and thresholds.
func (spec ChannelSpec) Encode(v float64) ([2]byte, error) {
	if spec.Signed {
		return convert.FloatToSignedFixed(v)
	}
	return convert.FloatToUnsignedFixed(v, spec.LSB)
}

// Reading is one calibrated real-time value.
type Reading struct {
	Channel Channel  `json:"-"`
	Name    string   `json:"name"`
	Unit    string   `json:"unit"`
	Raw     uint16   `json:"raw"`
	Value   float64  `json:"value"`
	DBm     *float64 `json:"dbm,omitempty"`
}

// Threshold is one alarm/warning row of page A2.
type Threshold struct {
	Channel     Channel `json:"-"`
	Name        string  `json:"name"`
	Unit        string  `json:"unit"`
	HighAlarm   float64 `json:"high_alarm"`
	LowAlarm    float64 `json:"low_alarm"`
	HighWarning float64 `json:"high_warning"`
	LowWarning  float64 `json:"low_warning"`
}

// Reading decodes one channel, applying external calibration constants when the
// module reports external calibration.
func (s *SFP) Reading(ch Channel) (Reading, bool) {
	spec, ok := LookupChannel(ch)
	if !ok {
		return Reading{}, false
	}
	hi, lo := s.PageA2[spec.Offset], s.PageA2[spec.Offset+1]
	r := Reading{
		Channel: spec.Channel,
		Name:    spec.Name,
		Unit:    spec.Unit,
		Raw:     convert.BytesToRaw(hi, lo),
	}
	r.Value = s.decodeRaw(spec, hi, lo)
	if spec.Power {
		dbm := convert.MilliwattsToDBm(r.Value)
		r.DBm = &dbm
	}
	return r, true
}

// Readings returns every channel in table order.
func (s *SFP) Readings() []Reading {
	out := make([]Reading, 0, len(channelTable))
	for _, spec := range channelTable {
		r, _ := s.Reading(spec.Channel)
		out = append(out, r)
	}
	return out
}

// Thresholds decodes the alarm and warning block (A2 bytes 0-39). Externally
// calibrated modules store thresholds as raw words, so they share the
// calibration path of the live values.
func (s *SFP) Thresholds() []Threshold {
	out := make([]Threshold, 0, len(channelTable))
	for i, spec := range channelTable {
		base := i * thrRowSize
		pair := func(off int) float64 {
			return s.decodeRaw(spec, s.PageA2[base+off], s.PageA2[base+off+1])
		}
		out = append(out, Threshold{
			Channel:     spec.Channel,
			Name:        spec.Name,
			Unit:        spec.Unit,
			HighAlarm:   pair(thrHighAlarm),
			LowAlarm:    pair(thrLowAlarm),
			HighWarning: pair(thrHighWarn),
			LowWarning:  pair(thrLowWarn),
		})
	}
	return out
}

// decodeRaw converts one register word of spec to engineering units under the
// module's calibration type.
func (s *SFP) decodeRaw(spec ChannelSpec, hi, lo byte) float64 {
	if s.calibration != CalibrationExternal {
		return spec.Decode(hi, lo)
	}
	return s.externalValue(spec, hi, lo)
}

func (s *SFP) externalValue(spec ChannelSpec, hi, lo byte) float64 {
	if spec.PolyOffset != 0 {
		raw := float64(convert.BytesToRaw(hi, lo))
		var sum float64
		for i := 0; i < polyTerms; i++ {
			off := spec.PolyOffset + 4*i
			var b [4]byte
			copy(b[:], s.PageA2[off:off+4])
			sum += convert.BytesToFloat32(b) * math.Pow(raw, float64(polyTerms-1-i))
		}
		return sum * spec.LSB
	}
	slope := convert.BytesToUnsignedSlope(s.PageA2[spec.SlopeOffset], s.PageA2[spec.SlopeOffset+1])
	offset := convert.BytesToSignedOffset(s.PageA2[spec.OffsetOffset], s.PageA2[spec.OffsetOffset+1])
	var raw float64
	if spec.Signed {
		raw = float64(int16(convert.BytesToRaw(hi, lo)))
	} else {
		raw = float64(convert.BytesToRaw(hi, lo))
	}
	return (slope*raw + offset) * spec.LSB
}
