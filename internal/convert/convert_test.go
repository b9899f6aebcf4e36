package convert

import (
	"errors"
	"math"
	"testing"
	"testing/quick"
)

func TestSignedFixedInverse(t *testing.T) {
	inverse := func(seed int32) bool {
		v := MinSignedFixed + math.Mod(math.Abs(float64(seed))/7.0, MaxSignedFixed-MinSignedFixed)
		b, err := FloatToSignedFixed(v)
		if err != nil {
			return false
		}
		got := BytesToSignedTemperature(b[0], b[1])
		return math.Abs(got-v) <= SignedFixedLSB
	}
	if err := quick.Check(inverse, nil); err != nil {
		t.Fatalf("inverse: %v", err)
	}
}

func TestSignedFixedGridIsExact(t *testing.T) {
	for raw := math.MinInt16; raw <= math.MaxInt16; raw += 97 {
		v := float64(raw) * SignedFixedLSB
		b, err := FloatToSignedFixed(v)
		if err != nil {
			t.Fatalf("encode %v: %v", v, err)
		}
		if got := BytesToSignedTemperature(b[0], b[1]); got != v {
			t.Fatalf("grid value %v decoded as %v", v, got)
		}
	}
}

func TestSignedFixedKnownValues(t *testing.T) {
	cases := []struct {
		v    float64
		want [2]byte
	}{
		{25.0, [2]byte{0x19, 0x00}},
		{-40.0, [2]byte{0xD8, 0x00}},
		{0.5, [2]byte{0x00, 0x80}},
		{-0.00390625, [2]byte{0xFF, 0xFF}},
		{MaxSignedFixed, [2]byte{0x7F, 0xFF}},
		{MinSignedFixed, [2]byte{0x80, 0x00}},
	}
	for _, tc := range cases {
		got, err := FloatToSignedFixed(tc.v)
		if err != nil {
			t.Fatalf("encode %v: %v", tc.v, err)
		}
		if got != tc.want {
			t.Fatalf("encode %v = % x want % x", tc.v, got, tc.want)
		}
	}
}

func TestSignedFixedRounding(t *testing.T) {
	half := SignedFixedLSB / 2
	b, _ := FloatToSignedFixed(half)
	if BytesToSignedTemperature(b[0], b[1]) != SignedFixedLSB {
		t.Fatalf("positive half step should round away from zero")
	}
	b, _ = FloatToSignedFixed(-half)
	if BytesToSignedTemperature(b[0], b[1]) != -SignedFixedLSB {
		t.Fatalf("negative half step should round away from zero")
	}
}

func TestSignedFixedOutOfRange(t *testing.T) {
	for _, v := range []float64{128.0, -128.01, 1e9, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := FloatToSignedFixed(v); !errors.Is(err, ErrRange) {
			t.Fatalf("%v: expected ErrRange, got %v", v, err)
		}
	}
	outOfRange := func(seed uint16) bool {
		v := MaxSignedFixed + 1 + float64(seed)
		_, errHigh := FloatToSignedFixed(v)
		_, errLow := FloatToSignedFixed(-v)
		return errors.Is(errHigh, ErrRange) && errors.Is(errLow, ErrRange)
	}
	if err := quick.Check(outOfRange, nil); err != nil {
		t.Fatalf("out of range: %v", err)
	}
}

func TestUnsignedFixed(t *testing.T) {
	b, err := FloatToUnsignedFixed(3.3, 0.0001)
	if err != nil {
		t.Fatalf("encode vcc: %v", err)
	}
	if b != [2]byte{0x80, 0xE8} {
		t.Fatalf("unexpected vcc bytes % x", b)
	}
	if got := BytesToUnsigned(b[0], b[1], 0.0001); math.Abs(got-3.3) > 1e-9 {
		t.Fatalf("vcc decode %v", got)
	}
	if _, err := FloatToUnsignedFixed(-1, 0.0001); !errors.Is(err, ErrRange) {
		t.Fatalf("negative should be ErrRange, got %v", err)
	}
	if _, err := FloatToUnsignedFixed(7, 0.0001); !errors.Is(err, ErrRange) {
		t.Fatalf("overflow should be ErrRange, got %v", err)
	}
	if _, err := FloatToUnsignedFixed(1, 0); !errors.Is(err, ErrRange) {
		t.Fatalf("zero lsb should be ErrRange, got %v", err)
	}
}

func TestCalibrationHelpers(t *testing.T) {
	if got := BytesToUnsignedSlope(0x01, 0x80); got != 1.5 {
		t.Fatalf("slope %v", got)
	}
	if got := BytesToSignedOffset(0xFF, 0xF6); got != -10 {
		t.Fatalf("offset %v", got)
	}
	if got := BytesToFloat32([4]byte{0x3F, 0x80, 0x00, 0x00}); got != 1.0 {
		t.Fatalf("float32 %v", got)
	}
	if got := MilliwattsToDBm(1.0); got != 0 {
		t.Fatalf("dbm %v", got)
	}
	if got := MilliwattsToDBm(0); got != -40 {
		t.Fatalf("zero power dbm %v", got)
	}
}
