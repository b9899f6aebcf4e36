// Package convert turns raw SFF-8472 register pairs into engineering values and back.
//
// Signed fixed-point values use an LSB of 1/256 (the temperature encoding), so the
// representable range is [-128, 127.99609375]. Encoding rounds half away from zero
// onto that grid; anything outside the range is rejected with ErrRange.
package convert

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrRange = errors.New("convert: value out of representable range")

const (
	SignedFixedLSB = 1.0 / 256.0
	MinSignedFixed = float64(math.MinInt16) * SignedFixedLSB
	MaxSignedFixed = float64(math.MaxInt16) * SignedFixedLSB
)

// FloatToSignedFixed encodes v as a big-endian two's-complement 8.8 fixed-point pair.
func FloatToSignedFixed(v float64) ([2]byte, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return [2]byte{}, fmt.Errorf("%w: %v", ErrRange, v)
	}
	scaled := math.Round(v / SignedFixedLSB)
	if scaled < math.MinInt16 || scaled > math.MaxInt16 {
		return [2]byte{}, fmt.Errorf("%w: %v not in [%v, %v]", ErrRange, v, MinSignedFixed, MaxSignedFixed)
	}
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], uint16(int16(scaled)))
	return out, nil
}

// BytesToSignedTemperature decodes a two's-complement pair in 1/256 degree C units.
func BytesToSignedTemperature(high, low byte) float64 {
	raw := int16(uint16(high)<<8 | uint16(low))
	return float64(raw) * SignedFixedLSB
}

// FloatToUnsignedFixed encodes v as an unsigned 16-bit count of lsb units.
func FloatToUnsignedFixed(v, lsb float64) ([2]byte, error) {
	if lsb <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return [2]byte{}, fmt.Errorf("%w: %v (lsb %v)", ErrRange, v, lsb)
	}
	scaled := math.Round(v / lsb)
	if scaled < 0 || scaled > math.MaxUint16 {
		return [2]byte{}, fmt.Errorf("%w: %v not in [0, %v]", ErrRange, v, math.MaxUint16*lsb)
	}
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], uint16(scaled))
	return out, nil
}

func BytesToUnsigned(high, low byte, lsb float64) float64 {
	return float64(uint16(high)<<8|uint16(low)) * lsb
}

// BytesToRaw returns the unsigned 16-bit register value.
func BytesToRaw(high, low byte) uint16 {
	return uint16(high)<<8 | uint16(low)
}

// BytesToUnsignedSlope decodes an unsigned 8.8 fixed-point calibration slope.
func BytesToUnsignedSlope(high, low byte) float64 {
	return float64(high) + float64(low)/256.0
}

// BytesToSignedOffset decodes a two's-complement calibration offset in raw units.
func BytesToSignedOffset(high, low byte) float64 {
	return float64(int16(uint16(high)<<8 | uint16(low)))
}

// BytesToFloat32 decodes a big-endian IEEE-754 single (external Rx power coefficients).
func BytesToFloat32(b [4]byte) float64 {
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b[:])))
}

// MilliwattsToDBm reports -40 dBm for non-positive power.
func MilliwattsToDBm(mw float64) float64 {
	if mw <= 0 {
		return -40.0
	}
	return 10 * math.Log10(mw)
}
