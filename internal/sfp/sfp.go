// Package sfp interprets the two SFF-8472 register pages of an optical module.
//
// An SFP value never performs I/O. Pages are mutated in place as register
// responses arrive and derived state (calibration type) is refreshed only when
// A0 bytes are folded in or ForceCalibrationCheck is called. An SFP is owned by
// one diagnostic session and is not safe for concurrent use.
package sfp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/sfpctl/internal/protocol"
)

const PageSize = 256

var (
	ErrPageSize       = errors.New("sfp: page must be 256 bytes")
	ErrRegisterValues = errors.New("sfp: register/value count mismatch")
)

// CalibrationType reports whether A2 readings need host-side correction.
type CalibrationType int

const (
	CalibrationUnknown CalibrationType = iota
	CalibrationInternal
	CalibrationExternal
)

func (c CalibrationType) String() string {
	switch c {
	case CalibrationInternal:
		return "Internally Calibrated"
	case CalibrationExternal:
		return "Externally Calibrated"
	}
	return "Unknown"
}

// A0 layout.
const (
	offIdentifier      = 0
	offVendorName      = 20
	offVendorPN        = 40
	offVendorRev       = 56
	offWavelength      = 60
	offCCBase          = 63
	offVendorSN        = 68
	offDiagType        = 92
	lenVendorName      = 16
	lenVendorPN        = 16
	lenVendorRev       = 4
	lenVendorSN        = 16
	diagExternalCal    = 0x10
	diagDDMImplemented = 0x40
)

type SFP struct {
	PageA0 [PageSize]byte
	PageA2 [PageSize]byte

	calibration CalibrationType
}

func New() *SFP {
	return &SFP{}
}

// FromPages builds an SFP from stored pages. A nil or empty a2 leaves page A2 zeroed.
func FromPages(a0, a2 []byte) (*SFP, error) {
	s := New()
	if len(a0) != PageSize {
		return nil, fmt.Errorf("%w: a0 has %d", ErrPageSize, len(a0))
	}
	copy(s.PageA0[:], a0)
	if len(a2) != 0 {
		if len(a2) != PageSize {
			return nil, fmt.Errorf("%w: a2 has %d", ErrPageSize, len(a2))
		}
		copy(s.PageA2[:], a2)
	}
	s.ForceCalibrationCheck()
	return s, nil
}

// SplitDump splits a raw memory dump: 256 bytes of A0, optionally followed by
// 256 bytes of A2. a2 is nil for an A0-only dump.
func SplitDump(raw []byte) (a0, a2 []byte, err error) {
	switch len(raw) {
	case PageSize:
		return raw, nil, nil
	case 2 * PageSize:
		return raw[:PageSize], raw[PageSize:], nil
	}
	return nil, nil, fmt.Errorf("%w: dump is %d bytes, want %d or %d", ErrPageSize, len(raw), PageSize, 2*PageSize)
}

// ForceCalibrationCheck re-derives the calibration type from A0 byte 92.
func (s *SFP) ForceCalibrationCheck() CalibrationType {
	if s.PageA0[offDiagType]&diagExternalCal != 0 {
		s.calibration = CalibrationExternal
	} else {
		s.calibration = CalibrationInternal
	}
	return s.calibration
}

func (s *SFP) CalibrationType() CalibrationType {
	return s.calibration
}

// DiagnosticsImplemented reports the digital diagnostic monitoring flag of byte 92.
func (s *SFP) DiagnosticsImplemented() bool {
	return s.PageA0[offDiagType]&diagDDMImplemented != 0
}

// ApplyA0 folds register values into page A0 and refreshes calibration.
func (s *SFP) ApplyA0(registers, values []byte) error {
	if err := fold(&s.PageA0, registers, values); err != nil {
		return err
	}
	s.ForceCalibrationCheck()
	return nil
}

// ApplyA2 folds register values into page A2. Positions not named are untouched.
func (s *SFP) ApplyA2(registers, values []byte) error {
	return fold(&s.PageA2, registers, values)
}

// Apply routes a register response to its page.
func (s *SFP) Apply(msg protocol.ReadRegisterMessage) error {
	switch msg.Page {
	case protocol.PageA0:
		return s.ApplyA0(msg.Registers, msg.Values)
	case protocol.PageA2:
		return s.ApplyA2(msg.Registers, msg.Values)
	}
	return fmt.Errorf("%w: %s", protocol.ErrInvalidPage, msg.Page)
}

func fold(page *[PageSize]byte, registers, values []byte) error {
	if len(registers) != len(values) {
		return fmt.Errorf("%w: %d registers, %d values", ErrRegisterValues, len(registers), len(values))
	}
	for i, reg := range registers {
		page[reg] = values[i]
	}
	return nil
}

func (s *SFP) Identifier() byte {
	return s.PageA0[offIdentifier]
}

func (s *SFP) VendorName() string {
	return asciiField(s.PageA0[offVendorName : offVendorName+lenVendorName])
}

func (s *SFP) VendorPartNumber() string {
	return asciiField(s.PageA0[offVendorPN : offVendorPN+lenVendorPN])
}

func (s *SFP) VendorRevision() string {
	return asciiField(s.PageA0[offVendorRev : offVendorRev+lenVendorRev])
}

func (s *SFP) VendorSerial() string {
	return asciiField(s.PageA0[offVendorSN : offVendorSN+lenVendorSN])
}

// WavelengthNM returns bytes 60-61 of A0 (laser wavelength for optical modules).
func (s *SFP) WavelengthNM() int {
	return int(s.PageA0[offWavelength])<<8 | int(s.PageA0[offWavelength+1])
}

func asciiField(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}
