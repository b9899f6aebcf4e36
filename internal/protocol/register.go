package protocol

import "fmt"

// Page names one of the two SFF-8472 register banks.
type Page uint8

const (
	PageA0 Page = 0xA0
	PageA2 Page = 0xA2
)

// Docking stations address pages by their 7-bit I2C address.
const (
	wireAddrA0 byte = 0x50
	wireAddrA2 byte = 0x51
)

// MaxRegisters is the number of register slots left after the page byte.
const MaxRegisters = PayloadSize - 1

func (p Page) String() string {
	switch p {
	case PageA0:
		return "A0"
	case PageA2:
		return "A2"
	}
	return fmt.Sprintf("page(0x%02X)", uint8(p))
}

// WireByte is the page selector sent on the wire.
func (p Page) WireByte() (byte, error) {
	switch p {
	case PageA0:
		return wireAddrA0, nil
	case PageA2:
		return wireAddrA2, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidPage, p)
}

// PageFromWire accepts both the I2C address and the bank name form.
func PageFromWire(b byte) (Page, error) {
	switch b {
	case wireAddrA0, byte(PageA0):
		return PageA0, nil
	case wireAddrA2, byte(PageA2):
		return PageA2, nil
	}
	return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidPage, b)
}

// ReadRegisterMessage is a register read request and, once answered, its values.
// Values[i] is the content of Registers[i].
type ReadRegisterMessage struct {
	Code      Code
	Page      Page
	Registers []byte
	Values    []byte
}

// EncodeReadRegisterRequest packs the page byte followed by the register indices.
func EncodeReadRegisterRequest(req ReadRegisterMessage) (Message, error) {
	if !req.Code.IsRegisterRead() {
		return Message{}, fmt.Errorf("%w: %s is not a register read", ErrUnknownCode, req.Code)
	}
	if len(req.Registers) > MaxRegisters {
		return Message{}, fmt.Errorf("%w: %d > %d", ErrTooManyRegs, len(req.Registers), MaxRegisters)
	}
	pageByte, err := req.Page.WireByte()
	if err != nil {
		return Message{}, err
	}
	payload := make([]byte, 0, 1+len(req.Registers))
	payload = append(payload, pageByte)
	payload = append(payload, req.Registers...)
	return Message{Code: req.Code, Payload: payload}, nil
}

// DecodeReadRegisterResponse reads the page byte and the first len(registers) values.
// Zero-valued registers are preserved; the payload is never trimmed.
func DecodeReadRegisterResponse(m Message, registers []byte) (ReadRegisterMessage, error) {
	if !m.Code.IsRegisterRead() {
		return ReadRegisterMessage{}, fmt.Errorf("%w: %s is not a register read", ErrUnknownCode, m.Code)
	}
	if len(registers) > MaxRegisters {
		return ReadRegisterMessage{}, fmt.Errorf("%w: %d > %d", ErrTooManyRegs, len(registers), MaxRegisters)
	}
	if len(m.Payload) < 1+len(registers) {
		return ReadRegisterMessage{}, fmt.Errorf(
			"%w: have %d bytes, need %d",
			ErrShortPayload,
			len(m.Payload),
			1+len(registers),
		)
	}
	page, err := PageFromWire(m.Payload[0])
	if err != nil {
		return ReadRegisterMessage{}, err
	}
	regs := make([]byte, len(registers))
	copy(regs, registers)
	values := make([]byte, len(registers))
	copy(values, m.Payload[1:1+len(registers)])
	return ReadRegisterMessage{
		Code:      m.Code,
		Page:      page,
		Registers: regs,
		Values:    values,
	}, nil
}

// RegisterRange returns the inclusive index range [from, to].
func RegisterRange(from, to int) []byte {
	if to < from {
		return nil
	}
	out := make([]byte, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, byte(i))
	}
	return out
}
