package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/sfpctl/internal/testutil/testlog"
)

func a0InitRegisters() []byte {
	regs := RegisterRange(20, 35)
	regs = append(regs, RegisterRange(40, 55)...)
	return append(regs, 92)
}

func TestEncodeReadRegisterRequestA0(t *testing.T) {
	testlog.Start(t)
	regs := a0InitRegisters()
	msg, err := EncodeReadRegisterRequest(ReadRegisterMessage{
		Code:      DiagnosticInitA0,
		Page:      PageA0,
		Registers: regs,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.Payload[0] != 0x50 {
		t.Fatalf("expected page byte 0x50, got %#x", msg.Payload[0])
	}
	if !bytes.Equal(msg.Payload[1:], regs) {
		t.Fatalf("register list mismatch")
	}
	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("frame encode: %v", err)
	}
	if raw[0] != 0x00 || raw[1] != 0x20 || raw[2] != 0x50 || raw[3] != 20 || raw[2+len(regs)] != 92 {
		t.Fatalf("unexpected frame prefix % x", raw[:8])
	}
}

func TestDecodeReadRegisterResponseKeepsZeros(t *testing.T) {
	testlog.Start(t)
	regs := RegisterRange(96, 109)
	payload := []byte{0x51, 0x19, 0x00, 0x80, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	raw, _ := Encode(Message{Code: RealTimeRefresh, Payload: payload})
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rr, err := DecodeReadRegisterResponse(msg, regs)
	if err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if rr.Page != PageA2 {
		t.Fatalf("unexpected page %s", rr.Page)
	}
	if len(rr.Values) != len(regs) {
		t.Fatalf("expected %d values, got %d", len(regs), len(rr.Values))
	}
	if rr.Values[0] != 0x19 || rr.Values[1] != 0x00 || rr.Values[2] != 0x80 || rr.Values[13] != 0 {
		t.Fatalf("unexpected values % x", rr.Values)
	}
}

func TestReadRegisterRejections(t *testing.T) {
	testlog.Start(t)
	_, err := EncodeReadRegisterRequest(ReadRegisterMessage{Code: CloneSFPMemory, Page: PageA0})
	if !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("expected ErrUnknownCode, got %v", err)
	}
	_, err = EncodeReadRegisterRequest(ReadRegisterMessage{Code: RealTimeRefresh, Page: Page(0x42)})
	if !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage, got %v", err)
	}
	_, err = EncodeReadRegisterRequest(ReadRegisterMessage{
		Code:      DiagnosticInitA2,
		Page:      PageA2,
		Registers: make([]byte, MaxRegisters+1),
	})
	if !errors.Is(err, ErrTooManyRegs) {
		t.Fatalf("expected ErrTooManyRegs, got %v", err)
	}
	_, err = DecodeReadRegisterResponse(Message{Code: RealTimeRefresh, Payload: []byte{0x51, 1}}, RegisterRange(96, 109))
	if !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
	_, err = DecodeReadRegisterResponse(Message{Code: RealTimeRefresh, Payload: make([]byte, PayloadSize)}, nil)
	if !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage for zero page byte, got %v", err)
	}
}

func TestPageFromWireAcceptsBothForms(t *testing.T) {
	testlog.Start(t)
	for _, b := range []byte{0x50, 0xA0} {
		if p, err := PageFromWire(b); err != nil || p != PageA0 {
			t.Fatalf("byte %#x: %v %v", b, p, err)
		}
	}
	for _, b := range []byte{0x51, 0xA2} {
		if p, err := PageFromWire(b); err != nil || p != PageA2 {
			t.Fatalf("byte %#x: %v %v", b, p, err)
		}
	}
}
