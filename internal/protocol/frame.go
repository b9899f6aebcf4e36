package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	FrameSize   = 256
	CodeSize    = 2
	PayloadSize = FrameSize - CodeSize
)

// Message is one decoded frame. Payload is never longer than PayloadSize.
type Message struct {
	Code    Code
	Payload []byte
}

// NewMessage copies payload so the returned Message does not alias caller memory.
func NewMessage(code Code, payload []byte) Message {
	out := make([]byte, len(payload))
	copy(out, payload)
	return Message{Code: code, Payload: out}
}

func NewTextMessage(code Code, text string) Message {
	return Message{Code: code, Payload: []byte(text)}
}

// Text interprets the payload as text with the zero padding removed.
func (m Message) Text() string {
	return string(bytes.TrimRight(m.Payload, "\x00"))
}

func (m Message) String() string {
	return fmt.Sprintf("%s(%d bytes)", m.Code, len(m.Payload))
}

// Encode renders m as exactly FrameSize bytes: big-endian code then zero-padded payload.
func Encode(m Message) ([]byte, error) {
	if len(m.Payload) > PayloadSize {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds %d", ErrFraming, len(m.Payload), PayloadSize)
	}
	buf := make([]byte, FrameSize)
	binary.BigEndian.PutUint16(buf[0:CodeSize], uint16(m.Code))
	copy(buf[CodeSize:], m.Payload)
	return buf, nil
}

// Decode splits a frame into code and the full 254-byte payload. Padding is kept;
// callers pick text or register interpretation from the code.
func Decode(b []byte) (Message, error) {
	if len(b) != FrameSize {
		return Message{}, fmt.Errorf("%w: frame is %d bytes, want %d", ErrFraming, len(b), FrameSize)
	}
	payload := make([]byte, PayloadSize)
	copy(payload, b[CodeSize:])
	return Message{
		Code:    Code(binary.BigEndian.Uint16(b[0:CodeSize])),
		Payload: payload,
	}, nil
}

// ReadFrame blocks until one full frame is available on r.
// A clean EOF before any byte is returned as io.EOF; a partial frame is ErrFraming.
func ReadFrame(r io.Reader) (Message, error) {
	var buf [FrameSize]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, fmt.Errorf("%w: short frame (%d bytes)", ErrFraming, n)
		}
		return Message{}, err
	}
	return Decode(buf[:])
}

func WriteFrame(w io.Writer, m Message) error {
	buf, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
