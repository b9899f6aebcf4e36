package protocol

import "errors"

var (
	ErrFraming      = errors.New("protocol: framing error")
	ErrUnknownCode  = errors.New("protocol: unknown message code")
	ErrInvalidPage  = errors.New("protocol: invalid register page")
	ErrTooManyRegs  = errors.New("protocol: too many registers")
	ErrShortPayload = errors.New("protocol: short register payload")
)
