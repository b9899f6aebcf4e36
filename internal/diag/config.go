package diag

import (
	"time"

	"github.com/danmuck/sfpctl/internal/protocol"
)

// Config controls one orchestrator's timing. Init retry is off unless
// InitMaxAttempts is above one.
type Config struct {
	RefreshInterval time.Duration
	InitTimeout     time.Duration
	InitMaxAttempts int
	Backoff         BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		RefreshInterval: time.Second,
		InitTimeout:     3 * time.Second,
		InitMaxAttempts: 1,
		Backoff:         DefaultBackoffConfig(),
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = d.InitTimeout
	}
	if c.InitMaxAttempts < 1 {
		c.InitMaxAttempts = d.InitMaxAttempts
	}
	return c
}

// Register sets requested by each phase. Vendor name, part number and the
// diagnostic monitoring type byte on A0; thresholds, calibration constants and
// the live block on A2.
var (
	initA0Registers  = concat(protocol.RegisterRange(20, 35), protocol.RegisterRange(40, 55), []byte{92})
	initA2Registers  = concat(protocol.RegisterRange(0, 91), protocol.RegisterRange(96, 109))
	refreshRegisters = protocol.RegisterRange(96, 109)
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// requestFor builds the read request for a register-read code.
func requestFor(code protocol.Code) protocol.ReadRegisterMessage {
	switch code {
	case protocol.DiagnosticInitA0:
		return protocol.ReadRegisterMessage{Code: code, Page: protocol.PageA0, Registers: initA0Registers}
	case protocol.DiagnosticInitA2:
		return protocol.ReadRegisterMessage{Code: code, Page: protocol.PageA2, Registers: initA2Registers}
	default:
		return protocol.ReadRegisterMessage{Code: protocol.RealTimeRefresh, Page: protocol.PageA2, Registers: refreshRegisters}
	}
}
