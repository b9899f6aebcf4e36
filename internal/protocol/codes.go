package protocol

import (
	"fmt"
	"sort"
)

// Code is the 16-bit message code carried in the first two bytes of every frame.
type Code uint16

const (
	DockDiscover          Code = 0x0001
	DockDiscoverAck       Code = 0x0002
	CloudplugDiscover     Code = 0x0003
	CloudplugDiscoverAck  Code = 0x0004
	CloneSFPMemory        Code = 0x0010
	CloneSFPMemorySuccess Code = 0x0011
	CloneSFPMemoryError   Code = 0x0012
	DiagnosticInitA0      Code = 0x0020
	DiagnosticInitA2      Code = 0x0021
	RealTimeRefresh       Code = 0x0022
	RemoteIOError         Code = 0x0030
)

var codeNames = map[Code]string{
	DockDiscover:          "DOCK_DISCOVER",
	DockDiscoverAck:       "DOCK_DISCOVER_ACK",
	CloudplugDiscover:     "CLOUDPLUG_DISCOVER",
	CloudplugDiscoverAck:  "CLOUDPLUG_DISCOVER_ACK",
	CloneSFPMemory:        "CLONE_SFP_MEMORY",
	CloneSFPMemorySuccess: "CLONE_SFP_MEMORY_SUCCESS",
	CloneSFPMemoryError:   "CLONE_SFP_MEMORY_ERROR",
	DiagnosticInitA0:      "DIAGNOSTIC_INIT_A0",
	DiagnosticInitA2:      "DIAGNOSTIC_INIT_A2",
	RealTimeRefresh:       "REAL_TIME_REFRESH",
	RemoteIOError:         "REMOTE_IO_ERROR",
}

func (c Code) Known() bool {
	_, ok := codeNames[c]
	return ok
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%04X)", uint16(c))
}

// IsRegisterRead reports whether frames with this code carry a register payload.
func (c Code) IsRegisterRead() bool {
	switch c {
	case DiagnosticInitA0, DiagnosticInitA2, RealTimeRefresh:
		return true
	}
	return false
}

func ParseCode(v uint16) (Code, error) {
	c := Code(v)
	if !c.Known() {
		return 0, fmt.Errorf("%w: 0x%04X", ErrUnknownCode, v)
	}
	return c, nil
}

// Codes returns every known code in ascending order.
func Codes() []Code {
	out := make([]Code, 0, len(codeNames))
	for c := range codeNames {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
