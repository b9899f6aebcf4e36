package api

import (
	"strings"
	"time"

	"github.com/danmuck/sfpctl/internal/sfp"
)

// Config configures the HTTP surface used by the presentation layer.
type Config struct {
	// ListenAddr empty disables the HTTP server.
	ListenAddr     string
	CORSOrigins    []string
	ChecksumPolicy sfp.ChecksumPolicy
	// EventWriteTimeout bounds one websocket write before the client is dropped.
	EventWriteTimeout time.Duration
	ShutdownGrace     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:        "127.0.0.1:8080",
		CORSOrigins:       []string{"http://localhost:3000"},
		ChecksumPolicy:    sfp.ChecksumWarn,
		EventWriteTimeout: 5 * time.Second,
		ShutdownGrace:     2 * time.Second,
	}
}

// WithDefaults fills unset fields except ListenAddr, which stays empty when disabled.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = d.CORSOrigins
	}
	if c.ChecksumPolicy == "" {
		c.ChecksumPolicy = d.ChecksumPolicy
	}
	if c.EventWriteTimeout <= 0 {
		c.EventWriteTimeout = d.EventWriteTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
	return c
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
