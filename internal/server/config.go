package server

import (
	"strings"
	"time"
)

// ServiceConfig configures the TCP command/response endpoint.
type ServiceConfig struct {
	ListenAddr string
	// ReadTimeout bounds the wait for the next frame; zero leaves idle devices connected.
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:    ":20100",
		ReadTimeout:   0,
		WriteTimeout:  5 * time.Second,
		ShutdownGrace: 2 * time.Second,
	}
}

// WithDefaults fills unset fields from DefaultServiceConfig.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	d := DefaultServiceConfig()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	return c
}
