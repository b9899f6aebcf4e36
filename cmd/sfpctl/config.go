package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/sfpctl/internal/api"
	"github.com/danmuck/sfpctl/internal/diag"
	"github.com/danmuck/sfpctl/internal/netutil"
	"github.com/danmuck/sfpctl/internal/registry"
	"github.com/danmuck/sfpctl/internal/server"
	"github.com/danmuck/sfpctl/internal/sfp"
	"github.com/danmuck/sfpctl/internal/store"
)

const discoveryPort = 20101

// sfpctl config.toml key mapping to runtime settings.
type fileConfig struct {
	TCPListenAddr      string   `toml:"tcp_listen_addr"`
	UDPListenAddr      string   `toml:"udp_listen_addr"`
	BroadcastAddr      string   `toml:"broadcast_addr"`
	BroadcastInterval  string   `toml:"broadcast_interval"`
	ReadTimeout        string   `toml:"read_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	ShutdownGrace      string   `toml:"shutdown_grace"`
	RetainOnDisconnect bool     `toml:"retain_on_disconnect"`
	RefreshInterval    string   `toml:"refresh_interval"`
	InitTimeout        string   `toml:"init_timeout"`
	InitMaxAttempts    int      `toml:"init_max_attempts"`
	ChecksumPolicy     string   `toml:"checksum_policy"`
	HTTPListenAddr     string   `toml:"http_listen_addr"`
	CORSOrigins        []string `toml:"cors_origins"`
	StoreDir           string   `toml:"store_dir"`
}

// runtimeConfig is the resolved configuration of one serve process.
type runtimeConfig struct {
	Server            server.ServiceConfig
	Registry          registry.Config
	Diag              diag.Config
	API               api.Config
	UDPListenAddr     string
	BroadcastAddr     string
	BroadcastInterval time.Duration
	StoreDir          string
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Server:            server.DefaultServiceConfig(),
		Registry:          registry.DefaultConfig(),
		Diag:              diag.DefaultConfig(),
		API:               api.DefaultConfig(),
		UDPListenAddr:     fmt.Sprintf(":%d", discoveryPort),
		BroadcastInterval: 5 * time.Second,
	}
}

// loadConfig overlays the keys defined in path onto the defaults. An empty
// path yields the defaults.
func loadConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()
	if strings.TrimSpace(path) != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("load sfpctl config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return runtimeConfig{}, fmt.Errorf("load sfpctl config: unknown key %q", undecoded[0].String())
		}
		if err := overlay(&cfg, raw, meta); err != nil {
			return runtimeConfig{}, fmt.Errorf("load sfpctl config: %w", err)
		}
	}

	if cfg.BroadcastAddr == "" && cfg.BroadcastInterval > 0 {
		cfg.BroadcastAddr = netutil.DefaultBroadcastAddr(discoveryPort)
	}
	if cfg.StoreDir == "" {
		dir, err := store.DefaultPath()
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("load sfpctl config: store dir: %w", err)
		}
		cfg.StoreDir = dir
	}
	cfg.Server = cfg.Server.WithDefaults()
	cfg.Diag = cfg.Diag.WithDefaults()
	cfg.API = cfg.API.WithDefaults()
	return cfg, nil
}

func overlay(cfg *runtimeConfig, raw fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("tcp_listen_addr") {
		cfg.Server.ListenAddr = strings.TrimSpace(raw.TCPListenAddr)
	}
	if meta.IsDefined("udp_listen_addr") {
		cfg.UDPListenAddr = strings.TrimSpace(raw.UDPListenAddr)
	}
	if meta.IsDefined("broadcast_addr") {
		cfg.BroadcastAddr = strings.TrimSpace(raw.BroadcastAddr)
	}
	if meta.IsDefined("retain_on_disconnect") {
		cfg.Registry.RetainOnDisconnect = raw.RetainOnDisconnect
	}
	if meta.IsDefined("init_max_attempts") {
		if raw.InitMaxAttempts < 1 {
			return fmt.Errorf("init_max_attempts must be at least 1, got %d", raw.InitMaxAttempts)
		}
		cfg.Diag.InitMaxAttempts = raw.InitMaxAttempts
	}
	if meta.IsDefined("checksum_policy") {
		policy, err := sfp.ParseChecksumPolicy(raw.ChecksumPolicy)
		if err != nil {
			return err
		}
		cfg.API.ChecksumPolicy = policy
	}
	if meta.IsDefined("http_listen_addr") {
		cfg.API.ListenAddr = strings.TrimSpace(raw.HTTPListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.API.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("store_dir") {
		cfg.StoreDir = strings.TrimSpace(raw.StoreDir)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"broadcast_interval", raw.BroadcastInterval, &cfg.BroadcastInterval},
		{"read_timeout", raw.ReadTimeout, &cfg.Server.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Server.WriteTimeout},
		{"shutdown_grace", raw.ShutdownGrace, &cfg.Server.ShutdownGrace},
		{"refresh_interval", raw.RefreshInterval, &cfg.Diag.RefreshInterval},
		{"init_timeout", raw.InitTimeout, &cfg.Diag.InitTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must not be negative", d.key)
		}
		*d.dst = v
	}
	cfg.API.ShutdownGrace = cfg.Server.ShutdownGrace
	return nil
}
