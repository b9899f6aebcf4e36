package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/sfpctl/internal/api"
	"github.com/danmuck/sfpctl/internal/diag"
	"github.com/danmuck/sfpctl/internal/discovery"
	"github.com/danmuck/sfpctl/internal/events"
	"github.com/danmuck/sfpctl/internal/observability"
	"github.com/danmuck/sfpctl/internal/registry"
	"github.com/danmuck/sfpctl/internal/server"
	"github.com/danmuck/sfpctl/internal/store"
)

type ServeCmd struct {
	Config string `short:"c" help:"Path to config.toml (defaults apply when omitted)"`
}

func (c *ServeCmd) Run(globals *CLI) error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg)
}

// serve wires the engine and blocks until ctx ends or a listener fails.
func serve(ctx context.Context, cfg runtimeConfig) error {
	observability.RegisterMetrics()

	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		return err
	}
	bus := events.NewBus()
	defer bus.Close()
	go logEvents(bus.Subscribe("console"))

	reg := registry.New(cfg.Registry)
	svc := server.NewService(cfg.Server, reg, bus)
	orch := diag.New(cfg.Diag, svc, bus)
	svc.SetDiagnosticSink(orch)

	tcp, err := svc.Listen()
	if err != nil {
		return fmt.Errorf("sfpctl: tcp listen %s: %w", cfg.Server.ListenAddr, err)
	}
	udp, err := net.ListenPacket("udp4", cfg.UDPListenAddr)
	if err != nil {
		_ = tcp.Close()
		return fmt.Errorf("sfpctl: udp listen %s: %w", cfg.UDPListenAddr, err)
	}
	var httpLn net.Listener
	if cfg.API.ListenAddr != "" {
		httpLn, err = net.Listen("tcp", cfg.API.ListenAddr)
		if err != nil {
			_ = tcp.Close()
			_ = udp.Close()
			return fmt.Errorf("sfpctl: http listen %s: %w", cfg.API.ListenAddr, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 4)
	run := func(name string, fn func() error) {
		go func() {
			err := fn()
			if err != nil {
				log.Error().Err(err).Str("component", name).Msg("sfpctl.serve component failed")
			}
			errCh <- err
		}()
	}
	workers := 3
	run("server", func() error { return svc.Serve(ctx, tcp) })
	run("discovery", func() error { return discovery.NewListener(reg, bus).Serve(ctx, udp) })
	run("broadcast", func() error {
		return discovery.Broadcaster{Interval: cfg.BroadcastInterval}.Run(ctx, udp, cfg.BroadcastAddr)
	})
	if httpLn != nil {
		workers++
		handler := api.New(cfg.API, api.Deps{
			Devices:     reg,
			Commands:    svc,
			Diagnostics: orch,
			Catalog:     st,
			Events:      bus,
		})
		run("api", func() error { return handler.Run(ctx, httpLn) })
	}
	log.Info().
		Str("tcp", cfg.Server.ListenAddr).
		Str("udp", cfg.UDPListenAddr).
		Str("broadcast", cfg.BroadcastAddr).
		Str("http", cfg.API.ListenAddr).
		Str("store", st.Dir()).
		Msg("sfpctl.serve started")

	var firstErr error
	for i := 0; i < workers; i++ {
		err := <-errCh
		if err != nil && firstErr == nil {
			firstErr = err
		}
		// a disabled broadcaster returns nil at once; only failures stop the rest
		if err != nil {
			cancel()
		}
	}
	orch.StopAll()
	svc.CloseAll()
	if firstErr != nil && !errors.Is(firstErr, context.Canceled) {
		return firstErr
	}
	log.Info().Msg("sfpctl.serve stopped")
	return nil
}

// logEvents mirrors bus events to the operator console.
func logEvents(sub *events.Subscription) {
	for ev := range sub.C() {
		entry := log.Info()
		switch ev.Kind {
		case events.KindWarning:
			entry = log.Warn()
		case events.KindError:
			entry = log.Error()
		case events.KindDiagnostics, events.KindMessage:
			entry = log.Debug()
		}
		entry.
			Str("kind", string(ev.Kind)).
			Str("ip", ev.IP).
			Str("code", ev.Code).
			Str("error", ev.Err).
			Msg(ev.Text)
	}
}
