// Package api exposes the engine to a presentation layer over HTTP: device and
// diagnostics queries, clone and monitor commands, stored SFP memory and stress
// scenarios, plus a websocket stream of bus events.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/sfpctl/internal/diag"
	"github.com/danmuck/sfpctl/internal/events"
	"github.com/danmuck/sfpctl/internal/observability"
	"github.com/danmuck/sfpctl/internal/registry"
	"github.com/danmuck/sfpctl/internal/scenario"
	"github.com/danmuck/sfpctl/internal/sfp"
	"github.com/danmuck/sfpctl/internal/store"
)

// Devices lists registry entries.
type Devices interface {
	Snapshot() []registry.Device
}

// Commands sends device commands.
type Commands interface {
	CloneMemory(ip string) error
}

// Diagnostics controls monitoring sessions.
type Diagnostics interface {
	Start(ctx context.Context, ip string) (diag.SessionInfo, error)
	Stop(ip string) bool
	Snapshot(ip string) (diag.Snapshot, error)
	Sessions() []diag.SessionInfo
}

// PageReader returns the stored 256-byte A0 page of an SFP.
type PageReader interface {
	ReadPage(ctx context.Context, sfpID string) ([]byte, error)
}

// Catalog is the stored SFP collection.
type Catalog interface {
	PageReader
	scenario.Saver
	List() ([]store.IndexEntry, error)
	Scenarios(ctx context.Context, sfpID string) ([]scenario.Row, error)
	ImportPages(ctx context.Context, a0, a2 []byte, policy sfp.ChecksumPolicy) (store.IndexEntry, bool, error)
}

// Subscriber hands out event subscriptions.
type Subscriber interface {
	Subscribe(name string) *events.Subscription
}

type Deps struct {
	Devices     Devices
	Commands    Commands
	Diagnostics Diagnostics
	Catalog     Catalog
	Events      Subscriber
}

type Server struct {
	cfg      Config
	deps     Deps
	router   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time

	// base outlives individual requests; monitoring sessions run under it.
	base context.Context
}

func New(cfg Config, deps Deps) *Server {
	cfg = cfg.WithDefaults()
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	origins := normalizeOrigins(cfg.CORSOrigins)
	if len(origins) == 0 {
		origins = DefaultConfig().CORSOrigins
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		router:  r,
		started: time.Now(),
		base:    context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down within ShutdownGrace.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	s.base = ctx
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("api.Server.Run")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("api.Server.Run shutdown")
		_ = srv.Close()
	}
	return nil
}
