// Package server owns the TCP side of the device protocol: the accept loop,
// one read loop per connected device, the code dispatch table and outbound
// command delivery. Protocol failures never escape this package as errors to
// the read loops' callers; they are turned into bus events.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/sfpctl/internal/events"
	"github.com/danmuck/sfpctl/internal/observability"
	"github.com/danmuck/sfpctl/internal/protocol"
	"github.com/danmuck/sfpctl/internal/registry"
)

var ErrUnknownDestination = errors.New("server: unknown destination")

// DiagnosticSink receives the frames that belong to a diagnostic session.
type DiagnosticSink interface {
	HandleRegisterResponse(ip string, msg protocol.Message)
	HandleRemoteIOError(ip string, text string)
	DeviceDisconnected(ip string)
}

// Service is the TCP command/response endpoint.
type Service struct {
	cfg      ServiceConfig
	registry *registry.Registry
	bus      events.Publisher

	sinkMu sync.RWMutex
	sink   DiagnosticSink

	handlers map[protocol.Code]handler

	connsMu sync.Mutex
	conns   map[net.Conn]*session
	wg      sync.WaitGroup

	activeClients atomic.Int64
}

func NewService(cfg ServiceConfig, reg *registry.Registry, bus events.Publisher) *Service {
	s := &Service{
		cfg:      cfg.WithDefaults(),
		registry: reg,
		bus:      bus,
		conns:    make(map[net.Conn]*session),
	}
	s.handlers = s.dispatchTable()
	return s
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}

func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// SetDiagnosticSink wires the orchestrator after construction; the two depend on each other.
func (s *Service) SetDiagnosticSink(sink DiagnosticSink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sink = sink
}

func (s *Service) diagnosticSink() DiagnosticSink {
	s.sinkMu.RLock()
	defer s.sinkMu.RUnlock()
	return s.sink
}

// Listen binds the configured TCP address.
func (s *Service) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.cfg.ListenAddr)
}

// Serve accepts device connections on ln until ctx is cancelled. On
// cancellation every live session is closed through CloseAll.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.CloseAll()
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("server.Service.Serve listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		sess := s.trackConn(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(sess)
		}()
	}
}

// handleConn admits one connection through the registry and runs its read loop.
func (s *Service) handleConn(sess *session) {
	conn := sess.conn
	defer sess.Close()
	defer s.untrackConn(conn)

	remote := conn.RemoteAddr().String()
	ip, err := registry.NormalizeIP(remote)
	if err != nil {
		log.Warn().Str("remote", remote).Err(err).Msg("server.Service.handleConn bad peer address")
		return
	}
	sess.ip = ip

	dev, err := s.registry.Connect(ip, sess)
	if err != nil {
		log.Warn().Str("ip", ip).Err(err).Msg("server.Service.handleConn rejected")
		s.bus.Publish(events.Event{
			Kind: events.KindError,
			IP:   ip,
			Text: "rejected connection from unrecognized device",
			Err:  err.Error(),
		})
		return
	}
	active := s.activeClients.Add(1)
	log.Info().Str("ip", ip).Str("type", string(dev.Type)).Int64("active_clients", active).
		Msg("server.Service.handleConn connected")
	s.bus.Publish(events.Event{
		Kind:       events.KindConnected,
		IP:         ip,
		DeviceType: string(dev.Type),
		Text:       "device connected",
	})
	defer s.disconnect(sess, dev.Type)

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		msg, err := protocol.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, protocol.ErrFraming) {
				observability.RecordFramingError("tcp")
				s.bus.Publish(events.Event{
					Kind: events.KindWarning,
					IP:   ip,
					Text: "discarded partial frame",
					Err:  err.Error(),
				})
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Str("ip", ip).Err(err).Msg("server.Service.handleConn read")
			}
			return
		}
		observability.RecordFrame("in", msg.Code.String())
		s.dispatch(sess, msg)
	}
}

// disconnect releases the registry entry once per session and notifies the sink.
func (s *Service) disconnect(sess *session, t registry.DeviceType) {
	_ = sess.Close()
	if _, ok := s.registry.Disconnect(sess.ip, sess); !ok {
		return
	}
	remaining := s.activeClients.Add(-1)
	log.Info().Str("ip", sess.ip).Int64("active_clients", remaining).Msg("server.Service.handleConn disconnected")
	if sink := s.diagnosticSink(); sink != nil {
		sink.DeviceDisconnected(sess.ip)
	}
	s.bus.Publish(events.Event{
		Kind:       events.KindDisconnected,
		IP:         sess.ip,
		DeviceType: string(t),
		Text:       "device disconnected",
	})
}

// CloseAll half-closes every live session, waits up to ShutdownGrace for the
// read loops to observe the peer closing, then force-closes the rest. Calling
// it again is harmless.
func (s *Service) CloseAll() {
	sessions := s.liveSessions()
	if len(sessions) == 0 {
		return
	}
	for _, sess := range sessions {
		sess.closeWrite()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Int("sessions", len(sessions)).Msg("server.Service.CloseAll graceful")
		return
	case <-time.After(s.cfg.ShutdownGrace):
	}

	s.closeAllConns()
	<-done
	log.Warn().Int("sessions", len(sessions)).Msg("server.Service.CloseAll forced")
}

func (s *Service) trackConn(conn net.Conn) *session {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	sess := newSession("", conn)
	s.conns[conn] = sess
	return sess
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) liveSessions() []*session {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	out := make([]*session, 0, len(s.conns))
	for _, sess := range s.conns {
		out = append(out, sess)
	}
	return out
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn, sess := range s.conns {
		_ = sess.Close()
		delete(s.conns, conn)
	}
}
