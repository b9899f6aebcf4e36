// Package diag sequences diagnostic monitoring for one SFP per device: an A0
// init read, an A2 init read, then a periodic real-time refresh until the
// session is stopped, the device disconnects or it reports a remote IO error.
package diag

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/sfpctl/internal/events"
	"github.com/danmuck/sfpctl/internal/observability"
	"github.com/danmuck/sfpctl/internal/protocol"
	"github.com/danmuck/sfpctl/internal/registry"
)

var (
	ErrSessionExists = errors.New("diag: monitoring session already open")
	ErrNoSession     = errors.New("diag: no monitoring session")
	ErrInitTimeout   = errors.New("diag: init response timed out")
	ErrRemoteIO      = errors.New("diag: remote io error")
	ErrStopped       = errors.New("diag: stopped")
	ErrDisconnected  = errors.New("diag: device disconnected")
)

// Commander delivers register read requests to a device.
type Commander interface {
	SendReadRequest(ip string, req protocol.ReadRegisterMessage) error
}

type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseMonitoring   Phase = "monitoring"
	PhaseClosed       Phase = "closed"
)

type SessionInfo struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"started_at"`
}

type Orchestrator struct {
	cfg Config
	cmd Commander
	bus events.Publisher

	mu       sync.Mutex
	sessions map[string]*session

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

func New(cfg Config, cmd Commander, bus events.Publisher) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.WithDefaults(),
		cmd:      cmd,
		bus:      bus,
		sessions: make(map[string]*session),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// Start opens a monitoring session for ip and sends both init reads. The
// session runs until Stop, ctx cancellation, a remote IO error or disconnect.
func (o *Orchestrator) Start(ctx context.Context, ip string) (SessionInfo, error) {
	key, err := registry.NormalizeIP(ip)
	if err != nil {
		return SessionInfo{}, err
	}
	o.mu.Lock()
	if existing, ok := o.sessions[key]; ok {
		o.mu.Unlock()
		o.bus.Publish(events.Event{
			Kind: events.KindLog,
			IP:   key,
			Text: fmt.Sprintf("monitoring already open (session %s)", existing.id),
		})
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionExists, key)
	}
	s := newSession(uuid.NewString(), key, o.now())
	o.sessions[key] = s
	observability.SetDiagnosticSessions(len(o.sessions))
	o.mu.Unlock()

	for _, code := range []protocol.Code{protocol.DiagnosticInitA0, protocol.DiagnosticInitA2} {
		if err := o.cmd.SendReadRequest(key, requestFor(code)); err != nil {
			o.closeSession(s, fmt.Errorf("send %s: %w", code, err), false)
			return SessionInfo{}, err
		}
	}
	log.Info().Str("ip", key).Str("session", s.id).Msg("diag.Orchestrator.Start")
	go o.run(ctx, s)
	return s.info(), nil
}

// Stop ends the session for ip. It reports false when there was none, so a
// second call is a no-op that emits nothing.
func (o *Orchestrator) Stop(ip string) bool {
	s := o.lookup(ip)
	if s == nil {
		return false
	}
	return o.closeSession(s, ErrStopped, true)
}

// StopAll ends every open session.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	all := make([]*session, 0, len(o.sessions))
	for _, s := range o.sessions {
		all = append(all, s)
	}
	o.mu.Unlock()
	for _, s := range all {
		o.closeSession(s, ErrStopped, true)
	}
}

func (o *Orchestrator) Snapshot(ip string) (Snapshot, error) {
	s := o.lookup(ip)
	if s == nil {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoSession, ip)
	}
	return s.snapshot(o.now()), nil
}

func (o *Orchestrator) Sessions() []SessionInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SessionInfo, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, s.info())
	}
	return out
}

// HandleRegisterResponse folds a register response into the session's SFP and
// publishes the updated view.
func (o *Orchestrator) HandleRegisterResponse(ip string, msg protocol.Message) {
	s := o.lookup(ip)
	if s == nil {
		o.bus.Publish(events.Event{
			Kind: events.KindWarning,
			IP:   ip,
			Code: msg.Code.String(),
			Text: "register response without an open monitoring session",
		})
		return
	}
	req := requestFor(msg.Code)
	resp, err := protocol.DecodeReadRegisterResponse(msg, req.Registers)
	if err == nil && resp.Page != req.Page {
		err = fmt.Errorf("%w: %s response on page %s", protocol.ErrInvalidPage, msg.Code, resp.Page)
	}
	if err != nil {
		o.bus.Publish(events.Event{
			Kind: events.KindWarning,
			IP:   ip,
			Code: msg.Code.String(),
			Text: "discarded malformed register response",
			Err:  err.Error(),
		})
		return
	}

	snap, becameReady, err := s.apply(resp, o.now())
	if err != nil {
		o.bus.Publish(events.Event{
			Kind: events.KindWarning,
			IP:   ip,
			Code: msg.Code.String(),
			Text: "register response could not be applied",
			Err:  err.Error(),
		})
		return
	}
	if becameReady {
		log.Info().Str("ip", ip).Str("session", s.id).Str("calibration", snap.Calibration).
			Msg("diag.Orchestrator monitoring")
	}
	o.bus.Publish(events.Event{
		Kind: events.KindDiagnostics,
		IP:   ip,
		Code: msg.Code.String(),
		Text: string(snap.Phase),
		Data: snap,
	})
}

// HandleRemoteIOError tears down the session for ip. The operator restarts monitoring.
func (o *Orchestrator) HandleRemoteIOError(ip string, text string) {
	s := o.lookup(ip)
	if s == nil {
		return
	}
	o.closeSession(s, fmt.Errorf("%w: %s", ErrRemoteIO, text), true)
}

func (o *Orchestrator) DeviceDisconnected(ip string) {
	s := o.lookup(ip)
	if s == nil {
		return
	}
	o.closeSession(s, ErrDisconnected, true)
}

func (o *Orchestrator) lookup(ip string) *session {
	key, err := registry.NormalizeIP(ip)
	if err != nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[key]
}

// closeSession removes s and emits session_closed exactly once per session.
func (o *Orchestrator) closeSession(s *session, reason error, emit bool) bool {
	o.mu.Lock()
	if o.sessions[s.ip] != s {
		o.mu.Unlock()
		return false
	}
	delete(o.sessions, s.ip)
	observability.SetDiagnosticSessions(len(o.sessions))
	o.mu.Unlock()

	s.close()
	log.Info().Str("ip", s.ip).Str("session", s.id).Str("reason", reason.Error()).Msg("diag.Orchestrator session closed")
	if !emit {
		return true
	}
	ev := events.Event{
		Kind: events.KindSessionClosed,
		IP:   s.ip,
		Text: fmt.Sprintf("monitoring session %s closed", s.id),
	}
	if !errors.Is(reason, ErrStopped) {
		ev.Err = reason.Error()
	}
	o.bus.Publish(ev)
	return true
}

// run owns the session's timers: init timeout with bounded retry, then the refresh ticker.
func (o *Orchestrator) run(ctx context.Context, s *session) {
	initTimer := time.NewTimer(o.cfg.InitTimeout)
	defer initTimer.Stop()
	var (
		attempt = 1
		refresh <-chan time.Time
		ready   = s.ready
	)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			o.closeSession(s, ErrStopped, true)
			return
		case <-ready:
			ready = nil
			initTimer.Stop()
			ticker := time.NewTicker(o.cfg.RefreshInterval)
			defer ticker.Stop()
			refresh = ticker.C
		case <-initTimer.C:
			if attempt >= o.cfg.InitMaxAttempts {
				o.closeSession(s, ErrInitTimeout, true)
				return
			}
			delay := o.backoff(attempt)
			attempt++
			log.Warn().Str("ip", s.ip).Int("attempt", attempt).Dur("delay", delay).Msg("diag.Orchestrator.run init retry")
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				o.closeSession(s, ErrStopped, true)
				return
			case <-time.After(delay):
			}
			for _, code := range s.missing() {
				if err := o.cmd.SendReadRequest(s.ip, requestFor(code)); err != nil {
					o.closeSession(s, err, true)
					return
				}
			}
			initTimer.Reset(o.cfg.InitTimeout)
		case <-refresh:
			if err := o.cmd.SendReadRequest(s.ip, requestFor(protocol.RealTimeRefresh)); err != nil {
				o.closeSession(s, err, true)
				return
			}
		}
	}
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return NextBackoffDelay(o.cfg.Backoff, attempt, o.rng)
}
