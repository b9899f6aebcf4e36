package diag

import (
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/sfpctl/internal/protocol"
	"github.com/danmuck/sfpctl/internal/sfp"
)

// Snapshot is the decoded view published after every folded response.
type Snapshot struct {
	SessionID   string          `json:"session_id"`
	IP          string          `json:"ip"`
	Phase       Phase           `json:"phase"`
	A0Loaded    bool            `json:"a0_loaded"`
	A2Loaded    bool            `json:"a2_loaded"`
	Vendor      string          `json:"vendor"`
	PartNumber  string          `json:"part_number"`
	Calibration string          `json:"calibration"`
	DDM         bool            `json:"ddm"`
	Thresholds  []sfp.Threshold `json:"thresholds,omitempty"`
	Readings    []sfp.Reading   `json:"readings,omitempty"`
	Refreshes   int             `json:"refreshes"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type session struct {
	id        string
	ip        string
	startedAt time.Time

	mu        sync.Mutex
	module    *sfp.SFP
	a0Loaded  bool
	a2Loaded  bool
	refreshes int
	phase     Phase

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id, ip string, now time.Time) *session {
	return &session{
		id:        id,
		ip:        ip,
		startedAt: now,
		module:    sfp.New(),
		phase:     PhaseInitializing,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{ID: s.id, IP: s.ip, Phase: s.phase, StartedAt: s.startedAt}
}

// apply folds resp and reports whether this response completed initialization.
func (s *session) apply(resp protocol.ReadRegisterMessage, now time.Time) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return Snapshot{}, false, fmt.Errorf("%w: session %s", ErrNoSession, s.id)
	}
	if err := s.module.Apply(resp); err != nil {
		return Snapshot{}, false, err
	}
	switch resp.Code {
	case protocol.DiagnosticInitA0:
		s.a0Loaded = true
	case protocol.DiagnosticInitA2:
		s.a2Loaded = true
	case protocol.RealTimeRefresh:
		s.refreshes++
	}
	becameReady := false
	if s.phase == PhaseInitializing && s.a0Loaded && s.a2Loaded {
		s.phase = PhaseMonitoring
		close(s.ready)
		becameReady = true
	}
	return s.snapshotLocked(now), becameReady, nil
}

// missing lists the init reads that have not been answered yet.
func (s *session) missing() []protocol.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Code
	if !s.a0Loaded {
		out = append(out, protocol.DiagnosticInitA0)
	}
	if !s.a2Loaded {
		out = append(out, protocol.DiagnosticInitA2)
	}
	return out
}

func (s *session) snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now)
}

func (s *session) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		IP:        s.ip,
		Phase:     s.phase,
		A0Loaded:  s.a0Loaded,
		A2Loaded:  s.a2Loaded,
		Refreshes: s.refreshes,
		UpdatedAt: now,
	}
	if s.module == nil {
		return snap
	}
	if s.a0Loaded {
		snap.Vendor = s.module.VendorName()
		snap.PartNumber = s.module.VendorPartNumber()
		snap.Calibration = s.module.CalibrationType().String()
		snap.DDM = s.module.DiagnosticsImplemented()
	}
	if s.a2Loaded {
		snap.Thresholds = s.module.Thresholds()
		snap.Readings = s.module.Readings()
	}
	return snap
}

// close releases the SFP and stops the session's timers. Safe to call twice.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.phase = PhaseClosed
		s.module = nil
		s.mu.Unlock()
		close(s.done)
	})
}
