// Package registry tracks devices by IP through Announced, Connected and
// Disconnected. It is the only structure shared by the discovery and TCP
// actors; every read and write goes through one RWMutex.
package registry

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/sfpctl/internal/observability"
)

var (
	ErrUnrecognizedDevice = errors.New("registry: unrecognized device")
	ErrAlreadyConnected   = fmt.Errorf("%w: session already live", ErrUnrecognizedDevice)
	ErrTypeConflict       = errors.New("registry: device type conflict")
	ErrInvalidIP          = errors.New("registry: invalid ip")
)

// DeviceType is fixed when a device is first announced.
type DeviceType string

const (
	DockingStation DeviceType = "docking_station"
	ProgrammerUnit DeviceType = "programmer_unit"
)

func (t DeviceType) Valid() bool {
	return t == DockingStation || t == ProgrammerUnit
}

type State string

const (
	StateAnnounced    State = "announced"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Conn is the live session handle the registry holds for a connected device.
type Conn interface {
	Close() error
}

// Device is a copy of one registry entry; mutating it has no effect on the registry.
type Device struct {
	IP             string     `json:"ip"`
	Type           DeviceType `json:"type"`
	State          State      `json:"state"`
	AnnouncedAt    time.Time  `json:"announced_at"`
	ConnectedAt    time.Time  `json:"connected_at,omitempty"`
	DisconnectedAt time.Time  `json:"disconnected_at,omitempty"`
	Sessions       int        `json:"sessions"`
}

type Config struct {
	// RetainOnDisconnect keeps the ip->type mapping after the socket closes.
	RetainOnDisconnect bool
}

func DefaultConfig() Config {
	return Config{RetainOnDisconnect: true}
}

type entry struct {
	meta Device
	conn Conn
}

type Registry struct {
	mu      sync.RWMutex
	cfg     Config
	devices map[string]*entry
	now     func() time.Time
}

func New(cfg Config) *Registry {
	return &Registry{
		cfg:     cfg,
		devices: make(map[string]*entry),
		now:     time.Now,
	}
}

// NormalizeIP strips a port and canonicalizes the textual address form.
func NormalizeIP(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, addr)
	}
	return ip.String(), nil
}

// Announce records ip as a candidate of type t. It reports whether the entry
// changed: duplicate announcements for an Announced or Connected device are no-ops.
func (r *Registry) Announce(ip string, t DeviceType) (bool, error) {
	key, err := NormalizeIP(ip)
	if err != nil {
		return false, err
	}
	if !t.Valid() {
		return false, fmt.Errorf("registry: unknown device type %q", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.devices[key]
	if !ok {
		r.devices[key] = &entry{meta: Device{
			IP:          key,
			Type:        t,
			State:       StateAnnounced,
			AnnouncedAt: r.now(),
		}}
		r.publishCountsLocked()
		return true, nil
	}
	if e.meta.Type != t {
		return false, fmt.Errorf("%w: %s is %s, announced as %s", ErrTypeConflict, key, e.meta.Type, t)
	}
	if e.meta.State != StateDisconnected {
		return false, nil
	}
	e.meta.State = StateAnnounced
	e.meta.AnnouncedAt = r.now()
	r.publishCountsLocked()
	return true, nil
}

// Connect promotes an Announced device to Connected and stores its live handle.
func (r *Registry) Connect(ip string, conn Conn) (Device, error) {
	key, err := NormalizeIP(ip)
	if err != nil {
		return Device{}, fmt.Errorf("%w: %v", ErrUnrecognizedDevice, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.devices[key]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s was never announced", ErrUnrecognizedDevice, key)
	}
	switch e.meta.State {
	case StateConnected:
		return Device{}, fmt.Errorf("%w: %s", ErrAlreadyConnected, key)
	case StateDisconnected:
		return Device{}, fmt.Errorf("%w: %s must re-announce after disconnect", ErrUnrecognizedDevice, key)
	}
	e.conn = conn
	e.meta.State = StateConnected
	e.meta.ConnectedAt = r.now()
	e.meta.Sessions++
	r.publishCountsLocked()
	return e.meta, nil
}

// Disconnect releases the live handle for ip. Only the handle that connected can
// disconnect it; a second call, or a stale handle, returns false.
func (r *Registry) Disconnect(ip string, conn Conn) (Device, bool) {
	key, err := NormalizeIP(ip)
	if err != nil {
		return Device{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.devices[key]
	if !ok || e.meta.State != StateConnected || e.conn != conn {
		return Device{}, false
	}
	e.conn = nil
	e.meta.State = StateDisconnected
	e.meta.DisconnectedAt = r.now()
	out := e.meta
	if !r.cfg.RetainOnDisconnect {
		delete(r.devices, key)
	}
	r.publishCountsLocked()
	return out, true
}

// Purge drops a non-connected entry entirely.
func (r *Registry) Purge(ip string) bool {
	key, err := NormalizeIP(ip)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.devices[key]
	if !ok || e.meta.State == StateConnected {
		return false
	}
	delete(r.devices, key)
	r.publishCountsLocked()
	return true
}

func (r *Registry) Lookup(ip string) (Device, bool) {
	key, err := NormalizeIP(ip)
	if err != nil {
		return Device{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.devices[key]
	if !ok {
		return Device{}, false
	}
	return e.meta, true
}

// Conn returns the live handle for a connected ip.
func (r *Registry) Conn(ip string) (Conn, bool) {
	key, err := NormalizeIP(ip)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.devices[key]
	if !ok || e.meta.State != StateConnected || e.conn == nil {
		return nil, false
	}
	return e.conn, true
}

// Snapshot returns every entry sorted by IP.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, e := range r.devices {
		out = append(out, e.meta)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// Connected returns the live handles keyed by IP.
func (r *Registry) Connected() map[string]Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Conn)
	for ip, e := range r.devices {
		if e.meta.State == StateConnected && e.conn != nil {
			out[ip] = e.conn
		}
	}
	return out
}

func (r *Registry) publishCountsLocked() {
	counts := map[State]int{
		StateAnnounced:    0,
		StateConnected:    0,
		StateDisconnected: 0,
	}
	for _, e := range r.devices {
		counts[e.meta.State]++
	}
	for state, n := range counts {
		observability.SetDevices(string(state), n)
	}
}
