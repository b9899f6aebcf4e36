// Package discovery runs the UDP side of device discovery: a passive listener
// that turns discover-ack datagrams into registry announcements, and an optional
// broadcaster that periodically asks devices on the LAN to announce themselves.
// Both are best-effort; nothing here retries.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/sfpctl/internal/events"
	"github.com/danmuck/sfpctl/internal/observability"
	"github.com/danmuck/sfpctl/internal/protocol"
	"github.com/danmuck/sfpctl/internal/registry"
)

// Announcer is the registry view the listener needs.
type Announcer interface {
	Announce(ip string, t registry.DeviceType) (bool, error)
}

// ackTypes maps each discover-ack code to the device class it declares.
var ackTypes = map[protocol.Code]registry.DeviceType{
	protocol.DockDiscoverAck:      registry.DockingStation,
	protocol.CloudplugDiscoverAck: registry.ProgrammerUnit,
}

type Listener struct {
	registry Announcer
	bus      events.Publisher
}

func NewListener(reg Announcer, bus events.Publisher) *Listener {
	return &Listener{registry: reg, bus: bus}
}

// Serve reads datagrams from pc until ctx is cancelled or pc is closed.
func (l *Listener) Serve(ctx context.Context, pc net.PacketConn) error {
	defer pc.Close()
	go func() {
		<-ctx.Done()
		_ = pc.Close()
	}()
	log.Info().Str("addr", pc.LocalAddr().String()).Msg("discovery.Listener.Serve listening")

	// oversized datagrams must be seen as oversized, not truncated to a valid frame
	buf := make([]byte, 2*protocol.FrameSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		l.HandleDatagram(addr, buf[:n])
	}
}

// HandleDatagram processes one datagram from addr.
func (l *Listener) HandleDatagram(addr net.Addr, b []byte) {
	ip, err := registry.NormalizeIP(addr.String())
	if err != nil {
		log.Warn().Str("addr", addr.String()).Err(err).Msg("discovery.Listener.HandleDatagram bad sender")
		return
	}
	msg, err := protocol.Decode(b)
	if err != nil {
		observability.RecordFramingError("udp")
		l.bus.Publish(events.Event{
			Kind: events.KindWarning,
			IP:   ip,
			Text: "discarded malformed discovery datagram",
			Err:  err.Error(),
		})
		return
	}
	observability.RecordFrame("in", msg.Code.String())

	switch msg.Code {
	case protocol.DockDiscover, protocol.CloudplugDiscover:
		// our own broadcast looping back, or another host probing
		log.Debug().Str("ip", ip).Stringer("code", msg.Code).Msg("discovery.Listener.HandleDatagram ignoring request")
		return
	}

	t, ok := ackTypes[msg.Code]
	if !ok {
		l.bus.Publish(events.Event{
			Kind: events.KindWarning,
			IP:   ip,
			Code: msg.Code.String(),
			Text: fmt.Sprintf("unexpected discovery datagram %s", msg.Code),
		})
		return
	}

	changed, err := l.registry.Announce(ip, t)
	if err != nil {
		l.bus.Publish(events.Event{
			Kind:       events.KindError,
			IP:         ip,
			DeviceType: string(t),
			Code:       msg.Code.String(),
			Text:       "rejected discovery announcement",
			Err:        err.Error(),
		})
		return
	}
	if changed {
		log.Info().Str("ip", ip).Str("type", string(t)).Msg("discovery.Listener announced")
		l.bus.Publish(events.Event{
			Kind:       events.KindLog,
			IP:         ip,
			DeviceType: string(t),
			Code:       msg.Code.String(),
			Text:       fmt.Sprintf("discovered %s at %s", t, ip),
		})
	}
}

// Broadcaster periodically sends discover requests for both device classes.
type Broadcaster struct {
	Interval time.Duration
}

// Run sends one round immediately, then one per Interval until ctx ends.
// A zero Interval disables broadcasting.
func (b Broadcaster) Run(ctx context.Context, pc net.PacketConn, addr string) error {
	if b.Interval <= 0 {
		return nil
	}
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("discovery: resolve broadcast addr %q: %w", addr, err)
	}
	type probe struct {
		code protocol.Code
		raw  []byte
	}
	var probes []probe
	for _, code := range []protocol.Code{protocol.DockDiscover, protocol.CloudplugDiscover} {
		raw, err := protocol.Encode(protocol.Message{Code: code})
		if err != nil {
			return err
		}
		probes = append(probes, probe{code: code, raw: raw})
	}

	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	for {
		for _, p := range probes {
			if _, err := pc.WriteTo(p.raw, dst); err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				log.Warn().Str("addr", dst.String()).Err(err).Msg("discovery.Broadcaster.Run send failed")
				continue
			}
			observability.RecordFrame("out", p.code.String())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
