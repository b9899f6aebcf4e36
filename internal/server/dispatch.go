package server

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/sfpctl/internal/events"
	"github.com/danmuck/sfpctl/internal/protocol"
)

type handler func(sess *session, msg protocol.Message)

// dispatchTable has exactly one entry per known code. A new code is added here.
func (s *Service) dispatchTable() map[protocol.Code]handler {
	return map[protocol.Code]handler{
		protocol.DockDiscover:          s.handleHostOnly,
		protocol.CloudplugDiscover:     s.handleHostOnly,
		protocol.CloneSFPMemory:        s.handleHostOnly,
		protocol.DockDiscoverAck:       s.handleDiscoveryAck,
		protocol.CloudplugDiscoverAck:  s.handleDiscoveryAck,
		protocol.CloneSFPMemorySuccess: s.handleCloneSuccess,
		protocol.CloneSFPMemoryError:   s.handleCloneError,
		protocol.DiagnosticInitA0:      s.handleRegisterResponse,
		protocol.DiagnosticInitA2:      s.handleRegisterResponse,
		protocol.RealTimeRefresh:       s.handleRegisterResponse,
		protocol.RemoteIOError:         s.handleRemoteIOError,
	}
}

func (s *Service) dispatch(sess *session, msg protocol.Message) {
	h, ok := s.handlers[msg.Code]
	if !ok {
		log.Warn().Str("ip", sess.ip).Stringer("code", msg.Code).Msg("server.Service.dispatch unknown code")
		s.bus.Publish(events.Event{
			Kind: events.KindWarning,
			IP:   sess.ip,
			Code: msg.Code.String(),
			Text: fmt.Sprintf("ignored frame with unknown code 0x%04X", uint16(msg.Code)),
		})
		return
	}
	h(sess, msg)
}

func (s *Service) handleHostOnly(sess *session, msg protocol.Message) {
	s.bus.Publish(events.Event{
		Kind: events.KindWarning,
		IP:   sess.ip,
		Code: msg.Code.String(),
		Text: fmt.Sprintf("device sent host-only code %s", msg.Code),
	})
}

func (s *Service) handleDiscoveryAck(sess *session, msg protocol.Message) {
	s.bus.Publish(events.Event{
		Kind: events.KindWarning,
		IP:   sess.ip,
		Code: msg.Code.String(),
		Text: "discovery ack over tcp ignored",
	})
}

func (s *Service) handleCloneSuccess(sess *session, msg protocol.Message) {
	s.bus.Publish(events.Event{
		Kind: events.KindRefresh,
		IP:   sess.ip,
		Code: msg.Code.String(),
		Text: "docking station cloned sfp memory",
	})
}

func (s *Service) handleCloneError(sess *session, msg protocol.Message) {
	s.bus.Publish(events.Event{
		Kind: events.KindError,
		IP:   sess.ip,
		Code: msg.Code.String(),
		Text: "clone sfp memory failed",
		Err:  msg.Text(),
	})
}

func (s *Service) handleRegisterResponse(sess *session, msg protocol.Message) {
	sink := s.diagnosticSink()
	if sink == nil {
		s.bus.Publish(events.Event{
			Kind: events.KindWarning,
			IP:   sess.ip,
			Code: msg.Code.String(),
			Text: "register response with no diagnostic handler",
		})
		return
	}
	sink.HandleRegisterResponse(sess.ip, msg)
}

func (s *Service) handleRemoteIOError(sess *session, msg protocol.Message) {
	s.bus.Publish(events.Event{
		Kind: events.KindError,
		IP:   sess.ip,
		Code: msg.Code.String(),
		Text: "device reported remote io error",
		Err:  msg.Text(),
	})
	if sink := s.diagnosticSink(); sink != nil {
		sink.HandleRemoteIOError(sess.ip, msg.Text())
	}
}
