package server

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/sfpctl/internal/events"
	"github.com/danmuck/sfpctl/internal/protocol"
	"github.com/danmuck/sfpctl/internal/registry"
)

// clonePayload is informational; docking stations ignore the text.
const clonePayload = "read sfp memory"

// SendCommand frames payload under code and writes it to the live session for
// ip. Every failure is returned to the caller and also published as exactly one
// log or error event; nothing panics or closes the session.
func (s *Service) SendCommand(ip string, code protocol.Code, payload []byte) error {
	key, err := registry.NormalizeIP(ip)
	if err != nil {
		key = ip
	}
	sess, err := s.lookupSession(key)
	if err != nil {
		log.Warn().Str("ip", key).Stringer("code", code).Msg("server.Service.SendCommand unknown destination")
		s.bus.Publish(events.Event{
			Kind: events.KindLog,
			IP:   key,
			Code: code.String(),
			Text: fmt.Sprintf("tried to send %s to %s which is an unknown destination", code, key),
		})
		return err
	}
	msg := protocol.NewMessage(code, payload)
	if err := sess.write(msg, s.cfg.WriteTimeout); err != nil {
		log.Warn().Str("ip", key).Stringer("code", code).Err(err).Msg("server.Service.SendCommand write")
		s.bus.Publish(events.Event{
			Kind: events.KindError,
			IP:   key,
			Code: code.String(),
			Text: fmt.Sprintf("failed to send %s", code),
			Err:  err.Error(),
		})
		return fmt.Errorf("server: send %s to %s: %w", code, key, err)
	}
	return nil
}

func (s *Service) SendText(ip string, code protocol.Code, text string) error {
	return s.SendCommand(ip, code, []byte(text))
}

// SendReadRequest encodes a register read and sends it to ip.
func (s *Service) SendReadRequest(ip string, req protocol.ReadRegisterMessage) error {
	msg, err := protocol.EncodeReadRegisterRequest(req)
	if err != nil {
		s.bus.Publish(events.Event{
			Kind: events.KindError,
			IP:   ip,
			Code: req.Code.String(),
			Text: "invalid register read request",
			Err:  err.Error(),
		})
		return err
	}
	return s.SendCommand(ip, msg.Code, msg.Payload)
}

// CloneMemory asks the docking station at ip to copy its SFP memory to the host.
func (s *Service) CloneMemory(ip string) error {
	return s.SendText(ip, protocol.CloneSFPMemory, clonePayload)
}

func (s *Service) lookupSession(ip string) (*session, error) {
	c, ok := s.registry.Conn(ip)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDestination, ip)
	}
	sess, ok := c.(*session)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no tcp session", ErrUnknownDestination, ip)
	}
	return sess, nil
}
