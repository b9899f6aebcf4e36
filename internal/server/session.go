package server

import (
	"net"
	"sync"
	"time"

	"github.com/danmuck/sfpctl/internal/observability"
	"github.com/danmuck/sfpctl/internal/protocol"
)

// session is the live handle stored in the registry for one connected device.
// Writes are serialized so concurrent SendCommand calls never interleave frames.
type session struct {
	ip   string
	conn net.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newSession(ip string, conn net.Conn) *session {
	return &session{ip: ip, conn: conn}
}

func (s *session) write(m protocol.Message, timeout time.Duration) error {
	raw, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := s.conn.Write(raw); err != nil {
		return err
	}
	observability.RecordFrame("out", m.Code.String())
	return nil
}

// closeWrite half-closes the stream so the peer sees EOF after any in-flight frame.
func (s *session) closeWrite() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		return
	}
	_ = s.Close()
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}
