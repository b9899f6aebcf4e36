package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/sfpctl/internal/registry"
)

// ClientIDHeader carries the id assigned to a websocket client.
const ClientIDHeader = "X-Client-Id"

// streamEvents forwards every bus event to the client as JSON. The optional
// ip query parameter restricts the stream to one device and is normalized
// the way the registry keys devices.
func (s *Server) streamEvents(c *gin.Context) {
	id := uuid.NewString()
	filter := c.Query("ip")
	if filter != "" {
		ip, err := registry.NormalizeIP(filter)
		if err != nil {
			respondError(c, err)
			return
		}
		filter = ip
	}

	// Subscribe before the handshake completes so no event published after
	// the client sees the upgrade is missed.
	sub := s.deps.Events.Subscribe("ws-" + id)
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, http.Header{ClientIDHeader: []string{id}})
	if err != nil {
		log.Warn().Err(err).Str("client", id).Msg("api.Server.streamEvents upgrade")
		return
	}
	defer conn.Close()
	log.Debug().Str("client", id).Str("ip", filter).Msg("api.Server.streamEvents open")

	// Inbound messages are ignored; the read loop only notices the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(time.Second),
			)
			return
		case <-gone:
			log.Debug().Str("client", id).Msg("api.Server.streamEvents closed")
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if filter != "" && ev.IP != filter {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.EventWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("client", id).Msg("api.Server.streamEvents write")
				return
			}
		}
	}
}
