package ws

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Manojseetaram/code-share-clone/internal/protocol"
	"github.com/Manojseetaram/code-share-clone/internal/ratelimit"
	"github.com/Manojseetaram/code-share-clone/internal/room"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 100
	messageBurst      = 200

	// A pasted image arrives as one large data-URL message; charging by
	// size keeps a burst of them from also crowding out keystroke edits.
	rateBytesPerToken = 32 * 1024
)

// session pairs one websocket connection with its seat in a room. The read
// pump owns the seat's release; the write pump owns the socket's ping cycle.
type session struct {
	room    *room.Room
	seat    *room.Conn
	ws      *websocket.Conn
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

func newSession(rm *room.Room, seat *room.Conn, conn *websocket.Conn, logger *slog.Logger) *session {
	return &session{
		room:    rm,
		seat:    seat,
		ws:      conn,
		limiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
		logger:  logger,
	}
}

func (s *session) readPump() {
	defer func() {
		s.room.Leave(s.seat)
		s.ws.Close()
	}()

	s.ws.SetReadLimit(maxMessageSize)
	s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		s.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed",
					slog.String("slug", s.room.Slug()),
					slog.String("conn", s.seat.ID),
					slog.String("error", err.Error()))
			}
			break
		}

		cost := 1 + len(message)/rateBytesPerToken
		if !s.limiter.AllowN(cost) {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				s.logger.Warn("rate limit exceeded",
					slog.String("slug", s.room.Slug()),
					slog.String("conn", s.seat.ID),
					slog.Int("warnings", rateLimitWarnings))
			}
			if rateLimitWarnings > 1000 {
				s.logger.Warn("disconnecting after sustained rate limit violations",
					slog.String("slug", s.room.Slug()),
					slog.String("conn", s.seat.ID))
				return
			}
			continue
		}

		msg, err := protocol.DecodeInbound(message)
		if err != nil {
			s.logger.Warn("discarding malformed message",
				slog.String("slug", s.room.Slug()),
				slog.String("conn", s.seat.ID),
				slog.String("error", err.Error()))
			continue
		}
		if msg == nil {
			// Recognized envelope, unknown type. Skip it.
			continue
		}

		s.room.Submit(s.seat, msg)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.ws.Close()
	}()

	for {
		select {
		case message, ok := <-s.seat.Send():
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The room closed the seat, either on leave or eviction.
				s.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := s.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
