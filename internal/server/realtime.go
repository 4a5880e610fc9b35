package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/auth"
	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Клиент ничего не шлёт, кроме control-фреймов.
	maxMessageSize = 512
)

// ParseRelations разбирает список отношений через запятую. Пустая строка - все отношения.
func ParseRelations(raw string) ([]domain.Relation, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []domain.Relation
	for _, part := range strings.Split(raw, ",") {
		r, err := domain.ParseRelation(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// realtime транслирует события ленты изменений в websocket.
func (s *Server) realtime(w http.ResponseWriter, r *http.Request) {
	relations, err := ParseRelations(r.URL.Query().Get("relations"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже ответил клиенту
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.feed.Subscribe(ctx, relations...)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(writeWait))
		return
	}
	defer func() { _ = sub.Close() }()

	metrics.RealtimeConnections.Inc()
	defer metrics.RealtimeConnections.Dec()

	go s.readPump(conn, cancel)
	s.writePump(ctx, conn, auth.ViewerFrom(r.Context()), sub.Events())
}

// readPump читает только control-фреймы и отменяет ctx при разрыве.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("realtime read failed", zap.Error(err))
			}
			return
		}
	}
}

// visibleTo скрывает чужие закладки: они личные, остальные события видят все.
func visibleTo(viewer string, ev domain.ChangeEvent) bool {
	if ev.Relation != domain.RelationBookmarks {
		return true
	}
	row := ev.Subject()
	return viewer != "" && row != nil && row.UserID == viewer
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, viewer string, events <-chan domain.ChangeEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Подписка закрыта
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if !visibleTo(viewer, ev) {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("realtime write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
