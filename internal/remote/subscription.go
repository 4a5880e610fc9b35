package remote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/domain"
)

const (
	// Time allowed to write the close frame.
	writeWait = time.Second

	eventBuffer = 64
)

// subscription читает события из websocket /realtime.
type subscription struct {
	conn   *websocket.Conn
	events chan domain.ChangeEvent
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	log    *zap.Logger
}

// Subscribe открывает websocket и транслирует события в канал.
// Подписка закрывается при отмене ctx или вызове Close; Close дожидается остановки чтения.
func (c *Client) Subscribe(ctx context.Context, relations ...domain.Relation) (domain.Subscription, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(c.base.Path, "/") + "/realtime"
	if len(relations) > 0 {
		names := make([]string, len(relations))
		for i, r := range relations {
			names[i] = string(r)
		}
		u.RawQuery = url.Values{"relations": {strings.Join(names, ",")}}.Encode()
	}

	header := http.Header{}
	if token := c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, resp, err := c.dialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			return nil, decodeError(resp)
		}
		return nil, domain.NewUnavailableError(err)
	}

	sub := &subscription{
		conn:   conn,
		events: make(chan domain.ChangeEvent, eventBuffer),
		done:   make(chan struct{}),
		log:    c.log,
	}
	sub.wg.Add(1)
	go sub.readLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (s *subscription) Events() <-chan domain.ChangeEvent { return s.events }

// Close отправляет close-фрейм, закрывает соединение и ждёт остановки чтения.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func (s *subscription) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		var ev domain.ChangeEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			select {
			case <-s.done:
			default:
				if !isClosed(err) {
					s.log.Warn("realtime read failed", zap.Error(err))
				}
			}
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// isClosed сообщает, что соединение закрыто нами или штатно сервером.
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
