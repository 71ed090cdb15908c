package transport

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/UnendingLoop/ImagePipeline/internal/mwlogger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wb-go/wbf/ginext"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxBacklog     = 4096
	maxClientFrame = 4096
)

var (
	errSubscriberClosed = errors.New("subscriber connection is closed")
	errSubscriberStuck  = errors.New("subscriber does not read its messages")
)

// wsSubscriber - одно websocket-подключение. Пишет в сокет только writePump
type wsSubscriber struct {
	id   string
	conn *websocket.Conn

	mu      sync.Mutex
	pending []string
	wake    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	return &wsSubscriber{
		id:   uuid.NewString(),
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *wsSubscriber) ID() string { return s.id }

// Send queues text for the writer and never waits on the client.
// A client with maxBacklog unsent messages is dropped.
func (s *wsSubscriber) Send(_ context.Context, text string) error {
	select {
	case <-s.done:
		return errSubscriberClosed
	default:
	}

	s.mu.Lock()
	if len(s.pending) >= maxBacklog {
		s.mu.Unlock()
		s.Close()
		return errSubscriberStuck
	}
	s.pending = append(s.pending, text)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *wsSubscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// takePending забирает всю очередь целиком, порядок сохраняется
func (s *wsSubscriber) takePending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch
}

func (s *wsSubscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			for _, text := range s.takePending() {
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump echoes client text back to the same client; it returns when the connection is gone
func (s *wsSubscriber) readPump(ctx context.Context, hub Hub) {
	s.conn.SetReadLimit(maxClientFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := hub.SendDirect(ctx, "You wrote: "+string(payload), s); err != nil {
			return
		}
	}
}

// ProjectFeed upgrades the connection, replays the project log and then streams live messages
func (h ImageHandler) ProjectFeed(ctx *ginext.Context) {
	projectID, err := strconv.ParseInt(ctx.Param("projectId"), 10, 64)
	if err != nil || projectID <= 0 {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectProject.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// апгрейдер уже ответил клиенту
		return
	}

	reqCtx := ctx.Request.Context()
	logger := mwlogger.LoggerFromContext(reqCtx)
	sub := newWSSubscriber(conn)
	defer sub.Close()
	go sub.writePump()

	if err := h.hub.Connect(reqCtx, sub, projectID); err != nil {
		logger.Error().Err(err).Str("subscriber", sub.ID()).Int64("project_id", projectID).Msg("Failed to connect subscriber")
		return
	}
	defer h.hub.Disconnect(sub, projectID)

	logger.Info().Str("subscriber", sub.ID()).Int64("project_id", projectID).Msg("Subscriber connected")
	sub.readPump(reqCtx, h.hub)
	logger.Info().Str("subscriber", sub.ID()).Int64("project_id", projectID).Msg("Subscriber disconnected")
}
