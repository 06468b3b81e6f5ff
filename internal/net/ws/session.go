package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wildshape/server/logging"
	lognetwork "wildshape/server/logging/network"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Session owns the write side of one websocket connection. Outbound frames
// are staged on a bounded queue and drained by a single writer goroutine, so
// the hub never blocks on a slow socket and frames leave in enqueue order.
type Session struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *log.Logger
	events logging.Publisher

	closeOnce sync.Once
}

// NewSession wraps conn and starts the writer goroutine.
func NewSession(id string, conn *websocket.Conn, queueDepth int, logger *log.Logger, events logging.Publisher) *Session {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	if logger == nil {
		logger = log.Default()
	}
	if events == nil {
		events = logging.NopPublisher()
	}
	s := &Session{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, queueDepth),
		done:   make(chan struct{}),
		logger: logger,
		events: events,
	}
	go s.writeLoop()
	return s
}

// Enqueue stages a frame for delivery. Reports false when the queue is
// full; the hub treats that as a slow consumer and disconnects.
func (s *Session) Enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Printf("write failed for %s: %v", s.id, err)
				lognetwork.SendFailed(context.Background(), s.events,
					logging.EntityRef{ID: s.id, Kind: logging.EntityKindPlayer},
					lognetwork.SendFailedPayload{Error: err.Error()})
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
