package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cleancity-server-go/internal/app/session"
	"cleancity-server-go/internal/domain/eventbus"
	"cleancity-server-go/internal/platform/logging"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(*http.Request) bool { return true },
}

// Frame is one event pushed to a connected client.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Stream fans lifecycle events out to websocket clients watching a session.
// Clients connect to /ws/sessions/:id/events and receive transition, stage
// and delivery frames as the submission progresses.
type Stream struct {
	sessions *session.Manager
	logger   *logging.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewStream builds the event stream transport and subscribes it to the bus.
func NewStream(sessions *session.Manager, logger *logging.Logger) (*Stream, error) {
	s := &Stream{
		sessions: sessions,
		logger:   logger,
		conns:    make(map[string]*Connection),
	}

	if err := eventbus.SubscribeAsync(eventbus.EventLifecycleTransition, func(data eventbus.TransitionEventData) {
		s.broadcast(data.SessionID, Frame{Type: "transition", Data: data})
	}); err != nil {
		return nil, err
	}
	if err := eventbus.SubscribeAsync(eventbus.EventLifecycleStage, func(data eventbus.StageEventData) {
		s.broadcast(data.SessionID, Frame{Type: "stage", Data: data})
	}); err != nil {
		return nil, err
	}
	if err := eventbus.SubscribeAsync(eventbus.EventReportSubmitted, func(data eventbus.ReportEventData) {
		s.broadcast(data.SessionID, Frame{Type: "submitted", Data: data})
	}); err != nil {
		return nil, err
	}
	if err := eventbus.SubscribeAsync(eventbus.EventDeliveryFailed, func(data eventbus.DeliveryEventData) {
		s.broadcast(data.SessionID, Frame{Type: "delivery_failed", Data: data})
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Register mounts the websocket endpoint.
func (s *Stream) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/sessions/:id/events", s.handleUpgrade)
	return nil
}

func (s *Stream) handleUpgrade(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.sessions.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "session not found"})
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := NewConnection(uuid.NewString(), sessionID, socket)
	s.mu.Lock()
	s.conns[conn.ID()] = conn
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("event stream attached to session %s", sessionID)
	}

	// Reader loop exists only to detect the client going away.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := socket.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Stream) broadcast(sessionID string, frame Frame) {
	raw, err := sonic.Marshal(&frame)
	if err != nil {
		return
	}

	s.mu.RLock()
	targets := make([]*Connection, 0, 4)
	for _, conn := range s.conns {
		if conn.SessionID() == sessionID {
			targets = append(targets, conn)
		}
	}
	s.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			s.drop(conn)
		}
	}
}

func (s *Stream) drop(conn *Connection) {
	_ = conn.Close()
	s.mu.Lock()
	delete(s.conns, conn.ID())
	s.mu.Unlock()
}

// Close terminates every active stream connection.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, id)
	}
}

// Count returns the number of attached clients.
func (s *Stream) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
