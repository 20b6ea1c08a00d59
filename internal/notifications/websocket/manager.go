package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"zk-carbon/contract-runner/internal/notifications"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

var (
	ErrClosed        = errors.New("event feed closed")
	ErrBroadcastFull = errors.New("broadcast channel full")
)

// Manager handles WebSocket subscribers of the event feed
type Manager struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu          sync.RWMutex
	connections map[string]*Connection
	closed      bool
}

// Connection represents a WebSocket subscriber
type Connection struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan notifications.Event
	ConnectedAt time.Time
	UserAgent   string
	IPAddress   string

	mu     sync.Mutex
	filter map[notifications.EventType]bool
}

// subscription is the only message a subscriber sends: the event types it wants.
// An empty list subscribes to everything.
type subscription struct {
	Subscribe []notifications.EventType `json:"subscribe"`
}

// Hub fans events out to connections. It owns the connection set.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.Event
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	stopped     chan struct{}
}

// NewManager creates a new WebSocket manager and starts its hub
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.Event, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	go hub.run()

	return &Manager{
		hub:         hub,
		logger:      logger,
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection upgrades the request and subscribes the client to the feed
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
		return nil, ErrClosed
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan notifications.Event, sendBuffer),
		ConnectedAt: time.Now(),
		UserAgent:   r.Header.Get("User-Agent"),
		IPAddress:   r.RemoteAddr,
	}
	connection.Send <- notifications.NewEvent(notifications.EventConnected, map[string]interface{}{
		"connection_id": connection.ID,
	})

	select {
	case m.hub.register <- connection:
	case <-m.hub.stopped:
		conn.Close()
		return nil, ErrClosed
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// Publish implements notifications.Publisher
func (m *Manager) Publish(event notifications.Event) error {
	select {
	case <-m.hub.stopped:
		return ErrClosed
	default:
	}

	select {
	case m.hub.broadcast <- event:
		return nil
	default:
		return ErrBroadcastFull
	}
}

// GetConnectionCount returns the number of active subscribers
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close disconnects every subscriber and stops the hub
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.Unlock()

	close(m.hub.stop)
	<-m.hub.stopped

	for _, conn := range conns {
		conn.Conn.Close()
	}
}

// readPump handles subscription updates and keeps the read deadline alive
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.stopped:
		}
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(1024)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg subscription
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("Websocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		conn.setFilter(msg.Subscribe)
	}
}

// writePump pumps events from the hub to the WebSocket connection
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) setFilter(types []notifications.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(types) == 0 {
		c.filter = nil
		return
	}
	c.filter = make(map[notifications.EventType]bool, len(types))
	for _, t := range types {
		c.filter[t] = true
	}
}

func (c *Connection) wants(t notifications.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter == nil || c.filter[t]
}

// run runs the hub in its own goroutine
func (h *Hub) run() {
	defer close(h.stopped)

	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}

		case event := <-h.broadcast:
			for conn := range h.connections {
				if !conn.wants(event.Type) {
					continue
				}
				select {
				case conn.Send <- event:
				default:
					// slow subscriber
					close(conn.Send)
					delete(h.connections, conn)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			return
		}
	}
}
