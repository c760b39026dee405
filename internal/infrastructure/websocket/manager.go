package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bazaarchat/internal/infrastructure/metrics"
	"bazaarchat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is one websocket connection. A user may hold several.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	manager *Manager
}

// Manager tracks open connections per user.
type Manager struct {
	clients map[string]map[*Client]struct{}
	mutex   sync.RWMutex
	log     zerolog.Logger
}

func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]map[*Client]struct{}),
		log:     logger.Component("websocket"),
	}
}

// NewClient wraps conn and registers it for userID.
func (m *Manager) NewClient(userID string, conn *websocket.Conn) *Client {
	c := &Client{
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		manager: m,
	}
	m.Register(c)
	return c
}

func (m *Manager) Register(c *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c.manager = m
	if m.clients[c.UserID] == nil {
		m.clients[c.UserID] = make(map[*Client]struct{})
	}
	m.clients[c.UserID][c] = struct{}{}
	metrics.WebsocketConnections.Inc()
	m.log.Debug().Str("user_id", c.UserID).Msg("client registered")
}

// Unregister removes c and closes its send queue. Safe to call twice.
func (m *Manager) Unregister(c *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.remove(c)
}

// remove requires the write lock.
func (m *Manager) remove(c *Client) {
	set, ok := m.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m.clients, c.UserID)
	}
	close(c.Send)
	metrics.WebsocketConnections.Dec()
	m.log.Debug().Str("user_id", c.UserID).Msg("client unregistered")
}

// ConnectionCount returns the number of open connections for userID.
func (m *Manager) ConnectionCount(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID])
}

// Enqueue queues payload for c. A client whose queue is full is dropped.
func (m *Manager) Enqueue(c *Client, payload []byte) bool {
	m.mutex.RLock()
	_, ok := m.clients[c.UserID][c]
	if !ok {
		m.mutex.RUnlock()
		return false
	}
	select {
	case c.Send <- payload:
		m.mutex.RUnlock()
		return true
	default:
	}
	m.mutex.RUnlock()

	m.log.Warn().Str("user_id", c.UserID).Msg("send queue full, dropping client")
	m.Unregister(c)
	return false
}

// SendToUser queues payload on every connection of userID and returns how
// many accepted it.
func (m *Manager) SendToUser(userID string, payload []byte) int {
	m.mutex.RLock()
	targets := make([]*Client, 0, len(m.clients[userID]))
	for c := range m.clients[userID] {
		targets = append(targets, c)
	}
	m.mutex.RUnlock()

	sent := 0
	for _, c := range targets {
		if m.Enqueue(c, payload) {
			sent++
		}
	}
	return sent
}

// ReadPump hands every inbound frame to handle until the connection fails.
// The client is unregistered and closed when it returns.
func (c *Client) ReadPump(handle func(c *Client, data []byte)) {
	defer func() {
		c.manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.log.Warn().Err(err).Str("user_id", c.UserID).Msg("websocket closed unexpectedly")
			}
			return
		}
		handle(c, data)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.manager.log.Warn().Err(err).Str("user_id", c.UserID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
