package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ignatzorin/bounty-backend/internal/goroutine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Client представляет одно подключение WebSocket. Клиент только получает события.
type Client struct {
	conn      *websocket.Conn
	hub       *Hub
	userID    uuid.UUID
	send      chan []byte
	closeOnce sync.Once
}

// NewClient создаёт нового клиента.
func NewClient(conn *websocket.Conn, hub *Hub, userID uuid.UUID) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, 16),
	}
}

// Run регистрирует клиента и обслуживает соединение до его закрытия.
func (c *Client) Run(ctx context.Context) {
	if !c.hub.Register(c) {
		_ = c.conn.Close()
		return
	}
	goroutine.SafeGo(c.writePump)
	c.readPump(ctx)
}

// Close снимает клиента с хаба и закрывает соединение. Повторные вызовы ничего не делают.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithError(err).WithField("user_id", c.userID).Debug("соединение закрыто")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
