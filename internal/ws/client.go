package ws

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client представляет одно подключение WebSocket. Если tradeID задан,
// клиент подписан на комнату этой сделки, иначе получает только
// персональные уведомления.
type Client struct {
	conn    *websocket.Conn
	hub     *Hub
	userID  uuid.UUID
	tradeID *uuid.UUID
	send    chan []byte
}

// NewClient создаёт клиента персональных уведомлений.
func NewClient(conn *websocket.Conn, hub *Hub, userID uuid.UUID) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, 16),
	}
}

// NewTradeRoomClient создаёт клиента, подписанного на комнату сделки.
// Очередь отправки шире персональной: туда до старта насоса записи
// догружается история пропущенных сообщений.
func NewTradeRoomClient(conn *websocket.Conn, hub *Hub, userID, tradeID uuid.UUID) *Client {
	return &Client{
		conn:    conn,
		hub:     hub,
		userID:  userID,
		tradeID: &tradeID,
		send:    make(chan []byte, 256),
	}
}

// Send кладёт готовый payload в очередь отправки клиенту.
// Используется для догрузки пропущенных сообщений при подключении.
func (c *Client) Send(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Run запускает обработку входящих и исходящих сообщений.
func (c *Client) Run(ctx context.Context) {
	go c.writePumpSafe()
	c.readPump(ctx)
}

// writePumpSafe запускает writePump с обработкой panic
func (c *Client) writePumpSafe() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("WebSocket writePump panic recovered: %v\nStack trace:\n%s\n", r, debug.Stack())
			c.Close()
		}
	}()
	c.writePump()
}

// Close закрывает соединение.
func (c *Client) Close() {
	c.hub.Unregister(c)
	c.conn.Close()
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("WebSocket readPump panic recovered: %v\nStack trace:\n%s\n", r, debug.Stack())
		}
		c.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Клиент только получает события, входящие сообщения игнорируются:
			// отправка сообщений чата идёт через REST.
			_, _, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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
