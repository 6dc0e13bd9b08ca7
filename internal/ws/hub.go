package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// NotificationSaver интерфейс для сохранения уведомлений в БД.
type NotificationSaver interface {
	CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// Hub управляет всеми WebSocket клиентами. Клиент всегда привязан
// к пользователю и дополнительно может быть подписан на комнату сделки.
type Hub struct {
	mu                sync.RWMutex
	clients           map[uuid.UUID]map[*Client]struct{}
	rooms             map[uuid.UUID]map[*Client]struct{}
	register          chan *Client
	unregister        chan *Client
	broadcast         chan message
	notificationSaver NotificationSaver
	ctx               context.Context
}

type message struct {
	userID  uuid.UUID
	tradeID uuid.UUID
	toRoom  bool
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub(ctx context.Context) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 32),
		ctx:        ctx,
	}
}

// SetNotificationSaver устанавливает сервис для сохранения уведомлений.
func (h *Hub) SetNotificationSaver(saver NotificationSaver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notificationSaver = saver
}

// Run запускает главный цикл хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			if msg.toRoom {
				h.sendToRoom(msg.tradeID, msg.payload)
			} else {
				h.send(msg.userID, msg.payload)
			}
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToUser отправляет сообщение конкретному пользователю и сохраняет
// уведомление в БД. Доставка best-effort: отключённый клиент догонит
// пропущенное через REST или через курсор since_seq комнаты сделки.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	raw, err := encodeEvent(event, data)
	if err != nil {
		return err
	}

	h.mu.RLock()
	saver := h.notificationSaver
	ctx := h.ctx
	h.mu.RUnlock()

	if saver != nil {
		// Сохраняем асинхронно, чтобы не блокировать отправку (с panic recovery)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Printf("WebSocket notification save panic recovered: %v\nStack trace:\n%s\n", r, debug.Stack())
				}
			}()
			if err := saver.CreateNotification(ctx, userID, event, data); err != nil {
				fmt.Printf("ws: не удалось сохранить уведомление: %v\n", err)
			}
		}()
	}

	h.broadcast <- message{userID: userID, payload: raw}
	return nil
}

// BroadcastToTrade отправляет событие всем клиентам комнаты сделки.
// Строка уведомления здесь не пишется: журнал сообщений и журнал
// переходов уже хранятся в своих таблицах.
func (h *Hub) BroadcastToTrade(tradeID uuid.UUID, event string, data any) error {
	raw, err := encodeEvent(event, data)
	if err != nil {
		return err
	}

	h.broadcast <- message{tradeID: tradeID, toRoom: true, payload: raw}
	return nil
}

// Сообщение для клиента строго следует контракту WebSocket API:
// поле "type" содержит имя события, "data" — полезную нагрузку.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(map[string]any{
		"type": event,
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}
	return raw, nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}

	if client.tradeID != nil {
		if _, ok := h.rooms[*client.tradeID]; !ok {
			h.rooms[*client.tradeID] = make(map[*Client]struct{})
		}
		h.rooms[*client.tradeID][client] = struct{}{}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}

	if client.tradeID != nil {
		if room, ok := h.rooms[*client.tradeID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, *client.tradeID)
			}
		}
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		h.deliver(client, payload)
	}
}

func (h *Hub) sendToRoom(tradeID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[tradeID] {
		h.deliver(client, payload)
	}
}

func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		// Медленного клиента закрываем асинхронно с panic recovery
		go func(c *Client) {
			defer func() {
				if r := recover(); r != nil {
					fmt.Printf("WebSocket client close panic recovered: %v\nStack trace:\n%s\n", r, debug.Stack())
				}
			}()
			c.Close()
		}(client)
	}
}
