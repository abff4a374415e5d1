package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-backend/internal/goroutine"
	"github.com/ignatzorin/bounty-backend/internal/logger"
)

// ActivitySaver сохраняет событие ленты активности в БД.
type ActivitySaver interface {
	SaveActivity(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// Hub управляет всеми WebSocket клиентами и рассылает им события ленты.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	saver      ActivitySaver
	done       chan struct{}
	log        *logrus.Entry
}

type message struct {
	userID  uuid.UUID
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
		log:        logger.WithComponent("ws"),
	}
}

// SetActivitySaver устанавливает хранилище ленты.
func (h *Hub) SetActivitySaver(saver ActivitySaver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saver = saver
}

// Run запускает главный цикл хаба до отмены контекста.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.userID, msg.payload)
		}
	}
}

// Register добавляет клиента. Возвращает false, если хаб уже остановлен.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish сохраняет событие и отправляет его подключённым клиентам пользователя.
// Операция уже зафиксирована, поэтому ошибки только логируются.
func (h *Hub) Publish(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	h.mu.RLock()
	saver := h.saver
	h.mu.RUnlock()

	if saver != nil {
		saveCtx := context.WithoutCancel(ctx)
		goroutine.SafeGo(func() {
			if err := saver.SaveActivity(saveCtx, userID, event, data); err != nil {
				h.log.WithError(err).WithField("event", event).Warn("не удалось сохранить активность")
			}
		})
	}

	// Сообщение для клиента: "type" содержит имя события, "data" — полезную нагрузку.
	raw, err := json.Marshal(map[string]interface{}{
		"type": event,
		"data": data,
	})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Warn("не удалось сериализовать событие")
		return
	}

	select {
	case h.broadcast <- message{userID: userID, payload: raw}:
	default:
		h.log.WithField("event", event).Warn("очередь рассылки переполнена, событие не отправлено")
	}
}

// Online возвращает число открытых подключений пользователя.
func (h *Hub) Online(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			// медленный клиент
			goroutine.SafeGo(client.Close)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.clients {
		for client := range clients {
			close(client.send)
		}
		delete(h.clients, userID)
	}
}
