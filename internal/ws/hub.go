package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ignatzorin/nova-auth/internal/logger"
)

// Hub управляет всеми WebSocket клиентами. Клиенты сгруппированы по email владельца токена.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
}

type message struct {
	identifier string
	payload    []byte
}

// Event отправляется клиенту. Поле "type" содержит имя события.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 64),
		done:       make(chan struct{}),
	}
}

// Run запускает главный цикл хаба до отмены ctx. После остановки все соединения закрываются.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.identifier, msg.payload)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// NotifyIdentifier отправляет событие всем соединениям пользователя. Не блокирует:
// при переполненной очереди событие теряется.
func (h *Hub) NotifyIdentifier(identifier, event string) {
	raw, err := json.Marshal(Event{Type: event, At: time.Now().UTC()})
	if err != nil {
		logger.Log.WithError(err).Error("ws: не удалось сериализовать событие")
		return
	}

	select {
	case h.broadcast <- message{identifier: identifier, payload: raw}:
	case <-h.done:
	default:
		logger.ForIdentifier(identifier).WithField("event", event).Warn("ws: очередь событий переполнена")
	}
}

// ClientCount возвращает число открытых соединений пользователя.
func (h *Hub) ClientCount(identifier string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[identifier])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.identifier]; !ok {
		h.clients[client.identifier] = make(map[*Client]struct{})
	}
	h.clients[client.identifier][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.identifier]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.identifier)
		}
	}
}

func (h *Hub) send(identifier string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[identifier] {
		select {
		case client.send <- payload:
		default:
			// Клиент не успевает читать. Закрываем в отдельной горутине:
			// Close вызывает Unregister, а он ждёт этот же цикл.
			go client.Close()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0)
	for _, set := range h.clients {
		for c := range set {
			clients = append(clients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
