package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/annel0/voxelight/internal/eventbus"
	"github.com/annel0/voxelight/internal/logging"
)

// Типы служебных сообщений
const (
	MsgTypeHello     = "hello"     // Сервер → клиент при подключении
	MsgTypeSubscribe = "subscribe" // Клиент → сервер: фильтр типов событий
	MsgTypePing      = "ping"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// ErrHubStopped возвращается при рассылке после остановки хаба
var ErrHubStopped = errors.New("hub stopped")

// Message - кадр WebSocket-потока
type Message struct {
	Type     string          `json:"type"`
	Sequence uint32          `json:"seq"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// SubscribeRequest - полезная нагрузка сообщения subscribe
type SubscribeRequest struct {
	Types []string `json:"types"` // Пусто - все события
}

// Client представляет подключённого подписчика (мешер, визуализатор)
type Client struct {
	conn         *websocket.Conn
	send         chan Message
	id           string
	mu           sync.Mutex
	types        map[string]bool // nil - все типы
	lastActivity time.Time
	sequence     uint32
}

// ID возвращает идентификатор клиента
func (c *Client) ID() string { return c.id }

func (c *Client) wants(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.types == nil || c.types[eventType]
}

func (c *Client) setTypes(types []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(types) == 0 {
		c.types = nil
		return
	}
	c.types = make(map[string]bool, len(types))
	for _, t := range types {
		c.types[t] = true
	}
}

// Hub рассылает события мира подключённым WebSocket-клиентам
type Hub struct {
	upgrader   websocket.Upgrader
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{} // Закрывается при выходе из Run
	mu         sync.RWMutex
	logger     *logging.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewHub создаёт хаб. Рассылка начинается после Run.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.GetComponentLogger("network")
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Мешеры подключаются с других хостов
			},
		},
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run обрабатывает регистрацию, отключение и рассылку до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("🔌 Клиент подключён: %s", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				close(client.send)
				delete(h.clients, client.id)
				h.logger.Info("🔌 Клиент отключён: %s", client.id)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if !client.wants(msg.Type) {
					continue
				}
				select {
				case client.send <- msg:
					h.sent.Add(1)
				default:
					// Клиент не успевает читать: отключаем
					close(client.send)
					delete(h.clients, id)
					h.dropped.Add(1)
					h.logger.Warn("⚠️ Клиент %s отключён: переполнен буфер отправки", id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast ставит сообщение в очередь рассылки
func (h *Hub) Broadcast(ctx context.Context, msg Message) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttachBus подписывает хаб на события шины и пересылает их клиентам
func (h *Hub) AttachBus(ctx context.Context, bus eventbus.EventBus) (eventbus.Subscription, error) {
	return bus.Subscribe(ctx, eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		msg := Message{Type: ev.EventType, Payload: ev.Payload}
		if err := h.Broadcast(ctx, msg); err != nil {
			h.logger.Warn("⚠️ Событие %s не разослано: %v", ev.EventType, err)
		}
	})
}

// ClientCount возвращает количество подключённых клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats возвращает число отправленных сообщений и отключённых медленных клиентов
func (h *Hub) Stats() (sent, dropped uint64) {
	return h.sent.Load(), h.dropped.Load()
}

// HandleConnection обновляет HTTP-соединение до WebSocket
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Ошибка upgrade WebSocket: %v", err)
		return
	}

	client := &Client{
		conn:         conn,
		send:         make(chan Message, sendBuffer),
		id:           uuid.NewString(),
		lastActivity: time.Now(),
	}

	hello, _ := json.Marshal(map[string]string{"client_id": client.id})
	client.send <- Message{Type: MsgTypeHello, Payload: hello}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

// readPump читает служебные сообщения клиента
func (h *Hub) readPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Ошибка чтения от %s: %v", client.id, err)
			}
			return
		}

		client.mu.Lock()
		client.lastActivity = time.Now()
		client.mu.Unlock()

		switch msg.Type {
		case MsgTypeSubscribe:
			var req SubscribeRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				h.reply(client, MsgTypeError, map[string]string{"error": "неверный формат subscribe"})
				continue
			}
			client.setTypes(req.Types)
			h.reply(client, MsgTypeSubscribe, req)
		case MsgTypePing:
			h.reply(client, MsgTypePong, nil)
		default:
			h.reply(client, MsgTypeError, map[string]string{"error": "неизвестный тип сообщения: " + msg.Type})
		}
	}
}

// reply отправляет ответ одному клиенту, не блокируясь на переполненном буфере
func (h *Hub) reply(client *Client, msgType string, payload any) {
	msg := Message{Type: msgType}
	if payload != nil {
		msg.Payload, _ = json.Marshal(payload)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	select {
	case client.send <- msg:
	default:
	}
}

// writePump отправляет сообщения клиенту и держит соединение пингами
func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			msg.Sequence = client.sequence
			client.sequence++

			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
