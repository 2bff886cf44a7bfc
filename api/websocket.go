package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phuslu/log"

	"github.com/seenimoa/stockpilot/internal/pipeline"
	"github.com/seenimoa/stockpilot/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS origins are enforced on the REST routes only
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// WebSocket message types.
const (
	MsgStage      = "stage"      // pipeline.Event
	MsgBatch      = "batch"      // batch summary
	MsgSubscribed = "subscribed" // acknowledgement of a symbol filter
	MsgPong       = "pong"
)

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// BatchSummary is the payload of a batch message.
type BatchSummary struct {
	ID     string                `json:"id"`
	Status []models.SymbolStatus `json:"status"`
}

// ════════════════════════════════════════════════════════════════════
// Hub
// ════════════════════════════════════════════════════════════════════

// WSHub fans stage events out to connected clients. It implements
// pipeline.Observer.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
}

// WSClient is a single WebSocket connection. A client with a non-empty
// symbol filter only receives messages for those symbols.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage

	mu      sync.Mutex
	symbols map[string]bool
}

// NewWSHub creates a hub. Call Run before registering clients.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
	}
}

// NewClient creates a client with the given send buffer size.
func (h *WSHub) NewClient(buffer int) *WSClient {
	return &WSClient{hub: h, send: make(chan WSMessage, buffer)}
}

// Run is the hub event loop. It returns when ctx is done, closing every
// client's send channel.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg.Symbol) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Slow client; disconnect.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for every interested client. It never blocks;
// messages are dropped when the queue is full.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn().Str("type", msg.Type).Msg("websocket broadcast queue full, message dropped")
	}
}

// OnStage forwards a pipeline transition to clients.
func (h *WSHub) OnStage(e pipeline.Event) {
	h.Broadcast(WSMessage{Type: MsgStage, Symbol: e.Symbol, Data: e})
}

// OnBatch announces a finished batch.
func (h *WSHub) OnBatch(b *models.BatchResult) {
	sum := BatchSummary{ID: b.ID}
	for _, s := range b.Symbols() {
		sum.Status = append(sum.Status, b.Status[s])
	}
	h.Broadcast(WSMessage{Type: MsgBatch, Data: sum})
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub. After Run returns the client's send
// channel is closed immediately.
func (h *WSHub) Register(c *WSClient) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(c *WSClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Subscribe restricts the client to the given symbols; none clears the filter.
func (c *WSClient) Subscribe(symbols ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(symbols) == 0 {
		c.symbols = nil
		return
	}
	c.symbols = make(map[string]bool, len(symbols))
	for _, s := range symbols {
		c.symbols[normalize(s)] = true
	}
}

func (c *WSClient) wants(symbol string) bool {
	if symbol == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.symbols) == 0 || c.symbols[symbol]
}

// ════════════════════════════════════════════════════════════════════
// Connection pumps
// ════════════════════════════════════════════════════════════════════

// clientMessage is what clients send: {"type":"subscribe","symbols":["AAPL"]}.
type clientMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols,omitempty"`
}

// handleWebSocket upgrades the connection and streams stage events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := s.hub.NewClient(256)
	if syms := r.URL.Query()["symbol"]; len(syms) > 0 {
		client.Subscribe(syms...)
	}
	s.hub.Register(client)

	go wsWritePump(conn, client)
	go wsReadPump(conn, client)
}

// wsReadPump handles client control messages until the connection closes.
func wsReadPump(conn *websocket.Conn, client *WSClient) {
	defer func() {
		client.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			client.Subscribe(msg.Symbols...)
			client.trySend(WSMessage{Type: MsgSubscribed, Data: msg.Symbols})
		case "ping":
			client.trySend(WSMessage{Type: MsgPong})
		}
	}
}

// trySend queues a direct reply unless the buffer is full or closed.
func (c *WSClient) trySend(msg WSMessage) {
	defer func() { _ = recover() }() // send on a channel the hub already closed
	select {
	case c.send <- msg:
	default:
	}
}

// wsWritePump writes queued messages and keeps the connection alive.
func wsWritePump(conn *websocket.Conn, client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
