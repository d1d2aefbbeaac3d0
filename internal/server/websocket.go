package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ProgressHub fans build progress events out to connected WebSocket
// clients.
type ProgressHub struct {
	clients    map[*progressClient]bool
	broadcast  chan interface{}
	register   chan *progressClient
	unregister chan *progressClient
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
}

type progressClient struct {
	hub  *ProgressHub
	conn *websocket.Conn
	send chan []byte
}

// NewProgressHub creates a hub. Call Run in a goroutine and Stop to shut
// down.
func NewProgressHub() *ProgressHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProgressHub{
		clients:    make(map[*progressClient]bool),
		broadcast:  make(chan interface{}, 256),
		register:   make(chan *progressClient),
		unregister: make(chan *progressClient),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *ProgressHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("server: marshaling progress event: %v", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow client, drop it rather than block the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop shuts the hub down and closes all client connections.
func (h *ProgressHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			_ = client.conn.Close(websocket.StatusNormalClosure, "")
		}
	}
	h.clients = make(map[*progressClient]bool)
	h.mu.Unlock()
}

// Broadcast queues a message for all clients, dropping it if the hub is
// saturated.
func (h *ProgressHub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		log.Println("server: progress broadcast channel full, dropping event")
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams progress
// events until the client disconnects.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	client := &progressClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *progressClient) writePump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			return
		}
	}
}

// readPump drains client messages to detect disconnection.
func (c *progressClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
