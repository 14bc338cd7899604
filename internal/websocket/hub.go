package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/messaging"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard is same-origin in production; reverse proxy enforces it
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope wraps every message pushed to dashboard clients.
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub is the explicit client registry for dashboard push. Register, unregister
// and broadcast all flow through the run loop, so no client list is ever
// touched concurrently. Events arrive over NATS, so every instance's hub sees
// runs executed anywhere.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	heartbeatInt time.Duration

	nats   *messaging.NATSClient
	logger *logrus.Entry
}

// Client is one connected dashboard browser.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates the dashboard hub and subscribes it to sync events.
func NewHub(nats *messaging.NATSClient, logger *logrus.Logger) *Hub {
	h := &Hub{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan []byte, 256),
		heartbeatInt: 30 * time.Second,
		nats:         nats,
		logger:       logger.WithField("component", "ws-hub"),
	}

	if err := h.subscribeToEvents(); err != nil {
		logger.WithError(err).Error("Failed to subscribe to sync events")
	}

	return h
}

// subscribeToEvents forwards NATS progress and log events to the broadcast loop.
func (h *Hub) subscribeToEvents() error {
	if h.nats == nil {
		return nil
	}

	if err := h.nats.SubscribeProgress(func(event models.ProgressEvent) {
		h.Broadcast("progress", event)
	}); err != nil {
		return err
	}

	return h.nats.SubscribeLogs(func(event models.LogEvent) {
		h.Broadcast("log", event)
	})
}

// Broadcast queues one typed message for every connected client. Safe for
// concurrent callers; drops the message when the queue is full rather than
// blocking a sync run.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	payload, err := json.Marshal(envelope{Type: msgType, Data: data})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("Broadcast queue full, dropping message")
	}
}

// Run owns the client registry until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(h.heartbeatInt)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.WithField("client_id", client.id).WithField("clients", len(h.clients)).Debug("Client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.WithField("client_id", client.id).WithField("clients", len(h.clients)).Debug("Client disconnected")
			}

		case payload := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow consumer; disconnect rather than stall the loop
					delete(h.clients, client)
					close(client.send)
				}
			}

		case <-heartbeat.C:
			for client := range h.clients {
				select {
				case client.send <- nil:
				default:
				}
			}
		}
	}
}

// HandleWebSocket upgrades an HTTP request into a dashboard client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump flushes queued messages to the connection; nil payloads become
// pings.
func (c *Client) writePump() {
	defer c.conn.Close()

	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

		if payload == nil {
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readPump discards inbound frames and unregisters on close.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
