package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"procurement/internal/identity"
	"procurement/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// Client is one subscriber. Events it may see are queued on send.
type Client struct {
	hub   *Hub
	actor identity.Actor
	conn  *websocket.Conn
	send  chan []byte
}

// Events returns the queue of encoded events. It is closed when the client is dropped.
func (c *Client) Events() <-chan []byte {
	return c.send
}

// Hub fans committed request events out to subscribers that are allowed to see the request.
type Hub struct {
	resolver identity.Resolver
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	clients    map[*Client]struct{}
	events     chan model.RequestEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	connected  atomic.Int64
}

// NewHub builds a hub. An empty origin list, or one containing "*", accepts any origin.
func NewHub(resolver identity.Resolver, logger *logrus.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		resolver:   resolver,
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		events:     make(chan model.RequestEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(set) == 0 || origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run dispatches events until ctx is cancelled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.connected.Add(1)
			h.logger.WithField("actor_id", client.actor.ID).Debug("websocket client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.WithField("actor_id", client.actor.ID).Debug("websocket client disconnected")
			}
		case event := <-h.events:
			h.dispatch(event)
		}
	}
}

func (h *Hub) dispatch(event model.RequestEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).WithField("event", event.Type).Error("failed to encode event")
		return
	}
	for client := range h.clients {
		if !client.actor.CanSee(event.OwnerID) {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.logger.WithField("actor_id", client.actor.ID).Warn("dropping slow websocket client")
			h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
}

// Publish queues an event for delivery. It never blocks the caller; events are dropped when the
// hub is stopped or its queue is full.
func (h *Hub) Publish(event model.RequestEvent) {
	select {
	case <-h.done:
	case h.events <- event:
	default:
		h.logger.WithField("event", event.Type).Warn("websocket event queue full, dropping event")
	}
}

// Subscribe registers a client for actor. It returns nil once the hub has stopped.
func (h *Hub) Subscribe(actor identity.Actor) *Client {
	return h.subscribe(actor, nil)
}

func (h *Hub) subscribe(actor identity.Actor, conn *websocket.Conn) *Client {
	client := &Client{hub: h, actor: actor, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- client:
		return client
	case <-h.done:
		return nil
	}
}

func (h *Hub) Unsubscribe(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Clients reports the number of registered subscribers.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// ServeWs authenticates the token query parameter and upgrades the connection.
func (h *Hub) ServeWs(c *gin.Context) {
	actor, err := h.resolver.Resolve(c.Request.Context(), c.Query("token"))
	if err != nil {
		h.logger.WithError(err).Debug("websocket connection rejected")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := h.subscribe(actor, conn)
	if client == nil {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.hub.Unsubscribe(c)
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump only watches for the peer going away; clients do not send messages.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Debug("websocket read failed")
			}
			return
		}
	}
}
