package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"emusync/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // 54 seconds

	// subscribeAll receives every job's events.
	subscribeAll = "all"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// jobEvent is pushed to subscribers. Type is "log" or "status".
type jobEvent struct {
	Type   string            `json:"type"`
	JobID  string            `json:"job_id"`
	Line   string            `json:"line,omitempty"`
	Status models.SyncStatus `json:"status,omitempty"`
}

// clientMessage is what a client sends: {"type":"subscribe","job_id":"..."}.
type clientMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

type Client struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte

	mu         sync.RWMutex
	subscribed map[string]bool
}

func (c *Client) isSubscribed(jobID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed[jobID] || c.subscribed[subscribeAll]
}

func (c *Client) setSubscribed(jobID string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.subscribed[jobID] = true
	} else {
		delete(c.subscribed, jobID)
	}
}

// WebSocketHub fans job log lines and status changes out to subscribed clients.
// It implements service.Publisher.
type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     zerolog.Logger
}

func NewWebSocketHub(logger zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "ws").Logger(),
	}
}

// Run serves registrations until ctx is done, then disconnects every client.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("total", total).Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("total", total).Msg("client disconnected")
		}
	}
}

func (h *WebSocketHub) PublishLog(jobID, line string) {
	h.broadcastToJob(jobEvent{Type: "log", JobID: jobID, Line: line})
}

func (h *WebSocketHub) PublishStatus(jobID string, status models.SyncStatus) {
	h.broadcastToJob(jobEvent{Type: "status", JobID: jobID, Status: status})
}

// broadcastToJob never blocks the job: a slow client loses its oldest message.
func (h *WebSocketHub) broadcastToJob(event jobEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal job event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.isSubscribed(event.JobID) {
			continue
		}
		select {
		case client.send <- message:
		default:
			select {
			case <-client.send:
			default:
			}
			select {
			case client.send <- message:
			default:
				h.logger.Warn().Str("job", event.JobID).Msg("client channel full, dropping event")
			}
		}
	}
}

// subscribers counts the clients that would receive events for jobID.
func (h *WebSocketHub) subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.isSubscribed(jobID) {
			n++
		}
	}
	return n
}

func HandleWebSocket(hub *WebSocketHub, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 64),
		subscribed: make(map[string]bool),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump handles subscribe/unsubscribe messages until the connection drops.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.JobID == "" {
			continue
		}
		switch msg.Type {
		case "subscribe":
			c.setSubscribed(msg.JobID, true)
			c.hub.logger.Debug().Str("job", msg.JobID).Msg("client subscribed")
		case "unsubscribe":
			c.setSubscribed(msg.JobID, false)
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
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
