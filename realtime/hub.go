package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/logger"
)

// Event types pushed to websocket clients
const (
	EventAssignmentsChanged = "assignments.changed"
	EventAnnotationsChanged = "annotations.changed"
	EventSplitChanged       = "split.changed"
	EventMemberRemoved      = "member.removed"
	EventThumbnailReady     = "thumbnail.ready"
	EventImagesUploaded     = "images.uploaded"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Event represents a message sent to websocket clients
type Event struct {
	Type      string                 `json:"type"`
	ProjectID string                 `json:"project_id,omitempty"`
	ImageID   string                 `json:"image_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Client is one websocket connection. A client with a project id only
// receives events of that project.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	projectID string
}

func (c *Client) wants(projectID string) bool {
	return c.projectID == "" || projectID == "" || c.projectID == projectID
}

type envelope struct {
	projectID string
	payload   []byte
}

// Hub fans events out to the connected clients
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			h.drop(client)
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.projectID) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					logger.L().Debug("realtime: dropping slow client", zap.String("project_id", client.projectID))
					h.drop(client)
				}
			}
		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Stop terminates Run and disconnects every client
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues the event without blocking. Events are dropped when the
// hub falls behind.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		logger.L().Error("realtime: failed to marshal event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- envelope{projectID: event.ProjectID, payload: encoded}:
	default:
		logger.L().Warn("realtime: dropping event, broadcast channel full", zap.String("type", event.Type))
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and registers a client. The optional
// project_id query parameter narrows the client to one project; callers are
// expected to have checked access to it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Warn("realtime: websocket upgrade error", zap.Error(err))
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, sendBuffer), projectID: r.URL.Query().Get("project_id")}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()

	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// writePump sends queued events and keeps the connection alive with pings.
// It exits when the hub closes the send channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump discards client messages; it only notices pongs and the close.
func (c *Client) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
