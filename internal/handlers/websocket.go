package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/gorilla/websocket"

	"prizedraw/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	outgoingBuffer = 16
)

// Message is what the hub pushes to every connected screen.
type Message struct {
	Type    string                `json:"type"`
	Change  *services.ChangeEvent `json:"change,omitempty"`
	State   services.DrawState    `json:"state"`
	Pending *services.PendingDraw `json:"pending,omitempty"`
	Names   []string              `json:"names,omitempty"`
}

// Client is one websocket connection.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Outgoing chan []byte
}

// Hub fans messages out to every connected client. Slow clients that fill
// their buffer are dropped rather than holding up the rest.
type Hub struct {
	Clients map[*Client]struct{}

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan []byte

	upgrader websocket.Upgrader
	done     chan struct{}
}

// NewHub returns a hub; call Run to start delivering.
func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan []byte, outgoingBuffer),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run delivers until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.Clients {
				close(c.Outgoing)
				delete(h.Clients, c)
			}
			return
		case c := <-h.Register:
			h.Clients[c] = struct{}{}
		case c := <-h.Unregister:
			if _, ok := h.Clients[c]; ok {
				delete(h.Clients, c)
				close(c.Outgoing)
			}
		case msg := <-h.Broadcast:
			for c := range h.Clients {
				select {
				case c.Outgoing <- msg:
				default:
					logger.Warningf("ws: dropping slow client %s", c.Conn.RemoteAddr())
					delete(h.Clients, c)
					close(c.Outgoing)
				}
			}
		}
	}
}

// Publish queues m for every client. It never blocks: when the broadcast
// queue is full the message is dropped.
func (h *Hub) Publish(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		logger.Errorf("ws: marshal %s message: %v", m.Type, err)
		return
	}
	select {
	case h.Broadcast <- b:
	default:
		logger.Warningf("ws: broadcast queue full, dropping %s message", m.Type)
	}
}

// Observe returns a store observer that forwards every change to the hub.
func (h *Hub) Observe(engine *services.Engine) services.Observer {
	return func(ev services.ChangeEvent) {
		h.Publish(Message{Type: "change", Change: &ev, State: engine.State()})
	}
}

// Roll pushes preview names while a draw is under way, at the speed the
// display config asks for. When the engine is idle it only checks back every
// idle interval. Preview names are for show; the engine's sample decides.
func (h *Hub) Roll(ctx context.Context, store *services.Store, engine *services.Engine, idle time.Duration) {
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := idle
		if m, ok := rollMessage(engine); ok {
			h.Publish(m)
			next = store.Config().RollTick()
		}
		timer.Reset(next)
	}
}

func rollMessage(engine *services.Engine) (Message, bool) {
	state := engine.State()
	if state == services.StateIdle {
		return Message{}, false
	}
	m := Message{Type: "roll", State: state}
	n := 1
	if p, ok := engine.Pending(); ok {
		m.Pending = &p
		n = max(1, p.Count)
	}
	for _, p := range engine.Preview(n) {
		m.Names = append(m.Names, p.Name)
	}
	return m, true
}

// ServeWS upgrades the request and registers the connection with the hub.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warningf("ws: upgrade failed: %v", err)
		return
	}
	client := &Client{Hub: h, Conn: conn, Outgoing: make(chan []byte, outgoingBuffer)}
	select {
	case h.Register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only exists to notice the peer going away and to handle pongs.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warningf("ws: read: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Outgoing:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
