// Package notify pushes order status changes to connected storefront tabs.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"carsucart/globals"
	"carsucart/models"
	"carsucart/utils"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// AdminRoom receives every order event.
const AdminRoom = "admin"

type Client struct {
	Conn *websocket.Conn
	Send chan []byte
	Room string
}

type broadcastMsg struct {
	Room string
	Data []byte
}

type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	stop       chan struct{}
	once       sync.Once
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg),
		stop:       make(chan struct{}),
		log:        log,
	}
}

// Run owns the room table until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			for _, conns := range h.rooms {
				for c := range conns {
					close(c.Send)
				}
			}
			h.rooms = map[string]map[*Client]bool{}
			return

		case c := <-h.register:
			if h.rooms[c.Room] == nil {
				h.rooms[c.Room] = make(map[*Client]bool)
			}
			h.rooms[c.Room][c] = true

		case c := <-h.unregister:
			if conns := h.rooms[c.Room]; conns != nil && conns[c] {
				delete(conns, c)
				close(c.Send)
			}

		case m := <-h.broadcast:
			for c := range h.rooms[m.Room] {
				select {
				case c.Send <- m.Data:
				default:
					// slow consumer; drop it rather than block the hub
					close(c.Send)
					delete(h.rooms[m.Room], c)
				}
			}
		}
	}
}

func (h *Hub) Stop() {
	h.once.Do(func() { close(h.stop) })
}

func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stop:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

// Deliver sends ev to the order owner's room and the admin room.
func (h *Hub) Deliver(ev models.OrderEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal order event", zap.Error(err))
		return
	}
	for _, room := range []string{ev.UserID, AdminRoom} {
		select {
		case h.broadcast <- broadcastMsg{Room: room, Data: data}:
		case <-h.stop:
			return
		}
	}
}

// PublishOrderEvent delivers locally; used when no Redis bridge is configured.
func (h *Hub) PublishOrderEvent(_ context.Context, ev models.OrderEvent) error {
	h.Deliver(ev)
	return nil
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketHandler subscribes the authenticated caller to their order events.
func WebSocketHandler(hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromRequest(r)
		if userID == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		room := userID
		if utils.HasRole(r, globals.RoleAdmin) && r.URL.Query().Get("scope") == "all" {
			room = AdminRoom
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade", zap.Error(err))
			return
		}
		client := &Client{
			Conn: conn,
			Send: make(chan []byte, 32),
			Room: room,
		}
		if !hub.Register(client) {
			conn.Close()
			return
		}
		go writePump(client)
		go readPump(client, hub)
	}
}

func writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
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

// readPump only drains control frames; the feed is server to client.
func readPump(c *Client, hub *Hub) {
	defer func() {
		hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
