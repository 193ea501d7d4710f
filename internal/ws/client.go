package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"

	"github.com/whataybo/api/internal/auth"
	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/realtime"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (we validate via JWT)
	},
}

// OrderStore is used to check that a requested order room belongs to the
// caller's restaurant. Satisfied by *database.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
}

// Client represents a single WebSocket connection
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	rooms []string
	send  chan []byte
}

// ReadPump pumps messages from the WebSocket connection to the hub.
// Dashboards don't send messages; we only detect disconnects.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// ServeWS handles WebSocket requests from staff dashboards.
// Endpoint: WS /ws?token=JWT[&order=<id>]
func ServeWS(hub *Hub, orders OrderStore, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	rooms, status, msg := resolveRooms(r, orders, jwtSecret)
	if status != 0 {
		http.Error(w, msg, status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:   hub,
		conn:  conn,
		rooms: rooms,
		send:  make(chan []byte, 256),
	}
	if !client.hub.join(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// resolveRooms authenticates the request and returns the rooms to join, or a
// non-zero HTTP status with a message.
func resolveRooms(r *http.Request, orders OrderStore, jwtSecret string) ([]string, int, string) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		return nil, http.StatusUnauthorized, "missing token"
	}

	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		return nil, http.StatusUnauthorized, "invalid token"
	}

	rooms := []string{realtime.RestaurantRoom(claims.RestaurantID)}

	orderStr := r.URL.Query().Get("order")
	if orderStr == "" {
		return rooms, 0, ""
	}
	orderID, err := uuid.Parse(orderStr)
	if err != nil {
		return nil, http.StatusBadRequest, "invalid order id"
	}
	if _, err := orders.GetOrder(r.Context(), database.GetOrderParams{
		ID:           orderID,
		RestaurantID: claims.RestaurantID,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, http.StatusForbidden, "order access denied"
		}
		log.Printf("ERROR: ws order lookup: %v", err)
		return nil, http.StatusInternalServerError, "internal server error"
	}
	return append(rooms, realtime.OrderRoom(orderID)), 0, ""
}
