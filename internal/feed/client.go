package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LBVDSEC/telecat/pkg/debug"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the feed listens on a local address by default
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	closeCh chan struct{}
}

// NewClient wraps conn for hub
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		closeCh: make(chan struct{}),
	}
}

// ServeWS upgrades the request and streams hub messages over it
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error("Failed to upgrade feed connection from %s: %v", r.RemoteAddr, err)
		return
	}

	client := NewClient(h, conn)
	h.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// WritePump writes queued messages and keepalive pings to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closeCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed stopped"))
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				debug.Debug("Feed client %s write failed: %v", c.id, err)
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

// ReadPump reads client commands until the connection closes
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				debug.Warning("Feed client %s read error: %v", c.id, err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		debug.Warning("Feed client %s sent an invalid message: %v", c.id, err)
		c.reply(TypeError, Reply{Command: "", Error: "invalid message"})
		return
	}

	if msg.Type == TypePing {
		c.reply(TypePong, nil)
		return
	}

	controls := c.hub.getControls()
	if controls == nil {
		c.reply(TypeError, Reply{Command: msg.Type, Error: "no session manager attached"})
		return
	}

	var err error
	switch msg.Type {
	case "pause":
		err = controls.Pause(context.Background())
	case "resume":
		err = controls.Resume(context.Background())
	case "quit":
		err = controls.Quit()
	case "refresh":
		err = controls.RequestStatus()
	case TypeStatus:
		report, statusErr := controls.Status()
		if statusErr == nil {
			c.reply(TypeReport, report)
			return
		}
		err = statusErr
	default:
		debug.Debug("Feed client %s sent unknown command %q", c.id, msg.Type)
		c.reply(TypeError, Reply{Command: msg.Type, Error: "unknown command"})
		return
	}

	if err != nil {
		c.reply(TypeReply, Reply{Command: msg.Type, Error: err.Error()})
		return
	}
	c.reply(TypeReply, Reply{Command: msg.Type, OK: true})
}

// reply queues a message for this client only
func (c *Client) reply(msgType string, payload interface{}) {
	data, err := encode(msgType, "", payload)
	if err != nil {
		debug.Error("Failed to encode %s reply: %v", msgType, err)
		return
	}
	select {
	case c.send <- data:
	case <-c.closeCh:
	default:
		debug.Warning("Feed client %s send buffer full, dropping reply", c.id)
	}
}
