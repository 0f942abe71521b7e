// Package feed streams session events to websocket clients and accepts
// control commands from them.
package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/LBVDSEC/telecat/internal/hashcat"
	"github.com/LBVDSEC/telecat/internal/session"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

// Message types
const (
	TypeLaunched = "launched"
	TypeStatus   = "status"
	TypeComplete = "complete"
	TypeReport   = "report"
	TypeReply    = "reply"
	TypeError    = "error"
	TypePing     = "ping"
	TypePong     = "pong"
)

// Message is the JSON envelope exchanged with clients
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Reply acknowledges a client command
type Reply struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// Controls are the session operations clients may invoke
type Controls interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Quit() error
	RequestStatus() error
	Status() (session.Report, error)
}

// Hub fans messages out to every connected client
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu       sync.RWMutex
	controls Controls
	running  bool
	stopCh   chan struct{}
}

// NewHub creates a hub. Start must be called before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan []byte, 256),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the hub's main loop
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	debug.Info("Starting status feed hub")
	go h.run()
}

// Stop disconnects every client and ends the main loop
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	close(h.stopCh)
	h.running = false
	debug.Info("Status feed hub stopped")
}

func (h *Hub) run() {
	for {
		select {
		case <-h.stopCh:
			h.mu.Lock()
			for client := range h.clients {
				close(client.closeCh)
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			debug.Info("Feed client %s connected (%d total)", client.id, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			debug.Info("Feed client %s disconnected", client.id)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					debug.Warning("Feed client %s send buffer full, dropping message", client.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopCh:
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopCh:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every client
func (h *Hub) Broadcast(msgType, sessionID string, payload interface{}) {
	data, err := encode(msgType, sessionID, payload)
	if err != nil {
		debug.Error("Failed to encode %s message: %v", msgType, err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.stopCh:
	}
}

func encode(msgType, sessionID string, payload interface{}) ([]byte, error) {
	msg := Message{Type: msgType, SessionID: sessionID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

// SetControls lets clients drive the session through c
func (h *Hub) SetControls(c Controls) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.controls = c
}

func (h *Hub) getControls() Controls {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.controls
}

// Attach streams m's session events to the clients and accepts their commands
func (h *Hub) Attach(m *session.Manager) {
	h.SetControls(m)
	m.OnLaunch(func(info session.Info) {
		h.Broadcast(TypeLaunched, info.ID, info)
	})
	m.OnStatus(func(info session.Info, snap hashcat.Snapshot) {
		h.Broadcast(TypeStatus, info.ID, snap)
	})
	m.OnComplete(func(c session.Completion) {
		h.Broadcast(TypeComplete, c.ID, c)
	})
}
