package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aFirmae/Scribe/internal/config"
	"github.com/aFirmae/Scribe/internal/log"
)

// Session mirrors the registry entry for one connection: the room it is
// joined to and the display name it joined under. It is advisory state;
// the document store stays authoritative for membership.
type Session struct {
	roomCode string
	username string
	mu       sync.RWMutex
}

func (s *Session) Join(roomCode, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomCode = roomCode
	s.username = username
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomCode = ""
	s.username = ""
}

// Current returns the joined room code and username, both empty when
// the connection has not joined a room.
func (s *Session) Current() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomCode, s.username
}

func (s *Session) InRoom() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomCode != ""
}

// Client is one live websocket connection. Its ID is the session
// handle the coordinator tracks membership against.
type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	Session *Session
	config  config.WebSocketConfig
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:      id,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Session: &Session{},
		config:  cfg,
	}
}

// ReadPump reads inbound frames and hands them to the handler. The
// disconnect callback runs exactly once, before the client is
// unregistered, so room state can react to the drop.
func (c *Client) ReadPump(handler func(*Client, []byte), onDisconnect func(*Client)) {
	defer func() {
		if onDisconnect != nil {
			onDisconnect(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.L().Debug().Err(err).Str(log.FieldSession, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals v and queues it for delivery. Delivery is
// best-effort: a full send buffer drops the frame rather than blocking
// the caller.
func (c *Client) SendMessage(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
	}
	return nil
}
