package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aFirmae/Scribe/internal/log"
)

// Hub is the connection registry and broadcast fan-out: it tracks which
// room each live session handle is joined to and delivers room-scoped
// events to every member, best-effort per handle.
type Hub struct {
	clients    map[string]*Client            // session handle -> client
	rooms      map[string]map[string]*Client // room code -> handle -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomEvent
	mu         sync.RWMutex
}

type roomEvent struct {
	roomCode string
	payload  []byte
	exclude  string // session handle to skip
	close    bool   // tear the room down instead of delivering
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, 256),
	}
}

// Run drains the register/unregister/broadcast channels until the
// context is cancelled. Broadcasts submitted in sequence are delivered
// in sequence, which preserves per-room message ordering.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldSession, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for code, members := range h.rooms {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.rooms, code)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldSession, client.ID).Msg("client unregistered")

		case evt := <-h.broadcast:
			if evt.close {
				h.mu.Lock()
				for _, client := range h.rooms[evt.roomCode] {
					client.Session.Clear()
				}
				delete(h.rooms, evt.roomCode)
				h.mu.Unlock()
				log.L().Info().Str(log.FieldRoomCode, evt.roomCode).Msg("room closed")
				continue
			}

			h.mu.RLock()
			for handle, client := range h.rooms[evt.roomCode] {
				if handle == evt.exclude {
					continue
				}
				select {
				case client.Send <- evt.payload:
				default:
					// Slow consumer: drop the frame, never block the
					// rest of the room.
					log.L().Warn().Str(log.FieldSession, handle).Str(log.FieldRoomCode, evt.roomCode).Msg("send buffer full, dropping frame")
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinRoom adds the client to a room's fan-out group.
func (h *Hub) JoinRoom(client *Client, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomCode]; !ok {
		h.rooms[roomCode] = make(map[string]*Client)
	}
	h.rooms[roomCode][client.ID] = client
	log.L().Info().Str(log.FieldSession, client.ID).Str(log.FieldRoomCode, roomCode).Msg("client joined room")
}

// LeaveRoom removes the client from a room's fan-out group.
func (h *Hub) LeaveRoom(client *Client, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomCode]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomCode)
		}
	}
	log.L().Info().Str(log.FieldSession, client.ID).Str(log.FieldRoomCode, roomCode).Msg("client left room")
}

// CloseRoom drops the room's fan-out group and clears each member's
// session. Used when a room document is deleted. Teardown goes through
// the event channel so broadcasts queued before it (the room-closed
// notice in particular) drain to members first.
func (h *Hub) CloseRoom(roomCode string) {
	h.broadcast <- &roomEvent{roomCode: roomCode, close: true}
}

// RoomClientCount reports how many handles are joined to the room.
func (h *Hub) RoomClientCount(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

// BroadcastToRoom queues an event for every handle joined to the room,
// optionally excluding one (typically the originator).
func (h *Hub) BroadcastToRoom(roomCode string, payload interface{}, exclude string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.broadcast <- &roomEvent{
		roomCode: roomCode,
		payload:  data,
		exclude:  exclude,
	}
	return nil
}
