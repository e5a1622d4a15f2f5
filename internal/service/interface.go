package service

import (
	"context"
	"encoding/json"

	"github.com/aFirmae/Scribe/internal/domain"
	"github.com/aFirmae/Scribe/internal/hub"
)

// RoomService is the room session coordinator: it resolves inbound
// room-scoped events against the room document, commits mutations to
// the store and pushes the resulting notifications through the hub.
type RoomService interface {
	// CreateRoom allocates a new room with a store-unique code, no
	// members and no host.
	CreateRoom(ctx context.Context, username string) (*domain.Room, error)

	// ValidateRoom reports whether the room exists and has space:
	// nil, ErrRoomNotFound or ErrRoomFull.
	ValidateRoom(ctx context.Context, code string) error

	// HandleJoinRoom joins (or reconnects) a connection to a room.
	HandleJoinRoom(ctx context.Context, c *hub.Client, roomCode, username string) error

	// HandleSendMessage appends a chat message and fans it out.
	HandleSendMessage(ctx context.Context, c *hub.Client, text string) error

	// HandleHostAction performs a host-privileged action.
	HandleHostAction(ctx context.Context, c *hub.Client, action string, payload json.RawMessage) error

	// HandleDisconnect marks the member disconnected; eviction is left
	// to the sweeper so a brief network blip does not destroy state.
	HandleDisconnect(ctx context.Context, c *hub.Client) error
}

// Broadcaster is the slice of the hub the coordinator and the sweeper
// depend on. *hub.Hub satisfies it.
type Broadcaster interface {
	JoinRoom(c *hub.Client, roomCode string)
	LeaveRoom(c *hub.Client, roomCode string)
	CloseRoom(roomCode string)
	BroadcastToRoom(roomCode string, payload interface{}, exclude string) error
}
