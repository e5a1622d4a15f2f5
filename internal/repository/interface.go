package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aFirmae/Scribe/internal/domain"
)

var (
	// ErrRoomNotFound is returned when no room matches the filter.
	ErrRoomNotFound = errors.New("room not found")
	// ErrDuplicateCode is returned when inserting a room whose code
	// collides with an existing one. Callers retry code generation.
	ErrDuplicateCode = errors.New("room code already exists")
	// ErrRoomFull is returned when a conditional member push found the
	// room at capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrUsernameTaken is returned when a conditional member push found
	// the username already bound to a member.
	ErrUsernameTaken = errors.New("username is already taken")
)

// RoomRepository is the document-store contract consumed by the room
// coordinator. Every mutation is a single atomic per-document update so
// concurrent events on the same room cannot lose entries.
type RoomRepository interface {
	// Insert stores a new room document. Fails with ErrDuplicateCode on
	// a room-code collision.
	Insert(ctx context.Context, room *domain.Room) error

	// FindByCode returns the room with the given code.
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// FindBySession returns the room containing a member bound to the
	// given session handle.
	FindBySession(ctx context.Context, handle string) (*domain.Room, error)

	// Delete removes the room document unconditionally.
	Delete(ctx context.Context, code string) error

	// AddMember appends a member, guarded so the push cannot exceed
	// capacity or duplicate a username. When asHost is set the member's
	// handle is installed as host_session in the same update.
	AddMember(ctx context.Context, code string, m domain.Member, asHost bool) error

	// RebindMember points the member with the given username at a new
	// session handle, marks it active and refreshes last_seen.
	RebindMember(ctx context.Context, code, username, handle string, at time.Time) error

	// MarkDisconnected flips the member's status to disconnected and
	// stamps last_seen.
	MarkDisconnected(ctx context.Context, code, username string, at time.Time) error

	// RemoveExpiredMembers pulls the named members, matching only those
	// still disconnected so a racing reconnect survives the sweep.
	RemoveExpiredMembers(ctx context.Context, code string, usernames []string) error

	// SwapHostSession reassigns host_session from oldHandle to
	// newHandle. The old handle is part of the update filter, so a
	// stale caller loses the race instead of resurrecting an old host.
	// Reports whether the swap was applied.
	SwapHostSession(ctx context.Context, code, oldHandle, newHandle string) (bool, error)

	// AppendMessage pushes a chat message and refreshes last_active_at.
	AppendMessage(ctx context.Context, code string, msg domain.ChatMessage, at time.Time) error

	// SetRoomName updates the display name.
	SetRoomName(ctx context.Context, code, name string) error

	// SetCodeVisible updates the code-visibility flag.
	SetCodeVisible(ctx context.Context, code string, visible bool) error

	// FindWithDisconnected returns all rooms holding at least one
	// disconnected member.
	FindWithDisconnected(ctx context.Context) ([]domain.Room, error)

	// FindIdleSince returns rooms whose last_active_at is older than
	// the cutoff.
	FindIdleSince(ctx context.Context, cutoff time.Time) ([]domain.Room, error)

	// Close releases the underlying store connection.
	Close(ctx context.Context) error
}
