package domain

import (
	"time"
)

// RoomCapacity is the maximum number of members (active or
// disconnected) a room may hold.
const RoomCapacity = 5

// HistoryLimit bounds the chat history delivered to a joining client.
// The stored history is unbounded; only delivery is windowed.
const HistoryLimit = 50

// Member status values.
const (
	MemberActive       = "active"
	MemberDisconnected = "disconnected"
)

// Room is the durable document for one chat room. Membership identity
// is the username; the session handle is rebound on reconnect.
type Room struct {
	RoomCode      string        `bson:"room_code" json:"room_code"`
	RoomName      string        `bson:"room_name" json:"room_name"`
	HostSession   string        `bson:"host_session,omitempty" json:"host_session,omitempty"`
	Members       []Member      `bson:"members" json:"members"`
	IsCodeVisible bool          `bson:"is_code_visible" json:"is_code_visible"`
	Messages      []ChatMessage `bson:"messages" json:"messages"`
	CreatedAt     time.Time     `bson:"created_at" json:"created_at"`
	LastActiveAt  time.Time     `bson:"last_active_at" json:"last_active_at"`
}

// Member is one entry of Room.Members, unique by username.
type Member struct {
	Username      string    `bson:"username" json:"username"`
	SessionHandle string    `bson:"session_handle" json:"session_handle"`
	Status        string    `bson:"status" json:"status"`
	LastSeen      time.Time `bson:"last_seen" json:"last_seen"`
}

// ChatMessage is one persisted chat entry. Timestamp is RFC 3339 in UTC.
type ChatMessage struct {
	Username  string `bson:"username" json:"username"`
	Message   string `bson:"message" json:"message"`
	Timestamp string `bson:"timestamp" json:"timestamp"`
}

// RosterEntry is the per-member view sent to clients.
type RosterEntry struct {
	Username string `json:"username"`
	IsHost   bool   `json:"is_host"`
	IsActive bool   `json:"is_active"`
}

// MemberByUsername returns the member with the given username, or nil.
func (r *Room) MemberByUsername(username string) *Member {
	for i := range r.Members {
		if r.Members[i].Username == username {
			return &r.Members[i]
		}
	}
	return nil
}

// MemberBySession returns the member currently bound to the given
// session handle, or nil.
func (r *Room) MemberBySession(handle string) *Member {
	for i := range r.Members {
		if r.Members[i].SessionHandle == handle {
			return &r.Members[i]
		}
	}
	return nil
}

// HostMember returns the member holding the host session, or nil.
// During the grace window after a host disconnect the returned member
// may have a disconnected status.
func (r *Room) HostMember() *Member {
	if r.HostSession == "" {
		return nil
	}
	return r.MemberBySession(r.HostSession)
}

// IsFull reports whether the room is at capacity, counting both active
// and disconnected members.
func (r *Room) IsFull() bool {
	return len(r.Members) >= RoomCapacity
}

// Roster builds the client-facing member list in join order.
func (r *Room) Roster() []RosterEntry {
	roster := make([]RosterEntry, 0, len(r.Members))
	for _, m := range r.Members {
		roster = append(roster, RosterEntry{
			Username: m.Username,
			IsHost:   m.SessionHandle == r.HostSession,
			IsActive: m.Status == MemberActive,
		})
	}
	return roster
}

// RecentMessages returns the chronologically-last suffix of the stored
// history, at most limit entries.
func (r *Room) RecentMessages(limit int) []ChatMessage {
	if limit <= 0 || len(r.Messages) <= limit {
		return r.Messages
	}
	return r.Messages[len(r.Messages)-limit:]
}
