package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aFirmae/Scribe/internal/cache"
	"github.com/aFirmae/Scribe/internal/config"
	"github.com/aFirmae/Scribe/internal/domain"
	"github.com/aFirmae/Scribe/internal/hub"
	"github.com/aFirmae/Scribe/internal/repository"
)

// fakeRepo is an in-memory RoomRepository mirroring the store's atomic
// per-document update semantics (capacity/username guards, host CAS).
type fakeRepo struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rooms: make(map[string]*domain.Room)}
}

func cloneRoom(r *domain.Room) *domain.Room {
	c := *r
	c.Members = append([]domain.Member(nil), r.Members...)
	c.Messages = append([]domain.ChatMessage(nil), r.Messages...)
	return &c
}

func (f *fakeRepo) Insert(_ context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[room.RoomCode]; ok {
		return repository.ErrDuplicateCode
	}
	f.rooms[room.RoomCode] = cloneRoom(room)
	return nil
}

func (f *fakeRepo) FindByCode(_ context.Context, code string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (f *fakeRepo) FindBySession(_ context.Context, handle string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if room.MemberBySession(handle) != nil {
			return cloneRoom(room), nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (f *fakeRepo) Delete(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, code)
	return nil
}

func (f *fakeRepo) AddMember(_ context.Context, code string, m domain.Member, asHost bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	if room.MemberByUsername(m.Username) != nil {
		return repository.ErrUsernameTaken
	}
	if len(room.Members) >= domain.RoomCapacity {
		return repository.ErrRoomFull
	}
	room.Members = append(room.Members, m)
	room.LastActiveAt = m.LastSeen
	if asHost {
		room.HostSession = m.SessionHandle
	}
	return nil
}

func (f *fakeRepo) RebindMember(_ context.Context, code, username, handle string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	m := room.MemberByUsername(username)
	if m == nil {
		return repository.ErrRoomNotFound
	}
	m.SessionHandle = handle
	m.Status = domain.MemberActive
	m.LastSeen = at
	room.LastActiveAt = at
	return nil
}

func (f *fakeRepo) MarkDisconnected(_ context.Context, code, username string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	m := room.MemberByUsername(username)
	if m == nil {
		return repository.ErrRoomNotFound
	}
	m.Status = domain.MemberDisconnected
	m.LastSeen = at
	return nil
}

func (f *fakeRepo) RemoveExpiredMembers(_ context.Context, code string, usernames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return nil
	}
	named := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		named[u] = true
	}
	kept := room.Members[:0]
	for _, m := range room.Members {
		if named[m.Username] && m.Status == domain.MemberDisconnected {
			continue
		}
		kept = append(kept, m)
	}
	room.Members = kept
	return nil
}

func (f *fakeRepo) SwapHostSession(_ context.Context, code, oldHandle, newHandle string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok || room.HostSession != oldHandle {
		return false, nil
	}
	room.HostSession = newHandle
	return true, nil
}

func (f *fakeRepo) AppendMessage(_ context.Context, code string, msg domain.ChatMessage, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	room.Messages = append(room.Messages, msg)
	room.LastActiveAt = at
	return nil
}

func (f *fakeRepo) SetRoomName(_ context.Context, code, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	room.RoomName = name
	return nil
}

func (f *fakeRepo) SetCodeVisible(_ context.Context, code string, visible bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	room.IsCodeVisible = visible
	return nil
}

func (f *fakeRepo) FindWithDisconnected(_ context.Context) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Room
	for _, room := range f.rooms {
		for _, m := range room.Members {
			if m.Status == domain.MemberDisconnected {
				out = append(out, *cloneRoom(room))
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) FindIdleSince(_ context.Context, cutoff time.Time) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Room
	for _, room := range f.rooms {
		if room.LastActiveAt.Before(cutoff) {
			out = append(out, *cloneRoom(room))
		}
	}
	return out, nil
}

func (f *fakeRepo) Close(context.Context) error { return nil }

var _ repository.RoomRepository = (*fakeRepo)(nil)

// fakeCache is a TTL-less in-memory RoomCache.
type fakeCache struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
}

func newFakeCache() *fakeCache {
	return &fakeCache{rooms: make(map[string]*domain.Room)}
}

func (f *fakeCache) Get(_ context.Context, code string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cloneRoom(room), nil
}

func (f *fakeCache) Set(_ context.Context, code string, room *domain.Room, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[code] = cloneRoom(room)
	return nil
}

func (f *fakeCache) Delete(_ context.Context, codes ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, code := range codes {
		delete(f.rooms, code)
	}
	return nil
}

func (f *fakeCache) Close() error { return nil }

var _ cache.RoomCache = (*fakeCache)(nil)

// fakeBroadcaster records room-scoped fan-out instead of delivering it.
type broadcastRec struct {
	room    string
	event   string
	payload interface{}
	exclude string
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastRec
	closed []string
}

func (b *fakeBroadcaster) JoinRoom(*hub.Client, string)  {}
func (b *fakeBroadcaster) LeaveRoom(*hub.Client, string) {}

func (b *fakeBroadcaster) CloseRoom(roomCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, roomCode)
}

func (b *fakeBroadcaster) BroadcastToRoom(roomCode string, payload interface{}, exclude string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastRec{
		room:    roomCode,
		event:   eventType(payload),
		payload: payload,
		exclude: exclude,
	})
	return nil
}

func (b *fakeBroadcaster) ofType(event string) []broadcastRec {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastRec
	for _, e := range b.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (b *fakeBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
	b.closed = nil
}

var _ Broadcaster = (*fakeBroadcaster)(nil)

// eventType extracts the wire "type" field from a payload struct.
func eventType(payload interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	var base domain.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return ""
	}
	return base.Type
}

// newTestClient builds a hub client detached from any hub or socket;
// frames queued on Send are inspected directly.
func newTestClient(id string) *hub.Client {
	return hub.NewClient(id, nil, nil, config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	})
}

// frames drains and decodes everything queued on the client.
func frames(c *hub.Client) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case data := <-c.Send:
			var m map[string]interface{}
			if err := json.Unmarshal(data, &m); err == nil {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func framesOfType(c *hub.Client, event string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, f := range frames(c) {
		if f["type"] == event {
			out = append(out, f)
		}
	}
	return out
}
