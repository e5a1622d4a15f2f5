package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aFirmae/Scribe/internal/audit"
	"github.com/aFirmae/Scribe/internal/cache"
	"github.com/aFirmae/Scribe/internal/config"
	"github.com/aFirmae/Scribe/internal/domain"
	"github.com/aFirmae/Scribe/internal/hub"
	"github.com/aFirmae/Scribe/internal/log"
	"github.com/aFirmae/Scribe/internal/repository"
)

const maxCodeAttempts = 10

type roomService struct {
	repo     repository.RoomRepository
	cache    cache.RoomCache
	hub      Broadcaster
	grace    time.Duration
	cacheTTL time.Duration
	now      func() time.Time
}

func NewRoomService(
	repo repository.RoomRepository,
	roomCache cache.RoomCache,
	b Broadcaster,
	roomCfg config.RoomConfig,
	cacheTTL time.Duration,
) RoomService {
	return &roomService{
		repo:     repo,
		cache:    roomCache,
		hub:      b,
		grace:    roomCfg.GracePeriod,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (s *roomService) CreateRoom(ctx context.Context, username string) (*domain.Room, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}

	now := s.now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room := &domain.Room{
			RoomCode:      newRoomCode(),
			RoomName:      fmt.Sprintf("%s's Room", username),
			Members:       []domain.Member{},
			Messages:      []domain.ChatMessage{},
			IsCodeVisible: false,
			CreatedAt:     now,
			LastActiveAt:  now,
		}

		err := s.repo.Insert(ctx, room)
		if errors.Is(err, repository.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, err
		}

		audit.Log(ctx, audit.ActionCreateRoom, room.RoomCode, "room created")
		return room, nil
	}

	return nil, ErrCodeExhausted
}

func (s *roomService) ValidateRoom(ctx context.Context, code string) error {
	code = normalizeCode(code)
	if code == "" {
		return ErrRoomNotFound
	}

	room, err := s.cache.Get(ctx, code)
	if err != nil {
		room, err = s.repo.FindByCode(ctx, code)
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		if err := s.cache.Set(ctx, code, room, s.cacheTTL); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomCode, code).Msg("failed to cache room")
		}
	}

	if room.IsFull() {
		return ErrRoomFull
	}
	return nil
}

func (s *roomService) HandleJoinRoom(ctx context.Context, c *hub.Client, roomCode, username string) error {
	roomCode = normalizeCode(roomCode)
	username = strings.TrimSpace(username)
	if username == "" {
		c.SendMessage(domain.NewErrorMessage("Username is required"))
		return ErrEmptyUsername
	}

	room, err := s.repo.FindByCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			c.SendMessage(domain.NewErrorMessage("Room not found"))
			return ErrRoomNotFound
		}
		c.SendMessage(domain.NewErrorMessage("Failed to join room"))
		return err
	}

	now := s.now()
	existing := room.MemberByUsername(username)

	// A held username is only reclaimable while its member is riding
	// out the grace window; an active member keeps exclusive use of it.
	if existing != nil && existing.Status == domain.MemberActive {
		if room.IsFull() {
			c.SendMessage(domain.NewErrorMessage("Room is full"))
			return ErrRoomFull
		}
		c.SendMessage(domain.NewErrorMessage("Username is already taken"))
		return ErrUsernameTaken
	}

	if existing == nil && room.IsFull() {
		c.SendMessage(domain.NewErrorMessage("Room is full"))
		return ErrRoomFull
	}

	reconnect := existing != nil
	hostReturned := false

	if reconnect {
		// Identity continuity: rebind the member's record to the new
		// handle, then conditionally move host_session off the old
		// handle. The old handle is part of the CAS filter, so a racing
		// duplicate reconnect cannot reinstate a stale host handle.
		oldHandle := existing.SessionHandle
		if err := s.repo.RebindMember(ctx, roomCode, username, c.ID, now); err != nil {
			c.SendMessage(domain.NewErrorMessage("Failed to join room"))
			return err
		}
		if room.HostSession == oldHandle {
			swapped, err := s.repo.SwapHostSession(ctx, roomCode, oldHandle, c.ID)
			if err != nil {
				return err
			}
			hostReturned = swapped
		}
	} else {
		asHost := len(room.Members) == 0
		member := domain.Member{
			Username:      username,
			SessionHandle: c.ID,
			Status:        domain.MemberActive,
			LastSeen:      now,
		}
		if err := s.repo.AddMember(ctx, roomCode, member, asHost); err != nil {
			switch {
			case errors.Is(err, repository.ErrRoomFull):
				c.SendMessage(domain.NewErrorMessage("Room is full"))
				return ErrRoomFull
			case errors.Is(err, repository.ErrUsernameTaken):
				c.SendMessage(domain.NewErrorMessage("Username is already taken"))
				return ErrUsernameTaken
			case errors.Is(err, repository.ErrRoomNotFound):
				c.SendMessage(domain.NewErrorMessage("Room not found"))
				return ErrRoomNotFound
			default:
				c.SendMessage(domain.NewErrorMessage("Failed to join room"))
				return err
			}
		}
	}

	s.invalidate(ctx, roomCode)

	s.hub.JoinRoom(c, roomCode)
	c.Session.Join(roomCode, username)

	updated, err := s.repo.FindByCode(ctx, roomCode)
	if err != nil {
		c.SendMessage(domain.NewErrorMessage("Failed to join room"))
		return err
	}

	c.SendMessage(&domain.RoomInfoMessage{
		Type:          domain.EventRoomInfo,
		RoomName:      updated.RoomName,
		RoomCode:      updated.RoomCode,
		IsCodeVisible: updated.IsCodeVisible,
		IsHost:        updated.HostSession == c.ID,
		Username:      username,
	})
	c.SendMessage(&domain.ChatHistoryMessage{
		Type:     domain.EventChatHistory,
		Messages: updated.RecentMessages(domain.HistoryLimit),
	})

	// Tell only the joiner when the host is riding out a grace window.
	if hm := updated.HostMember(); hm != nil && hm.Status == domain.MemberDisconnected {
		if left := s.grace - now.Sub(hm.LastSeen); left > 0 {
			c.SendMessage(&domain.HostDisconnectGraceMessage{
				Type:        domain.EventHostDisconnectGrace,
				Username:    hm.Username,
				SecondsLeft: int(left.Seconds()),
			})
		}
	}

	notice := fmt.Sprintf("%s has joined the chat.", username)
	if reconnect {
		notice = fmt.Sprintf("%s has reconnected.", username)
	}
	s.hub.BroadcastToRoom(roomCode, domain.NewSystemMessage(notice), c.ID)

	if hostReturned {
		s.hub.BroadcastToRoom(roomCode, &domain.HostReturnedMessage{Type: domain.EventHostReturned}, "")
	}

	s.hub.BroadcastToRoom(roomCode, &domain.UpdateUserListMessage{
		Type:  domain.EventUpdateUserList,
		Users: updated.Roster(),
	}, "")

	return nil
}

func (s *roomService) HandleSendMessage(ctx context.Context, c *hub.Client, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	roomCode, _ := c.Session.Current()
	if roomCode == "" {
		c.SendMessage(domain.NewErrorMessage("You are not in this room"))
		return ErrNotMember
	}

	room, err := s.repo.FindByCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			c.SendMessage(domain.NewErrorMessage("Room not found"))
			return ErrRoomNotFound
		}
		return err
	}

	sender := room.MemberBySession(c.ID)
	if sender == nil {
		c.SendMessage(domain.NewErrorMessage("You are not in this room"))
		return ErrNotMember
	}

	now := s.now()
	msg := domain.ChatMessage{
		Username:  sender.Username,
		Message:   text,
		Timestamp: now.UTC().Format(time.RFC3339),
	}

	if err := s.repo.AppendMessage(ctx, roomCode, msg, now); err != nil {
		c.SendMessage(domain.NewErrorMessage("Failed to send message"))
		return err
	}

	// The is_own flag is per recipient, not part of the stored message:
	// everyone else gets false, the sender gets its own copy with true.
	out := domain.ReceiveMessageMessage{
		Type:      domain.EventReceiveMessage,
		Username:  msg.Username,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
	}
	s.hub.BroadcastToRoom(roomCode, &out, c.ID)

	own := out
	own.IsOwn = true
	c.SendMessage(&own)

	return nil
}

func (s *roomService) HandleHostAction(ctx context.Context, c *hub.Client, action string, payload json.RawMessage) error {
	roomCode, _ := c.Session.Current()
	if roomCode == "" {
		c.SendMessage(domain.NewErrorMessage("You are not in this room"))
		return ErrNotMember
	}

	room, err := s.repo.FindByCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			c.SendMessage(domain.NewErrorMessage("Room not found"))
			return ErrRoomNotFound
		}
		return err
	}

	if room.HostSession != c.ID {
		c.SendMessage(domain.NewErrorMessage("Only the host can perform this action"))
		return ErrNotHost
	}

	switch action {
	case domain.HostActionRenameRoom:
		return s.renameRoom(ctx, c, roomCode, payload)
	case domain.HostActionToggleCodeVis:
		return s.toggleCodeVisibility(ctx, c, roomCode, payload)
	case domain.HostActionDeleteRoom:
		return s.deleteRoom(ctx, roomCode)
	default:
		c.SendMessage(domain.NewErrorMessage("Unknown host action"))
		return fmt.Errorf("unknown host action %q", action)
	}
}

func (s *roomService) renameRoom(ctx context.Context, c *hub.Client, roomCode string, payload json.RawMessage) error {
	var newName string
	if err := json.Unmarshal(payload, &newName); err != nil {
		c.SendMessage(domain.NewErrorMessage("Invalid payload"))
		return err
	}

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil
	}

	if err := s.repo.SetRoomName(ctx, roomCode, newName); err != nil {
		c.SendMessage(domain.NewErrorMessage("Failed to rename room"))
		return err
	}
	s.invalidate(ctx, roomCode)

	s.hub.BroadcastToRoom(roomCode, &domain.RoomUpdatedMessage{
		Type:  domain.EventRoomUpdated,
		Key:   "room_name",
		Value: newName,
	}, "")
	s.hub.BroadcastToRoom(roomCode, domain.NewSystemMessage(
		fmt.Sprintf("Host changed the room name to %q", newName)), "")

	return nil
}

func (s *roomService) toggleCodeVisibility(ctx context.Context, c *hub.Client, roomCode string, payload json.RawMessage) error {
	var visible bool
	if err := json.Unmarshal(payload, &visible); err != nil {
		c.SendMessage(domain.NewErrorMessage("Invalid payload"))
		return err
	}

	if err := s.repo.SetCodeVisible(ctx, roomCode, visible); err != nil {
		c.SendMessage(domain.NewErrorMessage("Failed to update room"))
		return err
	}
	s.invalidate(ctx, roomCode)

	s.hub.BroadcastToRoom(roomCode, &domain.RoomUpdatedMessage{
		Type:  domain.EventRoomUpdated,
		Key:   "is_code_visible",
		Value: visible,
	}, "")

	return nil
}

func (s *roomService) deleteRoom(ctx context.Context, roomCode string) error {
	s.hub.BroadcastToRoom(roomCode, &domain.RoomDeletedMessage{
		Type:    domain.EventRoomDeleted,
		Message: "The host has closed this room.",
	}, "")

	if err := s.repo.Delete(ctx, roomCode); err != nil {
		return err
	}
	s.invalidate(ctx, roomCode)
	s.hub.CloseRoom(roomCode)

	audit.Log(ctx, audit.ActionDeleteRoom, roomCode, "room closed by host")
	return nil
}

func (s *roomService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	roomCode, username := c.Session.Current()
	if roomCode == "" {
		// The registry is advisory; the store stays authoritative for
		// membership. A handle the store no longer knows was already
		// rebound or evicted and needs nothing.
		room, err := s.repo.FindBySession(ctx, c.ID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return nil
			}
			return err
		}
		m := room.MemberBySession(c.ID)
		if m == nil {
			return nil
		}
		roomCode, username = room.RoomCode, m.Username
	}

	s.hub.LeaveRoom(c, roomCode)
	c.Session.Clear()

	now := s.now()
	if err := s.repo.MarkDisconnected(ctx, roomCode, username, now); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil
		}
		return err
	}

	room, err := s.repo.FindByCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil
		}
		return err
	}

	if room.HostSession == c.ID {
		s.hub.BroadcastToRoom(roomCode, &domain.HostDisconnectGraceMessage{
			Type:        domain.EventHostDisconnectGrace,
			Username:    username,
			SecondsLeft: int(s.grace.Seconds()),
		}, c.ID)
	}

	s.hub.BroadcastToRoom(roomCode, &domain.UpdateUserListMessage{
		Type:  domain.EventUpdateUserList,
		Users: room.Roster(),
	}, c.ID)

	return nil
}

func (s *roomService) invalidate(ctx context.Context, roomCode string) {
	if err := s.cache.Delete(ctx, roomCode); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomCode, roomCode).Msg("failed to invalidate room cache")
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
