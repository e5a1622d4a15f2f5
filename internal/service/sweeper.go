package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aFirmae/Scribe/internal/audit"
	"github.com/aFirmae/Scribe/internal/cache"
	"github.com/aFirmae/Scribe/internal/config"
	"github.com/aFirmae/Scribe/internal/domain"
	"github.com/aFirmae/Scribe/internal/log"
	"github.com/aFirmae/Scribe/internal/repository"
)

// Sweeper is the periodic background pass over room documents. It
// evicts members whose disconnect outlived the grace period, re-elects
// hosts, deletes emptied rooms, and reclaims rooms idle past the TTL.
//
// There are no per-member timers: each tick evaluates elapsed time
// against stored timestamps, which keeps fast reconnects free of
// timer-cancellation races and makes ticks idempotent.
type Sweeper struct {
	repo         repository.RoomRepository
	cache        cache.RoomCache
	hub          Broadcaster
	grace        time.Duration
	interval     time.Duration
	idleTTL      time.Duration
	reapInterval time.Duration
	now          func() time.Time
}

func NewSweeper(
	repo repository.RoomRepository,
	roomCache cache.RoomCache,
	b Broadcaster,
	cfg config.RoomConfig,
) *Sweeper {
	return &Sweeper{
		repo:         repo,
		cache:        roomCache,
		hub:          b,
		grace:        cfg.GracePeriod,
		interval:     cfg.SweepInterval,
		idleTTL:      cfg.IdleTTL,
		reapInterval: cfg.ReapInterval,
		now:          time.Now,
	}
}

// Run ticks until the context is cancelled. Grace sweeps and idle
// reclamation run on independent intervals.
func (s *Sweeper) Run(ctx context.Context) error {
	sweep := time.NewTicker(s.interval)
	defer sweep.Stop()
	reap := time.NewTicker(s.reapInterval)
	defer reap.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C:
			if err := s.Sweep(ctx); err != nil {
				log.L().Error().Err(err).Msg("grace sweep failed")
			}
		case <-reap.C:
			if err := s.ReapIdle(ctx); err != nil {
				log.L().Error().Err(err).Msg("idle reclamation failed")
			}
		}
	}
}

// Sweep evicts expired disconnected members from every room that has
// any. A failure on one room is logged and does not abort the others.
func (s *Sweeper) Sweep(ctx context.Context) error {
	rooms, err := s.repo.FindWithDisconnected(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rooms with disconnected members: %w", err)
	}

	for i := range rooms {
		if err := s.sweepRoom(ctx, &rooms[i]); err != nil {
			log.L().Error().Err(err).Str(log.FieldRoomCode, rooms[i].RoomCode).Msg("room sweep failed, will retry next tick")
		}
	}
	return nil
}

func (s *Sweeper) sweepRoom(ctx context.Context, room *domain.Room) error {
	now := s.now()
	code := room.RoomCode

	var expired []string
	for _, m := range room.Members {
		if m.Status == domain.MemberDisconnected && now.Sub(m.LastSeen) >= s.grace {
			expired = append(expired, m.Username)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	if err := s.repo.RemoveExpiredMembers(ctx, code, expired); err != nil {
		return err
	}
	s.invalidate(ctx, code)

	updated, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil
		}
		return err
	}

	if len(updated.Members) == 0 {
		if err := s.repo.Delete(ctx, code); err != nil {
			return err
		}
		s.invalidate(ctx, code)
		s.hub.CloseRoom(code)
		audit.Log(ctx, audit.ActionDeleteRoom, code, "room emptied by grace expiry")
		return nil
	}

	if updated.HostMember() == nil {
		if err := s.electHost(ctx, updated); err != nil {
			return err
		}
	}

	// Only announce members that are actually gone: someone who
	// reconnected between the snapshot and the pull is still here.
	for _, username := range expired {
		if updated.MemberByUsername(username) != nil {
			continue
		}
		s.hub.BroadcastToRoom(code, domain.NewSystemMessage(
			fmt.Sprintf("%s was removed due to inactivity.", username)), "")
		audit.LogWithDetail(ctx, audit.ActionEvictMember, code, username, "member evicted after grace expiry")
	}

	s.hub.BroadcastToRoom(code, &domain.UpdateUserListMessage{
		Type:  domain.EventUpdateUserList,
		Users: updated.Roster(),
	}, "")

	return nil
}

// electHost installs a replacement host: the first remaining active
// member in roster order, or the first member when none are active.
func (s *Sweeper) electHost(ctx context.Context, room *domain.Room) error {
	var successor *domain.Member
	for i := range room.Members {
		if room.Members[i].Status == domain.MemberActive {
			successor = &room.Members[i]
			break
		}
	}
	if successor == nil {
		successor = &room.Members[0]
	}

	swapped, err := s.repo.SwapHostSession(ctx, room.RoomCode, room.HostSession, successor.SessionHandle)
	if err != nil {
		return err
	}
	if !swapped {
		// Lost the race to a concurrent reconnect of the old host.
		return nil
	}

	room.HostSession = successor.SessionHandle

	s.hub.BroadcastToRoom(room.RoomCode, &domain.NewHostMessage{
		Type: domain.EventNewHost,
		Sid:  successor.SessionHandle,
	}, "")
	s.hub.BroadcastToRoom(room.RoomCode, domain.NewSystemMessage(
		fmt.Sprintf("%s is now the host.", successor.Username)), "")

	audit.LogWithDetail(ctx, audit.ActionHostTransfer, room.RoomCode, successor.Username, "host re-elected after grace expiry")
	return nil
}

// ReapIdle deletes rooms whose last activity is older than the idle
// TTL, regardless of member presence.
func (s *Sweeper) ReapIdle(ctx context.Context) error {
	cutoff := s.now().Add(-s.idleTTL)

	rooms, err := s.repo.FindIdleSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list idle rooms: %w", err)
	}

	for i := range rooms {
		code := rooms[i].RoomCode

		s.hub.BroadcastToRoom(code, &domain.RoomDeletedMessage{
			Type:    domain.EventRoomDeleted,
			Message: "Room closed due to inactivity.",
		}, "")

		if err := s.repo.Delete(ctx, code); err != nil {
			log.L().Error().Err(err).Str(log.FieldRoomCode, code).Msg("failed to reap idle room")
			continue
		}
		s.invalidate(ctx, code)
		s.hub.CloseRoom(code)
		audit.Log(ctx, audit.ActionDeleteRoom, code, "room reclaimed after idle timeout")
	}
	return nil
}

func (s *Sweeper) invalidate(ctx context.Context, roomCode string) {
	if err := s.cache.Delete(ctx, roomCode); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomCode, roomCode).Msg("failed to invalidate room cache")
	}
}
