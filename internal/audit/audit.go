package audit

import (
	"context"

	"github.com/aFirmae/Scribe/internal/log"
)

// Audit actions for the room coordinator.
const (
	ActionCreateRoom   = "room.create"
	ActionDeleteRoom   = "room.delete"
	ActionEvictMember  = "member.evict"
	ActionHostTransfer = "host.transfer"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit entry via the context logger.
func Log(ctx context.Context, action, roomCode, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldRoomCode, roomCode).
		Msg(msg)
}

// LogWithDetail emits an audit entry with an extra detail field.
func LogWithDetail(ctx context.Context, action, roomCode, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldRoomCode, roomCode).
		Str(FieldDetail, detail).
		Msg(msg)
}
