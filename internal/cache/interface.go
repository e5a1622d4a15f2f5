package cache

import (
	"context"
	"time"

	"github.com/aFirmae/Scribe/internal/domain"
)

// RoomCache is an advisory read-through cache for room documents on the
// HTTP lookup path. It is never authoritative for membership capacity
// or host identity; the websocket join path always reads the store.
type RoomCache interface {
	Get(ctx context.Context, code string) (*domain.Room, error)
	Set(ctx context.Context, code string, room *domain.Room, ttl time.Duration) error
	Delete(ctx context.Context, codes ...string) error
	Close() error
}
