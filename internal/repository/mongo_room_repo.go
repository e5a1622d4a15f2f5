package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aFirmae/Scribe/internal/config"
	"github.com/aFirmae/Scribe/internal/domain"
)

// MongoRoomRepository implements RoomRepository on a MongoDB
// collection, one document per room keyed by room_code.
type MongoRoomRepository struct {
	client    *mongo.Client
	rooms     *mongo.Collection
	opTimeout time.Duration
}

// NewMongoRoomRepository connects to MongoDB and ensures the unique
// room_code index exists.
func NewMongoRoomRepository(ctx context.Context, cfg config.MongoConfig) (*MongoRoomRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	rooms := client.Database(cfg.Database).Collection(cfg.Collection)

	_, err = rooms.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "room_code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room_code index: %w", err)
	}

	return &MongoRoomRepository{
		client:    client,
		rooms:     rooms,
		opTimeout: cfg.OpTimeout,
	}, nil
}

func (r *MongoRoomRepository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *MongoRoomRepository) Insert(ctx context.Context, room *domain.Room) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if _, err := r.rooms.InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

func (r *MongoRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	return r.findOne(ctx, bson.M{"room_code": code})
}

func (r *MongoRoomRepository) FindBySession(ctx context.Context, handle string) (*domain.Room, error) {
	return r.findOne(ctx, bson.M{"members.session_handle": handle})
}

func (r *MongoRoomRepository) findOne(ctx context.Context, filter bson.M) (*domain.Room, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var room domain.Room
	if err := r.rooms.FindOne(ctx, filter).Decode(&room); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

func (r *MongoRoomRepository) Delete(ctx context.Context, code string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if _, err := r.rooms.DeleteOne(ctx, bson.M{"room_code": code}); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

func (r *MongoRoomRepository) AddMember(ctx context.Context, code string, m domain.Member, asHost bool) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	// The capacity and username guards are part of the filter so two
	// racing joins cannot overfill the room or duplicate a name.
	capSlot := fmt.Sprintf("members.%d", domain.RoomCapacity-1)
	filter := bson.M{
		"room_code":        code,
		capSlot:            bson.M{"$exists": false},
		"members.username": bson.M{"$ne": m.Username},
	}

	set := bson.M{"last_active_at": m.LastSeen}
	if asHost {
		set["host_session"] = m.SessionHandle
	}
	update := bson.M{
		"$push": bson.M{"members": m},
		"$set":  set,
	}

	res, err := r.rooms.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	if res.MatchedCount == 0 {
		room, err := r.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		if room.MemberByUsername(m.Username) != nil {
			return ErrUsernameTaken
		}
		return ErrRoomFull
	}
	return nil
}

func (r *MongoRoomRepository) RebindMember(ctx context.Context, code, username, handle string, at time.Time) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	filter := bson.M{"room_code": code, "members.username": username}
	update := bson.M{"$set": bson.M{
		"members.$.session_handle": handle,
		"members.$.status":         domain.MemberActive,
		"members.$.last_seen":      at,
		"last_active_at":           at,
	}}

	res, err := r.rooms.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to rebind member: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *MongoRoomRepository) MarkDisconnected(ctx context.Context, code, username string, at time.Time) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	filter := bson.M{"room_code": code, "members.username": username}
	update := bson.M{"$set": bson.M{
		"members.$.status":    domain.MemberDisconnected,
		"members.$.last_seen": at,
	}}

	res, err := r.rooms.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark member disconnected: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *MongoRoomRepository) RemoveExpiredMembers(ctx context.Context, code string, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	// Match on status too: a member who reconnected after the sweep
	// snapshot was taken is active again and must survive the pull.
	update := bson.M{"$pull": bson.M{"members": bson.M{
		"username": bson.M{"$in": usernames},
		"status":   domain.MemberDisconnected,
	}}}

	if _, err := r.rooms.UpdateOne(ctx, bson.M{"room_code": code}, update); err != nil {
		return fmt.Errorf("failed to remove expired members: %w", err)
	}
	return nil
}

func (r *MongoRoomRepository) SwapHostSession(ctx context.Context, code, oldHandle, newHandle string) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	filter := bson.M{"room_code": code, "host_session": oldHandle}
	update := bson.M{"$set": bson.M{"host_session": newHandle}}

	res, err := r.rooms.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to swap host session: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoRoomRepository) AppendMessage(ctx context.Context, code string, msg domain.ChatMessage, at time.Time) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"last_active_at": at},
	}

	res, err := r.rooms.UpdateOne(ctx, bson.M{"room_code": code}, update)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *MongoRoomRepository) SetRoomName(ctx context.Context, code, name string) error {
	return r.setField(ctx, code, "room_name", name)
}

func (r *MongoRoomRepository) SetCodeVisible(ctx context.Context, code string, visible bool) error {
	return r.setField(ctx, code, "is_code_visible", visible)
}

func (r *MongoRoomRepository) setField(ctx context.Context, code, field string, value interface{}) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.rooms.UpdateOne(ctx, bson.M{"room_code": code}, bson.M{"$set": bson.M{field: value}})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", field, err)
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *MongoRoomRepository) FindWithDisconnected(ctx context.Context) ([]domain.Room, error) {
	return r.findAll(ctx, bson.M{"members.status": domain.MemberDisconnected})
}

func (r *MongoRoomRepository) FindIdleSince(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	return r.findAll(ctx, bson.M{"last_active_at": bson.M{"$lt": cutoff}})
}

func (r *MongoRoomRepository) findAll(ctx context.Context, filter bson.M) ([]domain.Room, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	cursor, err := r.rooms.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer cursor.Close(ctx)

	var rooms []domain.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}
	return rooms, nil
}

func (r *MongoRoomRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
