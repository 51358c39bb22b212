package relay

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRoomTTL = 24 * time.Hour

// Store keeps room metadata as JSON in Redis with a TTL, plus an index set of
// rooms that are currently active.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultRoomTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) keyRoom(code string) string { return "room:" + strings.TrimSpace(code) }
func (s *Store) keyActive() string          { return "room:index:active" }

// CreateRoom allocates a fresh room code owned by clientID as white.
func (s *Store) CreateRoom(ctx context.Context, clientID string) (*RoomMeta, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrInvalidArgs
	}
	now := time.Now().UTC()
	for attempt := 0; attempt < 5; attempt++ {
		code, err := codeGen()
		if err != nil {
			return nil, err
		}
		meta := &RoomMeta{
			Code:      code,
			State:     StateAwaitingOpponent,
			WhiteID:   clientID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		ok, err := s.rdb.SetNX(ctx, s.keyRoom(code), raw, s.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return meta, nil
		}
	}
	return nil, errf("could not allocate a room code")
}

// Join pairs clientID into the room as black, or re-attaches a known
// participant after a reconnect. The participant check and write run under
// WATCH so two joiners cannot both take the black side.
func (s *Store) Join(ctx context.Context, code, clientID string) (meta *RoomMeta, rejoined bool, err error) {
	code = strings.TrimSpace(code)
	if code == "" || strings.TrimSpace(clientID) == "" {
		return nil, false, ErrInvalidArgs
	}
	key := s.keyRoom(code)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, gerr := tx.Get(ctx, key).Bytes()
		if gerr == redis.Nil {
			return ErrRoomNotFound
		}
		if gerr != nil {
			return gerr
		}
		var m RoomMeta
		if uerr := json.Unmarshal(raw, &m); uerr != nil {
			return uerr
		}

		if m.HasParticipant(clientID) {
			rejoined = true
			if m.State == StateAbandoned {
				// A room with both seats filled resumes; a solo room goes
				// back to waiting for an opponent.
				if m.BlackID != "" {
					m.State = StateActive
				} else {
					m.State = StateAwaitingOpponent
				}
				m.UpdatedAt = time.Now().UTC()
				out, merr := json.Marshal(&m)
				if merr != nil {
					return merr
				}
				pipe := tx.TxPipeline()
				pipe.Set(ctx, key, out, s.ttl)
				if m.State == StateActive {
					pipe.SAdd(ctx, s.keyActive(), code)
					pipe.Expire(ctx, s.keyActive(), s.ttl)
				}
				if _, perr := pipe.Exec(ctx); perr != nil {
					return perr
				}
			}
			meta = &m
			return nil
		}
		if m.BlackID != "" {
			return ErrRoomFull
		}

		m.BlackID = clientID
		m.State = StateActive
		m.UpdatedAt = time.Now().UTC()
		out, merr := json.Marshal(&m)
		if merr != nil {
			return merr
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, out, s.ttl)
		pipe.SAdd(ctx, s.keyActive(), code)
		pipe.Expire(ctx, s.keyActive(), s.ttl)
		if _, perr := pipe.Exec(ctx); perr != nil {
			return perr
		}
		meta = &m
		return nil
	}, key)
	if err != nil {
		return nil, false, err
	}
	return meta, rejoined, nil
}

// LoadMeta returns the room, or (nil, nil) when it does not exist.
func (s *Store) LoadMeta(ctx context.Context, code string) (*RoomMeta, error) {
	raw, err := s.rdb.Get(ctx, s.keyRoom(code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m RoomMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateFEN records the latest declared position so a re-attaching client can
// be handed a snapshot.
func (s *Store) UpdateFEN(ctx context.Context, code, fen string) error {
	return s.mutate(ctx, code, func(m *RoomMeta) {
		m.FEN = fen
	})
}

// SetState moves the room through its lifecycle and maintains the active
// index.
func (s *Store) SetState(ctx context.Context, code string, state RoomState) error {
	if err := s.mutate(ctx, code, func(m *RoomMeta) { m.State = state }); err != nil {
		return err
	}
	if state == StateActive {
		if err := s.rdb.SAdd(ctx, s.keyActive(), code).Err(); err != nil {
			return err
		}
		return s.rdb.Expire(ctx, s.keyActive(), s.ttl).Err()
	}
	return s.rdb.SRem(ctx, s.keyActive(), code).Err()
}

// ActiveCount reports the number of rooms in the active index.
func (s *Store) ActiveCount(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, s.keyActive()).Result()
}

func (s *Store) mutate(ctx context.Context, code string, fn func(*RoomMeta)) error {
	key := s.keyRoom(strings.TrimSpace(code))
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var m RoomMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		fn(&m)
		m.UpdatedAt = time.Now().UTC()
		out, err := json.Marshal(&m)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, out, s.ttl)
		_, err = pipe.Exec(ctx)
		return err
	}, key)
}

// codeGen returns `RM-` + 6 upper alnum.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return fmt.Sprintf("RM-%s", string(b)), nil
}
