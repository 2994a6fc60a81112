package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tutorhub/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	roomCodeKeyPrefix    = "room_code:"
	sessionEventsPrefix  = "session_events:"
	sessionEventsPattern = sessionEventsPrefix + "*"
)

// Cache is the redis side of the store: a read-through cache for room code
// lookups and the pub/sub channel that carries committed events.
type Cache interface {
	CacheRoomCode(ctx context.Context, code, sessionID string, ttl time.Duration) error
	CachedRoomCode(ctx context.Context, code string) (string, error)
	EvictRoomCode(ctx context.Context, code string) error
	PublishEvent(ctx context.Context, event models.Event) error
}

// SessionEventsChannel is the pub/sub channel carrying events of one session.
func SessionEventsChannel(sessionID string) string {
	return sessionEventsPrefix + sessionID
}

// CacheRoomCode remembers which session a code resolves to. Codes are never
// reassigned, so a cached entry can only go stale by the session being purged.
func (s *Service) CacheRoomCode(ctx context.Context, code, sessionID string, ttl time.Duration) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Set(ctx, roomCodeKeyPrefix+code, sessionID, ttl).Err()
}

// CachedRoomCode returns the cached session id, or "" on a miss.
func (s *Service) CachedRoomCode(ctx context.Context, code string) (string, error) {
	if s.Redis == nil {
		return "", nil
	}
	sessionID, err := s.Redis.Get(ctx, roomCodeKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

func (s *Service) EvictRoomCode(ctx context.Context, code string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Del(ctx, roomCodeKeyPrefix+code).Err()
}

// PublishEvent publishes an event on the session's Redis channel.
func (s *Service) PublishEvent(ctx context.Context, event models.Event) error {
	if s.Redis == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, SessionEventsChannel(event.SessionID), payload).Err()
}

// SubscribeToSessionEvents subscribes to the event channels of all sessions.
// It returns nil when redis is not configured.
func (s *Service) SubscribeToSessionEvents(ctx context.Context) *redis.PubSub {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.PSubscribe(ctx, sessionEventsPattern)
}
