package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chat:session:"

// RedisStore persists sessions in Redis with a rolling TTL, so abandoned
// sessions are garbage-collected by the store instead of accumulating in
// process memory. Per-session locking is process-local; deployments running
// multiple replicas must pin a session to one replica.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	locks  *lockTable
}

var _ Store = &RedisStore{}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		locks:  newLockTable(),
	}
}

func (s *RedisStore) GetOrCreate(ctx context.Context, ownerID, sessionID string) (*Session, error) {
	if sessionID != "" {
		sess, err := s.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now()
	sess := &Session{
		ID:        sessionID,
		OwnerID:   ownerID,
		History:   []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sess.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) Lock(sessionID string) func() {
	return s.locks.acquire(sessionID)
}
