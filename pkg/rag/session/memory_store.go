package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process memory. Sessions never expire on
// their own; they live until an explicit end call or process restart.
type MemoryStore struct {
	cache *cache.Cache
	locks *lockTable
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, 0),
		locks: newLockTable(),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, ownerID, sessionID string) (*Session, error) {
	if sessionID != "" {
		if v, ok := s.cache.Get(sessionID); ok {
			return v.(*Session), nil
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
	s.cache.Set(sessionID, sess, cache.NoExpiration)
	return sess, nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	if v, ok := s.cache.Get(sessionID); ok {
		return v.(*Session), nil
	}
	return nil, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	s.cache.Set(sess.ID, sess, cache.NoExpiration)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.cache.Delete(sessionID)
	return nil
}

func (s *MemoryStore) Lock(sessionID string) func() {
	return s.locks.acquire(sessionID)
}
