package session

import (
	"context"
	"sync"
)

// Store is the process-wide session registry.
//
// Get returns nil without error for an unknown id so callers can distinguish
// "absent" from a backend failure; ending an already-ended session stays a
// no-op that way.
type Store interface {
	// GetOrCreate resolves a session by id, creating a fresh one (with a
	// generated id when sessionID is empty) if none exists.
	GetOrCreate(ctx context.Context, ownerID, sessionID string) (*Session, error)

	Get(ctx context.Context, sessionID string) (*Session, error)

	Save(ctx context.Context, sess *Session) error

	Delete(ctx context.Context, sessionID string) error

	// Lock serializes turns of the same session. It blocks until the
	// session lock is held and returns the unlock function. Turns of
	// different sessions never contend.
	Lock(sessionID string) func()
}

// lockTable hands out one mutex per session id. Mutexes are never removed;
// the table is bounded by the number of distinct sessions seen by the
// process, which the deployment recycles with the process itself.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) acquire(sessionID string) func() {
	t.mu.Lock()
	l, ok := t.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[sessionID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
