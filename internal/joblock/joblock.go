// Package joblock provides mutual exclusion for writers of the same report
// job. Local covers a single process; Redis covers replicas sharing a
// database.
package joblock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("joblock: key is locked")

// ErrNotHeld is returned when refreshing or releasing a lock that expired or
// was taken over.
var ErrNotHeld = errors.New("joblock: lock not held")

// Locker hands out exclusive, expiring locks.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held key. Holders should Refresh before ttl elapses.
type Lock interface {
	Key() string
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Compile-time checks.
var (
	_ Locker = (*Local)(nil)
	_ Lock   = (*localLock)(nil)
)

// ---------------------------------------------------------------------------
// Local
// ---------------------------------------------------------------------------

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocal returns an empty in-process Locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]localEntry), clock: time.Now}
}

// TryAcquire takes key unless a live holder owns it.
func (l *Local) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLock{owner: l, key: key, token: token}, nil
}

type localLock struct {
	owner *Local
	key   string
	token string
}

func (k *localLock) Key() string { return k.key }

func (k *localLock) Refresh(_ context.Context, ttl time.Duration) error {
	l := k.owner
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.held[k.key]
	if !ok || e.token != k.token {
		return ErrNotHeld
	}
	e.expires = l.clock().Add(ttl)
	l.held[k.key] = e
	return nil
}

func (k *localLock) Release(context.Context) error {
	l := k.owner
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.held[k.key]
	if !ok || e.token != k.token {
		return ErrNotHeld
	}
	delete(l.held, k.key)
	return nil
}
