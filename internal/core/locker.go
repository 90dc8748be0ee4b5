package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=mocks/mock_locker.go -package=mocks -source=locker.go Lock,Locker

// Lock is a held approval lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serialises approvals across processes. Obtain does not wait: it
// returns ErrLockNotObtained when the key is held elsewhere.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

// LocalLocker is an in-process Locker for tests and single-instance deployments.
// Each obtain gets its own token, so a holder whose lock already expired
// cannot release the lock of the next holder.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localHold
	ttl  time.Duration
}

type localHold struct {
	token   string
	expires time.Time
}

func NewLocalLocker(ttl time.Duration) *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), ttl: ttl}
}

func (l *LocalLocker) Obtain(_ context.Context, key string) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if h, ok := l.held[key]; ok && (l.ttl <= 0 || now.Before(h.expires)) {
		return nil, ErrLockNotObtained
	}
	token := uuid.NewString()
	l.held[key] = localHold{token: token, expires: now.Add(l.ttl)}
	return &localLock{locker: l, key: key, token: token}, nil
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  string
	once   sync.Once
}

func (k *localLock) Release(context.Context) error {
	k.once.Do(func() {
		k.locker.mu.Lock()
		defer k.locker.mu.Unlock()
		if h, ok := k.locker.held[k.key]; ok && h.token == k.token {
			delete(k.locker.held, k.key)
		}
	})
	return nil
}
