package lockmgr

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// keyLock is a context aware mutex for a single key.
// refs counts holders and waiters, the entry is dropped from the map at zero.
type keyLock struct {
	token chan struct{} // holds one element while locked
	refs  int           // guarded by the map bucket (only changed inside Compute)

	mu    sync.Mutex
	owner string
}

// KeyLocker is a process local ILockManager with one lock per key.
type KeyLocker struct {
	locks *xsync.MapOf[string, *keyLock]
}

// NewKeyLocker creates a process local lock manager with one lock per key.
func NewKeyLocker() *KeyLocker {
	return &KeyLocker{
		locks: xsync.NewMapOf[string, *keyLock](),
	}
}

func (kl *KeyLocker) AcquireLock(ctx context.Context, key string) (string, error) {
	l, _ := kl.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			old = &keyLock{token: make(chan struct{}, 1)}
		}
		old.refs++
		return old, false
	})

	select {
	case l.token <- struct{}{}:
		ownerID := uuid.NewString()
		l.mu.Lock()
		l.owner = ownerID
		l.mu.Unlock()
		return ownerID, nil
	case <-ctx.Done():
		kl.release(key)
		return "", ctx.Err()
	}
}

func (kl *KeyLocker) ReleaseLock(key string, ownerID string) bool {
	l, ok := kl.locks.Load(key)
	if !ok {
		return true
	}

	// Check if the lock is owned by the caller
	l.mu.Lock()
	if l.owner != ownerID || ownerID == "" {
		l.mu.Unlock()
		return false
	}
	l.owner = ""
	l.mu.Unlock()

	<-l.token
	kl.release(key)
	return true
}

// Lock acquires the lock for key and returns a function releasing it.
func (kl *KeyLocker) Lock(ctx context.Context, key string) (unlock func(), err error) {
	ownerID, err := kl.AcquireLock(ctx, key)
	if err != nil {
		return nil, err
	}
	return func() { kl.ReleaseLock(key, ownerID) }, nil
}

// Len returns the number of keys that are currently locked or waited for.
func (kl *KeyLocker) Len() int {
	return kl.locks.Size()
}

// release drops one reference and removes the entry when nobody uses it anymore
func (kl *KeyLocker) release(key string) {
	kl.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			return old, true
		}
		old.refs--
		return old, old.refs <= 0
	})
}
