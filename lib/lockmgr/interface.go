package lockmgr

import "context"

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock blocks until the lock for the given key is acquired or ctx is done.
	// It returns an owner ID that is required to release the lock.
	AcquireLock(ctx context.Context, key string) (ownerID string, err error)

	// ReleaseLock releases the lock for the given key.
	// Return a boolean indicating whether the lock was released.
	// The method will also return true if the lock did not exist.
	ReleaseLock(key string, ownerID string) (ok bool)
}
