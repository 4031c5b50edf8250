// Package lockmgr implements process local per-key locks.
//
// The store package uses it to serialize read-modify-write operations (array
// mutators, add/sub, nested set and delete) on the same row when key locking
// is enabled. Without it two concurrent mutations of the same row race and
// the last write wins.
//
// Core Functionality:
//   - Lock acquisition that can be cancelled through a context
//   - Owner IDs, so only the holder can release a lock
//   - Entries are removed as soon as no holder or waiter is left, the
//     number of tracked keys stays bounded by the number of concurrent users
//
// Implementation Approach:
//
//	Every key maps to a buffered channel of capacity one in an xsync.MapOf.
//	Sending into the channel acquires the lock, receiving releases it, which
//	lets a waiter give up when its context is done. A reference count,
//	changed only inside xsync's atomic Compute, decides when an entry can be
//	dropped from the map.
//
// Locks are not reentrant and not shared between processes.
//
// Example:
//
//	locker := lockmgr.NewKeyLocker()
//	unlock, err := locker.Lock(ctx, "users\x00alice")
//	if err != nil {
//	    return err
//	}
//	defer unlock()
package lockmgr
