package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/lockmgr"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewLockManagerServerAdapter creates an adapter serving lock requests from a process local lock manager.
// Locks acquired with a lease are released automatically once the lease expires, so a
// client that disappears cannot block a key forever.
func NewLockManagerServerAdapter() IRPCServerAdapter {
	return &lockMgrServerAdapter{
		locks:  lockmgr.NewKeyLocker(),
		leases: xsync.NewMapOf[string, *lease](),
	}
}

type lease struct {
	owner string
	timer *time.Timer
}

type lockMgrServerAdapter struct {
	locks  *lockmgr.KeyLocker
	leases *xsync.MapOf[string, *lease]
}

func (a *lockMgrServerAdapter) Handle(ctx context.Context, req *common.Message) *common.Message {
	if req.Key == "" {
		return common.NewResponse(req.MsgType, db.InvalidArgument("rpc.lock", "empty lock key"))
	}

	switch req.MsgType {
	case common.MsgTLCKAcquire:
		owner, err := a.acquire(ctx, req.Key, req.WaitMs, req.LeaseMs)
		if errors.Is(err, context.DeadlineExceeded) {
			// not acquired in time, the client may try again
			return common.NewResponse(req.MsgType, nil)
		}
		resp := common.NewResponse(req.MsgType, err)
		resp.Ok = err == nil
		resp.Owner = owner
		return resp

	case common.MsgTLCKRelease:
		resp := common.NewResponse(req.MsgType, nil)
		resp.Ok = a.release(req.Key, req.Owner)
		return resp

	default:
		return common.NewErrorResponse(db.RetCUnsupportedOperation,
			fmt.Sprintf("lock adapter: unsupported message type: %s", req.MsgType))
	}
}

func (a *lockMgrServerAdapter) acquire(ctx context.Context, key string, waitMs, leaseMs int64) (string, error) {
	if waitMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(waitMs)*time.Millisecond)
		defer cancel()
	}

	owner, err := a.locks.AcquireLock(ctx, key)
	if err != nil {
		return "", err
	}

	if leaseMs > 0 {
		timer := time.AfterFunc(time.Duration(leaseMs)*time.Millisecond, func() {
			if a.dropLease(key, owner) {
				Logger.Warningf("lease of lock %q expired", key)
			}
			a.locks.ReleaseLock(key, owner)
		})
		a.leases.Store(key, &lease{owner: owner, timer: timer})
	}
	return owner, nil
}

func (a *lockMgrServerAdapter) release(key, owner string) bool {
	a.dropLease(key, owner)
	return a.locks.ReleaseLock(key, owner)
}

// dropLease stops and removes the lease of owner, it reports whether there was one
func (a *lockMgrServerAdapter) dropLease(key, owner string) (dropped bool) {
	a.leases.Compute(key, func(old *lease, loaded bool) (*lease, bool) {
		if loaded && old.owner == owner {
			old.timer.Stop()
			dropped = true
			return nil, true
		}
		return old, !loaded
	})
	return dropped
}
