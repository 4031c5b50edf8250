package client

import (
	"context"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/lockmgr"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/ValentinKolb/hkv/rpc/serializer"
	"github.com/ValentinKolb/hkv/rpc/transport"
)

const (
	defaultLockLease = 30 * time.Second
	defaultLockWait  = 5 * time.Second
)

// NewRPCLockMgr creates a lockmgr.ILockManager whose locks live on an RPC server,
// so they are shared by every process talking to that server.
// The function connects the transport.
func NewRPCLockMgr(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (lockmgr.ILockManager, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, db.DriverError("remote.lock", err)
	}

	return &rpcLockMgr{
		rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcLockMgr struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the lockmgr package in interface.go)
// --------------------------------------------------------------------------

// AcquireLock asks the server for the lock in rounds. The server waits at most one
// round before it answers, which keeps every request shorter than the transport timeout.
func (i *rpcLockMgr) AcquireLock(ctx context.Context, key string) (string, error) {
	lease := defaultLockLease
	if i.config.LockLeaseSecond > 0 {
		lease = time.Duration(i.config.LockLeaseSecond) * time.Second
	}

	for {
		wait := i.roundWait()
		if deadline, ok := ctx.Deadline(); ok {
			wait = min(wait, time.Until(deadline))
		}
		if wait <= 0 {
			return "", context.DeadlineExceeded
		}

		req := common.NewAcquireRequest(key, wait.Milliseconds(), lease.Milliseconds())
		resp, err := i.invokeRPCRequest(ctx, "remote.acquire", req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", err
		}
		if resp.Ok {
			return resp.Owner, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

func (i *rpcLockMgr) ReleaseLock(key string, ownerID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), i.roundWait())
	defer cancel()

	resp, err := i.invokeRPCRequest(ctx, "remote.release", common.NewReleaseRequest(key, ownerID))
	if err != nil {
		Logger.Errorf("failed to release lock %q: %v", key, err)
		return false
	}
	return resp.Ok
}

// roundWait is half the transport timeout, so a round always ends before the request times out
func (i *rpcLockMgr) roundWait() time.Duration {
	if i.config.TimeoutSecond <= 0 {
		return defaultLockWait
	}
	return time.Duration(i.config.TimeoutSecond) * time.Second / 2
}
