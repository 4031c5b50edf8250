package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/ValentinKolb/hkv/rpc/serializer"
	"github.com/ValentinKolb/hkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
// Used by the RPCDriver and RPCLockMgr with composition pattern
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests.
// Errors reported by the server are returned as *db.Error with their original return code,
// transport and encoding failures as driver errors. It also checks that the type of the
// response matches the request.
func (a *rpcClientAdapter) invokeRPCRequest(ctx context.Context, op string, req *common.Message) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, db.DriverError(op, err)
	}

	// Send the request
	respBytes, err := a.transport.Send(ctx, reqBytes)
	if err != nil {
		return nil, db.DriverError(op, err)
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, db.DriverError(op, fmt.Errorf("invalid response: %w", err))
	}

	// Check if the response is an error response
	if err := resp.AsError(op); err != nil {
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, db.DriverError(op, fmt.Errorf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}

	return resp, nil
}
