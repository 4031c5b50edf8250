package server

import (
	"context"

	"github.com/ValentinKolb/hkv/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response.
	// Errors are never returned but set in the response (see common.NewResponse)
	Handle(ctx context.Context, req *common.Message) (resp *common.Message)
}
