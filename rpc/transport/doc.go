// Package transport defines the interfaces for RPC communication. A transport
// moves opaque serialized messages, it knows nothing about their content.
//
// Key Components:
//
//   - IRPCClientTransport: connection management and request sending.
//
//   - IRPCServerTransport: accepts requests and passes them to the registered
//     ServerHandleFunc.
//
// Implementations live in the subpackages http, tcp and unix. The latter two
// share the frame based implementation in base.
package transport
