// Package unix implements the RPC transport over Unix domain sockets, for clients
// running on the same machine as the server. It extends the base package with
// Unix specific connectors and inherits framing, connection pooling and request
// correlation from there.
//
// Key Components:
//
//   - clientConnector: Dials the socket path
//
//   - serverConnector: Removes a stale socket file and creates the listener
//
// The server reads requests into pooled 64 KB buffers.
package unix
