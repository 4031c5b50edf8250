// Package tcp implements the TCP socket transport of the RPC system. It provides
// TCP implementations of the base package's connector interfaces and inherits
// framing, connection pooling and request correlation from there.
//
// Key Components:
//
//   - clientConnector: Dials with a timeout and tunes the connection (no delay, keep-alive)
//
//   - serverConnector: Creates the TCP listener
//
// The server reads requests into pooled 512 KB buffers. Larger frames are read into
// a temporary buffer.
package tcp
