// Package base provides the shared foundation of the socket transports (tcp, unix).
// It implements framing, request correlation and connection handling once, and leaves
// dialing and listening to small protocol-specific connectors.
//
// Frame format (big endian):
//
//	| requestID uint64 | length uint32 | payload ... |
//
// The payload is a serialized common.Message. Responses carry the requestID of their
// request, so a single connection can have many requests in flight.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Manages multiple connections with round-robin load balancing.
//     A reader goroutine per connection distributes responses to the waiting requests
//     and reconnects with backoff when the connection breaks. Failed requests are
//     retried with exponential backoff and jitter.
//
//   - serverTransport: Accepts connections and processes the requests of each
//     connection on a bounded worker pool. Listen returns once its context ends,
//     after closing the listener and all open connections.
//
// Performance Notes:
//
//   - Connection Pooling: Multiple connections per endpoint improve throughput
//     for large messages. For small messages a single connection per endpoint
//     often performs better.
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse read buffers.
//
//   - Frame Batching: net.Buffers combines header and payload into a single write.
//
// All public methods are safe for concurrent use.
package base
