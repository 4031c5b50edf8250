// Package rpc lets several processes share one backend. A server exposes a db.Driver
// and a lock manager, clients use them through a remote driver that plugs into the
// store like any local driver.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, configuration structures and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (HTTP, TCP, Unix sockets).
//
//   - serializer: Message serialization (JSON, GOB).
//
//   - client: The remote driver and the remote lock manager.
//
//   - server: The server and its adapters for driver and lock operations.
package rpc
