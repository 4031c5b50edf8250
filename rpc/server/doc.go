// Package server implements the RPC server that exposes a db.Driver and a lock
// manager to remote processes. Together with the remote driver of the client package
// it lets several processes share one backend through the rpc protocol.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface of all server adapters. An adapter executes a
//     decoded request and reports errors inside the response, with their return code.
//
//   - NewDriverServerAdapter: Translates driver requests (prepare, getAll, get, set,
//     setE, deleteAll, delete, info) into calls on the db.Driver. Successfully
//     prepared tables are remembered, so repeated prepare requests are cheap.
//
//   - NewLockManagerServerAdapter: Serves acquire and release requests from a process
//     local lockmgr.KeyLocker. Acquire waits at most WaitMs on the server and an
//     acquired lock is released automatically after LeaseMs.
//
//   - RPCServer: Decodes requests, routes them to the adapters and encodes the
//     responses. Serve connects the driver and listens until the context ends.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport:     "tcp",
//	  Endpoint:      "0.0.0.0:8080",
//	  Serializer:    "gob",
//	  TimeoutSecond: 5,
//	}
//
//	s := server.NewRPCServer(config, memory.New(nil), tcp.NewTCPServerTransport(4), serializer.NewGOBSerializer())
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// The server is safe for concurrent use. Serve should be called only once.
package server
