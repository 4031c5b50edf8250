// Package client implements the client side of the RPC system: a db.Driver and a
// lockmgr.ILockManager that forward every call to a server of the server package.
//
// Key Components:
//
//   - NewRPCDriver: Creates a driver implementing db.ExpiringDriver. Connect connects
//     the transport and fetches the backend info, so the driver reports the features of
//     the remote backend plus db.FeatureRemote. Errors keep the return code they had on
//     the server, transport failures surface as driver errors.
//
//   - NewRPCLockMgr: Creates a lock manager for locks shared by several processes.
//     Acquired locks carry a lease (ClientConfig.LockLeaseSecond) after which the
//     server releases them, so a crashed client cannot block a key forever.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:8080"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	driver := client.NewRPCDriver(config, tcp.NewTCPClientTransport(), serializer.NewGOBSerializer())
//	if err := driver.Connect(ctx); err != nil {
//	  return err
//	}
//
//	locks, _ := client.NewRPCLockMgr(config, tcp.NewTCPClientTransport(), serializer.NewGOBSerializer())
//	kv, _ := store.New(driver, "json", store.WithLockManager(locks))
//
// Performance Considerations:
//
//   - For large payloads, increasing ConnectionsPerEndpoint can improve throughput
//     by allowing parallel requests.
//
//   - For small messages, a single connection per endpoint is often more efficient.
//
//   - GOB produces smaller payloads than JSON. Values themselves always travel as JSON text.
//
// All clients are safe for concurrent use.
package client
