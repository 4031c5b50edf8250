// Package db defines the driver contract every storage backend implements,
// the row codec shared by all drivers and the error taxonomy of the module.
//
// The package focuses on:
//   - A unified Driver interface for table-scoped row operations
//   - Feature discovery through capability flags
//   - A single textual encoding for values (JSON) used by every driver that
//     stores values as text or bytes
//   - Typed errors with return codes that survive wrapping
//
// Key Components:
//
//   - Driver Interface: Connect/Disconnect lifecycle, idempotent Prepare of
//     tables, GetAllRows, GetRowByKey (with an explicit found flag so "not
//     found" is never confused with a stored null), SetRowByKey with upsert
//     semantics, DeleteAllRows and DeleteRowByKey returning removed counts.
//
//   - ExpiringDriver: drivers supporting FeatureTTL additionally accept an
//     expiration time. Once it passed, reads behave as if the row does not
//     exist. Whether expired rows are removed lazily or actively is up to the
//     driver.
//
//   - Feature Flags: The Feature type defines capability flags that drivers
//     advertise through SupportsFeature. GetInfo returns the implementation
//     type together with driver specific metadata.
//
//   - Errors: *Error carries a RetCode (InvalidArgument, NotConnected,
//     NotReady, DriverError, UnsupportedOperation). errors.Is matches by code:
//
//     if errors.Is(err, db.ErrNotConnected) { ... }
//
// Note on the update hint:
//
//	SetRowByKey receives an update flag computed by the caller from a prior
//	existence check. That check races with the write, so drivers must treat it
//	as a hint only. A driver that issues an UPDATE because of the hint and
//	affects zero rows falls back to an insert.
//
// Related Packages:
//
// The engines packages provide the drivers: memory (xsync maps
// with TTL garbage collection), file (memory engine persisted to a snapshot
// file), sqldb (sqlite, postgres and mysql through database/sql) and mongo.
// The rpc/client package provides a driver talking to a remote hkv server.
//
// The testing package provides RunDriverTests and RunDriverBenchmarks, the
// conformance suite every driver runs.
package db
