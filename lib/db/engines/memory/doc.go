// Package memory implements the db.Driver contract on top of in-process maps.
//
// Tables are kept in an xsync.MapOf keyed by table name, each table holds its
// rows in another xsync.MapOf. Values are stored in their encoded form (see
// db.EncodeValue), so every read hands out a fresh copy and callers can never
// mutate stored state.
//
// Key Components:
//
//   - DB: the driver. It implements db.ExpiringDriver and reports
//     FeatureTTL and FeatureInsertionOrder. Rows remember the sequence number of
//     their first insertion so GetAllRows can return them in insertion order.
//
//   - Expiration: rows written through SetRowByKeyE carry an expiration time.
//     Reads check it lazily, and a background collector (started by Connect,
//     stopped by Disconnect) removes expired rows in expiration order using a
//     util.MapHeap. Heap items can be stale (a row rewritten without TTL), so
//     the collector re-checks every row before removing it.
//
//   - Snapshots: Save and Load write and read a compact binary format
//     ("HKVSNAP" magic, version, then length prefixed tables and rows). The
//     file driver builds persistence on top of them.
//
// The zero time is used as "never expires" throughout the package.
package memory
