// Package store provides the key-value facade of hkv: a dotted key API with
// numeric and array helpers on top of any db.Driver.
//
// Key Components:
//
//   - IStore Interface: Get, Set, Delete, Add/Sub, the array mutators and the
//     query helpers, bound to one table of a driver. Table returns a view on
//     another table of the same driver.
//
//   - Dotted Keys: "user.profile.age" addresses the value profile.age inside the
//     row "user". Writes read the root row, merge the nested value and store the
//     whole root again (see package path). WithNormalKeys turns this off.
//
//   - Readiness: New prepares the table in the background. Every operation
//     waits for it (bounded by its context) and fails with a NotReady error
//     if the context ends first or preparing failed.
//
//   - Key Locking: mutations are read-modify-write. Without further options two
//     concurrent writers of the same root key race and the last write wins.
//     WithKeyLocking serializes them per (table, root key) within the process
//     using a lockmgr.KeyLocker.
//
// Example:
//
//	drv := memory.New(nil)
//	_ = drv.Connect(ctx)
//	s, _ := store.New(drv, "json")
//	_, _ = s.Set(ctx, "user.name", "alice")
//	name, _ := s.Get(ctx, "user.name") // "alice"
package store
