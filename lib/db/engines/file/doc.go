// Package file implements a persistent db.Driver backed by a single snapshot
// file on the local file system.
//
// All rows are held by a memory driver. Connect loads the snapshot (a missing
// file starts an empty database), and every successful mutation writes a new
// snapshot to a temporary file in the same directory and renames it over the
// old one. A crash therefore leaves either the previous or the new state, never
// a partial file. When writing the snapshot fails the mutation returns a
// driver error but stays visible in memory; it is persisted by the next
// successful write or by Disconnect, and lost if the process ends before.
// Writes are O(size of the database); the driver is meant for
// small embedded data sets, use the sqlite dialect of sqldb for larger ones.
package file
