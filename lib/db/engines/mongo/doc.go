// Package mongo implements db.Driver on MongoDB using the official
// go.mongodb.org/mongo-driver.
//
// Every table is a collection in the configured database. A row is stored as
//
//	{ _id, ID, data, expireAt?, createdAt, updatedAt }
//
// with the value kept as native BSON in data, so it stays queryable from other
// tools. Prepare creates a unique index on ID and a TTL index on expireAt;
// failing to create the TTL index is logged and ignored because reads filter
// expired documents on their own.
package mongo
