package db

import (
	"context"
	"time"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemory   Implementation = "memory"
	ImplFile     Implementation = "file"
	ImplSQLite   Implementation = "sqlite"
	ImplPostgres Implementation = "postgres"
	ImplMySQL    Implementation = "mysql"
	ImplMongo    Implementation = "mongo"
	ImplRemote   Implementation = "remote"
)

// Feature represents optional driver capabilities as bit flags
type Feature uint64

const (
	FeatureTTL            Feature = 1 << iota // Rows can carry an expiration time (see ExpiringDriver)
	FeaturePersistence                        // Rows survive a restart of the process
	FeatureInsertionOrder                     // GetAllRows returns rows in insertion order
	FeatureRemote                             // Calls cross a process boundary
)

func (f Feature) String() string {
	switch f {
	case FeatureTTL:
		return "TTL"
	case FeaturePersistence:
		return "Persistence"
	case FeatureInsertionOrder:
		return "InsertionOrder"
	case FeatureRemote:
		return "Remote"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Driver Interface
// --------------------------------------------------------------------------

// Driver is the capability set every backend implements.
// Rows are addressed by (table, key). Values are canonical values (see package value).
// Implementations must be safe for concurrent use.
type Driver interface {

	// --------------------------------------------------------------------------
	// Lifecycle
	// --------------------------------------------------------------------------

	// Connect establishes the connection to the backend.
	// Every data operation called before Connect returned fails with a NotConnected error.
	Connect(ctx context.Context) (err error)

	// Disconnect releases the connection. Data operations fail with NotConnected afterward.
	Disconnect(ctx context.Context) (err error)

	// Prepare ensures the table exists. It is idempotent and safe to call
	// concurrently for the same table. Failing secondary effects (e.g. index
	// creation) must not fail Prepare.
	Prepare(ctx context.Context, table string) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// GetAllRows returns every (not expired) row of the table.
	// The order is unspecified unless the driver supports FeatureInsertionOrder.
	GetAllRows(ctx context.Context, table string) (rows []Row, err error)

	// GetRowByKey returns the value stored for key.
	// found is false and value nil if the row does not exist; this is never an error.
	GetRowByKey(ctx context.Context, table, key string) (value any, found bool, err error)

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// SetRowByKey stores value for key and returns it.
	// The observable result is always an upsert. update is a hint (the caller
	// believes the row exists) that drivers may use to pick a cheaper statement.
	// Drivers supporting FeatureTTL keep the expiration time of a live row.
	SetRowByKey(ctx context.Context, table, key string, value any, update bool) (stored any, err error)

	// DeleteAllRows removes every row of the table and returns how many were removed.
	DeleteAllRows(ctx context.Context, table string) (count int64, err error)

	// DeleteRowByKey removes the row for key and returns how many rows were removed (0 or 1).
	DeleteRowByKey(ctx context.Context, table, key string) (count int64, err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the driver supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the driver.
	GetInfo() (info DatabaseInfo)
}

// ExpiringDriver is implemented by drivers supporting FeatureTTL.
type ExpiringDriver interface {
	Driver

	// SetRowByKeyE behaves like SetRowByKey and additionally sets the time
	// after which the row behaves as if it did not exist. The zero time removes
	// the expiration.
	SetRowByKeyE(ctx context.Context, table, key string, value any, update bool, expireAt time.Time) (stored any, err error)
}

// Factory creates a new, not yet connected driver.
type Factory func() Driver
