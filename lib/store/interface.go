package store

import (
	"context"
	"regexp"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/query"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the key-value facade over a db.Driver bound to one table.
// Keys are dotted paths ("user.profile.age") unless normal keys mode is on.
// Every operation waits until the table is prepared (see Init).
// Errors are *db.Error values, use errors.Is with the db.Err* sentinels.
type IStore interface {
	query.Source

	// Init blocks until the table is prepared. It returns a NotReady error when
	// ctx ends first or when preparing the table failed.
	Init(ctx context.Context) (err error)

	// Get returns the value at key, nil if it is absent at any stage.
	// Get(ctx, key string) (value any, err error) is part of query.Source

	// Set stores value at key and returns the stored value (the leaf, not the merged root).
	// A nil value is an InvalidArgument error.
	Set(ctx context.Context, key string, value any) (stored any, err error)
	// SetE is like Set, the row expires after ttl. The whole root row expires
	// even when key is nested. Requires a driver with db.FeatureTTL.
	SetE(ctx context.Context, key string, value any, ttl time.Duration) (stored any, err error)
	// Has reports whether Get would return a non nil value.
	Has(ctx context.Context, key string) (ok bool, err error)
	// Delete removes the value at key and returns how many values were removed.
	// Deleting a nested key rewrites the root row, the row itself stays.
	Delete(ctx context.Context, key string) (count int64, err error)
	// DeleteAll removes every row of the table.
	DeleteAll(ctx context.Context) (count int64, err error)

	// Add adds n to the number at key (0 if absent) and returns the result.
	Add(ctx context.Context, key string, n any) (result float64, err error)
	// Sub subtracts n from the number at key (0 if absent) and returns the result.
	Sub(ctx context.Context, key string, n any) (result float64, err error)

	// Push appends values to the array at key and returns the new array.
	Push(ctx context.Context, key string, values ...any) (arr []any, err error)
	// Unshift prepends value to the array at key. An array value is spliced in.
	Unshift(ctx context.Context, key string, value any) (arr []any, err error)
	// Pop removes and returns the last element (nil for an empty array).
	Pop(ctx context.Context, key string) (removed any, err error)
	// Shift removes and returns the first element (nil for an empty array).
	Shift(ctx context.Context, key string) (removed any, err error)
	// Pull removes the elements matching value. value is a single element, a
	// []any of candidates or a func(item any, index int) bool. With once only
	// the first match is removed.
	Pull(ctx context.Context, key string, value any, once bool) (arr []any, err error)

	// All returns every row of the table.
	// All(ctx) ([]db.Row, error) is part of query.Source

	// Table returns a view on another table sharing the driver and the options.
	Table(name string) (view IStore, err error)
	// TableReady is Table followed by Init.
	TableReady(ctx context.Context, name string) (view IStore, err error)
	// UseNormalKeys turns normal keys mode on or off for this view.
	UseNormalKeys(on bool)
	NormalKeys() bool
	TableName() string
	Driver() db.Driver

	// --------------------------------------------------------------------------
	// Queries (see package query)
	// --------------------------------------------------------------------------

	Search(ctx context.Context, term any, property string) ([]db.Row, error)
	In(ctx context.Context, term any, property, key string) ([]db.Row, error)
	Between(ctx context.Context, min, max float64, property, key string) ([]db.Row, error)
	StartsWith(ctx context.Context, q, key string) ([]db.Row, error)
	EndsWith(ctx context.Context, q, key string) ([]db.Row, error)
	Regex(ctx context.Context, pattern *regexp.Regexp, property, key string) ([]db.Row, error)
	Compare(ctx context.Context, property, operator string, value any, key string) ([]db.Row, error)
	Custom(ctx context.Context, fn query.Predicate, key string) ([]db.Row, error)
}
