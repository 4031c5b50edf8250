package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	dbtesting "github.com/ValentinKolb/hkv/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Runs against a real server only when a URI is provided, e.g.
// HKV_TEST_MONGO_URI=mongodb://localhost:27017
func Test(t *testing.T) {
	uri := os.Getenv("HKV_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("HKV_TEST_MONGO_URI not set")
	}
	dbtesting.RunDriverTests(t, "Mongo", func() db.Driver {
		return New(Options{URI: uri, Database: "hkv_test"})
	})
}

func TestFromBSON(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	in := primitive.D{
		{Key: "int32", Value: int32(7)},
		{Key: "int64", Value: int64(-3)},
		{Key: "double", Value: 1.5},
		{Key: "str", Value: "x"},
		{Key: "bool", Value: true},
		{Key: "null", Value: nil},
		{Key: "arr", Value: primitive.A{int32(1), primitive.D{{Key: "a", Value: "b"}}}},
		{Key: "map", Value: primitive.M{"n": int64(2)}},
		{Key: "oid", Value: oid},
		{Key: "date", Value: primitive.NewDateTimeFromTime(when)},
	}

	out, err := fromBSON(in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"int32":  7.0,
		"int64":  -3.0,
		"double": 1.5,
		"str":    "x",
		"bool":   true,
		"null":   nil,
		"arr":    []any{1.0, map[string]any{"a": "b"}},
		"map":    map[string]any{"n": 2.0},
		"oid":    oid.Hex(),
		"date":   "2024-05-01T12:00:00Z",
	}, out)
}

func TestNotConnected(t *testing.T) {
	d := New(Options{URI: "mongodb://localhost:1"})
	_, _, err := d.GetRowByKey(context.Background(), "t", "k")
	assert.ErrorIs(t, err, db.ErrNotConnected)
	assert.Equal(t, db.ImplMongo, d.GetInfo().DbType)
	assert.True(t, d.SupportsFeature(db.FeatureTTL))
}
