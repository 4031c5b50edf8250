package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/events"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var Logger = logger.GetLogger("driver")

const defaultDatabase = "hkv"

// Options configures the mongo driver
type Options struct {
	URI      string      // Connection string, e.g. mongodb://localhost:27017
	Database string      // Database holding the collections (default: "hkv")
	Sink     events.Sink // Optional event sink
}

// document is the stored shape of a row
type document struct {
	ID        string     `bson:"ID"`
	Data      any        `bson:"data"`
	ExpireAt  *time.Time `bson:"expireAt,omitempty"`
	CreatedAt time.Time  `bson:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt"`
}

// DB implements db.ExpiringDriver with one collection per table.
type DB struct {
	opts    Options
	emitter *events.Emitter

	mu     sync.RWMutex // guards client
	client *mongo.Client

	collections *xsync.MapOf[string, *collection]
}

// collection caches the handle and makes concurrent Prepare calls create the indexes once
type collection struct {
	once sync.Once
	err  error
	coll *mongo.Collection
}

// New creates a new, not yet connected mongo driver
func New(opts Options) *DB {
	if opts.Database == "" {
		opts.Database = defaultDatabase
	}
	return &DB{
		opts:        opts,
		emitter:     &events.Emitter{Driver: string(db.ImplMongo), Sink: opts.Sink},
		collections: xsync.NewMapOf[string, *collection](),
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (m *DB) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.opts.URI))
	if err != nil {
		m.emitter.Emit(events.KindError, "", "", "connect failed", err)
		return db.DriverError("mongo.connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		m.emitter.Emit(events.KindError, "", "", "ping failed", err)
		return db.DriverError("mongo.connect", err)
	}

	m.client = client
	Logger.Infof("mongo: connected to database %s", m.opts.Database)
	m.emitter.Emit(events.KindConnected, "", "", "connected", nil)
	return nil
}

func (m *DB) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client = nil
	m.collections.Clear()
	m.emitter.Emit(events.KindDisconnected, "", "", "disconnected", nil)
	return db.DriverError("mongo.disconnect", err)
}

// begin returns the prepared collection for the table
func (m *DB) begin(ctx context.Context, op, table string) (*mongo.Collection, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return nil, db.NotConnected("mongo." + op)
	}
	if err := db.ValidateTableName("mongo."+op, table); err != nil {
		return nil, err
	}

	c, _ := m.collections.LoadOrCompute(table, func() *collection {
		return &collection{coll: client.Database(m.opts.Database).Collection(table)}
	})
	c.once.Do(func() {
		_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "ID", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			c.err = db.DriverError("mongo.prepare", err)
			return
		}
		// the ttl monitor removes expired documents, reads filter them anyway
		_, err = c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "expireAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		})
		if err != nil {
			Logger.Debugf("mongo: ttl index on %s not created: %v", table, err)
		}
		m.emitter.Emit(events.KindTablePrepared, table, "", "table prepared", nil)
	})
	if c.err != nil {
		m.collections.Delete(table)
		m.emitter.Emit(events.KindError, table, "", "prepare failed", c.err)
		return nil, c.err
	}
	return c.coll, nil
}

func (m *DB) Prepare(ctx context.Context, table string) error {
	_, err := m.begin(ctx, "prepare", table)
	return err
}

// liveFilter matches documents that did not expire yet
func liveFilter(extra bson.D) bson.D {
	return append(extra, bson.E{Key: "$or", Value: bson.A{
		bson.D{{Key: "expireAt", Value: nil}},
		bson.D{{Key: "expireAt", Value: bson.D{{Key: "$gt", Value: time.Now()}}}},
	}})
}

// expiredFilter matches documents whose expiration passed
func expiredFilter(extra bson.D) bson.D {
	return append(extra, bson.E{Key: "expireAt", Value: bson.D{{Key: "$lte", Value: time.Now()}}})
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (m *DB) GetAllRows(ctx context.Context, table string) ([]db.Row, error) {
	coll, err := m.begin(ctx, "getAllRows", table)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, liveFilter(bson.D{}), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, m.fail("getAllRows", table, "", err)
	}
	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, m.fail("getAllRows", table, "", err)
	}

	rows := make([]db.Row, 0, len(docs))
	for _, d := range docs {
		v, err := fromBSON(d.Data)
		if err != nil {
			return nil, m.fail("getAllRows", table, d.ID, err)
		}
		rows = append(rows, db.Row{ID: d.ID, Value: v})
	}
	m.emitter.Emit(events.KindRowsFetched, table, "", "rows fetched", len(rows))
	return rows, nil
}

func (m *DB) GetRowByKey(ctx context.Context, table, key string) (any, bool, error) {
	coll, err := m.begin(ctx, "getRowByKey", table)
	if err != nil {
		return nil, false, err
	}

	var d document
	err = coll.FindOne(ctx, liveFilter(bson.D{{Key: "ID", Value: key}})).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		m.emitter.Emit(events.KindRowNotFound, table, key, "row not found", nil)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, m.fail("getRowByKey", table, key, err)
	}

	v, err := fromBSON(d.Data)
	if err != nil {
		return nil, false, m.fail("getRowByKey", table, key, err)
	}
	m.emitter.Emit(events.KindRowFetched, table, key, "row fetched", v)
	return v, true, nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// SetRowByKey upserts the document and keeps the expiration time of a live row.
func (m *DB) SetRowByKey(ctx context.Context, table, key string, value any, _ bool) (any, error) {
	return m.set(ctx, table, key, value, time.Time{}, true)
}

// SetRowByKeyE upserts the document and replaces its expiration time (zero time = never expires).
// The update hint is not needed, the upsert flag of UpdateOne covers both cases in one round trip.
func (m *DB) SetRowByKeyE(ctx context.Context, table, key string, value any, _ bool, expireAt time.Time) (any, error) {
	return m.set(ctx, table, key, value, expireAt, false)
}

func (m *DB) set(ctx context.Context, table, key string, value any, expireAt time.Time, keepExpiry bool) (any, error) {
	coll, err := m.begin(ctx, "setRowByKey", table)
	if err != nil {
		return nil, err
	}
	stored, err := db.EncodeValue(value)
	if err != nil {
		return nil, db.InvalidArgument("mongo.setRowByKey", "%v", err)
	}
	canonical, err := db.DecodeValue(stored)
	if err != nil {
		return nil, m.fail("setRowByKey", table, key, err)
	}

	now := time.Now()
	set := bson.D{{Key: "data", Value: canonical}, {Key: "updatedAt", Value: now}}
	change := bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: now}}}}
	switch {
	case keepExpiry:
		// the ttl monitor may lag behind, an expired document must not pass its expireAt on
		if _, err := coll.DeleteOne(ctx, expiredFilter(bson.D{{Key: "ID", Value: key}})); err != nil {
			return nil, m.fail("setRowByKey", table, key, err)
		}
	case expireAt.IsZero():
		change = append(change, bson.E{Key: "$unset", Value: bson.D{{Key: "expireAt", Value: ""}}})
	default:
		set = append(set, bson.E{Key: "expireAt", Value: expireAt})
	}
	change = append(change, bson.E{Key: "$set", Value: set})

	res, err := coll.UpdateOne(ctx, bson.D{{Key: "ID", Value: key}}, change, options.Update().SetUpsert(true))
	if err != nil {
		return nil, m.fail("setRowByKey", table, key, err)
	}

	if res.UpsertedCount > 0 {
		m.emitter.Emit(events.KindRowInserted, table, key, "row inserted", canonical)
	} else {
		m.emitter.Emit(events.KindRowUpdated, table, key, "row updated", canonical)
	}
	return canonical, nil
}

func (m *DB) DeleteAllRows(ctx context.Context, table string) (int64, error) {
	coll, err := m.begin(ctx, "deleteAllRows", table)
	if err != nil {
		return 0, err
	}
	if _, err := coll.DeleteMany(ctx, expiredFilter(bson.D{})); err != nil {
		return 0, m.fail("deleteAllRows", table, "", err)
	}
	res, err := coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, m.fail("deleteAllRows", table, "", err)
	}
	m.emitter.Emit(events.KindRowsDeleted, table, "", "rows deleted", res.DeletedCount)
	return res.DeletedCount, nil
}

func (m *DB) DeleteRowByKey(ctx context.Context, table, key string) (int64, error) {
	coll, err := m.begin(ctx, "deleteRowByKey", table)
	if err != nil {
		return 0, err
	}
	if _, err := coll.DeleteOne(ctx, expiredFilter(bson.D{{Key: "ID", Value: key}})); err != nil {
		return 0, m.fail("deleteRowByKey", table, key, err)
	}
	res, err := coll.DeleteOne(ctx, bson.D{{Key: "ID", Value: key}})
	if err != nil {
		return 0, m.fail("deleteRowByKey", table, key, err)
	}
	m.emitter.Emit(events.KindRowDeleted, table, key, "row deleted", res.DeletedCount)
	return res.DeletedCount, nil
}

func (m *DB) fail(op, table, key string, err error) error {
	m.emitter.Emit(events.KindError, table, key, fmt.Sprintf("%s failed", op), err)
	return db.DriverError("mongo."+op, err)
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (m *DB) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureTTL | db.FeaturePersistence | db.FeatureInsertionOrder
	return supported&feature == feature
}

func (m *DB) GetInfo() db.DatabaseInfo {
	tables := make([]string, 0)
	m.collections.Range(func(name string, _ *collection) bool {
		tables = append(tables, name)
		return true
	})
	return db.DatabaseInfo{
		DbType:            db.ImplMongo,
		SupportedFeatures: []db.Feature{db.FeatureTTL, db.FeaturePersistence, db.FeatureInsertionOrder},
		Metadata: &struct {
			Database    string   `json:"database"`
			Collections []string `json:"collections"`
		}{
			Database:    m.opts.Database,
			Collections: tables,
		},
	}
}
