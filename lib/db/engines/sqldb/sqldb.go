package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/events"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("driver")

const (
	maxRetries  = 5
	initialWait = 100 * time.Millisecond
)

// Options configures the SQL driver
type Options struct {
	Dialect *Dialect    // SQLite, Postgres or MySQL
	DSN     string      // Connection string (a file path for SQLite)
	Sink    events.Sink // Optional event sink
}

// DB implements db.ExpiringDriver on top of database/sql.
// Every table has the columns id, value (encoded JSON), created_at, updated_at
// and expire_at (unix milliseconds, NULL = never).
type DB struct {
	dialect *Dialect
	dsn     string
	emitter *events.Emitter

	mu   sync.RWMutex // guards conn
	conn *sql.DB

	prepared *xsync.MapOf[string, *preparedTable]
}

// preparedTable makes concurrent Prepare calls for the same table run the DDL once
type preparedTable struct {
	once  sync.Once
	err   error
	stmts statements
}

// New creates a new, not yet connected SQL driver
func New(opts Options) *DB {
	d := opts.Dialect
	if d == nil {
		d = SQLite
	}
	return &DB{
		dialect:  d,
		dsn:      opts.DSN,
		emitter:  &events.Emitter{Driver: string(d.Impl), Sink: opts.Sink},
		prepared: xsync.NewMapOf[string, *preparedTable](),
	}
}

func (s *DB) op(name string) string {
	return string(s.dialect.Impl) + "." + name
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (s *DB) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}

	conn, err := s.dialect.open(s.dsn)
	if err != nil {
		s.emitter.Emit(events.KindError, "", "", "open failed", err)
		return db.DriverError(s.op("connect"), err)
	}
	conn.SetMaxOpenConns(s.dialect.maxOpenConns)
	conn.SetMaxIdleConns(s.dialect.maxOpenConns)

	if err := pingWithRetry(ctx, conn); err != nil {
		_ = conn.Close()
		s.emitter.Emit(events.KindError, "", "", "ping failed", err)
		return db.DriverError(s.op("connect"), err)
	}

	s.conn = conn
	Logger.Infof("%s: connected", s.dialect.Impl)
	s.emitter.Emit(events.KindConnected, "", "", "connected", nil)
	return nil
}

// pingWithRetry verifies connectivity with exponential backoff
func pingWithRetry(ctx context.Context, conn *sql.DB) error {
	wait := initialWait
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = conn.PingContext(ctx); err == nil {
			return nil
		}
		Logger.Warningf("ping failed (attempt %d/%d): %v", i+1, maxRetries, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}

func (s *DB) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.prepared.Clear()
	s.emitter.Emit(events.KindDisconnected, "", "", "disconnected", nil)
	return db.DriverError(s.op("disconnect"), err)
}

// begin returns the connection and the statements for the table, preparing it if needed
func (s *DB) begin(ctx context.Context, op, table string) (*sql.DB, statements, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, statements{}, db.NotConnected(s.op(op))
	}
	if err := db.ValidateTableName(s.op(op), table); err != nil {
		return nil, statements{}, err
	}
	stmts, err := s.prepare(ctx, conn, table)
	return conn, stmts, err
}

func (s *DB) Prepare(ctx context.Context, table string) error {
	_, _, err := s.begin(ctx, "prepare", table)
	return err
}

func (s *DB) prepare(ctx context.Context, conn *sql.DB, table string) (statements, error) {
	p, _ := s.prepared.LoadOrCompute(table, func() *preparedTable {
		return &preparedTable{stmts: s.dialect.statements(table)}
	})
	p.once.Do(func() {
		if _, err := conn.ExecContext(ctx, p.stmts.createTable); err != nil {
			p.err = db.DriverError(s.op("prepare"), err)
			return
		}
		// the index only speeds up expiry filtering, the table works without it
		if _, err := conn.ExecContext(ctx, p.stmts.createIndex); err != nil {
			Logger.Debugf("%s: expire_at index on %s not created: %v", s.dialect.Impl, table, err)
		}
		s.emitter.Emit(events.KindTablePrepared, table, "", "table prepared", nil)
	})
	if p.err != nil {
		// allow a later call to retry
		s.prepared.Delete(table)
		s.emitter.Emit(events.KindError, table, "", "prepare failed", p.err)
		return statements{}, p.err
	}
	return p.stmts, nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (s *DB) GetAllRows(ctx context.Context, table string) ([]db.Row, error) {
	conn, stmts, err := s.begin(ctx, "getAllRows", table)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, stmts.selectAll, nowMillis())
	if err != nil {
		return nil, s.fail("getAllRows", table, "", err)
	}
	defer rows.Close()

	result := make([]db.Row, 0)
	for rows.Next() {
		var (
			id  string
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, s.fail("getAllRows", table, "", err)
		}
		v, err := db.DecodeValue([]byte(raw))
		if err != nil {
			return nil, s.fail("getAllRows", table, id, err)
		}
		result = append(result, db.Row{ID: id, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("getAllRows", table, "", err)
	}

	s.emitter.Emit(events.KindRowsFetched, table, "", "rows fetched", len(result))
	return result, nil
}

func (s *DB) GetRowByKey(ctx context.Context, table, key string) (any, bool, error) {
	conn, stmts, err := s.begin(ctx, "getRowByKey", table)
	if err != nil {
		return nil, false, err
	}

	var raw string
	err = conn.QueryRowContext(ctx, stmts.selectOne, nowMillis(), key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		s.emitter.Emit(events.KindRowNotFound, table, key, "row not found", nil)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.fail("getRowByKey", table, key, err)
	}

	v, err := db.DecodeValue([]byte(raw))
	if err != nil {
		return nil, false, s.fail("getRowByKey", table, key, err)
	}
	s.emitter.Emit(events.KindRowFetched, table, key, "row fetched", v)
	return v, true, nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// SetRowByKey stores the value and keeps the expiration time of a live row.
// With the update hint an UPDATE is tried first; when it touches no row the
// driver falls back to the upsert.
func (s *DB) SetRowByKey(ctx context.Context, table, key string, value any, update bool) (any, error) {
	conn, stmts, err := s.begin(ctx, "setRowByKey", table)
	if err != nil {
		return nil, err
	}
	encoded, err := db.EncodeValue(value)
	if err != nil {
		return nil, db.InvalidArgument(s.op("setRowByKey"), "%v", err)
	}
	now := nowMillis()

	// an expired row must not pass its expiration time on to the new value
	if _, err := conn.ExecContext(ctx, stmts.purgeOne, now, key); err != nil {
		return nil, s.fail("setRowByKey", table, key, err)
	}

	updated := false
	if update {
		res, err := conn.ExecContext(ctx, stmts.updateKeep, string(encoded), now, key)
		if err != nil {
			return nil, s.fail("setRowByKey", table, key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, s.fail("setRowByKey", table, key, err)
		}
		updated = n > 0
	}
	if !updated {
		if _, err := conn.ExecContext(ctx, stmts.upsertKeep, key, string(encoded), now, now); err != nil {
			return nil, s.fail("setRowByKey", table, key, err)
		}
	}
	return s.stored(table, key, encoded, updated)
}

// SetRowByKeyE stores the value and replaces its expiration time (zero time = never expires).
func (s *DB) SetRowByKeyE(ctx context.Context, table, key string, value any, update bool, expireAt time.Time) (any, error) {
	conn, stmts, err := s.begin(ctx, "setRowByKey", table)
	if err != nil {
		return nil, err
	}
	encoded, err := db.EncodeValue(value)
	if err != nil {
		return nil, db.InvalidArgument(s.op("setRowByKey"), "%v", err)
	}

	var exp sql.NullInt64
	if !expireAt.IsZero() {
		exp = sql.NullInt64{Int64: expireAt.UnixMilli(), Valid: true}
	}
	now := nowMillis()

	updated := false
	if update {
		res, err := conn.ExecContext(ctx, stmts.update, string(encoded), now, exp, key)
		if err != nil {
			return nil, s.fail("setRowByKey", table, key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, s.fail("setRowByKey", table, key, err)
		}
		updated = n > 0
	}
	if !updated {
		if _, err := conn.ExecContext(ctx, stmts.upsert, key, string(encoded), now, now, exp); err != nil {
			return nil, s.fail("setRowByKey", table, key, err)
		}
	}
	return s.stored(table, key, encoded, updated)
}

// stored decodes the written value and publishes the write event
func (s *DB) stored(table, key string, encoded []byte, updated bool) (any, error) {
	stored, err := db.DecodeValue(encoded)
	if err != nil {
		return nil, s.fail("setRowByKey", table, key, err)
	}
	if updated {
		s.emitter.Emit(events.KindRowUpdated, table, key, "row updated", stored)
	} else {
		s.emitter.Emit(events.KindRowInserted, table, key, "row inserted", stored)
	}
	return stored, nil
}

func (s *DB) DeleteAllRows(ctx context.Context, table string) (int64, error) {
	conn, stmts, err := s.begin(ctx, "deleteAllRows", table)
	if err != nil {
		return 0, err
	}
	// expired rows are removed first, they do not count
	if _, err := conn.ExecContext(ctx, stmts.purgeAll, nowMillis()); err != nil {
		return 0, s.fail("deleteAllRows", table, "", err)
	}
	res, err := conn.ExecContext(ctx, stmts.deleteAll)
	if err != nil {
		return 0, s.fail("deleteAllRows", table, "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.fail("deleteAllRows", table, "", err)
	}
	s.emitter.Emit(events.KindRowsDeleted, table, "", "rows deleted", n)
	return n, nil
}

func (s *DB) DeleteRowByKey(ctx context.Context, table, key string) (int64, error) {
	conn, stmts, err := s.begin(ctx, "deleteRowByKey", table)
	if err != nil {
		return 0, err
	}
	if _, err := conn.ExecContext(ctx, stmts.purgeOne, nowMillis(), key); err != nil {
		return 0, s.fail("deleteRowByKey", table, key, err)
	}
	res, err := conn.ExecContext(ctx, stmts.deleteOne, key)
	if err != nil {
		return 0, s.fail("deleteRowByKey", table, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.fail("deleteRowByKey", table, key, err)
	}
	s.emitter.Emit(events.KindRowDeleted, table, key, "row deleted", n)
	return n, nil
}

// fail publishes an error event and wraps the backend error
func (s *DB) fail(op, table, key string, err error) error {
	s.emitter.Emit(events.KindError, table, key, fmt.Sprintf("%s failed", op), err)
	return db.DriverError(s.op(op), err)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (s *DB) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureTTL | db.FeaturePersistence
	return supported&feature == feature
}

func (s *DB) GetInfo() db.DatabaseInfo {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	var stats *sql.DBStats
	if conn != nil {
		st := conn.Stats()
		stats = &st
	}
	tables := make([]string, 0)
	s.prepared.Range(func(name string, _ *preparedTable) bool {
		tables = append(tables, name)
		return true
	})

	return db.DatabaseInfo{
		DbType:            s.dialect.Impl,
		SupportedFeatures: []db.Feature{db.FeatureTTL, db.FeaturePersistence},
		Metadata: &struct {
			PreparedTables []string     `json:"prepared_tables"`
			Pool           *sql.DBStats `json:"pool,omitempty"`
		}{
			PreparedTables: tables,
			Pool:           stats,
		},
	}
}
