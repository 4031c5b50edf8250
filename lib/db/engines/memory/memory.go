package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/db/util"
	"github.com/ValentinKolb/hkv/lib/events"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("driver")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultGCInterval = 100 * time.Millisecond // Default interval between GC runs
)

// --------------------------------------------------------------------------
// Internal types
// --------------------------------------------------------------------------

// entry stores an encoded value with metadata
type entry struct {
	Value     []byte // JSON encoded value
	CreatedAt int64  // unix nano
	UpdatedAt int64  // unix nano
	ExpireAt  int64  // unix nano (0 = never)
	Seq       uint64 // insertion sequence, kept on update
}

func (e entry) expired(now int64) bool {
	return e.ExpireAt != 0 && now >= e.ExpireAt
}

type table struct {
	rows *xsync.MapOf[string, entry]
}

func newTable() *table {
	return &table{rows: xsync.NewMapOf[string, entry]()}
}

// rowRef identifies a row in the expiry heap
type rowRef struct {
	table string
	key   string
}

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// DB is an in-memory driver. Tables and rows live in xsync maps, rows with an
// expiration time are tracked in a heap and removed by a background collector.
type DB struct {
	name      string
	tables    *xsync.MapOf[string, *table]
	seq       atomic.Uint64
	connected atomic.Bool
	now       func() time.Time
	emitter   *events.Emitter

	// garbage collection
	gcInterval time.Duration
	gcMu       sync.Mutex // guards expiry
	expiry     *util.MapHeap[rowRef]
	gcStop     chan struct{}
	gcDone     chan struct{}
}

// Options configures the memory driver
type Options struct {
	Name       string           // Name used in events and driver info (default: "memory")
	GCInterval time.Duration    // Time between GC runs (0 = use default)
	Sink       events.Sink      // Optional event sink
	Clock      func() time.Time // Time source (nil = time.Now)
}

// DefaultOptions returns the default options
func DefaultOptions() *Options {
	return &Options{
		Name:       string(db.ImplMemory),
		GCInterval: defaultGCInterval,
	}
}

// New creates a new, not yet connected memory driver
func New(opts *Options) *DB {
	if opts == nil {
		opts = DefaultOptions()
	}
	name := opts.Name
	if name == "" {
		name = string(db.ImplMemory)
	}
	interval := opts.GCInterval
	if interval <= 0 {
		interval = defaultGCInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &DB{
		name:       name,
		tables:     xsync.NewMapOf[string, *table](),
		now:        clock,
		emitter:    &events.Emitter{Driver: name, Sink: opts.Sink},
		gcInterval: interval,
		expiry:     util.NewMapHeap[rowRef](),
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (m *DB) Connect(_ context.Context) error {
	if m.connected.CompareAndSwap(false, true) {
		m.startGC()
		m.emitter.Emit(events.KindConnected, "", "", "connected", nil)
	}
	return nil
}

// Disconnect stops the garbage collector. The data is kept, a later Connect sees it again.
func (m *DB) Disconnect(_ context.Context) error {
	if m.connected.CompareAndSwap(true, false) {
		m.stopGC()
		m.emitter.Emit(events.KindDisconnected, "", "", "disconnected", nil)
	}
	return nil
}

// Connected reports whether Connect was called (and Disconnect was not).
func (m *DB) Connected() bool {
	return m.connected.Load()
}

func (m *DB) Prepare(_ context.Context, name string) error {
	if err := m.check("prepare", name); err != nil {
		return err
	}
	m.tables.LoadOrCompute(name, newTable)
	m.emitter.Emit(events.KindTablePrepared, name, "", "table prepared", nil)
	return nil
}

// check validates the connection state and the table name
func (m *DB) check(op, name string) error {
	if !m.connected.Load() {
		return db.NotConnected(m.name + "." + op)
	}
	return db.ValidateTableName(m.name+"."+op, name)
}

// table returns the table, creating it when it was never prepared
func (m *DB) table(name string) *table {
	t, _ := m.tables.LoadOrCompute(name, newTable)
	return t
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (m *DB) GetAllRows(_ context.Context, name string) ([]db.Row, error) {
	if err := m.check("getAllRows", name); err != nil {
		return nil, err
	}
	t, ok := m.tables.Load(name)
	if !ok {
		m.emitter.Emit(events.KindRowsFetched, name, "", "rows fetched", 0)
		return []db.Row{}, nil
	}

	now := m.now().UnixNano()
	type seqRow struct {
		seq uint64
		row db.Row
	}
	var (
		collected []seqRow
		decodeErr error
	)
	t.rows.Range(func(key string, e entry) bool {
		if e.expired(now) {
			return true
		}
		v, err := db.DecodeValue(e.Value)
		if err != nil {
			decodeErr = err
			return false
		}
		collected = append(collected, seqRow{seq: e.Seq, row: db.Row{ID: key, Value: v}})
		return true
	})
	if decodeErr != nil {
		m.emitter.Emit(events.KindError, name, "", "decode failed", decodeErr)
		return nil, db.DriverError(m.name+".getAllRows", decodeErr)
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].seq < collected[j].seq })
	rows := make([]db.Row, len(collected))
	for i, c := range collected {
		rows[i] = c.row
	}
	m.emitter.Emit(events.KindRowsFetched, name, "", "rows fetched", len(rows))
	return rows, nil
}

func (m *DB) GetRowByKey(_ context.Context, name, key string) (any, bool, error) {
	if err := m.check("getRowByKey", name); err != nil {
		return nil, false, err
	}
	e, ok := m.load(name, key)
	if !ok {
		m.emitter.Emit(events.KindRowNotFound, name, key, "row not found", nil)
		return nil, false, nil
	}
	v, err := db.DecodeValue(e.Value)
	if err != nil {
		m.emitter.Emit(events.KindError, name, key, "decode failed", err)
		return nil, false, db.DriverError(m.name+".getRowByKey", err)
	}
	m.emitter.Emit(events.KindRowFetched, name, key, "row fetched", v)
	return v, true, nil
}

// load returns a live (not expired) entry
func (m *DB) load(name, key string) (entry, bool) {
	t, ok := m.tables.Load(name)
	if !ok {
		return entry{}, false
	}
	e, ok := t.rows.Load(key)
	if !ok || e.expired(m.now().UnixNano()) {
		return entry{}, false
	}
	return e, true
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// SetRowByKey stores the value. The update hint is not needed, every write is an upsert.
// The expiration time of a live row is kept.
func (m *DB) SetRowByKey(_ context.Context, name, key string, value any, _ bool) (any, error) {
	return m.set(name, key, value, time.Time{}, true)
}

// SetRowByKeyE stores the value with an expiration time (zero time = never expires).
func (m *DB) SetRowByKeyE(_ context.Context, name, key string, value any, _ bool, expireAt time.Time) (any, error) {
	return m.set(name, key, value, expireAt, false)
}

func (m *DB) set(name, key string, value any, expireAt time.Time, keepExpiry bool) (any, error) {
	if err := m.check("setRowByKey", name); err != nil {
		return nil, err
	}
	encoded, err := db.EncodeValue(value)
	if err != nil {
		return nil, db.InvalidArgument(m.name+".setRowByKey", "%v", err)
	}
	var exp int64
	if !expireAt.IsZero() {
		exp = expireAt.UnixNano()
	}

	now := m.now().UnixNano()
	var existed bool
	m.table(name).rows.Compute(key, func(old entry, loaded bool) (entry, bool) {
		existed = loaded && !old.expired(now)
		e := entry{Value: encoded, CreatedAt: now, UpdatedAt: now, ExpireAt: exp}
		if existed {
			e.CreatedAt = old.CreatedAt
			e.Seq = old.Seq
			if keepExpiry {
				e.ExpireAt = old.ExpireAt
			}
		} else {
			e.Seq = m.seq.Add(1)
		}
		return e, false
	})

	if exp != 0 {
		m.gcMu.Lock()
		m.expiry.AddItem(rowRef{table: name, key: key}, exp)
		m.gcMu.Unlock()
	}

	stored, err := db.DecodeValue(encoded)
	if err != nil {
		return nil, db.DriverError(m.name+".setRowByKey", err)
	}
	if existed {
		m.emitter.Emit(events.KindRowUpdated, name, key, "row updated", stored)
	} else {
		m.emitter.Emit(events.KindRowInserted, name, key, "row inserted", stored)
	}
	return stored, nil
}

func (m *DB) DeleteAllRows(_ context.Context, name string) (int64, error) {
	if err := m.check("deleteAllRows", name); err != nil {
		return 0, err
	}
	t, ok := m.tables.Load(name)
	if !ok {
		m.emitter.Emit(events.KindRowsDeleted, name, "", "rows deleted", int64(0))
		return 0, nil
	}

	now := m.now().UnixNano()
	var count int64
	t.rows.Range(func(key string, _ entry) bool {
		t.rows.Compute(key, func(old entry, loaded bool) (entry, bool) {
			if loaded && !old.expired(now) {
				count++
			}
			return old, true
		})
		return true
	})
	m.emitter.Emit(events.KindRowsDeleted, name, "", "rows deleted", count)
	return count, nil
}

func (m *DB) DeleteRowByKey(_ context.Context, name, key string) (int64, error) {
	if err := m.check("deleteRowByKey", name); err != nil {
		return 0, err
	}
	t, ok := m.tables.Load(name)
	if !ok {
		m.emitter.Emit(events.KindRowDeleted, name, key, "row deleted", int64(0))
		return 0, nil
	}

	now := m.now().UnixNano()
	var count int64
	t.rows.Compute(key, func(old entry, loaded bool) (entry, bool) {
		if loaded && !old.expired(now) {
			count = 1
		}
		return old, true
	})
	m.emitter.Emit(events.KindRowDeleted, name, key, "row deleted", count)
	return count, nil
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts the garbage collector if it is not running
func (m *DB) startGC() {
	m.gcMu.Lock()
	defer m.gcMu.Unlock()
	if m.gcStop != nil {
		return
	}
	m.gcStop = make(chan struct{})
	m.gcDone = make(chan struct{})
	go m.garbageCollector(m.gcStop, m.gcDone)
}

// stopGC stops the garbage collector and waits until it exited
func (m *DB) stopGC() {
	m.gcMu.Lock()
	stop, done := m.gcStop, m.gcDone
	m.gcStop, m.gcDone = nil, nil
	m.gcMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// garbageCollector removes expired rows every gcInterval.
// WARNING: this method should never be called directly! use startGC() and stopGC()
func (m *DB) garbageCollector(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := m.collect(); n > 0 {
				Logger.Debugf("%s: collected %d expired rows", m.name, n)
			}
		}
	}
}

// collect removes all rows whose expiration time passed and returns how many were removed
func (m *DB) collect() int {
	now := m.now().UnixNano()
	removed := 0

	m.gcMu.Lock()
	defer m.gcMu.Unlock()

	for {
		item, exists := m.expiry.Peek()
		if !exists || item.Priority > now {
			break
		}
		m.expiry.RemoveByKey(item.Key)

		t, ok := m.tables.Load(item.Key.table)
		if !ok {
			continue
		}
		// the row may have been rewritten without (or with a later) expiration in the meantime
		t.rows.Compute(item.Key.key, func(e entry, loaded bool) (entry, bool) {
			if !loaded {
				return e, true
			}
			if !e.expired(now) {
				return e, false
			}
			removed++
			return e, true
		})
	}
	return removed
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (m *DB) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureTTL | db.FeatureInsertionOrder
	return supported&feature == feature
}

func (m *DB) GetInfo() db.DatabaseInfo {
	tables := map[string]int{}
	m.tables.Range(func(name string, t *table) bool {
		tables[name] = t.rows.Size()
		return true
	})

	m.gcMu.Lock()
	backlog := m.expiry.Len()
	m.gcMu.Unlock()

	meta := &struct {
		Tables        map[string]int `json:"tables"`
		ExpiryBacklog int            `json:"expiry_backlog"`
		Connected     bool           `json:"connected"`
		Info          string         `json:"info"`
	}{
		Tables:        tables,
		ExpiryBacklog: backlog,
		Connected:     m.connected.Load(),
		Info:          "Row counts include expired rows not yet collected.",
	}

	return db.DatabaseInfo{
		DbType:            db.Implementation(m.name),
		SupportedFeatures: []db.Feature{db.FeatureTTL, db.FeatureInsertionOrder},
		Metadata:          meta,
	}
}
