package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/db/engines/memory"
	"github.com/ValentinKolb/hkv/lib/events"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("driver")

// DB is a driver persisting all tables into a single snapshot file.
// Reads are served from memory. Every successful write rewrites the snapshot
// (temp file + rename), so the file always holds a complete state.
type DB struct {
	path string
	mem  *memory.DB
	mu   sync.Mutex // serializes snapshot writes
}

// Options configures the file driver
type Options struct {
	Path       string        // Path of the snapshot file (required)
	GCInterval time.Duration // Passed to the memory driver
	Sink       events.Sink   // Optional event sink
}

// New creates a new, not yet connected file driver
func New(opts Options) *DB {
	return &DB{
		path: opts.Path,
		mem: memory.New(&memory.Options{
			Name:       string(db.ImplFile),
			GCInterval: opts.GCInterval,
			Sink:       opts.Sink,
		}),
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Connect loads the snapshot file if it exists.
func (f *DB) Connect(ctx context.Context) error {
	if f.path == "" {
		return db.InvalidArgument("file.connect", "no file path configured")
	}
	if f.mem.Connected() {
		return nil
	}
	if err := f.load(); err != nil {
		return db.DriverError("file.connect", err)
	}
	return f.mem.Connect(ctx)
}

// Disconnect writes a final snapshot and disconnects.
func (f *DB) Disconnect(ctx context.Context) error {
	if !f.mem.Connected() {
		return nil
	}
	err := f.persist()
	if dErr := f.mem.Disconnect(ctx); err == nil {
		err = dErr
	}
	return db.DriverError("file.disconnect", err)
}

func (f *DB) Prepare(ctx context.Context, table string) error {
	if err := f.mem.Prepare(ctx, table); err != nil {
		return err
	}
	return db.DriverError("file.prepare", f.persist())
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (f *DB) GetAllRows(ctx context.Context, table string) ([]db.Row, error) {
	return f.mem.GetAllRows(ctx, table)
}

func (f *DB) GetRowByKey(ctx context.Context, table, key string) (any, bool, error) {
	return f.mem.GetRowByKey(ctx, table, key)
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// A failed snapshot leaves the mutation applied in memory, see the package docs.

func (f *DB) SetRowByKey(ctx context.Context, table, key string, value any, update bool) (any, error) {
	stored, err := f.mem.SetRowByKey(ctx, table, key, value, update)
	if err != nil {
		return nil, err
	}
	if err := f.persist(); err != nil {
		return nil, db.DriverError("file.setRowByKey", err)
	}
	return stored, nil
}

func (f *DB) SetRowByKeyE(ctx context.Context, table, key string, value any, update bool, expireAt time.Time) (any, error) {
	stored, err := f.mem.SetRowByKeyE(ctx, table, key, value, update, expireAt)
	if err != nil {
		return nil, err
	}
	if err := f.persist(); err != nil {
		return nil, db.DriverError("file.setRowByKey", err)
	}
	return stored, nil
}

func (f *DB) DeleteAllRows(ctx context.Context, table string) (int64, error) {
	n, err := f.mem.DeleteAllRows(ctx, table)
	if err != nil {
		return 0, err
	}
	if err := f.persist(); err != nil {
		return 0, db.DriverError("file.deleteAllRows", err)
	}
	return n, nil
}

func (f *DB) DeleteRowByKey(ctx context.Context, table, key string) (int64, error) {
	n, err := f.mem.DeleteRowByKey(ctx, table, key)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := f.persist(); err != nil {
		return 0, db.DriverError("file.deleteRowByKey", err)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Snapshot file handling
// --------------------------------------------------------------------------

// load reads the snapshot file into memory, a missing file is an empty database
func (f *DB) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		Logger.Infof("file: %s does not exist, starting empty", f.path)
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	if err := f.mem.Load(file); err != nil {
		return fmt.Errorf("load %s: %w", f.path, err)
	}
	Logger.Infof("file: loaded %s", f.path)
	return nil
}

// persist atomically replaces the snapshot file with the current state
func (f *DB) persist() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := f.mem.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (f *DB) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureTTL | db.FeatureInsertionOrder | db.FeaturePersistence
	return supported&feature == feature
}

func (f *DB) GetInfo() db.DatabaseInfo {
	info := f.mem.GetInfo()
	info.DbType = db.ImplFile
	info.SupportedFeatures = append(info.SupportedFeatures, db.FeaturePersistence)
	info.Metadata = &struct {
		Path   string `json:"path"`
		Memory any    `json:"memory"`
	}{
		Path:   f.path,
		Memory: info.Metadata,
	}
	return info
}
