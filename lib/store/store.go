package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/path"
	"github.com/ValentinKolb/hkv/lib/value"
)

type storeImpl struct {
	driver     db.Driver
	table      string
	opts       *options
	normalKeys atomic.Bool

	ready   chan struct{} // closed when Prepare returned
	prepErr error         // written before ready is closed
}

// New creates a store for table on driver. Preparing the table starts in the
// background, the driver should already be connected. If preparing fails
// every operation of the store fails with a NotReady error wrapping the cause.
func New(driver db.Driver, table string, opts ...Option) (IStore, error) {
	if driver == nil {
		return nil, db.InvalidArgument("store.new", "driver is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newStore(driver, table, o, o.normalKeys)
}

func newStore(driver db.Driver, table string, o *options, normalKeys bool) (*storeImpl, error) {
	if err := db.ValidateTableName("store.new", table); err != nil {
		return nil, err
	}
	s := &storeImpl{
		driver: driver,
		table:  table,
		opts:   o,
		ready:  make(chan struct{}),
	}
	s.normalKeys.Store(normalKeys)
	go s.prepare()
	return s, nil
}

func (s *storeImpl) prepare() {
	defer close(s.ready)
	start := time.Now()
	if err := s.driver.Prepare(context.Background(), s.table); err != nil {
		s.prepErr = err
		s.opts.log.Errorf("preparing table %q failed: %v", s.table, err)
		return
	}
	s.opts.log.Debugf("table %q ready after %s", s.table, time.Since(start))
}

// wait queues the caller behind the readiness of the table
func (s *storeImpl) wait(ctx context.Context, op string) error {
	select {
	case <-s.ready:
	default:
		select {
		case <-s.ready:
		case <-ctx.Done():
			return db.NotReady(op, ctx.Err())
		}
	}
	if s.prepErr != nil {
		return db.NotReady(op, s.prepErr)
	}
	return nil
}

// lock serializes mutations of root if key locking is enabled
func (s *storeImpl) lock(ctx context.Context, op, root string) (func(), error) {
	if s.opts.locker == nil {
		return func() {}, nil
	}
	lockKey := s.table + "\x00" + root
	ownerID, err := s.opts.locker.AcquireLock(ctx, lockKey)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, db.NotReady(op, err)
		}
		return nil, db.DriverError(op, err)
	}
	return func() { s.opts.locker.ReleaseLock(lockKey, ownerID) }, nil
}

// begin waits for readiness, resolves key and takes the key lock
func (s *storeImpl) begin(ctx context.Context, op, key string) (root string, segs []string, unlock func(), err error) {
	if key == "" {
		return "", nil, nil, db.InvalidArgument(op, "key must not be empty")
	}
	if err = s.wait(ctx, op); err != nil {
		return "", nil, nil, err
	}
	root, segs = path.Resolve(key, s.normalKeys.Load())
	if root == "" {
		return "", nil, nil, db.InvalidArgument(op, "key %q has an empty root", key)
	}
	unlock, err = s.lock(ctx, op, root)
	if err != nil {
		return "", nil, nil, err
	}
	return root, segs, unlock, nil
}

// --------------------------------------------------------------------------
// Read-modify-write helpers (callers hold the key lock)
// --------------------------------------------------------------------------

func (s *storeImpl) readRoot(ctx context.Context, root string) (any, bool, error) {
	v, found, err := s.driver.GetRowByKey(ctx, s.table, root)
	if err != nil {
		return nil, false, err
	}
	return v, found && v != nil, nil
}

func (s *storeImpl) read(ctx context.Context, root string, segs []string) (any, error) {
	current, found, err := s.readRoot(ctx, root)
	if err != nil || !found {
		return nil, err
	}
	v, _ := path.Read(current, segs)
	return v, nil
}

// write stores v at root/segs. A positive ttl makes the root row expire.
func (s *storeImpl) write(ctx context.Context, op, root string, segs []string, v any, ttl time.Duration) error {
	current, found, err := s.readRoot(ctx, root)
	if err != nil {
		return err
	}
	rowValue := path.Write(current, segs, v)

	if ttl > 0 {
		ed, ok := s.driver.(db.ExpiringDriver)
		if !ok || !s.driver.SupportsFeature(db.FeatureTTL) {
			return db.Unsupported(op)
		}
		_, err = ed.SetRowByKeyE(ctx, s.table, root, rowValue, found, time.Now().Add(ttl))
		return err
	}
	_, err = s.driver.SetRowByKey(ctx, s.table, root, rowValue, found)
	return err
}

func (s *storeImpl) readArray(ctx context.Context, op, key, root string, segs []string) ([]any, error) {
	current, err := s.read(ctx, root, segs)
	if err != nil {
		return nil, err
	}
	arr, ok := value.AsArray(current)
	if !ok {
		return nil, db.InvalidArgument(op, "value of %q is %s, expected an array", key, value.KindOf(current))
	}
	return arr, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Init(ctx context.Context) error {
	return s.wait(ctx, "init")
}

func (s *storeImpl) Get(ctx context.Context, key string) (any, error) {
	const op = "get"
	if key == "" {
		return nil, db.InvalidArgument(op, "key must not be empty")
	}
	if err := s.wait(ctx, op); err != nil {
		return nil, err
	}
	root, segs := path.Resolve(key, s.normalKeys.Load())
	if root == "" {
		return nil, db.InvalidArgument(op, "key %q has an empty root", key)
	}
	return s.read(ctx, root, segs)
}

func (s *storeImpl) Set(ctx context.Context, key string, v any) (any, error) {
	return s.set(ctx, "set", key, v, 0)
}

func (s *storeImpl) SetE(ctx context.Context, key string, v any, ttl time.Duration) (any, error) {
	const op = "setE"
	if ttl <= 0 {
		return nil, db.InvalidArgument(op, "ttl must be positive, got %s", ttl)
	}
	if !s.driver.SupportsFeature(db.FeatureTTL) {
		return nil, db.Unsupported(op)
	}
	return s.set(ctx, op, key, v, ttl)
}

func (s *storeImpl) set(ctx context.Context, op, key string, v any, ttl time.Duration) (any, error) {
	if v == nil {
		return nil, db.InvalidArgument(op, "value is required")
	}
	n, err := value.Normalize(v)
	if err != nil {
		return nil, db.InvalidArgument(op, "%v", err)
	}
	root, segs, unlock, err := s.begin(ctx, op, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.write(ctx, op, root, segs, n, ttl); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *storeImpl) Has(ctx context.Context, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (s *storeImpl) Delete(ctx context.Context, key string) (int64, error) {
	const op = "delete"
	root, segs, unlock, err := s.begin(ctx, op, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if len(segs) == 0 {
		return s.driver.DeleteRowByKey(ctx, s.table, root)
	}

	current, found, err := s.readRoot(ctx, root)
	if err != nil || !found {
		return 0, err
	}
	if _, exists := path.Read(current, segs); !exists {
		return 0, nil
	}
	if _, err := s.driver.SetRowByKey(ctx, s.table, root, path.Delete(current, segs), true); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *storeImpl) DeleteAll(ctx context.Context) (int64, error) {
	if err := s.wait(ctx, "deleteAll"); err != nil {
		return 0, err
	}
	return s.driver.DeleteAllRows(ctx, s.table)
}

func (s *storeImpl) Add(ctx context.Context, key string, n any) (float64, error) {
	return s.addSub(ctx, "add", key, n, 1)
}

func (s *storeImpl) Sub(ctx context.Context, key string, n any) (float64, error) {
	return s.addSub(ctx, "sub", key, n, -1)
}

func (s *storeImpl) addSub(ctx context.Context, op, key string, n any, sign float64) (float64, error) {
	if n == nil {
		return 0, db.InvalidArgument(op, "value is required")
	}
	operand, ok := value.ToNumber(n)
	if !ok {
		return 0, db.InvalidArgument(op, "value %v is not a number", n)
	}
	root, segs, unlock, err := s.begin(ctx, op, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	current, err := s.read(ctx, root, segs)
	if err != nil {
		return 0, err
	}
	number := 0.0
	if current != nil {
		if number, ok = value.ToNumber(current); !ok {
			return 0, db.InvalidArgument(op, "value of %q is %s and can not be read as a number", key, value.KindOf(current))
		}
	}

	result := number + sign*operand
	if err := s.write(ctx, op, root, segs, result, 0); err != nil {
		return 0, err
	}
	return result, nil
}

// mutateArray runs fn on the array at key and stores the array it returns
func (s *storeImpl) mutateArray(ctx context.Context, op, key string, fn func(arr []any) ([]any, error)) ([]any, error) {
	root, segs, unlock, err := s.begin(ctx, op, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	arr, err := s.readArray(ctx, op, key, root, segs)
	if err != nil {
		return nil, err
	}
	arr, err = fn(arr)
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, op, root, segs, arr, 0); err != nil {
		return nil, err
	}
	return arr, nil
}

func (s *storeImpl) Push(ctx context.Context, key string, values ...any) ([]any, error) {
	const op = "push"
	if len(values) == 0 {
		return nil, db.InvalidArgument(op, "at least one value is required")
	}
	items := make([]any, 0, len(values))
	for _, v := range values {
		n, err := value.Normalize(v)
		if err != nil {
			return nil, db.InvalidArgument(op, "%v", err)
		}
		items = append(items, n)
	}
	return s.mutateArray(ctx, op, key, func(arr []any) ([]any, error) {
		return append(arr, items...), nil
	})
}

func (s *storeImpl) Unshift(ctx context.Context, key string, v any) ([]any, error) {
	const op = "unshift"
	if v == nil {
		return nil, db.InvalidArgument(op, "value is required")
	}
	n, err := value.Normalize(v)
	if err != nil {
		return nil, db.InvalidArgument(op, "%v", err)
	}
	head, isArr := n.([]any)
	if !isArr {
		head = []any{n}
	}
	return s.mutateArray(ctx, op, key, func(arr []any) ([]any, error) {
		out := make([]any, 0, len(head)+len(arr))
		return append(append(out, head...), arr...), nil
	})
}

func (s *storeImpl) Pop(ctx context.Context, key string) (any, error) {
	var removed any
	_, err := s.mutateArray(ctx, "pop", key, func(arr []any) ([]any, error) {
		if len(arr) == 0 {
			return arr, nil
		}
		removed = arr[len(arr)-1]
		return arr[:len(arr)-1], nil
	})
	return removed, err
}

func (s *storeImpl) Shift(ctx context.Context, key string) (any, error) {
	var removed any
	_, err := s.mutateArray(ctx, "shift", key, func(arr []any) ([]any, error) {
		if len(arr) == 0 {
			return arr, nil
		}
		removed = arr[0]
		return arr[1:], nil
	})
	return removed, err
}

func (s *storeImpl) Pull(ctx context.Context, key string, v any, once bool) ([]any, error) {
	const op = "pull"
	match, err := pullMatcher(op, v)
	if err != nil {
		return nil, err
	}
	return s.mutateArray(ctx, op, key, func(arr []any) ([]any, error) {
		out := make([]any, 0, len(arr))
		removed := false
		for i, item := range arr {
			if (!once || !removed) && match(item, i) {
				removed = true
				continue
			}
			out = append(out, item)
		}
		return out, nil
	})
}

// pullMatcher turns the argument of Pull into a predicate
func pullMatcher(op string, v any) (func(item any, index int) bool, error) {
	switch t := v.(type) {
	case nil:
		return nil, db.InvalidArgument(op, "value is required")
	case func(item any, index int) bool:
		return t, nil
	}

	n, err := value.Normalize(v)
	if err != nil {
		return nil, db.InvalidArgument(op, "%v", err)
	}
	candidates, isArr := n.([]any)
	if !isArr {
		candidates = []any{n}
	}
	return func(item any, _ int) bool {
		for _, c := range candidates {
			if value.StrictEqual(item, c) {
				return true
			}
		}
		return false
	}, nil
}

func (s *storeImpl) All(ctx context.Context) ([]db.Row, error) {
	if err := s.wait(ctx, "all"); err != nil {
		return nil, err
	}
	return s.driver.GetAllRows(ctx, s.table)
}

func (s *storeImpl) Table(name string) (IStore, error) {
	return newStore(s.driver, name, s.opts, s.normalKeys.Load())
}

func (s *storeImpl) TableReady(ctx context.Context, name string) (IStore, error) {
	view, err := s.Table(name)
	if err != nil {
		return nil, err
	}
	if err := view.Init(ctx); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *storeImpl) UseNormalKeys(on bool) { s.normalKeys.Store(on) }

func (s *storeImpl) NormalKeys() bool { return s.normalKeys.Load() }

func (s *storeImpl) TableName() string { return s.table }

func (s *storeImpl) Driver() db.Driver { return s.driver }
