package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/db/engines/memory"
	"github.com/ValentinKolb/hkv/lib/lockmgr"
	"github.com/ValentinKolb/hkv/lib/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) IStore {
	t.Helper()
	ctx := context.Background()
	drv := memory.New(nil)
	require.NoError(t, drv.Connect(ctx))
	t.Cleanup(func() { _ = drv.Disconnect(ctx) })

	s, err := New(drv, "json", opts...)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx))
	return s
}

func TestNew(t *testing.T) {
	_, err := New(nil, "json")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	_, err = New(memory.New(nil), "not a table")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestNotReady(t *testing.T) {
	ctx := context.Background()

	// preparing fails on a driver that is not connected
	s, err := New(memory.New(nil), "json")
	require.NoError(t, err)

	err = s.Init(ctx)
	require.ErrorIs(t, err, db.ErrNotReady)
	assert.ErrorIs(t, err, db.ErrNotConnected)

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, db.ErrNotReady)
	_, err = s.Set(ctx, "a", 1)
	assert.ErrorIs(t, err, db.ErrNotReady)
}

// slowDriver blocks Prepare until release is closed
type slowDriver struct {
	*memory.DB
	release chan struct{}
}

func (d slowDriver) Prepare(ctx context.Context, table string) error {
	<-d.release
	return d.DB.Prepare(ctx, table)
}

func TestQueueBehindReadiness(t *testing.T) {
	ctx := context.Background()
	drv := slowDriver{DB: memory.New(nil), release: make(chan struct{})}
	require.NoError(t, drv.Connect(ctx))
	defer drv.Disconnect(ctx)

	s, err := New(drv, "json")
	require.NoError(t, err)

	// a context ending before the table is ready
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Get(short, "a")
	require.ErrorIs(t, err, db.ErrNotReady)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a call issued before readiness completes afterward
	done := make(chan error, 1)
	go func() {
		_, err := s.Set(ctx, "a", "queued")
		done <- err
	}()
	close(drv.release)
	require.NoError(t, <-done)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "queued", got)
}

func TestSetGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	values := []any{
		"text",
		42.0,
		true,
		false,
		0.0,
		"",
		[]any{1.0, "two", nil},
		map[string]any{"nested": map[string]any{"deep": []any{}}},
	}
	for i, v := range values {
		key := fmt.Sprintf("k%d", i)
		stored, err := s.Set(ctx, key, v)
		require.NoError(t, err)
		assert.Equal(t, v, stored)

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, v, got, "key %s", key)
	}

	// native go values are normalized
	_, err := s.Set(ctx, "int", 7)
	require.NoError(t, err)
	got, err := s.Get(ctx, "int")
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)

	got, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, "a", nil)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	_, err = s.Set(ctx, "a", make(chan int))
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	_, err = s.Set(ctx, "", 1)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	_, err = s.Get(ctx, "")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	_, err = s.Get(ctx, ".a")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestDottedKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Set(ctx, "a.b", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored, "set returns the leaf")

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 1.0}, got)

	got, err = s.Get(ctx, "a.b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	_, err = s.Set(ctx, "a.c.d", "deep")
	require.NoError(t, err)
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 1.0, "c": map[string]any{"d": "deep"}}, got)

	// a missing intermediate reads as absent
	got, err = s.Get(ctx, "a.x.y")
	require.NoError(t, err)
	assert.Nil(t, got)

	// a non object root is replaced by an object
	_, err = s.Set(ctx, "scalar", 5)
	require.NoError(t, err)
	_, err = s.Set(ctx, "scalar.x", 1)
	require.NoError(t, err)
	got, err = s.Get(ctx, "scalar")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1.0}, got)
}

func TestNormalKeys(t *testing.T) {
	s := newTestStore(t, WithNormalKeys())
	ctx := context.Background()
	assert.True(t, s.NormalKeys())

	_, err := s.Set(ctx, "a.b", 1)
	require.NoError(t, err)

	got, err := s.Get(ctx, "a.b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	s.UseNormalKeys(false)
	assert.False(t, s.NormalKeys())
	_, err = s.Set(ctx, "a.b", 2)
	require.NoError(t, err)
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 2.0}, got)
}

func TestHas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Has(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Set(ctx, "a.b", false)
	require.NoError(t, err)

	ok, err = s.Has(ctx, "a.b")
	require.NoError(t, err)
	assert.True(t, ok, "false is a value")

	ok, err = s.Has(ctx, "a.c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, "root", "v")
	require.NoError(t, err)
	n, err := s.Delete(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := s.Get(ctx, "root")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err = s.Delete(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// nested delete keeps siblings and the row
	_, err = s.Set(ctx, "a.b", 1)
	require.NoError(t, err)
	_, err = s.Set(ctx, "a.c", 2)
	require.NoError(t, err)

	n, err = s.Delete(ctx, "a.b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = s.Get(ctx, "a.b")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = s.Get(ctx, "a.c")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	n, err = s.Delete(ctx, "a.c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got, "the emptied object stays")

	n, err = s.Delete(ctx, "missing.path")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Set(ctx, fmt.Sprintf("k%d", i), i)
		require.NoError(t, err)
	}
	n, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rows, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAddSub(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Add(ctx, "n", 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, n)

	n, err = s.Sub(ctx, "n", 5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, n)

	got, err := s.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	// numeric strings are coerced
	_, err = s.Set(ctx, "s", "10")
	require.NoError(t, err)
	n, err = s.Add(ctx, "s", "2.5")
	require.NoError(t, err)
	assert.Equal(t, 12.5, n)

	// nested counters
	n, err = s.Add(ctx, "stats.visits", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, n)
	got, err = s.Get(ctx, "stats")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"visits": 1.0}, got)

	_, err = s.Add(ctx, "n", "abc")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
	_, err = s.Add(ctx, "n", nil)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	_, err = s.Set(ctx, "obj", map[string]any{"a": 1})
	require.NoError(t, err)
	_, err = s.Sub(ctx, "obj", 1)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestArrayMutators(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	arr, err := s.Push(ctx, "arr", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, arr)

	removed, err := s.Pop(ctx, "arr")
	require.NoError(t, err)
	assert.Equal(t, 2.0, removed)

	got, err := s.Get(ctx, "arr")
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, got)

	arr, err = s.Unshift(ctx, "arr", 0)
	require.NoError(t, err)
	assert.Equal(t, []any{0.0, 1.0}, arr)

	// an array argument is spliced in
	arr, err = s.Unshift(ctx, "arr", []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", 0.0, 1.0}, arr)

	removed, err = s.Shift(ctx, "arr")
	require.NoError(t, err)
	assert.Equal(t, "a", removed)

	got, err = s.Get(ctx, "arr")
	require.NoError(t, err)
	assert.Equal(t, []any{"b", 0.0, 1.0}, got)

	// empty arrays
	removed, err = s.Pop(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, removed)
	removed, err = s.Shift(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, removed)

	// nested arrays
	_, err = s.Push(ctx, "user.tags", "x")
	require.NoError(t, err)
	got, err = s.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tags": []any{"x"}}, got)
}

func TestArrayMutatorsInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, "str", "not an array")
	require.NoError(t, err)

	_, err = s.Push(ctx, "str", 1)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
	_, err = s.Pop(ctx, "str")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
	_, err = s.Shift(ctx, "str")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
	_, err = s.Unshift(ctx, "str", 1)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
	_, err = s.Pull(ctx, "str", 1, false)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	_, err = s.Push(ctx, "arr")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
	_, err = s.Unshift(ctx, "arr", nil)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
	_, err = s.Pull(ctx, "arr", nil, false)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestPull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, "arr", []any{1, 2, 1, 3, 1})
	require.NoError(t, err)

	arr, err := s.Pull(ctx, "arr", 1, true)
	require.NoError(t, err)
	assert.Equal(t, []any{2.0, 1.0, 3.0, 1.0}, arr)

	arr, err = s.Pull(ctx, "arr", 1, false)
	require.NoError(t, err)
	assert.Equal(t, []any{2.0, 3.0}, arr)

	got, err := s.Get(ctx, "arr")
	require.NoError(t, err)
	assert.Equal(t, []any{2.0, 3.0}, got)

	// a list of candidates
	_, err = s.Set(ctx, "arr", []any{"a", "b", "c", "a"})
	require.NoError(t, err)
	arr, err = s.Pull(ctx, "arr", []any{"a", "c"}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"b"}, arr)

	// objects compare structurally
	_, err = s.Set(ctx, "objs", []any{map[string]any{"id": 1}, map[string]any{"id": 2}})
	require.NoError(t, err)
	arr, err = s.Pull(ctx, "objs", map[string]any{"id": 1}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": 2.0}}, arr)

	// a predicate
	_, err = s.Set(ctx, "nums", []any{1, 2, 3, 4})
	require.NoError(t, err)
	arr, err = s.Pull(ctx, "nums", func(item any, _ int) bool {
		return item.(float64) > 2
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, arr)

	arr, err = s.Pull(ctx, "nums", func(_ any, index int) bool { return index >= 0 }, true)
	require.NoError(t, err)
	assert.Equal(t, []any{2.0}, arr)
}

func TestSetE(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SetE(ctx, "session", "token", 50*time.Millisecond)
	require.NoError(t, err)

	got, err := s.Get(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, "token", got)

	assert.Eventually(t, func() bool {
		ok, err := s.Has(ctx, "session")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)

	_, err = s.SetE(ctx, "session", "token", 0)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestMutationsKeepExpiration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SetE(ctx, "session", []any{"x"}, 100*time.Millisecond)
	require.NoError(t, err)
	_, err = s.Push(ctx, "session", "y")
	require.NoError(t, err)

	_, err = s.SetE(ctx, "counter", map[string]any{"n": 1.0}, 100*time.Millisecond)
	require.NoError(t, err)
	_, err = s.Add(ctx, "counter.n", 1)
	require.NoError(t, err)
	_, err = s.Set(ctx, "counter.m", 2)
	require.NoError(t, err)
	_, err = s.Delete(ctx, "counter.n")
	require.NoError(t, err)

	got, err := s.Get(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, got)

	assert.Eventually(t, func() bool {
		a, err1 := s.Has(ctx, "session")
		b, err2 := s.Has(ctx, "counter")
		return err1 == nil && err2 == nil && !a && !b
	}, 2*time.Second, 10*time.Millisecond)
}

// plainDriver hides the TTL support of the wrapped driver
type plainDriver struct {
	*memory.DB
}

func (d plainDriver) SupportsFeature(f db.Feature) bool {
	return f&db.FeatureTTL == 0 && d.DB.SupportsFeature(f)
}

func TestSetEUnsupported(t *testing.T) {
	ctx := context.Background()
	drv := plainDriver{DB: memory.New(nil)}
	require.NoError(t, drv.Connect(ctx))
	defer drv.Disconnect(ctx)

	s, err := New(drv, "json")
	require.NoError(t, err)
	_, err = s.SetE(ctx, "a", 1, time.Minute)
	assert.ErrorIs(t, err, db.ErrUnsupportedOperation)
}

func TestTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	other, err := s.TableReady(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "other", other.TableName())
	assert.Same(t, s.Driver(), other.Driver())

	_, err = s.Set(ctx, "a", "default")
	require.NoError(t, err)
	_, err = other.Set(ctx, "a", "other")
	require.NoError(t, err)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "default", got)

	n, err := other.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "default", got)

	_, err = s.Table("bad-name")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestConcurrentSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, v := range []string{"first", "second"} {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			_, err := s.Set(ctx, "k", v)
			assert.NoError(t, err)
		}(v)
	}
	wg.Wait()

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Contains(t, []any{"first", "second"}, got)
}

func TestKeyLocking(t *testing.T) {
	s := newTestStore(t, WithKeyLocking())
	ctx := context.Background()

	const workers, increments = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				_, err := s.Add(ctx, "counter.hits", 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "counter.hits")
	require.NoError(t, err)
	assert.Equal(t, float64(workers*increments), got)
}

// brokenLocks fails every acquire with err
type brokenLocks struct{ err error }

func (b brokenLocks) AcquireLock(ctx context.Context, key string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", b.err
}

func (b brokenLocks) ReleaseLock(key, ownerID string) bool { return false }

var _ lockmgr.ILockManager = brokenLocks{}

func TestLockErrors(t *testing.T) {
	s := newTestStore(t, WithLockManager(brokenLocks{err: errors.New("connection refused")}))

	_, err := s.Set(context.Background(), "k", 1)
	assert.ErrorIs(t, err, db.ErrDriver)
	assert.NotErrorIs(t, err, db.ErrNotReady)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Set(ctx, "k", 1)
	assert.ErrorIs(t, err, db.ErrNotReady)
}

func TestQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, "a", map[string]any{"age": 17, "score": 3})
	require.NoError(t, err)
	_, err = s.Set(ctx, "b", map[string]any{"age": 18, "score": "n/a"})
	require.NoError(t, err)
	_, err = s.Set(ctx, "c", map[string]any{"age": 40, "score": 10})
	require.NoError(t, err)

	rows, err := s.Compare(ctx, "age", ">=", 18, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, rowIDs(rows))

	rows, err = s.Between(ctx, 0, 10, "score", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, rowIDs(rows))

	rows, err = s.StartsWith(ctx, "b", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, rowIDs(rows))

	rows, err = s.Custom(ctx, func(_ context.Context, r db.Row) (bool, error) {
		return r.ID != "a", nil
	}, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, rowIDs(rows))

	boom := errors.New("boom")
	_, err = s.Custom(ctx, query.Predicate(func(context.Context, db.Row) (bool, error) {
		return false, boom
	}), "")
	assert.ErrorIs(t, err, boom)

	// queries on a stored array
	_, err = s.Push(ctx, "team",
		map[string]any{"id": "t1", "value": map[string]any{"role": "lead"}},
		map[string]any{"id": "t2", "value": map[string]any{"role": "dev"}},
	)
	require.NoError(t, err)
	rows, err = s.In(ctx, "dev", "role", "team")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, rowIDs(rows))

	_, err = s.In(ctx, "x", "", "a")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func rowIDs(rows []db.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}
