package memory

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	dbtesting "github.com/ValentinKolb/hkv/lib/db/testing"
	"github.com/ValentinKolb/hkv/lib/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	dbtesting.RunDriverTests(t, "Memory", func() db.Driver {
		return New(nil)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunDriverBenchmarks(b, "Memory", func() db.Driver {
		return New(nil)
	})
}

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCollect(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := New(&Options{Clock: clock.Now, GCInterval: time.Hour})
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	defer m.Disconnect(ctx)

	_, err := m.SetRowByKeyE(ctx, "t", "a", "1", false, clock.Now().Add(time.Second))
	require.NoError(t, err)
	_, err = m.SetRowByKeyE(ctx, "t", "b", "2", false, clock.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = m.SetRowByKeyE(ctx, "t", "c", "3", false, clock.Now().Add(time.Second))
	require.NoError(t, err)
	// rewritten without expiration, the heap item is stale
	_, err = m.SetRowByKey(ctx, "t", "c", "3", false)
	require.NoError(t, err)

	assert.Equal(t, 0, m.collect())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, m.collect())

	table, _ := m.tables.Load("t")
	_, hasA := table.rows.Load("a")
	_, hasB := table.rows.Load("b")
	_, hasC := table.rows.Load("c")
	assert.False(t, hasA)
	assert.True(t, hasB)
	assert.True(t, hasC)
	assert.Equal(t, 1, m.expiry.Len())
}

func TestBackgroundGC(t *testing.T) {
	m := New(&Options{GCInterval: 10 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	defer m.Disconnect(ctx)

	_, err := m.SetRowByKeyE(ctx, "t", "a", "1", false, time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		table, _ := m.tables.Load("t")
		return table.rows.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	src := New(nil)
	require.NoError(t, src.Connect(ctx))
	defer src.Disconnect(ctx)

	require.NoError(t, src.Prepare(ctx, "users"))
	require.NoError(t, src.Prepare(ctx, "empty"))
	_, _ = src.SetRowByKey(ctx, "users", "b", map[string]any{"name": "bob"}, false)
	_, _ = src.SetRowByKey(ctx, "users", "a", []any{1.0, "x"}, false)
	_, _ = src.SetRowByKeyE(ctx, "users", "gone", "x", false, time.Now().Add(-time.Second))
	_, _ = src.SetRowByKeyE(ctx, "users", "later", "y", false, time.Now().Add(time.Hour))

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))

	dst := New(nil)
	require.NoError(t, dst.Connect(ctx))
	defer dst.Disconnect(ctx)
	_, _ = dst.SetRowByKey(ctx, "other", "x", "replaced", false)
	require.NoError(t, dst.Load(bytes.NewReader(buf.Bytes())))

	rows, err := dst.GetAllRows(ctx, "users")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "b", rows[0].ID)
	assert.Equal(t, map[string]any{"name": "bob"}, rows[0].Value)
	assert.Equal(t, "a", rows[1].ID)
	assert.Equal(t, "later", rows[2].ID)

	_, ok := dst.tables.Load("empty")
	assert.True(t, ok, "prepared empty tables survive a snapshot")
	_, ok = dst.tables.Load("other")
	assert.False(t, ok, "Load replaces existing content")
	assert.Equal(t, 1, dst.expiry.Len())

	// new rows are appended after the loaded ones
	_, _ = dst.SetRowByKey(ctx, "users", "c", 1, false)
	rows, _ = dst.GetAllRows(ctx, "users")
	assert.Equal(t, "c", rows[len(rows)-1].ID)
}

func TestLoadRejectsGarbage(t *testing.T) {
	m := New(nil)
	assert.Error(t, m.Load(bytes.NewReader([]byte("NOTASNAPSHOT"))))
	assert.Error(t, m.Load(bytes.NewReader(nil)))
}

func TestEvents(t *testing.T) {
	sink := events.NewChanSink(32)
	m := New(&Options{Sink: sink})
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Prepare(ctx, "t"))
	_, _ = m.SetRowByKey(ctx, "t", "k", 1, false)
	_, _ = m.SetRowByKey(ctx, "t", "k", 2, true)
	_, _, _ = m.GetRowByKey(ctx, "t", "k")
	_, _, _ = m.GetRowByKey(ctx, "t", "missing")
	_, _ = m.DeleteRowByKey(ctx, "t", "k")
	require.NoError(t, m.Disconnect(ctx))

	expected := []events.Kind{
		events.KindConnected,
		events.KindTablePrepared,
		events.KindRowInserted,
		events.KindRowUpdated,
		events.KindRowFetched,
		events.KindRowNotFound,
		events.KindRowDeleted,
		events.KindDisconnected,
	}
	for _, kind := range expected {
		select {
		case e := <-sink.C():
			assert.Equal(t, kind, e.Kind)
			assert.Equal(t, "memory", e.Driver)
			assert.NotEmpty(t, e.ID)
		default:
			t.Fatalf("missing event %s", kind)
		}
	}
}

func TestInfo(t *testing.T) {
	m := New(nil)
	assert.True(t, m.SupportsFeature(db.FeatureTTL|db.FeatureInsertionOrder))
	assert.False(t, m.SupportsFeature(db.FeaturePersistence))
	assert.Equal(t, db.ImplMemory, m.GetInfo().DbType)
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	m := New(nil)
	require.NoError(t, m.Connect(ctx))
	defer m.Disconnect(ctx)
	_, err := m.SetRowByKey(ctx, "t", "k", "kept", false)
	require.NoError(t, err)

	// huge table count and name length followed by a few bytes only
	var buf bytes.Buffer
	buf.WriteString(magicNum)
	buf.WriteByte(snapshotVersion)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(math.MaxUint32)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(math.MaxUint32)))
	buf.WriteString("abc")

	err = m.Load(&buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// a failed load leaves the content alone
	v, found, err := m.GetRowByKey(ctx, "t", "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "kept", v)

	// a truncated snapshot fails as well
	var full bytes.Buffer
	require.NoError(t, m.Save(&full))
	err = m.Load(bytes.NewReader(full.Bytes()[:full.Len()-2]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
