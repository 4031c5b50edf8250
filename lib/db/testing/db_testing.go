package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/value"
)

// RunDriverTests runs the conformance suite for a db.Driver implementation.
// The factory must return a new driver that is not connected yet.
func RunDriverTests(t *testing.T, name string, factory db.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("NotConnected", func(t *testing.T) {
			testNotConnected(t, factory())
		})

		t.Run("Prepare", func(t *testing.T) {
			testPrepare(t, connect(t, factory()))
		})

		t.Run("InvalidTableName", func(t *testing.T) {
			testInvalidTableName(t, connect(t, factory()))
		})

		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, connect(t, factory()))
		})

		t.Run("UpdateHint", func(t *testing.T) {
			testUpdateHint(t, connect(t, factory()))
		})

		t.Run("ValueIsolation", func(t *testing.T) {
			testValueIsolation(t, connect(t, factory()))
		})

		t.Run("GetAllRows", func(t *testing.T) {
			testGetAllRows(t, connect(t, factory()))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, connect(t, factory()))
		})

		t.Run("TableIsolation", func(t *testing.T) {
			testTableIsolation(t, connect(t, factory()))
		})

		t.Run("Expiry", func(t *testing.T) {
			testExpiry(t, connect(t, factory()))
		})

		t.Run("Concurrency", func(t *testing.T) {
			testConcurrency(t, connect(t, factory()))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

var tableCounter atomic.Uint64

// uniqueTable returns a table name that was not used before, so suites can run
// against shared backends without cleaning up first.
func uniqueTable(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%1_000_000_000, tableCounter.Add(1))
}

// connect connects the driver and disconnects it when the test ends
func connect(t testing.TB, driver db.Driver) db.Driver {
	t.Helper()
	if err := driver.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() {
		_ = driver.Disconnect(context.Background())
	})
	return driver
}

// prepare creates a fresh table
func prepare(t testing.TB, driver db.Driver, prefix string) string {
	t.Helper()
	table := uniqueTable(prefix)
	if err := driver.Prepare(context.Background(), table); err != nil {
		t.Fatalf("Prepare(%s) failed: %v", table, err)
	}
	return table
}

// Checks if the driver supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, driver db.Driver, feature db.Feature) {
	if !driver.SupportsFeature(feature) {
		t.Skipf("driver does not support %s", feature)
	}
}

func mustSet(t testing.TB, driver db.Driver, table, key string, v any) {
	t.Helper()
	if _, err := driver.SetRowByKey(context.Background(), table, key, v, false); err != nil {
		t.Fatalf("SetRowByKey(%s, %s) failed: %v", table, key, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testNotConnected(t *testing.T, driver db.Driver) {
	ctx := context.Background()

	check := func(stage string) {
		if err := driver.Prepare(ctx, "not_connected"); !errors.Is(err, db.ErrNotConnected) {
			t.Errorf("%s: expected NotConnected from Prepare, got %v", stage, err)
		}
		if _, _, err := driver.GetRowByKey(ctx, "not_connected", "k"); !errors.Is(err, db.ErrNotConnected) {
			t.Errorf("%s: expected NotConnected from GetRowByKey, got %v", stage, err)
		}
		if _, err := driver.SetRowByKey(ctx, "not_connected", "k", "v", false); !errors.Is(err, db.ErrNotConnected) {
			t.Errorf("%s: expected NotConnected from SetRowByKey, got %v", stage, err)
		}
		if _, err := driver.GetAllRows(ctx, "not_connected"); !errors.Is(err, db.ErrNotConnected) {
			t.Errorf("%s: expected NotConnected from GetAllRows, got %v", stage, err)
		}
		if _, err := driver.DeleteRowByKey(ctx, "not_connected", "k"); !errors.Is(err, db.ErrNotConnected) {
			t.Errorf("%s: expected NotConnected from DeleteRowByKey, got %v", stage, err)
		}
		if _, err := driver.DeleteAllRows(ctx, "not_connected"); !errors.Is(err, db.ErrNotConnected) {
			t.Errorf("%s: expected NotConnected from DeleteAllRows, got %v", stage, err)
		}
	}

	check("before connect")

	if err := driver.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := driver.Prepare(ctx, uniqueTable("connected")); err != nil {
		t.Errorf("Prepare after Connect failed: %v", err)
	}
	if err := driver.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	check("after disconnect")
}

func testPrepare(t *testing.T, driver db.Driver) {
	ctx := context.Background()
	table := uniqueTable("prepare")

	// concurrent first use
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- driver.Prepare(ctx, table)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Prepare failed: %v", err)
		}
	}

	// idempotent, data survives
	mustSet(t, driver, table, "k", "v")
	if err := driver.Prepare(ctx, table); err != nil {
		t.Fatalf("second Prepare failed: %v", err)
	}
	if v, found, err := driver.GetRowByKey(ctx, table, "k"); err != nil || !found || v != "v" {
		t.Errorf("Expected row to survive Prepare, got (%v, %v, %v)", v, found, err)
	}
}

func testInvalidTableName(t *testing.T, driver db.Driver) {
	ctx := context.Background()
	for _, name := range []string{"", "1abc", "a-b", "a b", "x;DROP TABLE y", "a.b"} {
		if err := driver.Prepare(ctx, name); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("Prepare(%q): expected InvalidArgument, got %v", name, err)
		}
		if _, err := driver.SetRowByKey(ctx, name, "k", "v", false); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("SetRowByKey(%q): expected InvalidArgument, got %v", name, err)
		}
	}
}

func testSetGet(t *testing.T, driver db.Driver) {
	ctx := context.Background()
	table := prepare(t, driver, "setget")

	values := map[string]any{
		"string": "hello",
		"number": 42.5,
		"zero":   0.0,
		"true":   true,
		"false":  false,
		"array":  []any{1.0, "two", []any{3.0}, map[string]any{"four": 4.0}},
		"object": map[string]any{"name": "x", "nested": map[string]any{"list": []any{}, "n": -1.0}},
		"empty":  "",
		"emoji":  "ü ✓ 🚀",
	}

	for key, v := range values {
		stored, err := driver.SetRowByKey(ctx, table, key, v, false)
		if err != nil {
			t.Fatalf("SetRowByKey(%s) failed: %v", key, err)
		}
		if !value.StrictEqual(stored, v) {
			t.Errorf("SetRowByKey(%s) returned %#v, expected %#v", key, stored, v)
		}
	}

	for key, v := range values {
		got, found, err := driver.GetRowByKey(ctx, table, key)
		if err != nil {
			t.Fatalf("GetRowByKey(%s) failed: %v", key, err)
		}
		if !found {
			t.Errorf("Expected key %s to exist after Set", key)
			continue
		}
		if !value.StrictEqual(got, v) {
			t.Errorf("GetRowByKey(%s) = %#v, expected %#v", key, got, v)
		}
	}

	// integers are normalized to numbers
	mustSet(t, driver, table, "int", 7)
	if got, _, _ := driver.GetRowByKey(ctx, table, "int"); got != 7.0 {
		t.Errorf("Expected int to come back as 7.0, got %#v", got)
	}

	// overwrite
	mustSet(t, driver, table, "string", "world")
	if got, _, _ := driver.GetRowByKey(ctx, table, "string"); got != "world" {
		t.Errorf("Expected overwritten value world, got %#v", got)
	}

	// not found is not an error
	got, found, err := driver.GetRowByKey(ctx, table, "nonexistent-key")
	if err != nil || found || got != nil {
		t.Errorf("Expected (nil, false, nil) for missing key, got (%v, %v, %v)", got, found, err)
	}
}

func testUpdateHint(t *testing.T, driver db.Driver) {
	ctx := context.Background()
	table := prepare(t, driver, "hint")

	// a wrong hint must still upsert
	if _, err := driver.SetRowByKey(ctx, table, "missing", "a", true); err != nil {
		t.Fatalf("SetRowByKey with update hint on missing row failed: %v", err)
	}
	if got, found, _ := driver.GetRowByKey(ctx, table, "missing"); !found || got != "a" {
		t.Errorf("Expected upsert despite update hint, got (%v, %v)", got, found)
	}

	if _, err := driver.SetRowByKey(ctx, table, "missing", "b", false); err != nil {
		t.Fatalf("SetRowByKey without hint on existing row failed: %v", err)
	}
	if got, _, _ := driver.GetRowByKey(ctx, table, "missing"); got != "b" {
		t.Errorf("Expected b after insert hint on existing row, got %v", got)
	}

	rows, err := driver.GetAllRows(ctx, table)
	if err != nil {
		t.Fatalf("GetAllRows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected exactly one row, got %d", len(rows))
	}
}

func testValueIsolation(t *testing.T, driver db.Driver) {
	ctx := context.Background()
	table := prepare(t, driver, "isolation")

	input := map[string]any{"list": []any{1.0}}
	mustSet(t, driver, table, "k", input)
	input["list"] = []any{2.0}

	got, _, _ := driver.GetRowByKey(ctx, table, "k")
	obj, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Expected object, got %#v", got)
	}
	if !value.StrictEqual(obj["list"], []any{1.0}) {
		t.Errorf("Stored value changed with the input: %#v", obj)
	}

	obj["list"] = "mutated"
	again, _, _ := driver.GetRowByKey(ctx, table, "k")
	if !value.StrictEqual(again, map[string]any{"list": []any{1.0}}) {
		t.Errorf("Stored value changed through a returned value: %#v", again)
	}
}

func testGetAllRows(t *testing.T, driver db.Driver) {
	ctx := context.Background()
	table := prepare(t, driver, "all")

	rows, err := driver.GetAllRows(ctx, table)
	if err != nil {
		t.Fatalf("GetAllRows on empty table failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected empty table, got %d rows", len(rows))
	}

	keys := []string{"c", "a", "b", "e", "d"}
	for i, k := range keys {
		mustSet(t, driver, table, k, float64(i))
	}
	// updating a row does not change its position
	mustSet(t, driver, table, "c", 10.0)

	rows, err = driver.GetAllRows(ctx, table)
	if err != nil {
		t.Fatalf("GetAllRows failed: %v", err)
	}
	if len(rows) != len(keys) {
		t.Fatalf("Expected %d rows, got %d", len(keys), len(rows))
	}

	byID := map[string]any{}
	for _, r := range rows {
		byID[r.ID] = r.Value
	}
	if byID["c"] != 10.0 || byID["a"] != 1.0 || byID["d"] != 4.0 {
		t.Errorf("Unexpected rows: %v", byID)
	}

	if driver.SupportsFeature(db.FeatureInsertionOrder) {
		for i, k := range keys {
			if rows[i].ID != k {
				t.Errorf("Expected insertion order %v, got row %d = %s", keys, i, rows[i].ID)
				break
			}
		}
	}
}

func testDelete(t *testing.T, driver db.Driver) {
	ctx := context.Background()
	table := prepare(t, driver, "del")

	mustSet(t, driver, table, "a", 1.0)
	mustSet(t, driver, table, "b", 2.0)
	mustSet(t, driver, table, "c", 3.0)

	n, err := driver.DeleteRowByKey(ctx, table, "a")
	if err != nil || n != 1 {
		t.Errorf("DeleteRowByKey(existing) = (%d, %v), expected (1, nil)", n, err)
	}
	if _, found, _ := driver.GetRowByKey(ctx, table, "a"); found {
		t.Errorf("Expected a to be deleted")
	}

	n, err = driver.DeleteRowByKey(ctx, table, "a")
	if err != nil || n != 0 {
		t.Errorf("DeleteRowByKey(missing) = (%d, %v), expected (0, nil)", n, err)
	}

	n, err = driver.DeleteAllRows(ctx, table)
	if err != nil || n != 2 {
		t.Errorf("DeleteAllRows = (%d, %v), expected (2, nil)", n, err)
	}
	rows, _ := driver.GetAllRows(ctx, table)
	if len(rows) != 0 {
		t.Errorf("Expected empty table after DeleteAllRows, got %d rows", len(rows))
	}

	n, err = driver.DeleteAllRows(ctx, table)
	if err != nil || n != 0 {
		t.Errorf("DeleteAllRows on empty table = (%d, %v), expected (0, nil)", n, err)
	}

	// the table is still usable
	mustSet(t, driver, table, "again", true)
	if _, found, _ := driver.GetRowByKey(ctx, table, "again"); !found {
		t.Errorf("Expected table to be usable after DeleteAllRows")
	}
}

func testTableIsolation(t *testing.T, driver db.Driver) {
	ctx := context.Background()
	t1 := prepare(t, driver, "iso_a")
	t2 := prepare(t, driver, "iso_b")

	mustSet(t, driver, t1, "k", "one")
	mustSet(t, driver, t2, "k", "two")

	if v, _, _ := driver.GetRowByKey(ctx, t1, "k"); v != "one" {
		t.Errorf("Expected one in %s, got %v", t1, v)
	}
	if v, _, _ := driver.GetRowByKey(ctx, t2, "k"); v != "two" {
		t.Errorf("Expected two in %s, got %v", t2, v)
	}

	if _, err := driver.DeleteAllRows(ctx, t1); err != nil {
		t.Fatalf("DeleteAllRows failed: %v", err)
	}
	if _, found, _ := driver.GetRowByKey(ctx, t2, "k"); !found {
		t.Errorf("DeleteAllRows on %s removed rows of %s", t1, t2)
	}
}

func testExpiry(t *testing.T, driver db.Driver) {
	requireFeature(t, driver, db.FeatureTTL)
	ed, ok := driver.(db.ExpiringDriver)
	if !ok {
		t.Fatalf("driver reports FeatureTTL but does not implement db.ExpiringDriver")
	}

	ctx := context.Background()
	table := prepare(t, driver, "ttl")

	if _, err := ed.SetRowByKeyE(ctx, table, "past", "gone", false, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("SetRowByKeyE failed: %v", err)
	}
	if _, err := ed.SetRowByKeyE(ctx, table, "future", "here", false, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetRowByKeyE failed: %v", err)
	}
	mustSet(t, driver, table, "forever", "here")

	if _, found, _ := driver.GetRowByKey(ctx, table, "past"); found {
		t.Errorf("Expected expired row to be invisible")
	}
	if v, found, _ := driver.GetRowByKey(ctx, table, "future"); !found || v != "here" {
		t.Errorf("Expected not yet expired row to be visible, got (%v, %v)", v, found)
	}

	rows, err := driver.GetAllRows(ctx, table)
	if err != nil {
		t.Fatalf("GetAllRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("Expected 2 live rows, got %d", len(rows))
	}

	// an expired row does not count as deleted
	if n, _ := driver.DeleteRowByKey(ctx, table, "past"); n != 0 {
		t.Errorf("Expected deleting an expired row to report 0, got %d", n)
	}

	// a plain write keeps the expiration time of a live row
	if _, err := ed.SetRowByKeyE(ctx, table, "short", "v", false, time.Now().Add(150*time.Millisecond)); err != nil {
		t.Fatalf("SetRowByKeyE failed: %v", err)
	}
	if _, err := driver.SetRowByKey(ctx, table, "short", "v2", true); err != nil {
		t.Fatalf("SetRowByKey failed: %v", err)
	}
	if v, found, _ := driver.GetRowByKey(ctx, table, "short"); !found || v != "v2" {
		t.Errorf("Expected rewritten row to be visible, got (%v, %v)", v, found)
	}

	// SetRowByKeyE with the zero time removes the expiration
	if _, err := ed.SetRowByKeyE(ctx, table, "cleared", "v", false, time.Now().Add(150*time.Millisecond)); err != nil {
		t.Fatalf("SetRowByKeyE failed: %v", err)
	}
	if _, err := ed.SetRowByKeyE(ctx, table, "cleared", "v2", true, time.Time{}); err != nil {
		t.Fatalf("SetRowByKeyE failed: %v", err)
	}

	// a plain write over an expired row starts without expiration
	if _, err := ed.SetRowByKeyE(ctx, table, "revived", "old", false, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("SetRowByKeyE failed: %v", err)
	}
	mustSet(t, driver, table, "revived", "new")

	time.Sleep(400 * time.Millisecond)
	if v, found, _ := driver.GetRowByKey(ctx, table, "short"); found {
		t.Errorf("Expected rewritten row to keep its expiration, got %v", v)
	}
	if v, found, _ := driver.GetRowByKey(ctx, table, "cleared"); !found || v != "v2" {
		t.Errorf("Expected row written with zero expiration to stay, got (%v, %v)", v, found)
	}
	if v, found, _ := driver.GetRowByKey(ctx, table, "revived"); !found || v != "new" {
		t.Errorf("Expected row written over an expired one to stay, got (%v, %v)", v, found)
	}
}

func testConcurrency(t *testing.T, driver db.Driver) {
	ctx := context.Background()
	table := prepare(t, driver, "conc")

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	var failures atomic.Int64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if _, err := driver.SetRowByKey(ctx, table, key, map[string]any{"w": float64(w), "i": float64(i)}, false); err != nil {
					failures.Add(1)
					continue
				}
				v, found, err := driver.GetRowByKey(ctx, table, key)
				if err != nil || !found || !value.StrictEqual(v, map[string]any{"w": float64(w), "i": float64(i)}) {
					failures.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	if n := failures.Load(); n > 0 {
		t.Errorf("%d concurrent operations failed", n)
	}
	rows, err := driver.GetAllRows(ctx, table)
	if err != nil {
		t.Fatalf("GetAllRows failed: %v", err)
	}
	if len(rows) != workers*perWorker {
		t.Errorf("Expected %d rows, got %d", workers*perWorker, len(rows))
	}
}
