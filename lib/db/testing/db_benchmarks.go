package testing

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
)

// RunDriverBenchmarks runs all benchmarks for a db.Driver implementation
func RunDriverBenchmarks(b *testing.B, name string, factory db.Factory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, connect(b, factory()))
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, connect(b, factory()))
	})

	b.Run("SetLargeValue", func(b *testing.B) {
		benchmarkSetLargeValue(b, connect(b, factory()))
	})

	b.Run("SetWithExpiry", func(b *testing.B) {
		benchmarkSetWithExpiry(b, connect(b, factory()))
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, connect(b, factory()))
	})

	b.Run("GetAllRows", func(b *testing.B) {
		benchmarkGetAllRows(b, connect(b, factory()))
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, connect(b, factory()))
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, connect(b, factory()))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for SetRowByKey on new keys
func benchmarkSet(b *testing.B, driver db.Driver) {
	ctx := context.Background()
	table := prepare(b, driver, "bench_set")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		worker := rand.Int63()
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d-%d", worker, counter)
			_, _ = driver.SetRowByKey(ctx, table, key, map[string]any{"n": float64(counter)}, false)
			counter++
		}
	})
}

// Benchmark for SetRowByKey on existing keys (update hint set)
func benchmarkSetExisting(b *testing.B, driver db.Driver) {
	ctx := context.Background()
	table := prepare(b, driver, "bench_setex")

	// Prepare data
	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		mustSet(b, driver, table, fmt.Sprintf("key-%d", i), float64(i))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d", counter%numKeys)
			_, _ = driver.SetRowByKey(ctx, table, key, float64(counter), true)
			counter++
		}
	})
}

// Benchmark for SetRowByKey with large values
func benchmarkSetLargeValue(b *testing.B, driver db.Driver) {
	ctx := context.Background()
	table := prepare(b, driver, "bench_large")

	large := make([]any, 10_000)
	for i := range large {
		large[i] = fmt.Sprintf("item-%d", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = driver.SetRowByKey(ctx, table, fmt.Sprintf("key-%d", i%100), large, false)
	}
}

// Benchmark for SetRowByKeyE
func benchmarkSetWithExpiry(b *testing.B, driver db.Driver) {
	requireFeature(b, driver, db.FeatureTTL)
	ed := driver.(db.ExpiringDriver)
	ctx := context.Background()
	table := prepare(b, driver, "bench_ttl")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		worker := rand.Int63()
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d-%d", worker, counter)
			_, _ = ed.SetRowByKeyE(ctx, table, key, "v", false, time.Now().Add(time.Minute))
			counter++
		}
	})
}

// Benchmark for GetRowByKey
func benchmarkGet(b *testing.B, driver db.Driver) {
	ctx := context.Background()
	table := prepare(b, driver, "bench_get")

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		mustSet(b, driver, table, fmt.Sprintf("key-%d", i), map[string]any{"i": float64(i)})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _, _ = driver.GetRowByKey(ctx, table, fmt.Sprintf("key-%d", counter%numKeys))
			counter++
		}
	})
}

// Benchmark for GetAllRows on a table with 1000 rows
func benchmarkGetAllRows(b *testing.B, driver db.Driver) {
	ctx := context.Background()
	table := prepare(b, driver, "bench_all")

	for i := 0; i < 1000; i++ {
		mustSet(b, driver, table, fmt.Sprintf("key-%d", i), float64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = driver.GetAllRows(ctx, table)
	}
}

// Benchmark for DeleteRowByKey
func benchmarkDelete(b *testing.B, driver db.Driver) {
	ctx := context.Background()
	table := prepare(b, driver, "bench_del")

	for i := 0; i < b.N; i++ {
		mustSet(b, driver, table, fmt.Sprintf("key-%d", i), float64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = driver.DeleteRowByKey(ctx, table, fmt.Sprintf("key-%d", i))
	}
}

// Benchmark for a read heavy mix of operations (80% get, 15% set, 5% delete)
func benchmarkMixedUsage(b *testing.B, driver db.Driver) {
	ctx := context.Background()
	table := prepare(b, driver, "bench_mixed")

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		mustSet(b, driver, table, fmt.Sprintf("key-%d", i), float64(i))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("key-%d", r.Intn(numKeys))
			switch op := r.Intn(100); {
			case op < 80:
				_, _, _ = driver.GetRowByKey(ctx, table, key)
			case op < 95:
				_, _ = driver.SetRowByKey(ctx, table, key, float64(op), false)
			default:
				_, _ = driver.DeleteRowByKey(ctx, table, key)
			}
		}
	})
}
