package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/hkv/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the configured backend",
		Long:    "Runs benchmarks of the store operations against the configured backend and table. Test rows are deleted afterwards.",
		Args:    cobra.NoArgs,
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(1, viper.GetInt("keys"))
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfCase is one benchmark. seed runs before the timer starts, op is called in parallel.
type perfCase struct {
	name string
	seed func(ctx context.Context, key string) error
	op   func(ctx context.Context, key string, i int) error
}

func perfCases() []perfCase {
	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	set := func(ctx context.Context, key string) error {
		_, err := kvStore.Set(ctx, key, map[string]any{"name": "test", "n": 1.0})
		return err
	}

	return []perfCase{
		{name: "set", op: func(ctx context.Context, key string, _ int) error {
			return set(ctx, key)
		}},
		{name: "set-large", op: func(ctx context.Context, key string, _ int) error {
			_, err := kvStore.Set(ctx, key, largeValue)
			return err
		}},
		{name: "set-nested", seed: set, op: func(ctx context.Context, key string, i int) error {
			_, err := kvStore.Set(ctx, key+".name", strconv.Itoa(i))
			return err
		}},
		{name: "get", seed: set, op: func(ctx context.Context, key string, _ int) error {
			_, err := kvStore.Get(ctx, key)
			return err
		}},
		{name: "get-nested", seed: set, op: func(ctx context.Context, key string, _ int) error {
			_, err := kvStore.Get(ctx, key+".name")
			return err
		}},
		{name: "has-not", op: func(ctx context.Context, key string, _ int) error {
			_, err := kvStore.Has(ctx, key+"-missing")
			return err
		}},
		{name: "add", op: func(ctx context.Context, key string, _ int) error {
			_, err := kvStore.Add(ctx, key+".n", 1)
			return err
		}},
		{name: "push-pop", op: func(ctx context.Context, key string, i int) error {
			if i%2 == 0 {
				_, err := kvStore.Push(ctx, key, i)
				return err
			}
			_, err := kvStore.Pop(ctx, key)
			return err
		}},
		{name: "delete", seed: set, op: func(ctx context.Context, key string, _ int) error {
			_, err := kvStore.Delete(ctx, key)
			return err
		}},
		{name: "mixed", seed: set, op: func(ctx context.Context, key string, i int) error {
			var err error
			switch i % 4 {
			case 0:
				err = set(ctx, key)
			case 1:
				_, err = kvStore.Get(ctx, key)
			case 2:
				_, err = kvStore.Delete(ctx, key)
			case 3:
				_, err = kvStore.Has(ctx, key)
			}
			return err
		}},
	}
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Println("Performance testing tool for hkv")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Driver: %s, Table: %s, Threads: %d, Keys: %d\n",
		viper.GetString("driver"), kvStore.TableName(), perfNumThreads, perfKeySpread)
	fmt.Println()
	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, pc := range perfCases() {
		if slices.Contains(perfSkip, pc.name) {
			printResult(pc.name, testing.BenchmarkResult{})
			continue
		}
		result := benchmark(ctx, pc)
		results[pc.name] = result
		printResult(pc.name, result)
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// benchmark runs one case in parallel and deletes its keys afterwards
func benchmark(ctx context.Context, pc perfCase) testing.BenchmarkResult {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, pc.name, i)
	}

	return testing.Benchmark(func(b *testing.B) {
		if pc.seed != nil {
			for _, k := range keys {
				if err := pc.seed(ctx, k); err != nil {
					log.Printf("(%s) - error seeding key: %v\n", pc.name, err)
				}
			}
		}

		b.Cleanup(func() {
			for _, k := range keys {
				if _, err := kvStore.Delete(ctx, k); err != nil {
					log.Printf("(%s) - error deleting key: %v\n", pc.name, err)
				}
			}
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := pc.op(ctx, keys[counter%len(keys)], counter); err != nil {
					log.Printf("(%s) - error: %v\n", pc.name, err)
				}
				counter++
			}
		})
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec",
		"Driver", "Table", "Transport", "Serializer",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		nsPerOp := math.Max(float64(result.NsPerOp()), 1)
		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			viper.GetString("driver"),
			kvStore.TableName(),
			viper.GetString("transport"),
			viper.GetString("serializer"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
