// Package testing provides standardised tests and benchmarks for
// drivers that satisfy the db.Driver interface.
//
// The package contains:
//   - testing: A conformance suite for the db.Driver contract (lifecycle,
//     upsert semantics, not-found handling, counts, table isolation,
//     expiration and concurrent use)
//   - benchmark: Performance tests for measuring throughput of common driver operations
//
// Optional behaviour is only checked when the driver reports the matching
// feature (FeatureTTL, FeatureInsertionOrder). Every test works on freshly
// named tables, so the suite can run against shared database servers.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.Driver {
//		return NewMyDriver()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunDriverTests(t, "MyDriver", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunDriverBenchmarks(b, "MyDriver", factory)
package testing
