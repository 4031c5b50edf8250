// Package cmd implements the hkv command-line interface. It provides commands for
// serving a backend over RPC and for working with a store as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Store operations on a table (get, set, push, add, search, ...) and a benchmark
//   - lock: Locks held by an hkv server (acquire, release)
//   - serve: Exposes a backend over RPC, with Prometheus metrics on the http transport
//   - util: Shared flags, configuration and factories (internal use)
//
// Every flag can also be set as environment variable HKV_<FLAG>, .env and .env.local
// are loaded on start. See hkv -help for a list of all commands.
package cmd
