// Package util provides utility components shared by the driver implementations.
//
// The package contains:
//   - mapheap: A generic priority queue with key-based access, used to track
//     rows with an expiration time so expired rows can be collected in order
package util
