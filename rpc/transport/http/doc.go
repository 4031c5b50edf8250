// Package http implements an HTTP based transport for the RPC layer.
//
// Requests are posted to RPCPath ("/rpc") with the serialized message as body,
// the response body is the serialized response. A server created with a
// metrics writer also serves GET MetricsPath ("/metrics").
//
// Key Components:
//
//   - httpClientTransport: implements IRPCClientTransport. Requests are spread
//     over all endpoints round-robin and retried up to RetryCount times.
//
//   - httpServerTransport: implements IRPCServerTransport on a net/http server
//     that shuts down gracefully when the Listen context ends.
//
//   - NewHandler: the plain http.Handler, to mount the endpoint elsewhere.
//
// The client transport is safe for concurrent use. In debug log level every
// request is logged with its status and duration.
package http
