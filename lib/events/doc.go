// Package events provides the optional observer side channel of the drivers.
//
// Drivers publish structured events (connected, rowUpdated, rowNotFound, ...)
// through an Emitter. Without a configured Sink nothing is published, and a
// sink can never change the result of the operation that emitted the event.
//
// Available sinks:
//   - SinkFunc: adapt any function
//   - ChanSink: buffered channel, drops events when full
//   - NewLogSink: forwards events to a dragonboat logger
//   - MetricsSink: counts events per kind in a go-metrics registry
//   - Multi: fan out to several sinks
package events
