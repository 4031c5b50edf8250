package events

import (
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Channel Sink
// --------------------------------------------------------------------------

// ChanSink delivers events to a buffered channel.
// Events are dropped (and counted) when the buffer is full, so a slow consumer
// never stalls a driver.
type ChanSink struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewChanSink creates a channel sink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{ch: make(chan Event, buffer)}
}

func (s *ChanSink) Publish(e Event) {
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// C returns the receive side of the channel.
func (s *ChanSink) C() <-chan Event { return s.ch }

// Dropped returns how many events were discarded because the buffer was full.
func (s *ChanSink) Dropped() uint64 { return s.dropped.Load() }

// --------------------------------------------------------------------------
// Log Sink
// --------------------------------------------------------------------------

// NewLogSink writes every event to the given logger.
// Error events are logged as warnings, everything else at debug level.
func NewLogSink(l logger.ILogger) Sink {
	return SinkFunc(func(e Event) {
		if e.Kind == KindError {
			l.Warningf("%s: %s (%v)", e.Driver, e.Message, e.Payload)
			return
		}
		l.Debugf("%s: [%s] %s", e.Driver, e.Kind, e.Message)
	})
}

// --------------------------------------------------------------------------
// Metrics Sink
// --------------------------------------------------------------------------

// MetricsSink counts events per kind in a go-metrics registry.
// For each kind a counter "events.<kind>" and a meter "events.<kind>.rate" are maintained.
type MetricsSink struct {
	registry gometrics.Registry
}

// NewMetricsSink creates a metrics sink. A nil registry creates a private one.
func NewMetricsSink(r gometrics.Registry) *MetricsSink {
	if r == nil {
		r = gometrics.NewRegistry()
	}
	return &MetricsSink{registry: r}
}

func (s *MetricsSink) Publish(e Event) {
	gometrics.GetOrRegisterCounter("events."+string(e.Kind), s.registry).Inc(1)
	gometrics.GetOrRegisterMeter("events."+string(e.Kind)+".rate", s.registry).Mark(1)
}

// Count returns how many events of the given kind were published.
func (s *MetricsSink) Count(kind Kind) int64 {
	return gometrics.GetOrRegisterCounter("events."+string(kind), s.registry).Count()
}

// Registry returns the underlying registry (e.g. to export it).
func (s *MetricsSink) Registry() gometrics.Registry { return s.registry }
