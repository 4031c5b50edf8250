package events

import (
	"time"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Event Kinds
// --------------------------------------------------------------------------

type Kind string

const (
	KindConnected     Kind = "connected"
	KindDisconnected  Kind = "disconnected"
	KindTablePrepared Kind = "tablePrepared"
	KindRowsFetched   Kind = "rowsFetched"
	KindRowFetched    Kind = "rowFetched"
	KindRowNotFound   Kind = "rowNotFound"
	KindRowInserted   Kind = "rowInserted"
	KindRowUpdated    Kind = "rowUpdated"
	KindRowsDeleted   Kind = "rowsDeleted"
	KindRowDeleted    Kind = "rowDeleted"
	KindError         Kind = "error"
)

// Kinds lists every event kind
var Kinds = []Kind{
	KindConnected, KindDisconnected, KindTablePrepared,
	KindRowsFetched, KindRowFetched, KindRowNotFound,
	KindRowInserted, KindRowUpdated, KindRowsDeleted, KindRowDeleted,
	KindError,
}

// Event is a structured notification published by drivers.
type Event struct {
	ID      string    // unique id of the event
	Kind    Kind      // what happened
	Driver  string    // which driver published the event
	Table   string    // affected table (empty for lifecycle events)
	Key     string    // affected key (empty for table wide events)
	Message string    // human readable description
	Payload any       // kind specific data (value, rows, count or error)
	Time    time.Time // when the event was created
}

// --------------------------------------------------------------------------
// Sink
// --------------------------------------------------------------------------

// Sink receives events. Publish must not block for long and must be safe for
// concurrent use. Sinks never influence the outcome of the operation that
// published the event.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Emitter stamps events with the driver name and forwards them to an optional sink.
// The zero value (and a nil *Emitter) discards all events.
type Emitter struct {
	Driver string
	Sink   Sink
}

// Emit publishes an event if a sink is configured.
func (em *Emitter) Emit(kind Kind, table, key, msg string, payload any) {
	if em == nil || em.Sink == nil {
		return
	}
	em.Sink.Publish(Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Driver:  em.Driver,
		Table:   table,
		Key:     key,
		Message: msg,
		Payload: payload,
		Time:    time.Now(),
	})
}

// Multi fans out every event to all given sinks (nil sinks are skipped).
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Publish(e)
			}
		}
	})
}
