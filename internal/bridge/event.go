package bridge

// EventKind names a listener notification.
type EventKind string

const (
	EventData       EventKind = "data"
	EventFinish     EventKind = "finish"
	EventDisconnect EventKind = "disconnect"
)

// Event is one listener notification. Data is set only for EventData.
type Event struct {
	Kind EventKind
	Port int
	Data []byte
}

// Sink receives listener events in wire order from a single goroutine.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) {
	f(ev)
}

// Fanout delivers each event to every sink in slice order.
type Fanout []Sink

func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ev)
		}
	}
}
