package capture

// EventKind identifies an Event.
type EventKind int

const (
	// EventDone carries a completed Recording. Exactly one is delivered per session.
	EventDone EventKind = iota
	// EventRejected reports a start command that arrived while a session was active.
	EventRejected
	// EventProgress reports the frame counter. Progress events are dropped
	// when the event channel is full.
	EventProgress
)

func (k EventKind) String() string {
	switch k {
	case EventDone:
		return "done"
	case EventRejected:
		return "rejected"
	case EventProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Event is a notification from the real-time context.
type Event struct {
	Kind    EventKind
	Session uint64
	Frames  int

	// Recording is set for EventDone.
	Recording Recording
	// Err is set for EventRejected.
	Err error
}

// Recording holds the captured input channels of one session. Ownership
// passes to the receiver of the EventDone that carries it.
type Recording struct {
	Session       uint64
	Channels      [][]float64
	Frames        int
	DroppedBlocks uint64
}
