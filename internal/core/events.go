package core

// EventKind tags a transport notification.
type EventKind int

const (
	EventParticipantConnected EventKind = iota
	EventParticipantDisconnected
	EventTrackSubscribed
	EventTrackUnsubscribed
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventParticipantConnected:
		return "participant_connected"
	case EventParticipantDisconnected:
		return "participant_disconnected"
	case EventTrackSubscribed:
		return "track_subscribed"
	case EventTrackUnsubscribed:
		return "track_unsubscribed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is the tagged union a Transport delivers. Events for a single
// connection arrive in the order the transport emitted them; EventDisconnected
// is terminal for the connection that produced it.
type Event struct {
	Kind        EventKind
	Participant string
	TrackID     string
	TrackKind   string
}

// EventHandler receives transport events. Implementations must be safe to
// call from the transport's callback goroutine.
type EventHandler func(Event)
