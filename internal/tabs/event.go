package tabs

// EventKind names a tab lifecycle notification.
type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventRemoved
	EventUpdated
	EventActivated
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventRemoved:
		return "removed"
	case EventUpdated:
		return "updated"
	case EventActivated:
		return "activated"
	default:
		return "unknown"
	}
}

// Event is one tab lifecycle notification. Tab carries the snapshot taken
// when the event was produced; it is zero for EventRemoved.
type Event struct {
	Kind  EventKind
	TabID TabID
	Tab   Tab

	// Set on EventUpdated.
	URLChanged     bool
	StatusComplete bool
}
