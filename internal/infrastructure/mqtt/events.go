package mqtt

// EventKind identifies what NextEvent observed.
type EventKind int

const (
	// EventPublish carries an inbound message.
	EventPublish EventKind = iota

	// EventConnected is emitted when paho reports the session as established.
	EventConnected
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case EventPublish:
		return "publish"
	case EventConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Message is an inbound publish. It is built per event and never stored.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Event is a single broker event returned by NextEvent.
// Message is only set for EventPublish.
type Event struct {
	Kind    EventKind
	Message Message
}
