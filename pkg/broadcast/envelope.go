package broadcast

import "time"

const (
	// ChannelSystem carries broker-generated envelopes.
	ChannelSystem = "system"
	// TypeDisconnected is the event type of the envelope sent to an evicted queue.
	TypeDisconnected = "disconnected"
)

// Disconnect reasons carried in the data of a TypeDisconnected envelope.
const (
	ReasonReplaced     = "replaced"
	ReasonLimitReduced = "limit_reduced"
	ReasonShutdown     = "shutdown"
)

// Envelope is one notification flowing through the broker.
// It is built once at publish time and shared read-only with every receiver.
type Envelope struct {
	Sequence   uint64    `json:"id"`
	Channel    string    `json:"channel"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// DisconnectData is the payload of a TypeDisconnected envelope.
type DisconnectData struct {
	Reason string `json:"reason"`
}

// Kind tags the variant held by an Item.
type Kind uint8

const (
	// KindData holds a published envelope.
	KindData Kind = iota + 1
	// KindSignal holds a system disconnect envelope; the queue closes right after it.
	KindSignal
	// KindClose is the terminal sentinel.
	KindClose
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindSignal:
		return "signal"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

// Item is a single entry in a subscriber queue.
type Item struct {
	Kind     Kind
	Envelope Envelope
}

// Terminal reports whether the receiving loop must stop after this item.
func (i Item) Terminal() bool {
	return i.Kind == KindSignal || i.Kind == KindClose
}

// Reason returns the disconnect reason of a signal item, or an empty string.
func (i Item) Reason() string {
	if i.Kind != KindSignal {
		return ""
	}
	if d, ok := i.Envelope.Data.(DisconnectData); ok {
		return d.Reason
	}
	return ""
}
