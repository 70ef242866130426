package subscriber

import "time"

// State is the connection state of the subscriber.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateReconnectPending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnectPending:
		return "reconnect_pending"
	default:
		return "unknown"
	}
}

// StateChange is published on the event bus for every transition.
type StateChange struct {
	From    State     `json:"-"`
	To      State     `json:"-"`
	FromStr string    `json:"from"`
	ToStr   string    `json:"to"`
	Reason  string    `json:"reason,omitempty"`
	Cause   string    `json:"cause,omitempty"`
	Attempt uint64    `json:"attempt"`
	At      time.Time `json:"at"`
}

// DecodeFailure is published when a payload is dropped.
type DecodeFailure struct {
	Topic string    `json:"topic"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// Duplicate is published when an already forwarded id shows up again.
type Duplicate struct {
	MessageID string    `json:"message_id"`
	Topic     string    `json:"topic"`
	At        time.Time `json:"at"`
}

// Stats are best-effort counters for the debug endpoint.
type Stats struct {
	State          string    `json:"state"`
	Attempts       uint64    `json:"attempts"`
	Sessions       uint64    `json:"sessions"`
	Received       uint64    `json:"received"`
	Forwarded      uint64    `json:"forwarded"`
	Duplicates     uint64    `json:"duplicates"`
	DecodeFailures uint64    `json:"decode_failures"`
	StaleResets    uint64    `json:"stale_resets"`
	LastActivity   time.Time `json:"last_activity,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	LastErrorAt    time.Time `json:"last_error_at,omitempty"`
}
