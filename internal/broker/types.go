// Package broker wraps one MQTT session behind a small event-stream interface.
//
// A Session never reconnects on its own. When the connection ends, Done is
// closed and Err reports why; the caller decides whether to dial again.
package broker

import (
	"context"
	"errors"
	"time"
)

// Fixed protocol policy.
const (
	KeepAlive      = 5 * time.Second
	ConnectTimeout = 10 * time.Second
	// QoSAtMostOnce is the only delivery quality used.
	QoSAtMostOnce byte = 0
)

var (
	ErrClosed         = errors.New("broker session closed")
	ErrNotConnected   = errors.New("broker session not connected")
	ErrConnectTimeout = errors.New("broker connect timed out")
)

type EventKind int

const (
	// EventConnected is emitted once the broker acknowledged the connection.
	EventConnected EventKind = iota
	// EventPacket is any other inbound protocol traffic (acks, ping responses).
	EventPacket
	// EventPublish carries an application message.
	EventPublish
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventPacket:
		return "packet"
	case EventPublish:
		return "publish"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	At   time.Time

	// Publish only.
	Topic     string
	Payload   []byte
	PacketID  uint16
	Duplicate bool
	Retained  bool
}

// Options configures one session.
type Options struct {
	Server   string
	Port     int
	Username string
	Password string
	ClientID string

	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// HasCredentials reports whether both username and password are set.
// A lone username or password means an anonymous connection.
func (o Options) HasCredentials() bool {
	return o.Username != "" && o.Password != ""
}

// Session is a single broker connection.
type Session interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, qos byte) error
	// Events delivers inbound traffic while the session is alive.
	Events() <-chan Event
	// Done is closed when the session ends (transport error or Close).
	Done() <-chan struct{}
	// Err is the transport error that ended the session, nil for a clean end-of-stream.
	Err() error
	Close()
}

// Dialer builds a fresh, unconnected session.
type Dialer func(opts Options) Session
