package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the delivery journal.
//
// Driver values:
//   - "file": dependency-free JSON Lines file
//   - "sqlite": SQLite database file (build tag "sqlite")
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Delivery records one forwarded notification.
// Keep it compact and schema-stable.
type Delivery struct {
	At        time.Time `json:"at"`
	MessageID string    `json:"message_id"`
	Topic     string    `json:"topic,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Logo      string    `json:"logo,omitempty"`
	Sinks     []string  `json:"sinks,omitempty"`
	Error     string    `json:"error,omitempty"`
}
