package notifier

import (
	"context"
	"time"
)

// DefaultLogo is used when an event names no logo.
const DefaultLogo = "default_toast_logo.png"

// Config controls the delivery pipeline. RatePerSec caps deliveries per
// second; zero means unthrottled.
type Config struct {
	QueueSize   int
	RatePerSec  int
	HistorySize int
	ImagesDir   string
	SendTimeout time.Duration
}

// Notification is what a sink renders.
type Notification struct {
	MessageID  string
	Title      string
	Body       string
	LogoPath   string
	Topic      string
	ReceivedAt time.Time
}

// Sink renders a notification (desktop toast, chat message, ...).
type Sink interface {
	Name() string
	Show(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, n Notification) error
}

func (f SinkFunc) Name() string { return f.SinkName }

func (f SinkFunc) Show(ctx context.Context, n Notification) error { return f.Fn(ctx, n) }

type HistoryItem struct {
	At        time.Time `json:"at"`
	MessageID string    `json:"message_id"`
	Title     string    `json:"title"`
	Error     string    `json:"error,omitempty"`
}

// DeliveryEvent is published on the event bus for each pipeline step.
// Keep it small; subscribers may log or serialize it.
type DeliveryEvent struct {
	MessageID string    `json:"message_id"`
	Sink      string    `json:"sink,omitempty"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
