// Package event decodes broker payloads into notification events.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultTitle = "Notification"
	DefaultBody  = "Details"
)

var (
	ErrInvalidUTF8      = errors.New("payload is not valid utf-8")
	ErrMalformed        = errors.New("payload is not a notification object")
	ErrMissingMessageID = errors.New("payload has no message_id")
)

// NotificationEvent is a fully populated notification: defaults are already
// applied, so consumers never deal with missing fields.
type NotificationEvent struct {
	Title     string `json:"title"`
	Body      string `json:"body_message"`
	MessageID string `json:"message_id"`
	// Logo is a bare file name resolved by the sink; empty means default.
	Logo string `json:"logo,omitempty"`
}

// DecodeError is returned for payloads that must be dropped.
type DecodeError struct {
	Err     error
	Preview string
}

func (e *DecodeError) Error() string {
	if e.Preview == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Preview)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wire is the on-the-wire shape. Pointers tell "absent" from "empty".
type wire struct {
	Title       *string `json:"title"`
	BodyMessage *string `json:"body_message"`
	MessageID   *string `json:"message_id"`
	Logo        *string `json:"logo"`
}

const previewLimit = 200

// Decode parses raw into a NotificationEvent.
func Decode(raw []byte) (NotificationEvent, error) {
	if !utf8.Valid(raw) {
		return NotificationEvent{}, &DecodeError{Err: ErrInvalidUTF8}
	}

	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return NotificationEvent{}, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformed, err), Preview: preview(raw)}
	}
	if w.MessageID == nil {
		return NotificationEvent{}, &DecodeError{Err: ErrMissingMessageID, Preview: preview(raw)}
	}

	ev := NotificationEvent{
		Title:     DefaultTitle,
		Body:      DefaultBody,
		MessageID: *w.MessageID,
	}
	if w.Title != nil {
		ev.Title = *w.Title
	}
	if w.BodyMessage != nil {
		ev.Body = *w.BodyMessage
	}
	if w.Logo != nil {
		ev.Logo = strings.TrimSpace(*w.Logo)
	}
	return ev, nil
}

func preview(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) <= previewLimit {
		return s
	}
	// Cut on a rune boundary.
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
