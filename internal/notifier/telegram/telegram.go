// Package telegram mirrors notifications into a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"notifylistener/internal/notifier"
	logx "notifylistener/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

const (
	Name      = "telegram"
	textLimit = 4000
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
}

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Sink struct {
	cfg Config
	log logx.Logger
	bot sender
}

// New builds an offline bot: it only sends, it never polls for updates.
func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{cfg: cfg, log: log, bot: b}, nil
}

func (s *Sink) Name() string { return Name }

func (s *Sink) Show(ctx context.Context, n notifier.Notification) error {
	chat := tele.ChatID(s.cfg.ChatID)
	for _, chunk := range splitText(formatText(n), textLimit) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		opt := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: s.cfg.ThreadID}
		if _, err := s.bot.Send(chat, chunk, opt); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	s.log.Debug("telegram notification sent", logx.String("message_id", n.MessageID))
	return nil
}

func formatText(n notifier.Notification) string {
	var b strings.Builder
	b.WriteString(n.Title)
	if n.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(n.Body)
	}
	if n.Topic != "" {
		b.WriteString("\n\n#")
		b.WriteString(n.Topic)
	}
	return b.String()
}

// splitText cuts s into chunks of at most limit runes, preferring newlines.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end >= len(rs) {
			out = append(out, string(rs[start:]))
			break
		}
		for i := end - 1; i > start; i-- {
			// Avoid extremely small chunks.
			if rs[i] == '\n' && i-start >= limit/3 {
				end = i + 1
				break
			}
		}
		out = append(out, string(rs[start:end]))
		start = end
	}
	return out
}
