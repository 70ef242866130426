package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"notifylistener/internal/notifier"
	logx "notifylistener/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

type fakeBot struct {
	sent []string
	to   []string
	opts []*tele.SendOptions
	err  error
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.to = append(f.to, to.Recipient())
	f.sent = append(f.sent, what.(string))
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			f.opts = append(f.opts, so)
		}
	}
	return &tele.Message{ID: len(f.sent)}, nil
}

func TestShowSendsToChatAndThread(t *testing.T) {
	fb := &fakeBot{}
	s := &Sink{cfg: Config{ChatID: -100123, ThreadID: 7}, log: logx.Nop(), bot: fb}

	err := s.Show(context.Background(), notifier.Notification{Title: "Disk", Body: "almost full", Topic: "alerts"})
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if len(fb.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fb.sent))
	}
	if fb.sent[0] != "Disk\n\nalmost full\n\n#alerts" {
		t.Fatalf("text: %q", fb.sent[0])
	}
	if fb.to[0] != "-100123" {
		t.Fatalf("recipient: %q", fb.to[0])
	}
	if fb.opts[0].ThreadID != 7 || !fb.opts[0].DisableWebPagePreview {
		t.Fatalf("opts: %+v", fb.opts[0])
	}
}

func TestShowWrapsSendError(t *testing.T) {
	boom := errors.New("forbidden")
	s := &Sink{cfg: Config{ChatID: 1}, log: logx.Nop(), bot: &fakeBot{err: boom}}
	if err := s.Show(context.Background(), notifier.Notification{Title: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewRejectsMissingSettings(t *testing.T) {
	if _, err := New(Config{ChatID: 1}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := New(Config{Token: "123:abc"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty chat id")
	}
}

func TestSplitText(t *testing.T) {
	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short: %v", got)
	}

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(long, 8)
	if len(got) != 2 || got[0] != "aaaaaa\n" || got[1] != "bbbbbb" {
		t.Fatalf("newline split: %q", got)
	}

	got = splitText(strings.Repeat("é", 25), 10)
	if len(got) != 3 || len([]rune(got[2])) != 5 {
		t.Fatalf("rune split: %q", got)
	}
	if strings.Join(got, "") != strings.Repeat("é", 25) {
		t.Fatalf("chunks do not reassemble")
	}
}
