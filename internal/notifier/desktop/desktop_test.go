package desktop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"notifylistener/internal/notifier"
	logx "notifylistener/pkg/logx"
)

type call struct{ title, body, icon string }

func newTestSink(fn func(string, string, string) error) *Sink {
	return &Sink{log: logx.Nop(), notify: fn, stat: os.Stat}
}

func TestShowPassesExistingLogo(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, "bell.png")
	if err := os.WriteFile(logo, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	var got call
	s := newTestSink(func(title, body, icon string) error {
		got = call{title, body, icon}
		return nil
	})
	if err := s.Show(context.Background(), notifier.Notification{Title: "T", Body: "B", LogoPath: logo}); err != nil {
		t.Fatalf("show: %v", err)
	}
	if got != (call{"T", "B", logo}) {
		t.Fatalf("unexpected call: %+v", got)
	}
}

func TestShowDropsMissingLogo(t *testing.T) {
	var got call
	s := newTestSink(func(title, body, icon string) error {
		got = call{title, body, icon}
		return nil
	})
	missing := filepath.Join(t.TempDir(), "nope.png")
	if err := s.Show(context.Background(), notifier.Notification{Title: "T", Body: "B", LogoPath: missing}); err != nil {
		t.Fatalf("show: %v", err)
	}
	if got.icon != "" {
		t.Fatalf("icon should be dropped, got %q", got.icon)
	}
}

func TestShowWrapsError(t *testing.T) {
	boom := errors.New("dbus unavailable")
	s := newTestSink(func(string, string, string) error { return boom })
	if err := s.Show(context.Background(), notifier.Notification{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestShowHonorsContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	s := newTestSink(func(string, string, string) error { <-block; return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Show(ctx, notifier.Notification{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
