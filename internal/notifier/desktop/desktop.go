// Package desktop shows notifications as native desktop toasts.
package desktop

import (
	"context"
	"fmt"
	"os"

	"notifylistener/internal/notifier"
	logx "notifylistener/pkg/logx"

	"github.com/gen2brain/beeep"
)

const Name = "desktop"

type Sink struct {
	log    logx.Logger
	notify func(title, body, icon string) error
	stat   func(string) (os.FileInfo, error)
}

func New(appName string, log logx.Logger) *Sink {
	if appName != "" {
		beeep.AppName = appName
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{
		log:    log,
		notify: func(title, body, icon string) error { return beeep.Notify(title, body, icon) },
		stat:   os.Stat,
	}
}

func (s *Sink) Name() string { return Name }

// Show blocks until the toast is posted or ctx ends. A missing logo file is
// not an error: the toast is shown without an icon.
func (s *Sink) Show(ctx context.Context, n notifier.Notification) error {
	icon := n.LogoPath
	if icon != "" {
		if _, err := s.stat(icon); err != nil {
			s.log.Debug("toast logo not found", logx.String("path", icon))
			icon = ""
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.notify(n.Title, n.Body, icon) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("desktop toast: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
