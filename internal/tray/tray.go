// Package tray shows a system tray icon with the connection state and a Quit item.
//
// systray needs the main goroutine on some platforms, so Run blocks the
// caller. In headless mode Run just waits for ctx.
package tray

import (
	"context"
	_ "embed"
	"os"
	"strings"
	"sync"

	logx "notifylistener/pkg/logx"
)

//go:embed icon.png
var defaultIcon []byte

const DefaultTitle = "Notify Listener"

type Config struct {
	Enabled bool
	Title   string
	// IconPath overrides the built-in icon.
	IconPath string
}

type Tray struct {
	cfg Config
	log logx.Logger
	b   backend

	mu     sync.Mutex
	status item
	last   string
}

func New(cfg Config, log logx.Logger) *Tray {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Title) == "" {
		cfg.Title = DefaultTitle
	}
	return &Tray{cfg: cfg, log: log, b: systrayBackend{}}
}

// Run blocks until ctx ends or the user picks Quit, in which case quit is
// called before Run returns.
func (t *Tray) Run(ctx context.Context, quit func()) {
	if !t.cfg.Enabled {
		t.log.Debug("tray disabled; running headless")
		<-ctx.Done()
		return
	}

	onReady := func() {
		t.b.SetIcon(t.icon())
		t.b.SetTitle(t.cfg.Title)
		t.b.SetTooltip(t.cfg.Title)

		st := t.b.AddItem("Starting...", "Connection state", true)
		q := t.b.AddItem("Quit", "Stop listening and exit", false)

		t.mu.Lock()
		t.status = st
		if t.last != "" {
			st.SetTitle(t.last)
		}
		t.mu.Unlock()

		go func() {
			select {
			case <-q.Clicked():
				t.log.Info("quit requested from tray")
				if quit != nil {
					quit()
				}
			case <-ctx.Done():
			}
			t.b.Quit()
		}()
	}
	onExit := func() {
		t.mu.Lock()
		t.status = nil
		t.mu.Unlock()
	}
	t.b.Run(onReady, onExit)
}

// SetStatus shows s in the tray menu and tooltip. Safe before Run and in headless mode.
func (t *Tray) SetStatus(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = s
	if t.status == nil {
		return
	}
	t.status.SetTitle(s)
	t.b.SetTooltip(t.cfg.Title + ": " + s)
}

func (t *Tray) icon() []byte {
	if p := strings.TrimSpace(t.cfg.IconPath); p != "" {
		b, err := os.ReadFile(p)
		if err == nil {
			return b
		}
		t.log.Warn("tray icon unreadable; using built-in", logx.String("path", p), logx.Err(err))
	}
	return defaultIcon
}
