package tray

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "notifylistener/pkg/logx"
)

type fakeItem struct {
	mu      sync.Mutex
	title   string
	clicked chan struct{}
}

func (f *fakeItem) Clicked() <-chan struct{} { return f.clicked }

func (f *fakeItem) SetTitle(s string) {
	f.mu.Lock()
	f.title = s
	f.mu.Unlock()
}

func (f *fakeItem) Title() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

type fakeBackend struct {
	mu      sync.Mutex
	items   map[string]*fakeItem
	tooltip string
	icon    []byte
	ready   chan struct{}
	quit    chan struct{}
	once    sync.Once
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{items: map[string]*fakeItem{}, ready: make(chan struct{}), quit: make(chan struct{})}
}

func (f *fakeBackend) Run(onReady, onExit func()) {
	onReady()
	close(f.ready)
	<-f.quit
	onExit()
}

func (f *fakeBackend) Quit() { f.once.Do(func() { close(f.quit) }) }

func (f *fakeBackend) SetIcon(b []byte) {
	f.mu.Lock()
	f.icon = b
	f.mu.Unlock()
}

func (f *fakeBackend) SetTitle(string) {}

func (f *fakeBackend) SetTooltip(s string) {
	f.mu.Lock()
	f.tooltip = s
	f.mu.Unlock()
}

func (f *fakeBackend) AddItem(title, _ string, _ bool) item {
	it := &fakeItem{title: title, clicked: make(chan struct{}, 1)}
	f.mu.Lock()
	f.items[title] = it
	f.mu.Unlock()
	return it
}

func (f *fakeBackend) item(title string) *fakeItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[title]
}

func TestQuitItemCallsQuit(t *testing.T) {
	fb := newFakeBackend()
	tr := New(Config{Enabled: true}, logx.Nop())
	tr.b = fb

	quitCalled := make(chan struct{})
	done := make(chan struct{})
	go func() {
		tr.Run(context.Background(), func() { close(quitCalled) })
		close(done)
	}()

	<-fb.ready
	if len(fb.icon) == 0 {
		t.Fatal("built-in icon not set")
	}
	fb.item("Quit").clicked <- struct{}{}

	select {
	case <-quitCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("quit callback not invoked")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tray did not exit")
	}
}

func TestContextCancelExitsTray(t *testing.T) {
	fb := newFakeBackend()
	tr := New(Config{Enabled: true}, logx.Nop())
	tr.b = fb

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, func() { t.Error("quit must not be called on cancel") })
		close(done)
	}()
	<-fb.ready
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tray did not exit on cancel")
	}
}

func TestSetStatusBeforeAndAfterReady(t *testing.T) {
	fb := newFakeBackend()
	tr := New(Config{Enabled: true, Title: "Alerts"}, logx.Nop())
	tr.b = fb

	tr.SetStatus("connecting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx, nil)
	<-fb.ready

	if got := fb.item("Starting...").Title(); got != "connecting" {
		t.Fatalf("status applied at ready: %q", got)
	}
	tr.SetStatus("subscribed")
	if got := fb.item("Starting...").Title(); got != "subscribed" {
		t.Fatalf("status update: %q", got)
	}
	fb.mu.Lock()
	tip := fb.tooltip
	fb.mu.Unlock()
	if tip != "Alerts: subscribed" {
		t.Fatalf("tooltip: %q", tip)
	}
}

func TestHeadlessWaitsForContext(t *testing.T) {
	tr := New(Config{Enabled: false}, logx.Nop())
	tr.b = nil // must not be touched

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, nil)
		close(done)
	}()
	tr.SetStatus("subscribed")
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("headless run did not return")
	}
}
