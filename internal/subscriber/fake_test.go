package subscriber

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"notifylistener/internal/broker"
	"notifylistener/internal/event"
)

type fakeSession struct {
	connectErr   error
	subscribeErr error

	events chan broker.Event
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	err   error
	topic string
	qos   byte

	closed atomic.Bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan broker.Event, 16), done: make(chan struct{})}
}

func (s *fakeSession) Connect(context.Context) error { return s.connectErr }

func (s *fakeSession) Subscribe(_ context.Context, topic string, qos byte) error {
	s.mu.Lock()
	s.topic, s.qos = topic, qos
	s.mu.Unlock()
	return s.subscribeErr
}

func (s *fakeSession) Events() <-chan broker.Event { return s.events }
func (s *fakeSession) Done() <-chan struct{}       { return s.done }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Close() {
	s.closed.Store(true)
	s.end(nil)
}

func (s *fakeSession) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *fakeSession) publish(payload string) {
	s.events <- broker.Event{Kind: broker.EventPublish, At: time.Now(), Topic: "alerts", Payload: []byte(payload)}
}

// fakeDialer hands out scripted sessions in order, then sessions that fail to connect.
type fakeDialer struct {
	mu      sync.Mutex
	script  []*fakeSession
	dialed  []*fakeSession
	options []broker.Options
}

func (d *fakeDialer) Dial(opts broker.Options) broker.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	var s *fakeSession
	if len(d.script) > 0 {
		s, d.script = d.script[0], d.script[1:]
	} else {
		s = newFakeSession()
		s.connectErr = errors.New("connection refused")
	}
	d.dialed = append(d.dialed, s)
	d.options = append(d.options, opts)
	return s
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

type recordForwarder struct {
	mu  sync.Mutex
	got []event.NotificationEvent
}

func (f *recordForwarder) Forward(_ context.Context, ev event.NotificationEvent, _ string) error {
	f.mu.Lock()
	f.got = append(f.got, ev)
	f.mu.Unlock()
	return nil
}

func (f *recordForwarder) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.got))
	for _, ev := range f.got {
		out = append(out, ev.MessageID)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// manualTicker only fires when the test sends on it.
type manualTicker chan time.Time

func (m manualTicker) ticker(time.Duration) (<-chan time.Time, func()) {
	return m, func() {}
}

func (m manualTicker) fire(t *testing.T) {
	t.Helper()
	select {
	case m <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("session loop did not take the tick")
	}
}

type safeBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
