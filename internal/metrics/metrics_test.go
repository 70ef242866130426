package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notifylistener/internal/dedup"
	"notifylistener/internal/eventbus"
	"notifylistener/internal/notifier"
	"notifylistener/internal/subscriber"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCounters(t *testing.T) {
	m := New()
	events := []eventbus.Event{
		{Type: eventbus.TypeReceived},
		{Type: eventbus.TypeReceived},
		{Type: eventbus.TypeDecodeFailed},
		{Type: eventbus.TypeDuplicate},
		{Type: eventbus.TypeNotifyQueued},
		{Type: eventbus.TypeNotifySent, Data: notifier.DeliveryEvent{Sink: "desktop"}},
		{Type: eventbus.TypeNotifyFailed, Data: notifier.DeliveryEvent{Sink: "telegram"}},
		{Type: eventbus.TypeDedupReset, Data: dedup.ResetEvent{Evicted: 7}},
		{Type: "something.else"},
	}
	for _, e := range events {
		m.Observe(e)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"received", testutil.ToFloat64(m.Received), 2},
		{"decode failures", testutil.ToFloat64(m.DecodeFailures), 1},
		{"duplicates", testutil.ToFloat64(m.Duplicates), 1},
		{"queued", testutil.ToFloat64(m.Queued), 1},
		{"delivered desktop", testutil.ToFloat64(m.Delivered.WithLabelValues("desktop")), 1},
		{"sink errors telegram", testutil.ToFloat64(m.SinkErrors.WithLabelValues("telegram")), 1},
		{"dedup resets", testutil.ToFloat64(m.DedupResets), 1},
		{"dedup evicted", testutil.ToFloat64(m.DedupEvicted), 7},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestStateGaugeAndReconnects(t *testing.T) {
	m := New()
	if v := testutil.ToFloat64(m.State.WithLabelValues("disconnected")); v != 1 {
		t.Fatalf("initial state gauge: %v", v)
	}

	m.Observe(eventbus.Event{Type: eventbus.TypeStateChanged, Data: subscriber.StateChange{To: subscriber.StateSubscribed}})
	if v := testutil.ToFloat64(m.State.WithLabelValues("subscribed")); v != 1 {
		t.Fatalf("subscribed gauge: %v", v)
	}
	if v := testutil.ToFloat64(m.State.WithLabelValues("disconnected")); v != 0 {
		t.Fatalf("disconnected gauge: %v", v)
	}

	m.Observe(eventbus.Event{Type: eventbus.TypeStateChanged, Data: subscriber.StateChange{
		To: subscriber.StateReconnectPending, Cause: subscriber.CauseStale,
	}})
	if v := testutil.ToFloat64(m.Reconnects.WithLabelValues(subscriber.CauseStale)); v != 1 {
		t.Fatalf("stale reconnects: %v", v)
	}
}

func TestRunConsumesBus(t *testing.T) {
	m := New()
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx, bus)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.Received) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("bus event never counted")
		}
		// The subscription may not exist yet; keep publishing.
		bus.Publish(eventbus.Event{Type: eventbus.TypeReceived})
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	s := dedup.New()
	s.CheckAndMark("a")
	s.CheckAndMark("b")
	m.TrackDedupSize(s)
	m.Observe(eventbus.Event{Type: eventbus.TypeReceived})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"notifylistener_subscriber_received_total 1",
		"notifylistener_dedup_size 2",
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
