// Package metrics exposes pipeline counters in Prometheus format.
//
// Metrics are fed from the event bus, so the pipeline itself never imports
// this package.
package metrics

import (
	"context"
	"net/http"

	"notifylistener/internal/dedup"
	"notifylistener/internal/eventbus"
	"notifylistener/internal/notifier"
	"notifylistener/internal/subscriber"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notifylistener"

var states = []subscriber.State{
	subscriber.StateDisconnected,
	subscriber.StateConnecting,
	subscriber.StateSubscribed,
	subscriber.StateReconnectPending,
}

type Metrics struct {
	reg *prometheus.Registry

	// Received counts publish packets taken off the broker.
	Received prometheus.Counter
	// DecodeFailures counts payloads dropped as undecodable.
	DecodeFailures prometheus.Counter
	// Duplicates counts payloads dropped by the dedup store.
	Duplicates prometheus.Counter
	// Queued counts notifications handed to the notifier.
	Queued prometheus.Counter
	// Delivered counts successful deliveries by sink.
	Delivered *prometheus.CounterVec
	// SinkErrors counts failed deliveries by sink.
	SinkErrors *prometheus.CounterVec
	// Dropped counts notifications the notifier could not queue.
	Dropped prometheus.Counter
	// Reconnects counts sessions that ended and will be retried.
	Reconnects *prometheus.CounterVec
	// DedupResets counts completed reset cycles.
	DedupResets prometheus.Counter
	// DedupEvicted counts ids evicted by reset cycles.
	DedupEvicted prometheus.Counter
	// State is 1 for the current connection state, 0 otherwise.
	State *prometheus.GaugeVec
	// ConfigReloads counts applied config reloads.
	ConfigReloads prometheus.Counter
}

// New registers every collector on a private registry, plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		Received: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "subscriber", Name: "received_total",
			Help: "Publish packets received from the broker",
		}),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "subscriber", Name: "decode_failures_total",
			Help: "Payloads dropped because they could not be decoded",
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "subscriber", Name: "duplicates_total",
			Help: "Payloads dropped because their message_id was already forwarded",
		}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "subscriber", Name: "reconnects_total",
			Help: "Sessions that ended and were scheduled for reconnect, by reason",
		}, []string{"reason"}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "subscriber", Name: "state",
			Help: "Current connection state (1 = active)",
		}, []string{"state"}),
		Queued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifier", Name: "queued_total",
			Help: "Notifications queued for delivery",
		}),
		Delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifier", Name: "delivered_total",
			Help: "Notifications delivered, by sink",
		}, []string{"sink"}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifier", Name: "sink_errors_total",
			Help: "Notification deliveries that failed, by sink",
		}, []string{"sink"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifier", Name: "dropped_total",
			Help: "Notifications that could not be queued",
		}),
		DedupResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedup", Name: "resets_total",
			Help: "Completed dedup reset cycles",
		}),
		DedupEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedup", Name: "evicted_total",
			Help: "Message ids evicted by reset cycles",
		}),
		ConfigReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "config", Name: "reloads_total",
			Help: "Config reloads applied at runtime",
		}),
	}
	m.setState(subscriber.StateDisconnected)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// TrackDedupSize exports the live size of the dedup set.
func (m *Metrics) TrackDedupSize(s *dedup.Store) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "dedup", Name: "size",
		Help: "Message ids currently held by the dedup store",
	}, func() float64 { return float64(s.Len()) })
}

// Run subscribes to bus and consumes events until ctx ends.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	return m.Consume(ctx, ch)
}

// Consume observes events from an existing subscription until ctx ends or ch closes.
func (m *Metrics) Consume(ctx context.Context, ch <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}

// Observe updates collectors for one bus event. Unknown events are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeReceived:
		m.Received.Inc()
	case eventbus.TypeDecodeFailed:
		m.DecodeFailures.Inc()
	case eventbus.TypeDuplicate:
		m.Duplicates.Inc()
	case eventbus.TypeStateChanged:
		sc, ok := e.Data.(subscriber.StateChange)
		if !ok {
			return
		}
		m.setState(sc.To)
		if sc.To == subscriber.StateReconnectPending {
			cause := sc.Cause
			if cause == "" {
				cause = "unknown"
			}
			m.Reconnects.WithLabelValues(cause).Inc()
		}
	case eventbus.TypeNotifyQueued:
		m.Queued.Inc()
	case eventbus.TypeNotifySent:
		if de, ok := e.Data.(notifier.DeliveryEvent); ok {
			m.Delivered.WithLabelValues(de.Sink).Inc()
		}
	case eventbus.TypeNotifyFailed:
		if de, ok := e.Data.(notifier.DeliveryEvent); ok {
			m.SinkErrors.WithLabelValues(de.Sink).Inc()
		}
	case eventbus.TypeNotifyDropped:
		m.Dropped.Inc()
	case eventbus.TypeDedupReset:
		m.DedupResets.Inc()
		if re, ok := e.Data.(dedup.ResetEvent); ok {
			m.DedupEvicted.Add(float64(re.Evicted))
		}
	case eventbus.TypeConfigReloaded:
		m.ConfigReloads.Inc()
	}
}

func (m *Metrics) setState(cur subscriber.State) {
	for _, st := range states {
		v := 0.0
		if st == cur {
			v = 1
		}
		m.State.WithLabelValues(st.String()).Set(v)
	}
}
