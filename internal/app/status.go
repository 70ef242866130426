package app

import (
	"context"
	"time"

	"notifylistener/internal/notifier"
	rtsup "notifylistener/internal/runtime/supervisor"
	"notifylistener/internal/storage"
	"notifylistener/internal/subscriber"
	logx "notifylistener/pkg/logx"
)

const statusJournalLimit = 20

// Status is served by the debug server on /status.
type Status struct {
	StartedAt  time.Time                 `json:"started_at"`
	Uptime     string                    `json:"uptime"`
	Broker     string                    `json:"broker"`
	Topic      string                    `json:"topic"`
	Subscriber subscriber.Stats          `json:"subscriber"`
	DedupSize  int                       `json:"dedup_size"`
	Sinks      []string                  `json:"sinks"`
	History    []notifier.HistoryItem    `json:"history"`
	Journal    []storage.Delivery        `json:"journal,omitempty"`
	Tasks      map[string]rtsup.Snapshot `json:"tasks"`
}

func (a *App) Status() Status {
	st := Status{
		StartedAt:  a.startedAt,
		Broker:     a.cfg.MQTTServer,
		Topic:      a.cfg.MQTTTopic,
		Subscriber: a.subs.Stats(),
		DedupSize:  a.seen.Len(),
		Sinks:      a.notif.Sinks(),
		History:    a.notif.Snapshot(),
		Tasks:      map[string]rtsup.Snapshot{},
	}
	if !a.startedAt.IsZero() {
		st.Uptime = time.Since(a.startedAt).Round(time.Second).String()
	}
	if a.sup != nil {
		st.Tasks["app"] = a.sup.Snapshot()
	}
	if sup := a.notif.Supervisor(); sup != nil {
		st.Tasks["notifier"] = sup.Snapshot()
	}
	if sup := a.debug.Supervisor(); sup != nil {
		st.Tasks["debug"] = sup.Snapshot()
	}
	if a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		recent, err := a.store.RecentDeliveries(ctx, statusJournalLimit)
		if err != nil {
			a.log.Debug("journal read failed", logx.Err(err))
		} else {
			st.Journal = recent
		}
	}
	return st
}
