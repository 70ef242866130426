package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notifylistener/internal/broker"
	"notifylistener/internal/config"
	"notifylistener/internal/dedup"
	"notifylistener/internal/eventbus"
	"notifylistener/internal/metrics"
	"notifylistener/internal/notifier"
	"notifylistener/internal/notifier/desktop"
	"notifylistener/internal/notifier/telegram"
	"notifylistener/internal/observability/debugsrv"
	rtsup "notifylistener/internal/runtime/supervisor"
	"notifylistener/internal/storage"
	"notifylistener/internal/subscriber"
	"notifylistener/internal/tray"
	logx "notifylistener/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	seen    *dedup.Store
	notif   *notifier.Service
	subs    *subscriber.Service
	metrics *metrics.Metrics
	debug   *debugsrv.Service
	tray    *tray.Tray
	sd      *sdNotifier

	sup       *rtsup.Supervisor
	startedAt time.Time
}

// New loads the config and builds every component. Any error is fatal:
// nothing has connected yet.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	// Reject bad optional sections before opening anything.
	ncfg, desktopOn, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	dcfg, err := mapDebugConfig(cfg)
	if err != nil {
		return nil, err
	}
	scfg, storeOn, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	broker.RouteClientLogs(log.With(logx.String("comp", "mqtt")))

	bus := eventbus.New()

	var store storage.Store
	if storeOn {
		store, err = storage.Open(scfg, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		log.Info("delivery journal enabled", logx.String("driver", scfg.Driver))
	}

	var sinks []notifier.Sink
	if desktopOn {
		sinks = append(sinks, desktop.New(trayTitle(cfg), log.With(logx.String("comp", "desktop"))))
	}
	if tc, ok := mapTelegramConfig(cfg); ok {
		tg, err := telegram.New(tc, log.With(logx.String("comp", "telegram")))
		if err != nil {
			if store != nil {
				_ = store.Close()
			}
			return nil, fmt.Errorf("telegram sink: %w", err)
		}
		sinks = append(sinks, tg)
	}
	notif := notifier.New(ncfg, sinks, log.With(logx.String("comp", "notifier")), bus, store)

	seen := dedup.New()
	mgr := subscriber.NewManager(
		mapSubscriberConfig(cfg),
		broker.PahoDialer(log.With(logx.String("comp", "mqtt"))),
		seen, notif,
		log.With(logx.String("comp", "subscriber")),
		bus,
	)
	subs := subscriber.NewService(mgr, log.With(logx.String("comp", "subscriber")))

	m := metrics.New()
	m.TrackDedupSize(seen)

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     bus,
		store:   store,
		seen:    seen,
		notif:   notif,
		subs:    subs,
		metrics: m,
		tray:    tray.New(mapTrayConfig(cfg), log.With(logx.String("comp", "tray"))),
		sd:      newSDNotifier(log.With(logx.String("comp", "systemd"))),
	}
	a.debug = debugsrv.New(dcfg, log.With(logx.String("comp", "debug")), m.Handler(), func() any { return a.Status() })
	return a, nil
}

func trayTitle(cfg *config.Config) string {
	if cfg.Tray != nil && strings.TrimSpace(cfg.Tray.Title) != "" {
		return cfg.Tray.Title
	}
	return tray.DefaultTitle
}

func (a *App) Tray() *tray.Tray { return a.tray }

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.startedAt = time.Now()
	c := a.sup.Context()

	// Subscribe before anything publishes so the first transitions are seen.
	metricEvents, unsubMetrics := a.bus.Subscribe(256)
	a.sup.Go("metrics", func(c context.Context) error {
		defer unsubMetrics()
		return a.metrics.Consume(c, metricEvents)
	})
	statusEvents, unsubStatus := a.bus.Subscribe(64)
	a.sup.Go("status.watch", func(c context.Context) error {
		defer unsubStatus()
		return a.watchStatus(c, statusEvents)
	})

	a.notif.Start(c)

	cycle := a.cfg.CleaningCycleDuration()
	a.sup.Go("dedup.reset", func(c context.Context) error {
		return dedup.RunResetCycle(c, a.seen, cycle, a.log.With(logx.String("comp", "dedup")), func(n int) {
			a.bus.Publish(eventbus.Event{Type: eventbus.TypeDedupReset, Data: dedup.ResetEvent{Evicted: n, At: time.Now()}})
		})
	})

	a.sup.Go("subscriber", a.subs.Run)

	a.debug.Start(c)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if iv, err := daemon.SdWatchdogEnabled(false); err == nil && iv > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			t := time.NewTicker(iv / 2)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return nil
				case <-t.C:
					a.sd.Watchdog()
				}
			}
		})
	}

	a.sd.Ready()
	a.log.Info("notify listener started",
		logx.String("broker", fmt.Sprintf("%s:%d", a.cfg.MQTTServer, a.cfg.MQTTPort)),
		logx.String("topic", a.cfg.MQTTTopic),
		logx.Duration("cleaning_cycle", cycle),
		logx.Any("sinks", a.notif.Sinks()))
	return nil
}

// watchStatus mirrors subscriber state into systemd and the tray.
func (a *App) watchStatus(c context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-c.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeStateChanged {
				a.log.Trace("event", logx.String("type", e.Type))
				continue
			}
			sc, ok := e.Data.(subscriber.StateChange)
			if !ok {
				continue
			}
			status := statusLine(a.cfg, sc.To)
			a.sd.Status(status)
			a.tray.SetStatus(status)
		}
	}
}

func statusLine(cfg *config.Config, st subscriber.State) string {
	switch st {
	case subscriber.StateSubscribed:
		return "Listening on " + cfg.MQTTTopic
	case subscriber.StateConnecting:
		return fmt.Sprintf("Connecting to %s:%d", cfg.MQTTServer, cfg.MQTTPort)
	case subscriber.StateReconnectPending:
		return "Reconnecting..."
	default:
		return "Disconnected"
	}
}

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyReload(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyReload applies what can change live (logging, debug server) and
// warns about the rest.
func (a *App) applyReload(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	var restart []string
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogging(newCfg))
		case "debug":
			dc, err := mapDebugConfig(newCfg)
			if err != nil {
				a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
				continue
			}
			a.debug.Reconfigure(c, dc)
		default:
			restart = append(restart, s)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.sd.Stopping()
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- fn(stepCtx) }()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error {
		if err := a.sup.Wait(c); err != nil && c.Err() == nil {
			return err
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
