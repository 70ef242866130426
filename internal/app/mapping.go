package app

import (
	"fmt"
	"strings"
	"time"

	"notifylistener/internal/broker"
	"notifylistener/internal/config"
	"notifylistener/internal/notifier"
	"notifylistener/internal/notifier/telegram"
	"notifylistener/internal/observability/debugsrv"
	"notifylistener/internal/storage"
	"notifylistener/internal/subscriber"
	"notifylistener/internal/tray"
	logx "notifylistener/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSubscriberConfig(cfg *config.Config) subscriber.Config {
	return subscriber.Config{
		Broker: broker.Options{
			Server:   cfg.MQTTServer,
			Port:     cfg.MQTTPort,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			ClientID: broker.NewClientID(),
		},
		Topic: cfg.MQTTTopic,
	}
}

// mapNotifierConfig also reports whether desktop toasts are enabled.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, bool, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{}, true, nil
	}
	timeout, err := config.ParseDurationOrDefault("notifier.send_timeout", nc.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, false, err
	}
	desktop := true
	if nc.Desktop != nil {
		desktop = *nc.Desktop
	}
	return notifier.Config{
		QueueSize:   nc.QueueSize,
		RatePerSec:  nc.RatePerSec,
		HistorySize: nc.HistorySize,
		ImagesDir:   strings.TrimSpace(nc.ImagesDir),
		SendTimeout: timeout,
	}, desktop, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool) {
	tc := cfg.Telegram
	if tc == nil || !tc.Enabled {
		return telegram.Config{}, false
	}
	return telegram.Config{Token: tc.Token, ChatID: tc.ChatID, ThreadID: tc.ThreadID}, true
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapDebugConfig(cfg *config.Config) (debugsrv.Config, error) {
	dc := cfg.Debug
	if dc == nil {
		return debugsrv.Config{}, nil
	}
	read, err := config.ParseDurationOrDefault("debug.read_timeout", dc.ReadTimeout, 10*time.Second)
	if err != nil {
		return debugsrv.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("debug.idle_timeout", dc.IdleTimeout, 60*time.Second)
	if err != nil {
		return debugsrv.Config{}, err
	}
	return debugsrv.Config{
		Enabled:       dc.Enabled,
		Addr:          strings.TrimSpace(dc.Addr),
		Token:         strings.TrimSpace(dc.Token),
		AllowInsecure: dc.AllowInsecure,
		ReadTimeout:   read,
		// profile/trace stream for up to their "seconds" parameter
		WriteTimeout: 0,
		IdleTimeout:  idle,
	}, nil
}

func mapTrayConfig(cfg *config.Config) tray.Config {
	if cfg.Tray == nil {
		return tray.Config{Enabled: true}
	}
	return tray.Config{Enabled: cfg.Tray.Enabled, Title: cfg.Tray.Title, IconPath: cfg.Tray.Icon}
}
