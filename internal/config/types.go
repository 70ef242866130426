package config

import "time"

// Config is the on-disk configuration (JSON, or YAML when the file ends in .yaml/.yml).
//
// The broker keys are flat for compatibility with existing deployments:
//
//	{
//	  "mqtt_server": "broker.local",
//	  "mqtt_port": 1883,
//	  "mqtt_topic": "notify",
//	  "cleaning_cycle": 43200
//	}
//
// Broker settings are read once at startup; hot reload only touches logging
// and the debug server.
type Config struct {
	MQTTServer   string `json:"mqtt_server" validate:"required"`
	MQTTPort     int    `json:"mqtt_port" validate:"required,min=1,max=65535"`
	MQTTUsername string `json:"mqtt_username,omitempty"`
	MQTTPassword string `json:"mqtt_password,omitempty"`
	MQTTTopic    string `json:"mqtt_topic" validate:"required"`
	// CleaningCycle is the dedup reset interval in seconds (e.g. 43200 for 12 hours).
	// The upper bound keeps it within time.Duration.
	CleaningCycle int64 `json:"cleaning_cycle" validate:"required,min=1,max=9223372036"`

	Logging  LoggingConfig   `json:"logging"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Debug    *DebugConfig    `json:"debug,omitempty"`
	Tray     *TrayConfig     `json:"tray,omitempty"`
}

// CleaningCycleDuration returns cleaning_cycle as a duration.
func (c *Config) CleaningCycleDuration() time.Duration {
	return time.Duration(c.CleaningCycle) * time.Second
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifierConfig controls delivery to the desktop (and optional Telegram) sink.
//
// Defaults (when omitted/zero):
//   - queue_size: 256
//   - rate_per_sec: 0 (unthrottled)
//   - history_size: 100
//   - images_dir: "./images"
//   - desktop: true
type NotifierConfig struct {
	QueueSize   int    `json:"queue_size,omitempty" validate:"omitempty,min=1"`
	RatePerSec  int    `json:"rate_per_sec,omitempty" validate:"omitempty,min=1"`
	HistorySize int    `json:"history_size,omitempty" validate:"omitempty,min=1"`
	ImagesDir   string `json:"images_dir,omitempty"`
	// Desktop is a pointer so an explicit false can disable toasts (headless hosts).
	Desktop *bool `json:"desktop,omitempty"`
	// SendTimeout is a Go duration string (e.g. "10s").
	SendTimeout string `json:"send_timeout,omitempty"`
}

// TelegramConfig mirrors each notification into a Telegram chat.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token" validate:"required_if=Enabled true"`
	ChatID   int64  `json:"chat_id" validate:"required_if=Enabled true"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// StorageConfig controls the optional delivery journal.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/deliveries" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig controls the optional HTTP server (/healthz, /status, /metrics, pprof).
//
// Prefer a loopback address. Binding elsewhere requires a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port"` // default: "127.0.0.1:6061"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

type TrayConfig struct {
	Enabled bool   `json:"enabled"`
	Title   string `json:"title,omitempty"`
	Icon    string `json:"icon,omitempty"` // path to an .ico/.png; empty uses the built-in icon
}
