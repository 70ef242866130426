package config

import (
	"reflect"
	"sort"
	"strings"

	logx "notifylistener/pkg/logx"
)

// SummarizeConfigChange returns the changed sections plus safe attrs for
// logging (never secrets). "broker" in the list means a restart is needed
// for the change to take effect.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if BrokerChanged(oldCfg, newCfg) {
		changed = append(changed, "broker")
		attrs = append(attrs,
			logx.String("broker.server", newCfg.MQTTServer),
			logx.Int("broker.port", newCfg.MQTTPort),
			logx.String("broker.topic", newCfg.MQTTTopic),
			logx.Bool("broker.credentials_set", newCfg.MQTTUsername != "" && newCfg.MQTTPassword != ""),
			logx.Int64("broker.cleaning_cycle", newCfg.CleaningCycle),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
	}
	if telegramChanged(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.enabled", newCfg.Telegram != nil && newCfg.Telegram.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Debug, newCfg.Debug) {
		changed = append(changed, "debug")
		attrs = append(attrs, logx.Bool("debug.token_set", newCfg.Debug != nil && strings.TrimSpace(newCfg.Debug.Token) != ""))
	}
	if !reflect.DeepEqual(oldCfg.Tray, newCfg.Tray) {
		changed = append(changed, "tray")
	}

	sort.Strings(changed)
	return changed, attrs
}

// BrokerChanged reports whether any setting read once at startup differs.
func BrokerChanged(a, b *Config) bool {
	return strings.TrimSpace(a.MQTTServer) != strings.TrimSpace(b.MQTTServer) ||
		a.MQTTPort != b.MQTTPort ||
		a.MQTTUsername != b.MQTTUsername ||
		a.MQTTPassword != b.MQTTPassword ||
		a.MQTTTopic != b.MQTTTopic ||
		a.CleaningCycle != b.CleaningCycle
}

func telegramChanged(a, b *TelegramConfig) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	if a == nil {
		return false
	}
	return *a != *b
}
