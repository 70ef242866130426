package broker

import (
	"fmt"
	"strings"
	"sync"

	logx "notifylistener/pkg/logx"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var routeOnce sync.Once

// RouteClientLogs sends paho's internal ERROR/CRITICAL/WARN output to log.
// Paho's loggers are process globals, so only the first call takes effect.
func RouteClientLogs(log logx.Logger) {
	if log.IsZero() {
		return
	}
	routeOnce.Do(func() {
		mqtt.CRITICAL = pahoLogger{log: log, level: logx.LevelError}
		mqtt.ERROR = pahoLogger{log: log, level: logx.LevelError}
		mqtt.WARN = pahoLogger{log: log, level: logx.LevelWarn}
	})
}

type pahoLogger struct {
	log   logx.Logger
	level logx.Level
}

func (l pahoLogger) Println(v ...interface{}) { l.write(strings.TrimSpace(fmt.Sprintln(v...))) }

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.write(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l pahoLogger) write(msg string) {
	if l.level >= logx.LevelError {
		l.log.Error("paho: " + msg)
		return
	}
	l.log.Warn("paho: " + msg)
}
