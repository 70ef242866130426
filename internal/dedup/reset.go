package dedup

import (
	"context"
	"fmt"
	"time"

	logx "notifylistener/pkg/logx"

	"github.com/robfig/cron/v3"
)

// MinResetInterval is the smallest cycle the scheduler can honor.
const MinResetInterval = time.Second

// ResetEvent describes one completed reset.
type ResetEvent struct {
	Evicted int       `json:"evicted"`
	At      time.Time `json:"at"`
}

// RunResetCycle clears s every interval until ctx is done.
//
// The cycle is driven by wall-clock time only; it keeps running while the
// broker is disconnected. onReset (optional) receives the number of evicted ids.
func RunResetCycle(ctx context.Context, s *Store, interval time.Duration, log logx.Logger, onReset func(evicted int)) error {
	if s == nil {
		return fmt.Errorf("dedup: nil store")
	}
	if interval < MinResetInterval {
		return fmt.Errorf("dedup: reset interval %v is below %v", interval, MinResetInterval)
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{log: log})))
	c.Schedule(cron.Every(interval), cron.FuncJob(func() {
		n := s.Clear()
		log.Info("seen messages cleared", logx.Duration("cycle", interval), logx.Int("evicted", n))
		if onReset != nil {
			onReset(n)
		}
	}))
	c.Start()
	log.Debug("dedup reset cycle started", logx.Duration("cycle", interval))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
