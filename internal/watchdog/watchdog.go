// Package watchdog detects a broker that stays connected but stops talking.
//
// The MQTT keep-alive only proves the TCP session answers pings at the
// protocol layer; it cannot notice a broker that accepts the connection and
// then never delivers anything. The watchdog tracks the last received event of
// any kind and lets the session loop force a reconnect once it is too old.
package watchdog

import (
	"sync"
	"time"
)

// DefaultTimeout is how long a session may stay silent before it is torn down.
const DefaultTimeout = 300 * time.Second

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

type Watchdog struct {
	mu   sync.Mutex
	now  Clock
	last time.Time
}

// New returns a watchdog whose activity clock starts now.
func New(now Clock) *Watchdog {
	if now == nil {
		now = time.Now
	}
	return &Watchdog{now: now, last: now()}
}

// RecordActivity marks that the broker delivered something.
func (w *Watchdog) RecordActivity() {
	w.mu.Lock()
	w.last = w.now()
	w.mu.Unlock()
}

// IsStale reports whether more than timeout elapsed since the last activity.
func (w *Watchdog) IsStale(timeout time.Duration) bool {
	return w.Elapsed() > timeout
}

func (w *Watchdog) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now().Sub(w.last)
}

func (w *Watchdog) LastActivity() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
