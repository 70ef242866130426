package subscriber

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"notifylistener/internal/broker"
	"notifylistener/internal/dedup"
	"notifylistener/internal/event"
	"notifylistener/internal/eventbus"
	"notifylistener/internal/watchdog"
	logx "notifylistener/pkg/logx"
)

// DefaultCheckInterval is how often a silent session is checked for staleness.
const DefaultCheckInterval = time.Second

var (
	ErrStale       = errors.New("no broker activity within the inactivity timeout")
	ErrEndOfStream = errors.New("broker event stream ended")
)

// Session end causes.
const (
	CauseConnect   = "connect"
	CauseSubscribe = "subscribe"
	CauseTransport = "transport"
	CauseEOF       = "end_of_stream"
	CauseStale     = "stale"
)

// SessionError tells which stage ended a session.
type SessionError struct {
	Cause string
	Err   error
}

func (e *SessionError) Error() string { return e.Cause + ": " + e.Err.Error() }

func (e *SessionError) Unwrap() error { return e.Err }

func causeOf(err error) string {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Cause
	}
	return ""
}

// Forwarder receives every distinct notification.
type Forwarder interface {
	Forward(ctx context.Context, ev event.NotificationEvent, topic string) error
}

type Config struct {
	Broker        broker.Options
	Topic         string
	StaleTimeout  time.Duration
	CheckInterval time.Duration
}

// Ticker returns a tick channel and its stop function.
type Ticker func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Option func(*Manager)

func WithClock(now watchdog.Clock) Option { return func(m *Manager) { m.now = now } }

func WithTicker(t Ticker) Option { return func(m *Manager) { m.ticker = t } }

// Manager runs one broker session at a time: connect, subscribe, then pump
// events through decode and dedup until the session breaks.
type Manager struct {
	cfg    Config
	dial   broker.Dialer
	seen   *dedup.Store
	fwd    Forwarder
	log    logx.Logger
	bus    eventbus.Bus
	now    watchdog.Clock
	ticker Ticker

	state atomic.Int32

	attempts       atomic.Uint64
	sessions       atomic.Uint64
	received       atomic.Uint64
	forwarded      atomic.Uint64
	duplicates     atomic.Uint64
	decodeFailures atomic.Uint64
	staleResets    atomic.Uint64

	mu        sync.Mutex
	wd        *watchdog.Watchdog
	lastErr   error
	lastErrAt time.Time
}

func NewManager(cfg Config, dial broker.Dialer, seen *dedup.Store, fwd Forwarder, log logx.Logger, bus eventbus.Bus, opts ...Option) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = watchdog.DefaultTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Broker.KeepAlive <= 0 {
		cfg.Broker.KeepAlive = broker.KeepAlive
	}
	// Credentials are all or nothing.
	if !cfg.Broker.HasCredentials() {
		cfg.Broker.Username, cfg.Broker.Password = "", ""
	}
	m := &Manager{
		cfg:    cfg,
		dial:   dial,
		seen:   seen,
		fwd:    fwd,
		log:    log,
		bus:    bus,
		now:    time.Now,
		ticker: realTicker,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) Stats() Stats {
	st := Stats{
		State:          m.State().String(),
		Attempts:       m.attempts.Load(),
		Sessions:       m.sessions.Load(),
		Received:       m.received.Load(),
		Forwarded:      m.forwarded.Load(),
		Duplicates:     m.duplicates.Load(),
		DecodeFailures: m.decodeFailures.Load(),
		StaleResets:    m.staleResets.Load(),
	}
	m.mu.Lock()
	if m.wd != nil {
		st.LastActivity = m.wd.LastActivity()
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
		st.LastErrorAt = m.lastErrAt
	}
	m.mu.Unlock()
	return st
}

func (m *Manager) setState(to State, reason string) { m.transition(to, reason, "") }

func (m *Manager) transition(to State, reason, cause string) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	fields := []logx.Field{logx.String("from", from.String()), logx.String("to", to.String())}
	if reason != "" {
		fields = append(fields, logx.String("reason", reason))
	}
	m.log.Info("subscriber state changed", fields...)
	m.publish(eventbus.TypeStateChanged, StateChange{
		From:    from,
		To:      to,
		FromStr: from.String(),
		ToStr:   to.String(),
		Reason:  reason,
		Cause:   cause,
		Attempt: m.attempts.Load(),
		At:      m.now(),
	})
}

func (m *Manager) noteErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.lastErrAt = m.now()
	m.mu.Unlock()
}

// markDisconnected is used when the outer loop stops for good.
func (m *Manager) markDisconnected(reason string) { m.setState(StateDisconnected, reason) }

// RunSession runs a single session and returns why it ended. On return the
// state is ReconnectPending, or unchanged when ctx was cancelled.
func (m *Manager) RunSession(ctx context.Context) error {
	err := m.runSession(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.noteErr(err)
	m.transition(StateReconnectPending, err.Error(), causeOf(err))
	return err
}

func (m *Manager) runSession(ctx context.Context) error {
	attempt := m.attempts.Add(1)
	m.setState(StateConnecting, "")
	m.log.Debug("connecting to broker",
		logx.String("server", m.cfg.Broker.Server),
		logx.Int("port", m.cfg.Broker.Port),
		logx.Bool("auth", m.cfg.Broker.HasCredentials()),
		logx.Uint64("attempt", attempt))

	sess := m.dial(m.cfg.Broker)
	defer sess.Close()

	if err := sess.Connect(ctx); err != nil {
		return &SessionError{Cause: CauseConnect, Err: err}
	}
	if err := sess.Subscribe(ctx, m.cfg.Topic, broker.QoSAtMostOnce); err != nil {
		return &SessionError{Cause: CauseSubscribe, Err: err}
	}

	wd := watchdog.New(m.now)
	m.mu.Lock()
	m.wd = wd
	m.mu.Unlock()

	m.sessions.Add(1)
	m.setState(StateSubscribed, "")
	m.log.Info("subscribed", logx.String("topic", m.cfg.Topic))

	tick, stop := m.ticker(m.cfg.CheckInterval)
	defer stop()

	for {
		if wd.IsStale(m.cfg.StaleTimeout) {
			m.staleResets.Add(1)
			m.log.Warn("broker silent; forcing reconnect",
				logx.Duration("elapsed", wd.Elapsed()), logx.Duration("timeout", m.cfg.StaleTimeout))
			return &SessionError{Cause: CauseStale, Err: ErrStale}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		case ev := <-sess.Events():
			wd.RecordActivity()
			m.handle(ctx, ev)
		case <-sess.Done():
			m.drain(ctx, sess, wd)
			if err := sess.Err(); err != nil {
				return &SessionError{Cause: CauseTransport, Err: err}
			}
			return &SessionError{Cause: CauseEOF, Err: ErrEndOfStream}
		}
	}
}

// drain handles events buffered before the session ended.
func (m *Manager) drain(ctx context.Context, sess broker.Session, wd *watchdog.Watchdog) {
	for {
		select {
		case ev := <-sess.Events():
			wd.RecordActivity()
			m.handle(ctx, ev)
		default:
			return
		}
	}
}

func (m *Manager) handle(ctx context.Context, ev broker.Event) {
	switch ev.Kind {
	case broker.EventPublish:
		m.handlePublish(ctx, ev)
	case broker.EventConnected:
		m.log.Debug("broker acknowledged connection")
	default:
		m.log.Trace("broker event", logx.String("kind", ev.Kind.String()))
	}
}

func (m *Manager) handlePublish(ctx context.Context, ev broker.Event) {
	m.received.Add(1)
	m.publish(eventbus.TypeReceived, nil)

	n, err := event.Decode(ev.Payload)
	if err != nil {
		m.decodeFailures.Add(1)
		m.log.Warn("dropping undecodable notification", logx.String("topic", ev.Topic), logx.Err(err))
		m.publish(eventbus.TypeDecodeFailed, DecodeFailure{Topic: ev.Topic, Error: err.Error(), At: m.now()})
		return
	}

	if m.seen.CheckAndMark(n.MessageID) {
		m.duplicates.Add(1)
		m.log.Debug("duplicate notification dropped", logx.String("message_id", n.MessageID))
		m.publish(eventbus.TypeDuplicate, Duplicate{MessageID: n.MessageID, Topic: ev.Topic, At: m.now()})
		return
	}

	if err := m.fwd.Forward(ctx, n, ev.Topic); err != nil {
		m.log.Warn("notification not forwarded", logx.String("message_id", n.MessageID), logx.Err(err))
		return
	}
	m.forwarded.Add(1)
	m.log.Debug("notification forwarded", logx.String("message_id", n.MessageID), logx.String("title", n.Title))
}

func (m *Manager) publish(typ string, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Time: m.now(), Data: data})
}
