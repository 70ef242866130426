package subscriber

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"notifylistener/internal/broker"
	"notifylistener/internal/dedup"
	"notifylistener/internal/eventbus"
	logx "notifylistener/pkg/logx"

	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	pollFor = 5 * time.Millisecond
)

func baseConfig() Config {
	return Config{
		Broker: broker.Options{Server: "broker.local", Port: 1883},
		Topic:  "alerts",
	}
}

type sessionResult struct{ err error }

func runAsync(ctx context.Context, m *Manager) <-chan sessionResult {
	out := make(chan sessionResult, 1)
	go func() { out <- sessionResult{err: m.RunSession(ctx)} }()
	return out
}

func waitResult(t *testing.T, ch <-chan sessionResult) error {
	t.Helper()
	select {
	case r := <-ch:
		return r.err
	case <-time.After(waitFor):
		t.Fatalf("session did not end")
		return nil
	}
}

func TestDuplicateIsForwardedOnce(t *testing.T) {
	sess := newFakeSession()
	d := &fakeDialer{script: []*fakeSession{sess}}
	fwd := &recordForwarder{}
	m := NewManager(baseConfig(), d.Dial, dedup.New(), fwd, logx.Nop(), nil)

	res := runAsync(context.Background(), m)
	require.Eventually(t, func() bool { return m.State() == StateSubscribed }, waitFor, pollFor)

	sess.publish(`{"message_id":"A","title":"first"}`)
	sess.publish(`{"message_id":"A","title":"again"}`)
	sess.publish(`{"message_id":"B"}`)
	require.Eventually(t, func() bool { return len(fwd.ids()) == 2 && m.Stats().Duplicates == 1 }, waitFor, pollFor)

	boom := errors.New("connection reset by peer")
	sess.end(boom)
	err := waitResult(t, res)
	require.ErrorIs(t, err, boom)

	require.Equal(t, []string{"A", "B"}, fwd.ids())
	require.Equal(t, "first", fwd.got[0].Title)
	require.Equal(t, "Details", fwd.got[1].Body)
	require.Equal(t, StateReconnectPending, m.State())
	require.Equal(t, "alerts", sess.topic)
	require.Equal(t, broker.QoSAtMostOnce, sess.qos)
	require.True(t, sess.closed.Load())

	st := m.Stats()
	require.EqualValues(t, 3, st.Received)
	require.EqualValues(t, 2, st.Forwarded)
	require.Contains(t, st.LastError, "connection reset by peer")
}

func TestEndOfStreamLeadsToReconnect(t *testing.T) {
	sess := newFakeSession()
	d := &fakeDialer{script: []*fakeSession{sess}}
	m := NewManager(baseConfig(), d.Dial, dedup.New(), &recordForwarder{}, logx.Nop(), nil)

	res := runAsync(context.Background(), m)
	require.Eventually(t, func() bool { return m.State() == StateSubscribed }, waitFor, pollFor)

	sess.end(nil)
	require.ErrorIs(t, waitResult(t, res), ErrEndOfStream)
	require.Equal(t, StateReconnectPending, m.State())
}

func TestEventsBufferedBeforeEndAreHandled(t *testing.T) {
	sess := newFakeSession()
	d := &fakeDialer{script: []*fakeSession{sess}}
	fwd := &recordForwarder{}
	m := NewManager(baseConfig(), d.Dial, dedup.New(), fwd, logx.Nop(), nil)

	// Queue up traffic and the disconnect before the loop starts reading.
	sess.publish(`{"message_id":"late"}`)
	sess.end(errors.New("eof"))

	err := m.RunSession(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"late"}, fwd.ids())
}

func TestConnectFailurePublishesTransitions(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	d := &fakeDialer{} // every dial fails to connect
	m := NewManager(baseConfig(), d.Dial, dedup.New(), &recordForwarder{}, logx.Nop(), bus)

	err := m.RunSession(context.Background())
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, StateReconnectPending, m.State())
	require.True(t, d.dialed[0].closed.Load())

	var (
		got   []string
		cause string
	)
	for len(events) > 0 {
		ev := <-events
		if ev.Type == eventbus.TypeStateChanged {
			sc := ev.Data.(StateChange)
			got = append(got, sc.FromStr+"->"+sc.ToStr)
			cause = sc.Cause
		}
	}
	require.Equal(t, []string{"disconnected->connecting", "connecting->reconnect_pending"}, got)
	require.Equal(t, CauseConnect, cause)
}

func TestSubscribeFailureLeadsToReconnect(t *testing.T) {
	sess := newFakeSession()
	sess.subscribeErr = errors.New("not authorized")
	d := &fakeDialer{script: []*fakeSession{sess}}
	m := NewManager(baseConfig(), d.Dial, dedup.New(), &recordForwarder{}, logx.Nop(), nil)

	err := m.RunSession(context.Background())
	require.ErrorContains(t, err, "not authorized")
	require.Equal(t, StateReconnectPending, m.State())
	require.True(t, sess.closed.Load())
	require.EqualValues(t, 0, m.Stats().Sessions)
}

func TestCredentialsAppliedOnlyWhenBothSet(t *testing.T) {
	cases := []struct {
		name     string
		user     string
		pass     string
		wantUser string
		wantPass string
	}{
		{"both", "alice", "s3cret", "alice", "s3cret"},
		{"user only", "alice", "", "", ""},
		{"password only", "", "s3cret", "", ""},
		{"none", "", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Broker.Username, cfg.Broker.Password = tc.user, tc.pass
			d := &fakeDialer{}
			m := NewManager(cfg, d.Dial, dedup.New(), &recordForwarder{}, logx.Nop(), nil)
			_ = m.RunSession(context.Background())

			require.Len(t, d.options, 1)
			require.Equal(t, tc.wantUser, d.options[0].Username)
			require.Equal(t, tc.wantPass, d.options[0].Password)
			require.Equal(t, broker.KeepAlive, d.options[0].KeepAlive)
		})
	}
}

func TestSilentBrokerForcesReconnect(t *testing.T) {
	sess := newFakeSession()
	d := &fakeDialer{script: []*fakeSession{sess}}
	clock := newFakeClock()
	tick := make(manualTicker)
	m := NewManager(baseConfig(), d.Dial, dedup.New(), &recordForwarder{}, logx.Nop(), nil,
		WithClock(clock.Now), WithTicker(tick.ticker))

	res := runAsync(context.Background(), m)
	require.Eventually(t, func() bool { return m.State() == StateSubscribed }, waitFor, pollFor)

	// 299s of silence is tolerated.
	clock.Advance(299 * time.Second)
	tick.fire(t)
	tick.fire(t)
	require.Equal(t, StateSubscribed, m.State())

	// A protocol-level packet (e.g. a ping response) counts as activity.
	sess.events <- broker.Event{Kind: broker.EventPacket}
	require.Eventually(t, func() bool { return m.Stats().LastActivity.Equal(clock.Now()) }, waitFor, pollFor)

	clock.Advance(299 * time.Second)
	tick.fire(t)
	tick.fire(t)
	require.Equal(t, StateSubscribed, m.State())

	clock.Advance(2 * time.Second)
	tick.fire(t)

	require.ErrorIs(t, waitResult(t, res), ErrStale)
	require.Equal(t, StateReconnectPending, m.State())
	require.True(t, sess.closed.Load())
	require.EqualValues(t, 1, m.Stats().StaleResets)
}

func TestMissingMessageIDIsLoggedOnceAndDropped(t *testing.T) {
	buf := &safeBuffer{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	sess := newFakeSession()
	d := &fakeDialer{script: []*fakeSession{sess}}
	fwd := &recordForwarder{}
	m := NewManager(baseConfig(), d.Dial, dedup.New(), fwd, logx.NewWriter(buf, "debug"), bus)

	ctx, cancel := context.WithCancel(context.Background())
	res := runAsync(ctx, m)
	require.Eventually(t, func() bool { return m.State() == StateSubscribed }, waitFor, pollFor)

	sess.publish(`{"title":"no id here"}`)
	sess.publish(`{"message_id":"ok"}`)
	require.Eventually(t, func() bool { return len(fwd.ids()) == 1 }, waitFor, pollFor)

	cancel()
	require.ErrorIs(t, waitResult(t, res), context.Canceled)

	require.Equal(t, []string{"ok"}, fwd.ids())
	require.Equal(t, 1, strings.Count(buf.String(), "dropping undecodable notification"))
	require.EqualValues(t, 1, m.Stats().DecodeFailures)

	failures := 0
	for len(events) > 0 {
		if ev := <-events; ev.Type == eventbus.TypeDecodeFailed {
			failures++
			require.Contains(t, ev.Data.(DecodeFailure).Error, "message_id")
		}
	}
	require.Equal(t, 1, failures)
}

func TestCancelledSessionKeepsState(t *testing.T) {
	sess := newFakeSession()
	d := &fakeDialer{script: []*fakeSession{sess}}
	m := NewManager(baseConfig(), d.Dial, dedup.New(), &recordForwarder{}, logx.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	res := runAsync(ctx, m)
	require.Eventually(t, func() bool { return m.State() == StateSubscribed }, waitFor, pollFor)

	cancel()
	require.ErrorIs(t, waitResult(t, res), context.Canceled)
	require.Equal(t, StateSubscribed, m.State())
	require.True(t, sess.closed.Load())
}
