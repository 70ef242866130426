package subscriber

import (
	"context"
	"time"

	logx "notifylistener/pkg/logx"
)

// ReconnectDelay is the fixed pause between sessions. There is no retry ceiling.
const ReconnectDelay = 5 * time.Second

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type ServiceOption func(*Service)

func WithSleeper(sl Sleeper) ServiceOption { return func(s *Service) { s.sleep = sl } }

// Service owns the outer reconnect loop around Manager.
type Service struct {
	m     *Manager
	log   logx.Logger
	delay time.Duration
	sleep Sleeper
}

func NewService(m *Manager, log logx.Logger, opts ...ServiceOption) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{m: m, log: log, delay: ReconnectDelay, sleep: sleepCtx}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) State() State { return s.m.State() }

func (s *Service) Stats() Stats { return s.m.Stats() }

// Run keeps a session alive until ctx is cancelled. It returns nil on shutdown.
func (s *Service) Run(ctx context.Context) error {
	defer s.m.markDisconnected("shutdown")
	for {
		err := s.m.RunSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("session ended; reconnecting", logx.Err(err), logx.Duration("delay", s.delay))
		if err := s.sleep(ctx, s.delay); err != nil {
			return nil
		}
	}
}
