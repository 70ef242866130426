package notifier

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"notifylistener/internal/event"
	"notifylistener/internal/eventbus"
	rtsup "notifylistener/internal/runtime/supervisor"
	"notifylistener/internal/storage"
	logx "notifylistener/pkg/logx"

	"golang.org/x/time/rate"
)

var ErrStopped = errors.New("notifier stopped")

type job struct {
	n Notification
}

// Service implements the delivery pipeline: queue + single worker + optional rate limit.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	sinks []Sink
	bus   eventbus.Bus
	store storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan job
	stopCh    chan struct{}
	sup       *rtsup.Supervisor

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sinks []Sink, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if strings.TrimSpace(cfg.ImagesDir) == "" {
		cfg.ImagesDir = "images"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Service{
		log:     log,
		sinks:   sinks,
		bus:     bus,
		store:   store,
		cfg:     cfg,
		limiter: newLimiter(cfg.RatePerSec),
	}
}

// newLimiter throttles deliveries only when a rate is configured. Forward
// blocks on a full queue, so a default throttle would push back into the
// broker session during a burst.
func newLimiter(perSec int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	// Burst = rate so a short spike is shown at once.
	return rate.NewLimiter(rate.Limit(perSec), perSec)
}

// Supervisor returns the internal supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Sinks lists the configured sink names.
func (s *Service) Sinks() []string {
	out := make([]string, 0, len(s.sinks))
	for _, sk := range s.sinks {
		out = append(out, sk.Name())
	}
	return out
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	if len(s.sinks) == 0 {
		s.log.Warn("no notification sinks configured; events will only be logged")
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// delivery problems must not take down the subscriber
		rtsup.WithCancelOnError(false),
	)
	q := s.queue
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("notifier.worker", func(c context.Context) error {
		s.workerLoop(c, q)
		if c.Err() != nil {
			return c.Err()
		}
		s.mu.Lock()
		stopping := !s.accepting
		s.mu.Unlock()
		if stopping {
			return nil
		}
		return errors.New("notifier worker exited unexpectedly")
	})
}

// Stop stops intake and drains the queue best-effort until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.queue == nil || !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	close(s.stopCh)
	q := s.queue
	sup := s.sup
	s.mu.Unlock()

	// Forward calls return once stopCh is closed.
	s.sendWG.Wait()
	close(q)

	if err := sup.Wait(ctx); err != nil && errors.Is(err, ctx.Err()) {
		sup.Cancel()
		s.log.Warn("notifier drain interrupted", logx.Int("pending", len(q)))
	}

	s.mu.Lock()
	s.queue = nil
	s.sup = nil
	s.mu.Unlock()
}

// ResolveLogo maps an event logo name to a file path under ImagesDir.
func (s *Service) ResolveLogo(logo string) string {
	return ResolveLogo(s.cfg.ImagesDir, logo)
}

// ResolveLogo returns dir/logo, or dir/DefaultLogo when logo is blank.
// A relative dir is resolved against the working directory.
func ResolveLogo(dir, logo string) string {
	name := strings.TrimSpace(logo)
	if name == "" {
		name = DefaultLogo
	}
	// Only a bare file name is accepted; "../x" must not escape the images dir.
	name = filepath.Base(filepath.Clean("/" + name))
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return filepath.Join(dir, name)
}

// Forward queues a decoded event for delivery. It blocks while the queue is
// full so no distinct event is silently lost.
func (s *Service) Forward(ctx context.Context, ev event.NotificationEvent, topic string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	stopCh := s.stopCh
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	j := job{n: Notification{
		MessageID:  ev.MessageID,
		Title:      ev.Title,
		Body:       ev.Body,
		LogoPath:   s.ResolveLogo(ev.Logo),
		Topic:      topic,
		ReceivedAt: time.Now(),
	}}

	select {
	case q <- j:
		s.publish(eventbus.TypeNotifyQueued, DeliveryEvent{MessageID: ev.MessageID})
		return nil
	case <-stopCh:
		s.publish(eventbus.TypeNotifyDropped, DeliveryEvent{MessageID: ev.MessageID, Error: ErrStopped.Error()})
		return ErrStopped
	case <-ctx.Done():
		s.publish(eventbus.TypeNotifyDropped, DeliveryEvent{MessageID: ev.MessageID, Error: ctx.Err().Error()})
		return ctx.Err()
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j.n)
		}
	}
}

func (s *Service) deliver(ctx context.Context, n Notification) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	var (
		errs      []error
		delivered []string
	)
	for _, sk := range s.sinks {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		err := sk.Show(callCtx, n)
		cancel()
		if err != nil {
			errs = append(errs, err)
			s.log.Warn("notification sink failed",
				logx.String("sink", sk.Name()), logx.String("message_id", n.MessageID), logx.Err(err))
			s.publish(eventbus.TypeNotifyFailed, DeliveryEvent{MessageID: n.MessageID, Sink: sk.Name(), Error: err.Error()})
			continue
		}
		delivered = append(delivered, sk.Name())
		s.publish(eventbus.TypeNotifySent, DeliveryEvent{MessageID: n.MessageID, Sink: sk.Name()})
	}

	err := errors.Join(errs...)
	item := HistoryItem{At: time.Now(), MessageID: n.MessageID, Title: n.Title}
	if err != nil {
		item.Error = err.Error()
	}
	s.appendHistory(item)
	s.log.Info("notification delivered",
		logx.String("message_id", n.MessageID), logx.String("title", n.Title), logx.Any("sinks", delivered))

	if s.store != nil {
		d := storage.Delivery{
			At:        item.At,
			MessageID: n.MessageID,
			Topic:     n.Topic,
			Title:     n.Title,
			Body:      n.Body,
			Logo:      filepath.Base(n.LogoPath),
			Sinks:     delivered,
			Error:     item.Error,
		}
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.store.AppendDelivery(sctx, d); err != nil {
			s.log.Debug("delivery journal append failed", logx.Err(err))
		}
		cancel()
	}
}

func (s *Service) publish(typ string, data DeliveryEvent) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	if data.At.IsZero() {
		data.At = now
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: data})
}
