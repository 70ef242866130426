package broker

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "notifylistener/pkg/logx"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const eventBuffer = 64

// NewClientID returns a process-unique MQTT client id.
func NewClientID() string {
	return "notify-listener-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// PahoDialer returns a Dialer backed by the Eclipse Paho client.
func PahoDialer(log logx.Logger) Dialer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(opts Options) Session { return newPahoSession(opts, log) }
}

type pahoSession struct {
	log    logx.Logger
	opts   Options
	client mqtt.Client

	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	err      error
	doneOnce sync.Once
}

func newPahoSession(opts Options, log logx.Logger) *pahoSession {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = KeepAlive
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = ConnectTimeout
	}
	if opts.ClientID == "" {
		opts.ClientID = NewClientID()
	}

	s := &pahoSession{
		log:    log.With(logx.String("client_id", opts.ClientID)),
		opts:   opts,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	co := mqtt.NewClientOptions().
		AddBroker(brokerURL(opts.Server, opts.Port)).
		SetClientID(opts.ClientID).
		SetProtocolVersion(4).
		SetKeepAlive(opts.KeepAlive).
		SetConnectTimeout(opts.ConnectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetDefaultPublishHandler(s.onPublish).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost).
		SetCustomOpenConnectionFn(s.openConn)
	if opts.HasCredentials() {
		co.SetUsername(opts.Username).SetPassword(opts.Password)
	}

	s.client = mqtt.NewClient(co)
	return s
}

func brokerURL(host string, port int) string {
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func (s *pahoSession) Connect(ctx context.Context) error {
	if err := s.closedErr(); err != nil {
		return err
	}
	if err := waitToken(ctx, s.client.Connect(), s.opts.ConnectTimeout+time.Second); err != nil {
		return fmt.Errorf("connect %s: %w", brokerURL(s.opts.Server, s.opts.Port), err)
	}
	return nil
}

func (s *pahoSession) Subscribe(ctx context.Context, topic string, qos byte) error {
	if err := s.closedErr(); err != nil {
		return err
	}
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := waitToken(ctx, s.client.Subscribe(topic, qos, s.onPublish), s.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("subscribe %q: %w", topic, err)
	}
	return nil
}

func (s *pahoSession) Events() <-chan Event  { return s.events }
func (s *pahoSession) Done() <-chan struct{} { return s.done }

func (s *pahoSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pahoSession) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.end(nil)
}

func (s *pahoSession) end(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *pahoSession) closedErr() error {
	select {
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrClosed
	default:
		return nil
	}
}

// emit never blocks past the end of the session.
func (s *pahoSession) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *pahoSession) onConnect(mqtt.Client) {
	s.emit(Event{Kind: EventConnected, At: time.Now()})
}

func (s *pahoSession) onConnectionLost(_ mqtt.Client, err error) {
	if err == nil {
		err = ErrClosed
	}
	s.log.Debug("mqtt connection lost", logx.Err(err))
	s.end(err)
}

func (s *pahoSession) onPublish(_ mqtt.Client, m mqtt.Message) {
	payload := append([]byte(nil), m.Payload()...)
	s.emit(Event{
		Kind:      EventPublish,
		At:        time.Now(),
		Topic:     m.Topic(),
		Payload:   payload,
		PacketID:  m.MessageID(),
		Duplicate: m.Duplicate(),
		Retained:  m.Retained(),
	})
}

// onActivity reports raw inbound traffic. It is best effort: if the buffer is
// full, pending events will refresh the activity clock anyway.
func (s *pahoSession) onActivity() {
	select {
	case s.events <- Event{Kind: EventPacket, At: time.Now()}:
	default:
	}
}

// openConn dials the broker and wraps the connection so that every inbound
// read counts as activity, including ping responses paho keeps to itself.
func (s *pahoSession) openConn(uri *url.URL, options mqtt.ClientOptions) (net.Conn, error) {
	d := net.Dialer{Timeout: options.ConnectTimeout}
	conn, err := d.Dial("tcp", uri.Host)
	if err != nil {
		return nil, err
	}
	return &activityConn{Conn: conn, onRead: s.onActivity}, nil
}

type activityConn struct {
	net.Conn
	onRead func()
}

func (c *activityConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 && c.onRead != nil {
		c.onRead()
	}
	return n, err
}

func waitToken(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-t.C:
		return ErrConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
