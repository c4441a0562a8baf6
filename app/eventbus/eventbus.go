package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	nats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	nc "github.com/nats-io/nats.go"

	"github.com/kinetic-exhibits/marathon-backend/app/metrics"
)

// ErrNotConnected is returned by Publish while the broker session is down.
// Publishes are never queued: callers must treat publish as best-effort.
var ErrNotConnected = errors.New("not connected to broker")

// ConnState tracks the broker session lifecycle.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Inbound is one message delivered by the broker, queued for the processing
// loop. Transport goroutines only ever enqueue; all handling happens on the
// single consumer draining Inbound().
type Inbound struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// StateListener is notified on connection state transitions. It runs on a
// transport goroutine and must not block.
type StateListener func(state ConnState, reason error)

// Config holds the broker session settings.
type Config struct {
	URL           string
	ClientID      string
	Username      string
	Password      string
	ReconnectWait time.Duration
	QueueSize     int
}

// EventBus owns the broker session: connect/reconnect, the subscription set,
// and the boundary between transport delivery and the consumer-side queue.
type EventBus struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	inbound chan Inbound

	mu         sync.Mutex
	state      ConnState
	conn       *nc.Conn
	publisher  message.Publisher
	subscriber message.Subscriber
	topics     map[string]bool // desired subscription set, survives reconnects
	active     map[string]context.CancelFunc
	listeners  []StateListener
}

// NewEventBus creates an EventBus. The session is not opened until Connect.
func NewEventBus(cfg Config, m *metrics.Metrics, logger *slog.Logger) *EventBus {
	if cfg.ClientID == "" {
		cfg.ClientID = "marathon-backend-" + uuid.NewString()[:8]
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &EventBus{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		inbound: make(chan Inbound, cfg.QueueSize),
		topics:  make(map[string]bool),
		active:  make(map[string]context.CancelFunc),
	}
}

// Inbound is the single ordered queue the processing loop drains.
func (b *EventBus) Inbound() <-chan Inbound { return b.inbound }

// State returns the current connection state.
func (b *EventBus) State() ConnState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OnStateChange registers a listener for connection state transitions.
// Must be called before Connect.
func (b *EventBus) OnStateChange(l StateListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Connect opens the broker session and attaches the remembered subscription
// set. An explicit reconnect always tears the old session down first so the
// subscription set is rebuilt cleanly. With the retry options below the
// transport keeps redialing on a fixed interval, so Connect only fails on
// configuration errors.
func (b *EventBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	alreadyOpen := b.state != Disconnected
	b.mu.Unlock()
	if alreadyOpen {
		b.logger.Info("reconnect requested, tearing down existing session")
		b.teardown()
	}

	b.setState(Connecting, nil)

	natsOptions := []nc.Option{
		nc.Name(b.cfg.ClientID),
		nc.RetryOnFailedConnect(true),
		nc.ReconnectWait(b.cfg.ReconnectWait),
		nc.MaxReconnects(-1),
	}
	if b.cfg.Username != "" {
		natsOptions = append(natsOptions, nc.UserInfo(b.cfg.Username, b.cfg.Password))
	}

	stateOptions := append([]nc.Option{
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			b.setState(Disconnected, err)
		}),
		nc.ReconnectHandler(func(_ *nc.Conn) {
			b.setState(Connected, nil)
		}),
		nc.ConnectHandler(func(_ *nc.Conn) {
			b.setState(Connected, nil)
		}),
	}, natsOptions...)

	conn, err := nc.Connect(b.cfg.URL, stateOptions...)
	if err != nil {
		b.setState(Disconnected, err)
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	watermillLogger := watermill.NewSlogLogger(b.logger)
	marshaler := &nats.NATSMarshaler{}
	jsConfig := nats.JetStreamConfig{Disabled: true}

	publisher, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         b.cfg.URL,
		Marshaler:   marshaler,
		NatsOptions: natsOptions,
		JetStream:   jsConfig,
	}, watermillLogger)
	if err != nil {
		conn.Close()
		b.setState(Disconnected, err)
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:         b.cfg.URL,
		Unmarshaler: marshaler,
		NatsOptions: natsOptions,
		JetStream:   jsConfig,
	}, watermillLogger)
	if err != nil {
		conn.Close()
		publisher.Close()
		b.setState(Disconnected, err)
		return fmt.Errorf("failed to create subscriber: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.publisher = publisher
	b.subscriber = subscriber
	pending := make([]string, 0, len(b.topics))
	for topic := range b.topics {
		pending = append(pending, topic)
	}
	b.mu.Unlock()

	if conn.IsConnected() {
		b.setState(Connected, nil)
	}

	for _, topic := range pending {
		if err := b.startSubscription(ctx, topic); err != nil {
			return err
		}
	}

	b.logger.Info("broker session opened",
		slog.String("url", b.cfg.URL),
		slog.String("client_id", b.cfg.ClientID),
	)
	return nil
}

// Subscribe adds a topic to the subscription set. Idempotent: subscribing
// twice to the same topic is a no-op. Topics registered before Connect are
// attached when the session opens.
func (b *EventBus) Subscribe(ctx context.Context, topic string) error {
	b.mu.Lock()
	if b.topics[topic] {
		b.mu.Unlock()
		return nil
	}
	b.topics[topic] = true
	attached := b.subscriber != nil
	b.mu.Unlock()

	if !attached {
		return nil
	}
	return b.startSubscription(ctx, topic)
}

// Unsubscribe removes a topic from the subscription set. Idempotent.
func (b *EventBus) Unsubscribe(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, topic)
	if cancel, ok := b.active[topic]; ok {
		cancel()
		delete(b.active, topic)
	}
}

// Publish sends payload to topic at deliver-at-least-once quality of
// service. While disconnected it fails immediately with ErrNotConnected:
// rejected and logged, never queued.
func (b *EventBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	state := b.state
	publisher := b.publisher
	b.mu.Unlock()

	if state != Connected || publisher == nil {
		b.logger.Warn("publish rejected while disconnected", slog.String("topic", topic))
		return ErrNotConnected
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := publisher.Publish(topic, msg); err != nil {
		b.logger.Error("failed to publish message",
			slog.String("topic", topic), slog.Any("error", err))
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	b.metrics.MessagesPublished.WithLabelValues(topic).Inc()
	return nil
}

// Close tears down the session. The subscription set is kept so a later
// Connect rebuilds it.
func (b *EventBus) Close() error {
	b.teardown()
	return nil
}

func (b *EventBus) startSubscription(ctx context.Context, topic string) error {
	b.mu.Lock()
	subscriber := b.subscriber
	if _, running := b.active[topic]; running || subscriber == nil {
		b.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	b.active[topic] = cancel
	b.mu.Unlock()

	messages, err := subscriber.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		b.mu.Lock()
		delete(b.active, topic)
		b.mu.Unlock()
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	// Transport goroutine: enqueue and ack only, no handler logic here.
	go func() {
		for msg := range messages {
			b.inbound <- Inbound{Topic: topic, Payload: msg.Payload, Received: time.Now()}
			msg.Ack()
		}
	}()

	b.logger.Info("subscribed", slog.String("topic", topic))
	return nil
}

func (b *EventBus) teardown() {
	b.mu.Lock()
	for topic, cancel := range b.active {
		cancel()
		delete(b.active, topic)
	}
	publisher := b.publisher
	subscriber := b.subscriber
	conn := b.conn
	b.publisher = nil
	b.subscriber = nil
	b.conn = nil
	b.mu.Unlock()

	if subscriber != nil {
		if err := subscriber.Close(); err != nil {
			b.logger.Error("error closing subscriber", slog.Any("error", err))
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			b.logger.Error("error closing publisher", slog.Any("error", err))
		}
	}
	if conn != nil {
		conn.Close()
	}
	b.setState(Disconnected, nil)
}

func (b *EventBus) setState(state ConnState, reason error) {
	b.mu.Lock()
	if b.state == state {
		b.mu.Unlock()
		return
	}
	b.state = state
	listeners := append([]StateListener(nil), b.listeners...)
	b.mu.Unlock()

	if state == Connected {
		b.metrics.ConnectionState.Set(1)
	} else {
		b.metrics.ConnectionState.Set(0)
	}

	if reason != nil {
		b.logger.Warn("connection state changed",
			slog.String("state", state.String()), slog.Any("reason", reason))
	} else {
		b.logger.Info("connection state changed", slog.String("state", state.String()))
	}

	for _, l := range listeners {
		l(state, reason)
	}
}
