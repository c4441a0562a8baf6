package processor

import (
	"context"
	"log/slog"

	"github.com/kinetic-exhibits/marathon-backend/app/eventbus"
	"github.com/kinetic-exhibits/marathon-backend/app/metrics"
)

// Handler processes one inbound message on the processing loop.
type Handler func(ctx context.Context, in eventbus.Inbound)

// Processor is the single consumer of the inbound queue. It drains messages
// and queued ticks one at a time, so handlers (and the leaderboard store
// mutations they perform) never run concurrently with each other.
// Timer fires are just enqueued functions: a tick that lands while a message
// is being handled waits its turn, it never runs alongside it.
type Processor struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	inbound  <-chan eventbus.Inbound
	ticks    chan func(context.Context)
	handlers map[string]Handler
}

// New creates a Processor draining the given queue.
func New(inbound <-chan eventbus.Inbound, m *metrics.Metrics, logger *slog.Logger) *Processor {
	return &Processor{
		logger:   logger,
		metrics:  m,
		inbound:  inbound,
		ticks:    make(chan func(context.Context), 64),
		handlers: make(map[string]Handler),
	}
}

// Register binds a topic to its handler. Must be called before Run; the
// handler map is not guarded afterwards.
func (p *Processor) Register(topic string, h Handler) {
	p.handlers[topic] = h
}

// Enqueue schedules fn on the processing loop, behind any in-flight drain.
func (p *Processor) Enqueue(fn func(context.Context)) {
	p.ticks <- fn
}

// Run drains the queue until ctx is canceled. Messages still queued at
// shutdown are dropped; the protocol tolerates lossy delivery.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("processing loop started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("processing loop stopped")
			return
		case in := <-p.inbound:
			p.dispatch(ctx, in)
		case fn := <-p.ticks:
			fn(ctx)
		}
	}
}

func (p *Processor) dispatch(ctx context.Context, in eventbus.Inbound) {
	p.metrics.MessagesConsumed.WithLabelValues(in.Topic).Inc()

	handler, ok := p.handlers[in.Topic]
	if !ok {
		p.logger.Debug("no handler registered for topic", slog.String("topic", in.Topic))
		return
	}
	handler(ctx, in)
}
