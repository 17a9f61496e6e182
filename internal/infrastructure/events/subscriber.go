package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

const defaultHandleTimeout = 5 * time.Second

// Handler persists and queues one decoded event
type Handler func(ctx context.Context, e *behavior.Event) error

// SubscriberStats counts messages by outcome
type SubscriberStats struct {
	Received int64 `json:"received"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Failed   int64 `json:"failed"`
}

// Subscriber consumes behavioral events from a NATS queue group. Instances
// sharing the group split the stream between them.
type Subscriber struct {
	nc            *nats.Conn
	subject       string
	queue         string
	handler       Handler
	handleTimeout time.Duration
	logger        *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
	ctx context.Context

	received atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
}

func NewSubscriber(nc *nats.Conn, subject, queue string, handler Handler, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		nc:            nc,
		subject:       subject,
		queue:         queue,
		handler:       handler,
		handleTimeout: defaultHandleTimeout,
		logger:        logger.With(zap.String("component", "event_subscriber"), zap.String("subject", subject)),
		ctx:           context.Background(),
	}
}

// Start subscribes; messages are handled until Drain or Close. ctx is the
// parent of every handler call.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return fmt.Errorf("subscriber already started")
	}
	s.ctx = ctx

	sub, err := s.nc.QueueSubscribe(s.subject, s.queue, func(msg *nats.Msg) {
		s.process(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub

	s.logger.Info("event subscriber started", zap.String("queue_group", s.queue))
	return nil
}

// process never returns an error to NATS; core subscriptions have no
// redelivery, so a failed message is logged and counted.
func (s *Subscriber) process(subject string, data []byte) {
	s.received.Add(1)

	e, err := Decode(subject, data)
	if err != nil {
		s.rejected.Add(1)
		s.logger.Warn("rejected behavior event", zap.String("msg_subject", subject), zap.Error(err))
		return
	}

	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.handleTimeout)
	defer cancel()

	if err := s.handler(ctx, e); err != nil {
		s.failed.Add(1)
		s.logger.Error("failed to ingest behavior event",
			zap.String("event_id", e.ID.String()),
			zap.String("user_id", e.UserID.String()),
			zap.Error(err))
		return
	}
	s.accepted.Add(1)
}

func (s *Subscriber) Stats() SubscriberStats {
	return SubscriberStats{
		Received: s.received.Load(),
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Failed:   s.failed.Load(),
	}
}

// Drain stops new deliveries and lets in-flight messages finish
func (s *Subscriber) Drain() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("draining %s: %w", s.subject, err)
	}
	stats := s.Stats()
	s.logger.Info("event subscriber drained",
		zap.Int64("received", stats.Received),
		zap.Int64("accepted", stats.Accepted),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("failed", stats.Failed))
	return nil
}
