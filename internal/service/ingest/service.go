package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

var _ Service = (*service)(nil)

type service struct {
	events  behavior.EventRepository
	scorer  Scorer
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewService creates the event ingest service
func NewService(logger *zap.Logger, events behavior.EventRepository, scorer Scorer, metrics MetricsRecorder) Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &service{
		events:  events,
		scorer:  scorer,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "event_ingest")),
	}
}

func (s *service) Ingest(ctx context.Context, req *EventRequest, source string) (*Result, error) {
	e, err := behavior.NewEvent(req.UserID, behavior.EventType(req.EventType), req.Timestamp,
		req.SourceAddress, req.LocationLabel, req.Action)
	if err != nil {
		return nil, err
	}
	return s.Accept(ctx, e, source)
}

// Accept stores e before queueing it so a full queue or a crash never loses the event
func (s *service) Accept(ctx context.Context, e *behavior.Event, source string) (*Result, error) {
	if err := s.events.Save(ctx, e); err != nil {
		return nil, err
	}
	s.metrics.RecordEventIngested(ctx, string(e.Type), source)

	queued := s.scorer.Submit(e)
	s.logger.Debug("event ingested",
		zap.String("event_id", e.ID.String()),
		zap.String("user_id", e.UserID.String()),
		zap.String("event_type", string(e.Type)),
		zap.String("source", source),
		zap.Bool("queued", queued))

	return &Result{EventID: e.ID, Queued: queued}, nil
}
