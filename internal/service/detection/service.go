package detection

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

var _ Service = (*service)(nil)

type service struct {
	users     behavior.UserDirectory
	events    behavior.EventRepository
	baselines behavior.BaselineRepository
	anomalies behavior.AnomalyRepository
	metrics   MetricsRecorder
	logger    *zap.Logger
	cfg       Config
	pool      *WorkerPool
	now       func() time.Time

	stopOnce sync.Once
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewService creates the detector. baselines is usually the read-through cache.
func NewService(
	logger *zap.Logger,
	cfg Config,
	users behavior.UserDirectory,
	events behavior.EventRepository,
	baselines behavior.BaselineRepository,
	anomalies behavior.AnomalyRepository,
	metrics MetricsRecorder,
) Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 200
	}

	s := &service{
		users:     users,
		events:    events,
		baselines: baselines,
		anomalies: anomalies,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "anomaly_detector")),
		cfg:       cfg,
		now:       time.Now,
	}
	s.pool = NewWorkerPool(cfg.Workers, cfg.QueueSize, cfg.DetectionTimeout, s.job, s.logger)
	return s
}

// Detect scores e against every baseline dimension its type feeds.
// Low-confidence and missing baselines are skipped. Anomalies are
// deduplicated per event and type, so re-scoring an event is harmless.
func (s *service) Detect(ctx context.Context, e *behavior.Event) ([]*behavior.Anomaly, error) {
	start := s.now()

	user, err := s.users.GetUser(ctx, e.UserID)
	if err != nil {
		return nil, err
	}

	var created []*behavior.Anomaly
	for _, bt := range e.Type.BaselineTypes() {
		b, err := s.baselines.Get(ctx, e.UserID, bt)
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}

		finding, err := behavior.Score(b, e, s.cfg.Policy)
		if err != nil {
			return nil, err
		}
		if finding == nil {
			continue
		}

		anomaly, err := behavior.NewAnomaly(user.ID, user.Email, e.ID, finding.Severity, finding.Details, s.now())
		if err != nil {
			return nil, err
		}
		inserted, err := s.anomalies.Create(ctx, anomaly)
		if err != nil {
			return nil, err
		}
		if !inserted {
			continue
		}

		s.metrics.RecordAnomaly(ctx, string(anomaly.Type), string(anomaly.Severity))
		s.logger.Info("anomaly detected",
			zap.String("anomaly_id", anomaly.ID.String()),
			zap.String("user_id", user.ID.String()),
			zap.String("anomaly_type", string(anomaly.Type)),
			zap.String("severity", string(anomaly.Severity)))
		created = append(created, anomaly)
	}

	if err := s.events.MarkScored(ctx, e.ID, s.now()); err != nil {
		return created, err
	}
	s.metrics.RecordDetection(ctx, s.now().Sub(start), len(created))
	return created, nil
}

func (s *service) job(ctx context.Context, e *behavior.Event) error {
	_, err := s.Detect(ctx, e)
	if errors.IsNotFound(err) {
		// The account is gone; there is nothing to score against.
		s.logger.Warn("dropping event for unknown user", zap.String("event_id", e.ID.String()))
		return s.events.MarkScored(ctx, e.ID, s.now())
	}
	return err
}

func (s *service) Submit(e *behavior.Event) bool {
	accepted := s.pool.SubmitTask(e)
	if !accepted {
		s.metrics.RecordDetectionDeferred(context.Background())
		s.logger.Warn("detection queue full; event deferred to reconciliation",
			zap.String("event_id", e.ID.String()))
	}
	s.metrics.SetQueueDepth(s.pool.QueueDepth())
	return accepted
}

// Reconcile submits unscored events received more than ReconcileAfter ago
func (s *service) Reconcile(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.ReconcileAfter)
	pending, err := s.events.ListUnscored(ctx, cutoff, s.cfg.ReconcileBatch)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, e := range pending {
		if s.pool.queued(e.ID) {
			continue
		}
		if !s.pool.SubmitTask(e) {
			s.metrics.RecordDetectionDeferred(ctx)
			break
		}
		submitted++
	}
	s.metrics.SetQueueDepth(s.pool.QueueDepth())

	if submitted > 0 {
		s.logger.Info("resubmitted unscored events", zap.Int("count", submitted))
	}
	return submitted, nil
}

func (s *service) Start(ctx context.Context) {
	s.pool.Start()

	if s.cfg.ReconcileInterval <= 0 {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	go func() {
		defer close(s.loopDone)
		ticker := time.NewTicker(s.cfg.ReconcileInterval)
		defer ticker.Stop()

		for {
			if _, err := s.Reconcile(loopCtx); err != nil && loopCtx.Err() == nil {
				s.logger.Error("reconciliation failed", zap.Error(err))
			}
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *service) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.loopDone
		}
		s.pool.Stop(ctx)
		s.logger.Info("detector stopped", zap.Any("status", s.pool.GetStatus()))
	})
}

func (s *service) Status() *WorkerPoolStatus {
	return s.pool.GetStatus()
}
