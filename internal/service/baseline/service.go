package baseline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	domainerrors "github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

var _ Service = (*service)(nil)

type service struct {
	users     behavior.UserDirectory
	events    behavior.EventRepository
	baselines behavior.BaselineRepository
	metrics   MetricsRecorder
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

// NewService creates the baseline engine
func NewService(
	logger *zap.Logger,
	cfg Config,
	users behavior.UserDirectory,
	events behavior.EventRepository,
	baselines behavior.BaselineRepository,
	metrics MetricsRecorder,
) Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.DefaultTimezone == nil {
		cfg.DefaultTimezone = time.UTC
	}
	return &service{
		users:     users,
		events:    events,
		baselines: baselines,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "baseline_engine")),
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *service) ResolveUser(ctx context.Context, ref UserRef) (*behavior.User, error) {
	if ref.UserID != uuid.Nil {
		return s.users.GetUser(ctx, ref.UserID)
	}

	email := strings.TrimSpace(ref.Email)
	if email == "" {
		return nil, domainerrors.NewValidationError(domainerrors.CodeValidation, "userId or email is required")
	}

	users, err := s.users.FindUsersByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, domainerrors.ErrUserNotFound()
	case 1:
		return users[0], nil
	default:
		return nil, domainerrors.ErrUserNotFound().WithDetails(map[string]interface{}{
			"reason":  "email matches more than one account",
			"matches": len(users),
		})
	}
}

func (s *service) GetBaselines(ctx context.Context, ref UserRef) ([]*behavior.Baseline, error) {
	user, err := s.ResolveUser(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.baselines.ListByUser(ctx, user.ID)
}

func (s *service) Calculate(ctx context.Context, req *CalculateRequest) ([]*behavior.Baseline, error) {
	types, err := requestedTypes(req.BaselineType)
	if err != nil {
		return nil, err
	}

	start := s.now()
	if s.cfg.CalculationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CalculationTimeout)
		defer cancel()
	}

	baselines, err := s.calculate(ctx, req.User, types)
	elapsed := s.now().Sub(start)

	if err != nil {
		outcome := "error"
		if timedOut(ctx, err) {
			outcome = "timeout"
			err = domainerrors.ErrCalculationTimeout().WithCause(err)
		}
		for _, bt := range types {
			s.metrics.RecordBaselineCalculation(ctx, string(bt), outcome, elapsed)
		}
		s.logger.Warn("baseline calculation failed",
			zap.String("baseline_type", req.BaselineType),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	for _, b := range baselines {
		outcome := "ok"
		if b.LowConfidence {
			outcome = "low_confidence"
		}
		s.metrics.RecordBaselineCalculation(ctx, string(b.Type), outcome, elapsed)
	}
	s.logger.Info("baselines recalculated",
		zap.String("user_id", baselines[0].UserID.String()),
		zap.String("baseline_type", req.BaselineType),
		zap.Duration("elapsed", elapsed))
	return baselines, nil
}

func (s *service) calculate(ctx context.Context, ref UserRef, types []behavior.BaselineType) ([]*behavior.Baseline, error) {
	user, err := s.ResolveUser(ctx, ref)
	if err != nil {
		return nil, err
	}

	now := s.now()
	since := now.AddDate(0, 0, -s.cfg.LookbackDays)
	loc := user.Location(s.cfg.DefaultTimezone)

	out := make([]*behavior.Baseline, 0, len(types))
	for _, bt := range types {
		events, err := s.events.ListForBaseline(ctx, user.ID, behavior.EventTypesFor(bt), since, s.cfg.MaxEvents)
		if err != nil {
			return nil, err
		}
		b, err := behavior.Calculate(ctx, user.ID, bt, events, loc, s.cfg.Policy, now)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}

	// Nothing is stored once the budget is spent.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.baselines.Upsert(ctx, out...); err != nil {
		return nil, err
	}
	return out, nil
}

func requestedTypes(name string) ([]behavior.BaselineType, error) {
	if strings.EqualFold(strings.TrimSpace(name), TypeAll) {
		return []behavior.BaselineType{
			behavior.BaselineLocation,
			behavior.BaselineTime,
			behavior.BaselineAccessPattern,
		}, nil
	}
	bt, err := behavior.ParseBaselineType(name)
	if err != nil {
		return nil, domainerrors.NewValidationError(domainerrors.CodeValidation,
			fmt.Sprintf("baselineType must be one of location, time, access_pattern, all; got %q", name))
	}
	return []behavior.BaselineType{bt}, nil
}

func timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
