package baseline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

// TypeAll recalculates every baseline dimension in one request
const TypeAll = "all"

// Service maintains per-user behavioral baselines
type Service interface {
	// GetBaselines returns the stored baselines of the referenced user
	GetBaselines(ctx context.Context, ref UserRef) ([]*behavior.Baseline, error)
	// Calculate recomputes one or all baseline types from recent events and
	// replaces the stored rows. Either every requested baseline is stored or none is.
	Calculate(ctx context.Context, req *CalculateRequest) ([]*behavior.Baseline, error)
	// ResolveUser maps a user id or email to exactly one account
	ResolveUser(ctx context.Context, ref UserRef) (*behavior.User, error)
}

// UserRef identifies a user by id or by email; the id wins when both are set
type UserRef struct {
	UserID uuid.UUID
	Email  string
}

// CalculateRequest asks for a recalculation. BaselineType is a baseline
// type name or TypeAll.
type CalculateRequest struct {
	User         UserRef
	BaselineType string
}

// MetricsRecorder receives baseline measurements
type MetricsRecorder interface {
	RecordBaselineCalculation(ctx context.Context, baselineType, outcome string, elapsed time.Duration)
}

// Config bounds the event window and the calculation
type Config struct {
	Policy             behavior.Policy
	LookbackDays       int
	MaxEvents          int
	CalculationTimeout time.Duration
	DefaultTimezone    *time.Location
}

type noopMetrics struct{}

func (noopMetrics) RecordBaselineCalculation(context.Context, string, string, time.Duration) {}
