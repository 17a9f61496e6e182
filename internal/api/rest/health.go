package rest

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status
type HealthStatus string

const (
	HealthStatusPass HealthStatus = "pass"
	HealthStatusWarn HealthStatus = "warn"
	HealthStatusFail HealthStatus = "fail"
)

// HealthChecker checks the health of a dependency
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) HealthCheckResult
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       HealthStatus           `json:"status"`
	Message      string                 `json:"message,omitempty"`
	Error        string                 `json:"error,omitempty"`
	ResponseTime string                 `json:"response_time"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// HealthReport is the body of /health and /ready
type HealthReport struct {
	Status  HealthStatus                 `json:"status"`
	Version string                       `json:"version"`
	Uptime  string                       `json:"uptime"`
	Checks  map[string]HealthCheckResult `json:"checks,omitempty"`
}

// PingChecker adapts a ping function. Optional dependencies report warn instead of fail.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

func NewPingChecker(name string, ping func(ctx context.Context) error, optional bool) *PingChecker {
	return &PingChecker{name: name, ping: ping, optional: optional}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) HealthCheckResult {
	if err := c.ping(ctx); err != nil {
		status := HealthStatusFail
		if c.optional {
			status = HealthStatusWarn
		}
		return HealthCheckResult{Status: status, Error: err.Error()}
	}
	return HealthCheckResult{Status: HealthStatusPass}
}

// HealthService runs dependency checks for readiness
type HealthService struct {
	checkers  []HealthChecker
	timeout   time.Duration
	version   string
	startTime time.Time
}

func NewHealthService(version string, timeout time.Duration, checkers ...HealthChecker) *HealthService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthService{
		checkers:  checkers,
		timeout:   timeout,
		version:   version,
		startTime: time.Now(),
	}
}

// Check runs every checker concurrently. The overall status is the worst result.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make(map[string]HealthCheckResult, len(s.checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range s.checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			start := time.Now()
			res := c.Check(ctx)
			res.ResponseTime = time.Since(start).String()
			mu.Lock()
			results[c.Name()] = res
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	overall := HealthStatusPass
	for _, res := range results {
		switch {
		case res.Status == HealthStatusFail:
			overall = HealthStatusFail
		case res.Status == HealthStatusWarn && overall == HealthStatusPass:
			overall = HealthStatusWarn
		}
	}
	return HealthReport{
		Status:  overall,
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Checks:  results,
	}
}

// Liveness reports that the process is serving
func (s *HealthService) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthReport{
		Status:  HealthStatusPass,
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// Readiness reports 503 while a required dependency fails
func (s *HealthService) Readiness(w http.ResponseWriter, r *http.Request) {
	report := s.Check(r.Context())
	status := http.StatusOK
	if report.Status == HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
