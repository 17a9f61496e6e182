package behavior

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// Policy holds the tunable constants shared by the baseline engine and the detector.
type Policy struct {
	// TopK is the number of most frequent buckets treated as expected behavior
	TopK int
	// CommonThreshold is the minimum share of total events for a bucket to count as common
	CommonThreshold float64
	// MinSamples below which a baseline is low-confidence and not used for detection
	MinSamples int
}

// DefaultPolicy returns the stock detection policy
func DefaultPolicy() Policy {
	return Policy{
		TopK:            5,
		CommonThreshold: 0.10,
		MinSamples:      3,
	}
}

func (p Policy) Validate() error {
	if p.TopK < 1 {
		return fmt.Errorf("policy top-k must be at least 1")
	}
	if p.CommonThreshold <= 0 || p.CommonThreshold >= 1 {
		return fmt.Errorf("policy common threshold must be between 0 and 1")
	}
	if p.MinSamples < 1 {
		return fmt.Errorf("policy min samples must be at least 1")
	}
	return nil
}

// Calculate aggregates events into a fresh baseline of type t. Events of
// kinds that do not feed t are ignored. loc is the account timezone used for
// the time dimension. The context is checked while aggregating so an
// expired calculation budget aborts before anything is returned.
func Calculate(ctx context.Context, userID uuid.UUID, t BaselineType, events []*Event, loc *time.Location, policy Policy, now time.Time) (*Baseline, error) {
	if loc == nil {
		loc = time.UTC
	}

	relevant := make([]*Event, 0, len(events))
	for i, e := range events {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if e.UserID == userID && feeds(e.Type, t) {
			relevant = append(relevant, e)
		}
	}

	var data BaselineData
	switch t {
	case BaselineLocation:
		data = aggregateLocations(relevant, policy)
	case BaselineTime:
		data = aggregateHours(relevant, loc, policy)
	case BaselineAccessPattern:
		data = aggregateActions(relevant, policy)
	default:
		return nil, errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown baseline type %q", t))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := &Baseline{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         t,
		Data:         data,
		CalculatedAt: now.UTC(),
	}
	if n := data.SampleSize(); n < policy.MinSamples {
		b.LowConfidence = true
		b.Message = fmt.Sprintf("low confidence: %d of %d required events; baseline is not used for anomaly detection",
			n, policy.MinSamples)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func feeds(et EventType, t BaselineType) bool {
	for _, bt := range et.BaselineTypes() {
		if bt == t {
			return true
		}
	}
	return false
}

type bucketCount struct {
	key   string
	count int
}

// rankBuckets sorts by descending frequency with the key as a stable tie breaker.
func rankBuckets(counts map[string]int) []bucketCount {
	ranked := make([]bucketCount, 0, len(counts))
	for k, c := range counts {
		ranked = append(ranked, bucketCount{key: k, count: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].key < ranked[j].key
	})
	return ranked
}

func percentage(count, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(count)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
}

func aggregateLocations(events []*Event, policy Policy) LocationData {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.LocationKey()]++
	}
	ranked := rankBuckets(counts)

	locations := make([]LocationFrequency, len(ranked))
	for i, b := range ranked {
		locations[i] = LocationFrequency{Key: b.key, Frequency: b.count, Percentage: percentage(b.count, len(events))}
	}
	return LocationData{
		TotalLogins:     len(events),
		UniqueLocations: len(locations),
		CommonLocations: locations[:min(policy.TopK, len(locations))],
		Locations:       locations,
	}
}

func aggregateActions(events []*Event, policy Policy) AccessPatternData {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.ActionKey()]++
	}
	ranked := rankBuckets(counts)

	actions := make([]ActionFrequency, len(ranked))
	for i, b := range ranked {
		actions[i] = ActionFrequency{Action: b.key, Frequency: b.count, Percentage: percentage(b.count, len(events))}
	}
	return AccessPatternData{
		TotalActions:  len(events),
		UniqueActions: len(actions),
		CommonActions: actions[:min(policy.TopK, len(actions))],
		Actions:       actions,
	}
}

func aggregateHours(events []*Event, loc *time.Location, policy Policy) TimeData {
	var hist [24]int
	for _, e := range events {
		hist[e.HourIn(loc)]++
	}

	dist := make([]HourFrequency, 24)
	for h := range dist {
		dist[h] = HourFrequency{Hour: h, Frequency: hist[h]}
	}

	return TimeData{
		TotalLogins:      len(events),
		AverageHour:      circularMeanHour(hist),
		HourDistribution: dist,
		ExpectedHours:    topHours(hist, policy.TopK),
		Timezone:         loc.String(),
	}
}

// topHours returns up to k observed hours, most frequent first, earlier hour on ties.
func topHours(hist [24]int, k int) []int {
	hours := make([]int, 0, 24)
	for h, c := range hist {
		if c > 0 {
			hours = append(hours, h)
		}
	}
	sort.SliceStable(hours, func(i, j int) bool {
		return hist[hours[i]] > hist[hours[j]]
	})
	return hours[:min(k, len(hours))]
}

// circularMeanHour treats hours as angles on a 24h clock so that 23:00 and
// 00:00 average to midnight. When the observations cancel out, the most
// frequent hour is used instead.
func circularMeanHour(hist [24]int) int {
	var sinSum, cosSum float64
	total, modal := 0, 0
	for h, c := range hist {
		if c == 0 {
			continue
		}
		angle := 2 * math.Pi * float64(h) / 24
		sinSum += float64(c) * math.Sin(angle)
		cosSum += float64(c) * math.Cos(angle)
		total += c
		if c > hist[modal] {
			modal = h
		}
	}
	if total == 0 {
		return 0
	}
	if math.Hypot(sinSum, cosSum)/float64(total) < 1e-9 {
		return modal
	}

	mean := math.Atan2(sinSum, cosSum) * 24 / (2 * math.Pi)
	if mean < 0 {
		mean += 24
	}
	return int(math.Round(mean)) % 24
}
