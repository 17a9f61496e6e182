package behavior

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// Finding is the outcome of scoring one event against one baseline
type Finding struct {
	Severity Severity
	Details  Details
}

// Score compares an event with a baseline. It returns nil when the event
// matches expected behavior or the baseline is low-confidence.
//
// Severity policy, identical for every dimension:
//   - bucket never seen in the baseline: high
//   - bucket within the top-K common set: no anomaly
//   - bucket share below the common threshold: medium
//   - otherwise (frequent but outside top-K): low
func Score(b *Baseline, e *Event, policy Policy) (*Finding, error) {
	if b == nil || b.LowConfidence {
		return nil, nil
	}
	if !feeds(e.Type, b.Type) {
		return nil, errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("%s events are not scored against %s baselines", e.Type, b.Type))
	}

	switch data := b.Data.(type) {
	case LocationData:
		return scoreLocation(b, data, e, policy), nil
	case TimeData:
		return scoreTime(b, data, e, policy)
	case AccessPatternData:
		return scoreAccess(b, data, e, policy), nil
	}
	return nil, errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown baseline type %q", b.Type))
}

func classify(freq, total int, inTopK bool, policy Policy) (Severity, Deviation, bool) {
	if freq == 0 {
		return SeverityHigh, DeviationNeverSeen, true
	}
	if inTopK {
		return "", "", false
	}
	share := decimal.NewFromInt(int64(freq)).Div(decimal.NewFromInt(int64(total)))
	if share.LessThan(decimal.NewFromFloat(policy.CommonThreshold)) {
		return SeverityMedium, DeviationRare, true
	}
	return SeverityLow, DeviationOutsideTopK, true
}

func scoreLocation(b *Baseline, data LocationData, e *Event, policy Policy) *Finding {
	key := e.LocationKey()
	freq, rank := 0, -1
	for i, l := range data.Locations {
		if l.Key == key {
			freq, rank = l.Frequency, i
			break
		}
	}

	severity, deviation, anomalous := classify(freq, data.TotalLogins, rank >= 0 && rank < len(data.CommonLocations), policy)
	if !anomalous {
		return nil
	}

	expected := make([]string, len(data.CommonLocations))
	for i, l := range data.CommonLocations {
		expected[i] = l.Key
	}

	observed := fmt.Sprintf("Login from %q", key)
	if e.LocationLabel != "" && e.SourceAddress != "" {
		observed = fmt.Sprintf("Login from %q (%s)", key, e.SourceAddress)
	}

	return &Finding{
		Severity: severity,
		Details: LocationDetails{
			Evidence:          evidence(b, deviation, freq, data.TotalLogins, policy, observed, "logins", "locations", quoteAll(expected)),
			ObservedLocation:  key,
			SourceAddress:     e.SourceAddress,
			ExpectedLocations: expected,
		},
	}
}

func scoreTime(b *Baseline, data TimeData, e *Event, policy Policy) (*Finding, error) {
	loc, err := time.LoadLocation(data.Timezone)
	if err != nil {
		return nil, errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("baseline timezone %q is not loadable", data.Timezone)).WithCause(err)
	}

	hour := e.HourIn(loc)
	freq := data.HourDistribution[hour].Frequency
	inTopK := false
	for _, h := range data.ExpectedHours {
		if h == hour {
			inTopK = true
			break
		}
	}

	severity, deviation, anomalous := classify(freq, data.TotalLogins, inTopK, policy)
	if !anomalous {
		return nil, nil
	}

	expected := make([]string, len(data.ExpectedHours))
	for i, h := range data.ExpectedHours {
		expected[i] = formatHour(h)
	}
	observed := fmt.Sprintf("Login at %s (%s)", formatHour(hour), data.Timezone)
	ev := evidence(b, deviation, freq, data.TotalLogins, policy, observed, "logins", "hours", expected)
	ev.Text = fmt.Sprintf("%s Average login hour is %s.", ev.Text, formatHour(data.AverageHour))

	return &Finding{
		Severity: severity,
		Details: TimeDetails{
			Evidence:      ev,
			ObservedHour:  hour,
			ObservedAt:    e.OccurredAt.In(loc).Format(time.RFC3339),
			Timezone:      data.Timezone,
			AverageHour:   data.AverageHour,
			ExpectedHours: append([]int(nil), data.ExpectedHours...),
		},
	}, nil
}

func scoreAccess(b *Baseline, data AccessPatternData, e *Event, policy Policy) *Finding {
	key := e.ActionKey()
	freq, rank := 0, -1
	for i, a := range data.Actions {
		if a.Action == key {
			freq, rank = a.Frequency, i
			break
		}
	}

	severity, deviation, anomalous := classify(freq, data.TotalActions, rank >= 0 && rank < len(data.CommonActions), policy)
	if !anomalous {
		return nil
	}

	expected := make([]string, len(data.CommonActions))
	for i, a := range data.CommonActions {
		expected[i] = a.Action
	}
	observed := fmt.Sprintf("Action %q", key)

	return &Finding{
		Severity: severity,
		Details: AccessPatternDetails{
			Evidence:        evidence(b, deviation, freq, data.TotalActions, policy, observed, "actions", "actions", quoteAll(expected)),
			ObservedAction:  key,
			ExpectedActions: expected,
		},
	}
}

// evidence renders the shared comparison sentence reused in incident descriptions.
func evidence(b *Baseline, deviation Deviation, freq, total int, policy Policy, observed, unit, bucketNoun string, expected []string) Evidence {
	var text string
	switch deviation {
	case DeviationNeverSeen:
		text = fmt.Sprintf("%s was never observed in %d baseline %s.", observed, total, unit)
	case DeviationRare:
		text = fmt.Sprintf("%s was observed in only %d of %d baseline %s (%s%%), below the %s%% common threshold.",
			observed, freq, total, unit, percentage(freq, total).StringFixed(2),
			decimal.NewFromFloat(policy.CommonThreshold*100).Round(2).String())
	default:
		text = fmt.Sprintf("%s was observed in %d of %d baseline %s (%s%%) but is not among the top %d %s.",
			observed, freq, total, unit, percentage(freq, total).StringFixed(2), len(expected), bucketNoun)
	}
	if len(expected) > 0 {
		text = fmt.Sprintf("%s Expected %s: %s.", text, bucketNoun, strings.Join(expected, ", "))
	}

	return Evidence{
		Deviation:            deviation,
		BaselineFrequency:    freq,
		BaselineTotal:        total,
		BaselineCalculatedAt: b.CalculatedAt,
		Text:                 text,
	}
}

func formatHour(h int) string {
	return fmt.Sprintf("%02d:00", h)
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
