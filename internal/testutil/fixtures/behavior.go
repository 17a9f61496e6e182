package fixtures

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
)

// User returns an account in the given timezone with a unique address
func User(tz string) *behavior.User {
	id := uuid.New()
	return &behavior.User{
		ID:       id,
		Email:    fmt.Sprintf("clinician-%s@clinic.example.com", id.String()[:8]),
		Timezone: tz,
	}
}

// Login builds a login event at the given time and location label
func Login(t *testing.T, userID uuid.UUID, at time.Time, location string) *behavior.Event {
	t.Helper()
	e, err := behavior.NewEvent(userID, behavior.EventLogin, at, "203.0.113.10", location, "")
	require.NoError(t, err)
	return e
}

// LoginsAtHours builds one login per hour on consecutive days ending at day
func LoginsAtHours(t *testing.T, userID uuid.UUID, day time.Time, hours ...int) []*behavior.Event {
	t.Helper()
	events := make([]*behavior.Event, 0, len(hours))
	for i, h := range hours {
		d := day.AddDate(0, 0, -i)
		at := time.Date(d.Year(), d.Month(), d.Day(), h, 0, 0, 0, time.UTC)
		events = append(events, Login(t, userID, at, "Main Clinic"))
	}
	return events
}

// Access builds a record access event
func Access(t *testing.T, userID uuid.UUID, at time.Time, action string) *behavior.Event {
	t.Helper()
	e, err := behavior.NewEvent(userID, behavior.EventRecordAccess, at, "10.0.0.12", "", action)
	require.NoError(t, err)
	return e
}

// TimeAnomaly builds a high severity unusual_time anomaly for event
func TimeAnomaly(t *testing.T, user *behavior.User, event *behavior.Event) *behavior.Anomaly {
	t.Helper()
	details := behavior.TimeDetails{
		Evidence: behavior.Evidence{
			Deviation:            behavior.DeviationNeverSeen,
			BaselineTotal:        4,
			BaselineCalculatedAt: event.OccurredAt.Add(-time.Hour),
			Text:                 "Login at 22:00 (UTC) was never observed in 4 baseline logins.",
		},
		ObservedHour:  event.OccurredAt.Hour(),
		ObservedAt:    event.OccurredAt.Format(time.RFC3339),
		Timezone:      "UTC",
		AverageHour:   10,
		ExpectedHours: []int{9, 14},
	}
	a, err := behavior.NewAnomaly(user.ID, user.Email, event.ID, behavior.SeverityHigh, details, event.OccurredAt)
	require.NoError(t, err)
	return a
}

// Incident builds a draft incident detected at detectedAt
func Incident(t *testing.T, detectedAt time.Time) *breach.Incident {
	t.Helper()
	inc, err := breach.NewIncident(breach.IncidentParams{
		IncidentType:      "unauthorized_access",
		Severity:          breach.SeverityHigh,
		Description:       "Shared workstation left logged in overnight",
		AffectedUsers:     []string{"patient-portal"},
		AffectedDataTypes: []string{"patient_records"},
		DetectedAt:        detectedAt,
		CreatedBy:         "security.officer@clinic.example.com",
	}, detectedAt)
	require.NoError(t, err)
	return inc
}
