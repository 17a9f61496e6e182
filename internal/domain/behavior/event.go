package behavior

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// EventType is the kind of raw behavioral event emitted by the auth/audit subsystem
type EventType string

const (
	EventLogin        EventType = "login"
	EventRecordAccess EventType = "record_access"
	EventAdminAction  EventType = "admin_action"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case EventLogin, EventRecordAccess, EventAdminAction:
		return true
	}
	return false
}

// BaselineTypes returns the baseline dimensions an event of this type is scored against.
func (t EventType) BaselineTypes() []BaselineType {
	switch t {
	case EventLogin:
		return []BaselineType{BaselineLocation, BaselineTime}
	case EventRecordAccess, EventAdminAction:
		return []BaselineType{BaselineAccessPattern}
	}
	return nil
}

// Stored field widths for events
const (
	MaxSourceAddressLength = 64
	MaxLocationLabelLength = 255
	MaxActionLength        = 255
)

// Event is a single behavioral observation for one user
type Event struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"userId"`
	Type          EventType  `json:"eventType"`
	OccurredAt    time.Time  `json:"timestamp"`
	SourceAddress string     `json:"sourceAddress"`
	LocationLabel string     `json:"locationLabel,omitempty"`
	Action        string     `json:"action,omitempty"`
	ReceivedAt    time.Time  `json:"receivedAt"`
	ScoredAt      *time.Time `json:"scoredAt,omitempty"`
}

// NewEvent validates and builds an event ready for persistence.
func NewEvent(userID uuid.UUID, eventType EventType, occurredAt time.Time, sourceAddress, locationLabel, action string) (*Event, error) {
	if userID == uuid.Nil {
		return nil, errors.NewValidationError(errors.CodeValidation, "userId is required")
	}
	if !eventType.Valid() {
		return nil, errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("unsupported eventType %q", eventType))
	}
	if occurredAt.IsZero() {
		return nil, errors.NewValidationError(errors.CodeValidation, "timestamp is required")
	}

	sourceAddress = strings.TrimSpace(sourceAddress)
	locationLabel = strings.TrimSpace(locationLabel)
	action = strings.TrimSpace(action)
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"sourceAddress", sourceAddress, MaxSourceAddressLength},
		{"locationLabel", locationLabel, MaxLocationLabelLength},
		{"action", action, MaxActionLength},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			return nil, errors.NewValidationError(errors.CodeValidation,
				fmt.Sprintf("%s must be at most %d characters", f.name, f.max))
		}
	}
	if eventType != EventLogin && action == "" {
		action = string(eventType)
	}

	return &Event{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          eventType,
		OccurredAt:    occurredAt.UTC(),
		SourceAddress: sourceAddress,
		LocationLabel: locationLabel,
		Action:        action,
		ReceivedAt:    time.Now().UTC(),
	}, nil
}

// LocationKey is the bucket this event falls into for the location baseline.
func (e *Event) LocationKey() string {
	return LocationKey(e.LocationLabel, e.SourceAddress)
}

// ActionKey is the bucket this event falls into for the access pattern baseline.
func (e *Event) ActionKey() string {
	if e.Action != "" {
		return e.Action
	}
	return string(e.Type)
}

// HourIn returns the hour of day the event occurred at in loc.
func (e *Event) HourIn(loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return e.OccurredAt.In(loc).Hour()
}

// EventTypesFor returns the event types that feed a baseline dimension.
func EventTypesFor(t BaselineType) []EventType {
	switch t {
	case BaselineLocation, BaselineTime:
		return []EventType{EventLogin}
	case BaselineAccessPattern:
		return []EventType{EventRecordAccess, EventAdminAction}
	}
	return nil
}
