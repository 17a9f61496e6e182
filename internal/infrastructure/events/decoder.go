package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// BehaviorMessage is the wire form of a behavioral event published by the
// authentication and records services
type BehaviorMessage struct {
	UserID        uuid.UUID `json:"userId"`
	EventType     string    `json:"eventType,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	SourceAddress string    `json:"sourceAddress"`
	LocationLabel string    `json:"locationLabel,omitempty"`
	Action        string    `json:"action,omitempty"`
}

// Decode validates a message into a domain event. When the payload omits
// eventType, the last subject token is used (security.events.login).
func Decode(subject string, data []byte) (*behavior.Event, error) {
	var msg BehaviorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.NewValidationError("INVALID_EVENT_MESSAGE", "failed to unmarshal behavior event").WithCause(err)
	}

	eventType := msg.EventType
	if eventType == "" {
		if i := strings.LastIndexByte(subject, '.'); i >= 0 {
			eventType = subject[i+1:]
		}
	}

	return behavior.NewEvent(msg.UserID, behavior.EventType(eventType), msg.Timestamp,
		msg.SourceAddress, msg.LocationLabel, msg.Action)
}
