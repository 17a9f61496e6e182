package breach

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/values"
)

type NotificationType string

const (
	NotificationGDPRSupervisory   NotificationType = "gdpr_supervisory"
	NotificationHIPAAHHS          NotificationType = "hipaa_hhs"
	NotificationIndividualPatient NotificationType = "individual_patient"
)

// Regulatory notification windows measured from incident detection
const (
	GDPRSupervisoryWindow = 72 * time.Hour
	HIPAAWindow           = 60 * 24 * time.Hour
)

var AllNotificationTypes = []NotificationType{
	NotificationGDPRSupervisory,
	NotificationHIPAAHHS,
	NotificationIndividualPatient,
}

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationGDPRSupervisory, NotificationHIPAAHHS, NotificationIndividualPatient:
		return true
	}
	return false
}

// Window is the statutory delay allowed between detection and notification.
// Individual notices follow the HIPAA 60 day rule.
func (t NotificationType) Window() time.Duration {
	if t == NotificationGDPRSupervisory {
		return GDPRSupervisoryWindow
	}
	return HIPAAWindow
}

// Subject is the email subject line for this kind of notice
func (t NotificationType) Subject() string {
	switch t {
	case NotificationGDPRSupervisory:
		return "Personal data breach notification (GDPR Art. 33)"
	case NotificationHIPAAHHS:
		return "Breach of unsecured protected health information (HIPAA 45 CFR 164.408)"
	default:
		return "Notice of a security incident affecting your information"
	}
}

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification records one attempt to notify a regulator or individual.
// It leaves pending exactly once; a resend is a new Notification.
type Notification struct {
	ID             uuid.UUID          `json:"id"`
	IncidentID     uuid.UUID          `json:"incidentId"`
	Type           NotificationType   `json:"notificationType"`
	RecipientEmail string             `json:"recipientEmail"`
	RecipientName  string             `json:"recipientName,omitempty"`
	Status         NotificationStatus `json:"status"`
	SentAt         *time.Time         `json:"sentAt,omitempty"`
	ErrorMessage   string             `json:"errorMessage,omitempty"`
	CreatedBy      string             `json:"createdBy"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// NewNotification validates the recipient and creates a pending notification.
func NewNotification(incidentID uuid.UUID, t NotificationType, recipientEmail, recipientName, createdBy string, now time.Time) (*Notification, error) {
	if incidentID == uuid.Nil {
		return nil, errors.NewValidationError(errors.CodeValidation, "incidentId is required")
	}
	if !t.Valid() {
		return nil, errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("notificationType must be one of gdpr_supervisory, hipaa_hhs, individual_patient; got %q", t))
	}
	email, err := values.NewEmail(recipientEmail)
	if err != nil {
		return nil, errors.NewValidationError(errors.CodeValidation, "recipientEmail is invalid").WithCause(err)
	}

	return &Notification{
		ID:             uuid.New(),
		IncidentID:     incidentID,
		Type:           t,
		RecipientEmail: email.String(),
		RecipientName:  strings.TrimSpace(recipientName),
		Status:         NotificationPending,
		CreatedBy:      createdBy,
		CreatedAt:      now.UTC(),
	}, nil
}

func (n *Notification) IsTerminal() bool {
	return n.Status == NotificationSent || n.Status == NotificationFailed
}

func (n *Notification) MarkSent(now time.Time) error {
	if n.IsTerminal() {
		return errors.ErrNotificationAlreadySent()
	}
	sentAt := now.UTC()
	n.Status = NotificationSent
	n.SentAt = &sentAt
	n.ErrorMessage = ""
	return nil
}

func (n *Notification) MarkFailed(reason string) error {
	if n.IsTerminal() {
		return errors.ErrNotificationAlreadySent()
	}
	if reason == "" {
		reason = "delivery failed"
	}
	n.Status = NotificationFailed
	n.ErrorMessage = reason
	return nil
}

// Deadline is the operator-facing view of one regulatory clock for an incident
type Deadline struct {
	NotificationType NotificationType `json:"notificationType"`
	Deadline         time.Time        `json:"deadline"`
	RemainingSeconds int64            `json:"remainingSeconds"`
	Remaining        string           `json:"remaining"`
	Overdue          bool             `json:"overdue"`
	Satisfied        bool             `json:"satisfied"`
	SatisfiedAt      *time.Time       `json:"satisfiedAt,omitempty"`
}

// ComputeDeadlines returns the time remaining on each regulatory clock.
// A clock is satisfied by the earliest sent notification of its type.
// Deadlines are informational and never block an operation.
func ComputeDeadlines(inc *Incident, notifications []*Notification, now time.Time) []Deadline {
	deadlines := make([]Deadline, 0, len(AllNotificationTypes))
	for _, t := range AllNotificationTypes {
		due := inc.DetectedAt.Add(t.Window())
		d := Deadline{NotificationType: t, Deadline: due}

		for _, n := range notifications {
			if n.Type != t || n.Status != NotificationSent || n.SentAt == nil {
				continue
			}
			if d.SatisfiedAt == nil || n.SentAt.Before(*d.SatisfiedAt) {
				at := *n.SentAt
				d.SatisfiedAt = &at
			}
		}
		d.Satisfied = d.SatisfiedAt != nil

		reference := now
		if d.Satisfied {
			reference = *d.SatisfiedAt
		}
		remaining := due.Sub(reference)
		d.RemainingSeconds = int64(remaining / time.Second)
		d.Overdue = remaining < 0
		d.Remaining = remaining.Truncate(time.Second).String()

		deadlines = append(deadlines, d)
	}
	return deadlines
}
