package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/mail"
)

const (
	defaultSendTimeout = 15 * time.Second
	// claims older than the send timeout plus this grace belong to a
	// sender that died mid-delivery
	claimGrace = time.Minute
)

var _ Service = (*service)(nil)

type service struct {
	incidents     breach.IncidentRepository
	notifications breach.NotificationRepository
	sender        mail.Sender
	metrics       MetricsRecorder
	logger        *zap.Logger
	cfg           Config
	now           func() time.Time
}

// NewService creates the notification dispatcher
func NewService(
	logger *zap.Logger,
	cfg Config,
	incidents breach.IncidentRepository,
	notifications breach.NotificationRepository,
	sender mail.Sender,
	metrics MetricsRecorder,
) Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &service{
		incidents:     incidents,
		notifications: notifications,
		sender:        sender,
		metrics:       metrics,
		logger:        logger.With(zap.String("component", "notification_dispatcher")),
		cfg:           cfg,
		now:           time.Now,
	}
}

func (s *service) CreateNotification(ctx context.Context, incidentID uuid.UUID, req *CreateRequest) (*breach.Notification, error) {
	if _, err := s.incidents.Get(ctx, incidentID); err != nil {
		return nil, err
	}

	n, err := breach.NewNotification(incidentID, breach.NotificationType(req.NotificationType),
		req.RecipientEmail, req.RecipientName, req.Operator, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}

	s.metrics.RecordNotificationOutcome(ctx, string(n.Type), string(n.Status))
	s.logger.Info("notification created",
		zap.String("notification_id", n.ID.String()),
		zap.String("incident_id", incidentID.String()),
		zap.String("type", string(n.Type)),
		zap.String("operator", req.Operator))
	return n, nil
}

// SendNotification claims the pending notice, delivers it with no
// transaction open, then stores the outcome only if the row is still
// pending. Only the caller holding the claim calls the sender.
func (s *service) SendNotification(ctx context.Context, id uuid.UUID) (*breach.Notification, error) {
	n, err := s.notifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsTerminal() {
		return nil, errors.ErrNotificationAlreadySent().WithDetails(map[string]interface{}{
			"notificationId": n.ID,
			"status":         n.Status,
		})
	}

	inc, err := s.incidents.Get(ctx, n.IncidentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	claimed, err := s.notifications.ClaimDelivery(ctx, n.ID, now, now.Add(-(s.cfg.SendTimeout + claimGrace)))
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.logger.Warn("notification send already in progress", zap.String("notification_id", n.ID.String()))
		return nil, errors.NewConflictError(errors.CodeNotificationAlreadySent, "notification is already being sent").
			WithDetails(map[string]interface{}{
				"notificationId": n.ID,
				"status":         n.Status,
				"sendInProgress": true,
			})
	}

	sendErr := s.deliver(ctx, compose(inc, n))
	if sendErr == nil {
		err = n.MarkSent(s.now())
	} else {
		err = n.MarkFailed(sendErr.Error())
	}
	if err != nil {
		return nil, err
	}

	// The outcome is stored even if the caller went away after delivery.
	storeCtx := context.WithoutCancel(ctx)
	stored, err := s.notifications.CompleteDelivery(storeCtx, n)
	if err != nil {
		s.logger.Error("failed to record delivery outcome",
			zap.String("notification_id", n.ID.String()),
			zap.String("status", string(n.Status)),
			zap.Error(err))
		return nil, err
	}
	if !stored {
		s.logger.Warn("notification completed concurrently", zap.String("notification_id", n.ID.String()))
		return s.notifications.Get(storeCtx, id)
	}

	s.metrics.RecordNotificationOutcome(ctx, string(n.Type), string(n.Status))
	if sendErr != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("incident_id", n.IncidentID.String()),
			zap.String("type", string(n.Type)),
			zap.Error(sendErr))
	} else {
		s.logger.Info("notification sent",
			zap.String("notification_id", n.ID.String()),
			zap.String("incident_id", n.IncidentID.String()),
			zap.String("type", string(n.Type)))
	}
	return n, nil
}

func (s *service) deliver(ctx context.Context, msg mail.Message) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return s.sender.Send(ctx, msg)
}

func (s *service) NotifyAuthority(ctx context.Context, incidentID uuid.UUID, req *CreateRequest) (*breach.Notification, error) {
	n, err := s.CreateNotification(ctx, incidentID, req)
	if err != nil {
		return nil, err
	}
	return s.SendNotification(ctx, n.ID)
}

func (s *service) ListNotifications(ctx context.Context, incidentID uuid.UUID) ([]*breach.Notification, error) {
	if _, err := s.incidents.Get(ctx, incidentID); err != nil {
		return nil, err
	}
	out, err := s.notifications.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*breach.Notification{}
	}
	return out, nil
}

// compose renders the notice body from the incident record
func compose(inc *breach.Incident, n *breach.Notification) mail.Message {
	var b strings.Builder
	greeting := "To whom it may concern,"
	if n.RecipientName != "" {
		greeting = fmt.Sprintf("Dear %s,", n.RecipientName)
	}
	fmt.Fprintf(&b, "%s\n\n", greeting)

	switch n.Type {
	case breach.NotificationIndividualPatient:
		b.WriteString("We are writing to inform you of a security incident that may have affected your information.\n\n")
	default:
		b.WriteString("We are reporting a security incident in accordance with our notification obligations.\n\n")
	}

	fmt.Fprintf(&b, "Incident reference: %s\n", inc.ID)
	fmt.Fprintf(&b, "Incident type: %s\n", inc.IncidentType)
	fmt.Fprintf(&b, "Severity: %s\n", inc.Severity)
	fmt.Fprintf(&b, "Detected at: %s\n", inc.DetectedAt.UTC().Format(time.RFC3339))
	if len(inc.AffectedDataTypes) > 0 {
		fmt.Fprintf(&b, "Categories of data concerned: %s\n", strings.Join(inc.AffectedDataTypes, ", "))
	}
	fmt.Fprintf(&b, "\nDescription:\n%s\n", inc.Description)

	return mail.Message{
		To:        n.RecipientEmail,
		ToName:    n.RecipientName,
		Subject:   n.Type.Subject(),
		Body:      b.String(),
		Reference: n.ID.String(),
	}
}
