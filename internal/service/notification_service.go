package service

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/pkg/jobs"
	"github.com/noah-isme/lesson-engine/pkg/mailer"
)

// JobDeliverNotification is the job type handled by NotificationService.Deliver.
const JobDeliverNotification = "notification.deliver"

// Notification kinds.
const (
	NotifyTeacherAssigned   = "class.teacher_assigned"
	NotifyTeacherUnassigned = "class.teacher_unassigned"
	NotifyClassStatus       = "class.status_changed"
	NotifyClassRescheduled  = "class.rescheduled"
	NotifyContract          = "contract.updated"
	NotifyCreditGranted     = "credit.granted"
)

// Notification is a message addressed to users by id.
type Notification struct {
	Kind    string
	UserIDs []string
	Subject string
	Body    string
}

type notifier interface {
	Notify(ctx context.Context, n Notification)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

type userDirectory interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type deliveryJob struct {
	Kind    string
	UserID  string
	Subject string
	Body    string
}

// NotificationService fans notifications out through the job queue. Enqueue
// failures are logged and never reach the caller.
type NotificationService struct {
	queue   jobQueue
	users   userDirectory
	sender  mailer.Sender
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService builds the service.
func NewNotificationService(queue jobQueue, users userDirectory, sender mailer.Sender, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, users: users, sender: sender, metrics: metrics, logger: logger}
}

// Notify enqueues one delivery per distinct recipient.
func (s *NotificationService) Notify(ctx context.Context, n Notification) {
	if s == nil || s.queue == nil {
		return
	}
	seen := make(map[string]struct{}, len(n.UserIDs))
	for _, id := range n.UserIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		err := s.queue.Enqueue(jobs.Job{
			ID:   uuid.NewString(),
			Type: JobDeliverNotification,
			Payload: deliveryJob{
				Kind:    n.Kind,
				UserID:  id,
				Subject: n.Subject,
				Body:    n.Body,
			},
		})
		if err != nil {
			s.metrics.RecordNotification(n.Kind, "dropped")
			s.logger.Warn("notification not queued", zap.String("kind", n.Kind), zap.String("user_id", id), zap.Error(err))
			continue
		}
		s.metrics.RecordNotification(n.Kind, "queued")
	}
}

// Deliver is the queue handler that resolves the recipient and sends the email.
func (s *NotificationService) Deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(deliveryJob)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}

	users, err := s.users.FindByIDs(ctx, []string{payload.UserID})
	if err != nil {
		return fmt.Errorf("resolve notification recipient: %w", err)
	}
	if len(users) == 0 {
		s.metrics.RecordNotification(payload.Kind, "no_recipient")
		return nil
	}
	user := users[0]

	msg := mailer.Message{
		To:      []mail.Address{{Name: user.FullName, Address: user.Email}},
		Subject: payload.Subject,
		Text:    fmt.Sprintf("Hello %s,\n\n%s\n", user.FullName, payload.Body),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.RecordNotification(payload.Kind, "failed")
		return err
	}
	s.metrics.RecordNotification(payload.Kind, "sent")
	return nil
}

// OnDrop records a delivery abandoned by the queue.
func (s *NotificationService) OnDrop(job jobs.Job, err error) {
	kind := job.Type
	if payload, ok := job.Payload.(deliveryJob); ok {
		kind = payload.Kind
	}
	s.metrics.RecordNotification(kind, "abandoned")
}
