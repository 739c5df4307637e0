package notification

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
)

var (
	// errors
	ErrNotFound = errors.New("notification not found")
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		QueryNotifications(ctx context.Context, recipientEmail string, unreadOnly bool) ([]Notification, error)
		MarkNotificationRead(ctx context.Context, id int, recipientEmail string) error
		DeleteNotificationsByApplication(ctx context.Context, applicationID int) error
		DeleteNotificationsByActivity(ctx context.Context, activityID int) error
		DeleteNotificationsByProject(ctx context.Context, projectID int) error
		// GetRecipientChannel resolves the recipient's preferred delivery
		// channel for the group the given type belongs to.
		GetRecipientChannel(ctx context.Context, email string, group Group) (Channel, error)
	}

	Service interface {
		Notify(ctx context.Context, recipientEmail string, typ Type, payload Payload) (Notification, error)
		NotifyAll(ctx context.Context, recipientEmails []string, typ Type, payload Payload)
		Query(ctx context.Context, recipientEmail string, unreadOnly bool) ([]Notification, error)
		MarkRead(ctx context.Context, id int, recipientEmail string) error
		RemoveByApplication(ctx context.Context, applicationID int) error
		RemoveByActivity(ctx context.Context, activityID int) error
		RemoveByProject(ctx context.Context, projectID int) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		logger:  logger,
	}
}

// Notify persists a notification for the recipient and hands delivery to the
// recipient's preferred channel. The persisted row is the source of truth;
// delivery is fire-and-forget and never fails the caller.
func (svc *service) Notify(ctx context.Context, recipientEmail string, typ Type, payload Payload) (Notification, error) {
	n := Notification{
		RecipientEmail: recipientEmail,
		Type:           typ,
		Payload:        payload,
		Timestamp:      time.Now().UTC(),
	}
	n, err := svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "creating notification")
	}

	channel, err := svc.repo.GetRecipientChannel(ctx, recipientEmail, GroupOf(typ))
	if err != nil {
		svc.logger.Error("resolving notification channel", err)
		return n, nil
	}
	if channel == ChannelEmail {
		svc.mailSvc.SendMessages(svc.emailMessage(n))
	}
	return n, nil
}

// NotifyAll sends the same notification to each of the recipients.
// Per-recipient failures are logged and skipped; callers never roll back an
// already-committed state change because a notification failed.
func (svc *service) NotifyAll(ctx context.Context, recipientEmails []string, typ Type, payload Payload) {
	for _, email := range recipientEmails {
		if _, err := svc.Notify(ctx, email, typ, payload); err != nil {
			svc.logger.Error("notifying "+email, err)
		}
	}
}

func (svc *service) Query(ctx context.Context, recipientEmail string, unreadOnly bool) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx, recipientEmail, unreadOnly)
}

func (svc *service) MarkRead(ctx context.Context, id int, recipientEmail string) error {
	return svc.repo.MarkNotificationRead(ctx, id, recipientEmail)
}

func (svc *service) RemoveByApplication(ctx context.Context, applicationID int) error {
	return svc.repo.DeleteNotificationsByApplication(ctx, applicationID)
}

func (svc *service) RemoveByActivity(ctx context.Context, activityID int) error {
	return svc.repo.DeleteNotificationsByActivity(ctx, activityID)
}

func (svc *service) RemoveByProject(ctx context.Context, projectID int) error {
	return svc.repo.DeleteNotificationsByProject(ctx, projectID)
}

var subjects = map[Type]string{
	TypePurchaseStatusChanged:      "The status of your purchase has changed",
	TypeNewArrivals:                "New arrivals in the InnoStore",
	TypeClaimInnopoints:            "Leave feedback to claim your innopoints",
	TypeApplicationStatusChanged:   "The status of your application has changed",
	TypeService:                    "A message from the administrators",
	TypeAllFeedbackIn:              "All feedback on your project is in",
	TypeOutOfStock:                 "A product variety is out of stock",
	TypeNewPurchase:                "A new purchase has been made",
	TypeProjectReviewRequested:     "A project is ready for review",
	TypeProjectReviewStatusChanged: "Your project has been reviewed",
	TypeAddedAsModerator:           "You have been made a project moderator",
}

func (svc *service) emailMessage(n Notification) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Address: n.RecipientEmail}},
		Subject:      subjects[n.Type],
		BodyStr:      subjects[n.Type] + ". See " + svc.conf.FrontendBaseURL + "/notifications for details.",
		TemplateName: string(n.Type),
		TemplateData: n.Payload,
	}
}
