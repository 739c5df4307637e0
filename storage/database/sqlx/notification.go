package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/notification"
)

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	payload, err := notification.EncodePayload(n.Payload)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "encoding payload")
	}
	err = repo.db.QueryRowContext(ctx, `
		INSERT INTO notifications (recipient_email, type, payload, is_read, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, n.RecipientEmail, n.Type, payload, n.IsRead, n.Timestamp).Scan(&n.ID)
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, recipientEmail string, unreadOnly bool) ([]notification.Notification, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT id, recipient_email, type, payload, is_read, timestamp
		FROM notifications
		WHERE recipient_email = $1 AND ($2 = false OR NOT is_read)
		ORDER BY timestamp DESC
	`, recipientEmail, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]notification.Notification, 0)
	for rows.Next() {
		var (
			n   notification.Notification
			raw []byte
		)
		if err = rows.Scan(&n.ID, &n.RecipientEmail, &n.Type, &raw, &n.IsRead, &n.Timestamp); err != nil {
			return nil, err
		}
		if n.Payload, err = notification.DecodePayload(n.Type, raw); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (repo *notificationRepository) MarkNotificationRead(ctx context.Context, id int, recipientEmail string) error {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = true
		WHERE id = $1 AND recipient_email = $2
	`, id, recipientEmail)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(notification.ErrNotFound)
	}
	return nil
}

func (repo *notificationRepository) DeleteNotificationsByApplication(ctx context.Context, applicationID int) error {
	_, err := repo.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE payload->>'application_id' IS NOT NULL
		  AND (payload->>'application_id')::int = $1
	`, applicationID)
	return err
}

func (repo *notificationRepository) DeleteNotificationsByActivity(ctx context.Context, activityID int) error {
	_, err := repo.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE payload->>'activity_id' IS NOT NULL
		  AND (payload->>'activity_id')::int = $1
	`, activityID)
	return err
}

func (repo *notificationRepository) DeleteNotificationsByProject(ctx context.Context, projectID int) error {
	_, err := repo.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE payload->>'project_id' IS NOT NULL
		  AND (payload->>'project_id')::int = $1
	`, projectID)
	return err
}

func (repo *notificationRepository) GetRecipientChannel(ctx context.Context, email string, group notification.Group) (notification.Channel, error) {
	var channel notification.Channel
	err := repo.db.GetContext(ctx, &channel, `
		SELECT coalesce(notification_settings->>$2, 'email')
		FROM accounts
		WHERE email = $1
	`, email, string(group))
	if err != nil {
		return "", translate(err, notification.ErrNotFound)
	}
	return channel, nil
}
