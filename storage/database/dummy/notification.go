package dummydb

import (
	"context"
	"sort"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n.ID = repo.db.nextPK()
	repo.db.notifications[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, recipientEmail string, unreadOnly bool) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	notifications := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.RecipientEmail != recipientEmail {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		notifications = append(notifications, *n)
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].Timestamp.After(notifications[j].Timestamp)
	})
	return notifications, nil
}

func (repo *notificationRepository) MarkNotificationRead(ctx context.Context, id int, recipientEmail string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok || n.RecipientEmail != recipientEmail {
		return core.NotFoundError(notification.ErrNotFound)
	}
	n.IsRead = true
	return nil
}

func (repo *notificationRepository) DeleteNotificationsByApplication(ctx context.Context, applicationID int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, n := range repo.db.notifications {
		if p, ok := n.Payload.(*notification.ApplicationPayload); ok && p.ApplicationID == applicationID {
			delete(repo.db.notifications, id)
		}
	}
	return nil
}

func (repo *notificationRepository) DeleteNotificationsByActivity(ctx context.Context, activityID int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, n := range repo.db.notifications {
		switch p := n.Payload.(type) {
		case *notification.ActivityPayload:
			if p.ActivityID == activityID {
				delete(repo.db.notifications, id)
			}
		case *notification.ApplicationPayload:
			if p.ActivityID == activityID {
				delete(repo.db.notifications, id)
			}
		}
	}
	return nil
}

func (repo *notificationRepository) DeleteNotificationsByProject(ctx context.Context, projectID int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, n := range repo.db.notifications {
		switch p := n.Payload.(type) {
		case *notification.ProjectPayload:
			if p.ProjectID == projectID {
				delete(repo.db.notifications, id)
			}
		case *notification.ActivityPayload:
			if p.ProjectID == projectID {
				delete(repo.db.notifications, id)
			}
		case *notification.ApplicationPayload:
			if p.ProjectID == projectID {
				delete(repo.db.notifications, id)
			}
		}
	}
	return nil
}

func (repo *notificationRepository) GetRecipientChannel(ctx context.Context, email string, group notification.Group) (notification.Channel, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if acc, ok := repo.db.accounts[email]; ok {
		if channel, ok := acc.NotificationSettings[group]; ok {
			return channel, nil
		}
	}
	return notification.ChannelEmail, nil
}
