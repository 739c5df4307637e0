package notification_test

import (
	"context"
	"testing"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/notification"
	emailsvc "github.com/moflotas/ipts-backend/services/email"
	dummydb "github.com/moflotas/ipts-backend/storage/database/dummy"
	"github.com/moflotas/ipts-backend/tests"
)

func setup(t *testing.T) (notification.Service, account.Repository) {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	conf := core.NewConfig()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ClearSentMessages()
	svc := notification.NewService(dummydb.NewNotificationRepository(db), mailSvc, conf, testutil.NewLogger())
	return svc, dummydb.NewAccountRepository(db)
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	svc, accRepo := setup(t)
	testutil.CreateAccount(t, accRepo, "v@innopolis.university", "Vol Unteer", false)

	n, err := svc.Notify(ctx, "v@innopolis.university", notification.TypeService, &notification.ServicePayload{Message: "hello"})
	if err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}
	if n.ID == 0 {
		t.Error("Notify() did not persist the notification")
	}
	if n.IsRead {
		t.Error("Notify() created an already-read notification")
	}

	// the service group defaults to the email channel
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("Notify() sent %d emails, want 1", len(emailsvc.SentMessages))
	}
	msg := emailsvc.SentMessages[0]
	if got, want := msg.To[0].Address, "v@innopolis.university"; got != want {
		t.Errorf("Notify() email recipient = %q, want %q", got, want)
	}
}

func TestNotifyChannelOff(t *testing.T) {
	ctx := context.Background()
	svc, accRepo := setup(t)

	acc := account.Account{
		Email:    "quiet@innopolis.university",
		FullName: "Quiet One",
		NotificationSettings: map[notification.Group]notification.Channel{
			notification.GroupInnoStore: notification.ChannelOff,
		},
	}
	if _, err := accRepo.CreateAccount(ctx, acc); err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}

	n, err := svc.Notify(ctx, "quiet@innopolis.university", notification.TypeNewArrivals, &notification.ProductPayload{ProductID: 1})
	if err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}
	if n.ID == 0 {
		t.Error("Notify() did not persist the notification")
	}
	if len(emailsvc.SentMessages) != 0 {
		t.Errorf("Notify() sent %d emails on an off channel, want 0", len(emailsvc.SentMessages))
	}
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	svc, accRepo := setup(t)
	testutil.CreateAccount(t, accRepo, "v@innopolis.university", "Vol Unteer", false)

	n, err := svc.Notify(ctx, "v@innopolis.university", notification.TypeService, &notification.ServicePayload{Message: "hello"})
	if err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}

	// only the recipient may mark their notifications
	err = svc.MarkRead(ctx, n.ID, "intruder@innopolis.university")
	if kind := core.ErrorKind(err); kind != core.KindNotFound {
		t.Errorf("MarkRead() as non-recipient kind = %v, want %v", kind, core.KindNotFound)
	}

	if err = svc.MarkRead(ctx, n.ID, "v@innopolis.university"); err != nil {
		t.Fatalf("MarkRead() failed: %v", err)
	}

	unread, err := svc.Query(ctx, "v@innopolis.university", true /* unreadOnly */)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("Query(unread) returned %d notifications after MarkRead, want 0", len(unread))
	}
	all, err := svc.Query(ctx, "v@innopolis.university", false)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Query() returned %d notifications, want 1", len(all))
	}
}
