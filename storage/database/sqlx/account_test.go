package sqlxrepos

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/notification"
)

func TestCreateAccountDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectExec(`INSERT INTO accounts \(email, full_name, "group", telegram_username, is_admin, notification_settings\)`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	_, err := repo.CreateAccount(context.Background(), account.Account{
		Email:    "j.doe@innopolis.university",
		FullName: "John Doe",
	})
	if !errors.Is(err, account.ErrAccountExists) {
		t.Fatalf("CreateAccount() error = %v, want %v", err, account.ErrAccountExists)
	}
	if kind := core.ErrorKind(err); kind != core.KindConflict {
		t.Errorf("CreateAccount() error kind = %v, want %v", kind, core.KindConflict)
	}
}

func TestGetAccountSettingsRoundTrip(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	rows := sqlmock.NewRows([]string{"email", "full_name", "group", "telegram_username", "is_admin", "notification_settings"}).
		AddRow("j.doe@innopolis.university", "John Doe", "B21-01", nil, false, []byte(`{"innostore":"off"}`))
	mock.ExpectQuery("SELECT (.+) FROM accounts").
		WithArgs("j.doe@innopolis.university").
		WillReturnRows(rows)

	acc, err := repo.GetAccount(context.Background(), "j.doe@innopolis.university")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if acc.Group != null.StringFrom("B21-01") {
		t.Errorf("GetAccount() Group = %v, want B21-01", acc.Group)
	}
	if got := acc.NotificationSettings[notification.GroupInnoStore]; got != notification.ChannelOff {
		t.Errorf("GetAccount() innostore channel = %v, want %v", got, notification.ChannelOff)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM accounts").
		WithArgs("ghost@innopolis.university").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAccount(context.Background(), "ghost@innopolis.university")
	if !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("GetAccount() error = %v, want %v", err, account.ErrNotFound)
	}
	if kind := core.ErrorKind(err); kind != core.KindNotFound {
		t.Errorf("GetAccount() error kind = %v, want %v", kind, core.KindNotFound)
	}
}

func TestSetTelegramNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectExec("UPDATE accounts SET telegram_username").
		WithArgs("ghost@innopolis.university", null.StringFrom("@ghost")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetTelegram(context.Background(), "ghost@innopolis.university", null.StringFrom("@ghost"))
	if kind := core.ErrorKind(err); kind != core.KindNotFound {
		t.Errorf("SetTelegram() error kind = %v, want %v", kind, core.KindNotFound)
	}
}
