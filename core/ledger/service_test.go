package ledger_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/ledger"
	dummydb "github.com/moflotas/ipts-backend/storage/database/dummy"
)

func setup(t *testing.T) ledger.Service {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	return ledger.NewService(dummydb.NewLedgerRepository(db))
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	_, err := svc.Record(ctx, ledger.Transaction{AccountEmail: "v@innopolis.university", Change: 140})
	if !errors.Is(err, ledger.ErrNoReference) {
		t.Errorf("Record() without reference error = %v, want %v", err, ledger.ErrNoReference)
	}
	if kind := core.ErrorKind(err); kind != core.KindInvalidState {
		t.Errorf("Record() without reference kind = %v, want %v", kind, core.KindInvalidState)
	}

	tx, err := svc.Record(ctx, ledger.Transaction{
		AccountEmail: "v@innopolis.university",
		Change:       140,
		Reference:    ledger.FeedbackRef(7),
	})
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if tx.ID == 0 {
		t.Error("Record() did not assign an ID")
	}

	_, err = svc.Record(ctx, ledger.Transaction{
		AccountEmail: "v@innopolis.university",
		Change:       140,
		Reference:    ledger.FeedbackRef(7),
	})
	if !errors.Is(err, ledger.ErrDuplicateRef) {
		t.Errorf("Record() with duplicate reference error = %v, want %v", err, ledger.ErrDuplicateRef)
	}
}

func TestBalance(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	balance, err := svc.Balance(ctx, "v@innopolis.university")
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("Balance() = %d, want 0", balance)
	}

	if _, err = svc.Record(ctx, ledger.Transaction{
		AccountEmail: "v@innopolis.university",
		Change:       350,
		Reference:    ledger.FeedbackRef(1),
	}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if _, err = svc.Record(ctx, ledger.Transaction{
		AccountEmail: "v@innopolis.university",
		Change:       -200,
		Reference:    ledger.StockChangeRef(1),
	}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if _, err = svc.Record(ctx, ledger.Transaction{
		AccountEmail: "other@innopolis.university",
		Change:       70,
		Reference:    ledger.FeedbackRef(2),
	}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	balance, err = svc.Balance(ctx, "v@innopolis.university")
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if balance != 150 {
		t.Errorf("Balance() = %d, want 150", balance)
	}

	txs, err := svc.Query(ctx, "v@innopolis.university")
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("Query() returned %d transactions, want 2", len(txs))
	}
}
