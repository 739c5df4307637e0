package ledger

import (
	"context"

	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
)

var (
	// errors
	ErrNotFound     = errors.New("transaction not found")
	ErrNoReference  = errors.New("a transaction must reference a purchase or a feedback")
	ErrDuplicateRef = errors.New("a transaction for this reference already exists")
)

type (
	Repository interface {
		CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
		QueryTransactions(ctx context.Context, accountEmail string) ([]Transaction, error)
		// GetBalance sums all transaction changes for the account.
		GetBalance(ctx context.Context, accountEmail string) (int, error)
	}

	Service interface {
		// Record appends a ledger entry. The reference is mandatory.
		Record(ctx context.Context, tx Transaction) (Transaction, error)
		Query(ctx context.Context, accountEmail string) ([]Transaction, error)
		Balance(ctx context.Context, accountEmail string) (int, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Record(ctx context.Context, tx Transaction) (Transaction, error) {
	if tx.Reference.IsZero() {
		return Transaction{}, core.InvalidStateError(ErrNoReference)
	}
	created, err := svc.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "creating transaction")
	}
	return created, nil
}

func (svc *service) Query(ctx context.Context, accountEmail string) ([]Transaction, error) {
	return svc.repo.QueryTransactions(ctx, accountEmail)
}

func (svc *service) Balance(ctx context.Context, accountEmail string) (int, error) {
	return svc.repo.GetBalance(ctx, accountEmail)
}
