package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/moflotas/ipts-backend/core/ledger"
)

type ledgerRepository struct {
	db *sqlx.DB
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *sqlx.DB) ledger.Repository {
	return &ledgerRepository{db: db}
}

func (repo *ledgerRepository) CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	var stockChangeID, feedbackID sql.NullInt64
	switch tx.Reference.Kind() {
	case ledger.RefStockChange:
		stockChangeID = sql.NullInt64{Int64: int64(tx.Reference.ID()), Valid: true}
	case ledger.RefFeedback:
		feedbackID = sql.NullInt64{Int64: int64(tx.Reference.ID()), Valid: true}
	}
	err := repo.db.QueryRowContext(ctx, `
		INSERT INTO transactions (account_email, change, stock_change_id, feedback_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, tx.AccountEmail, tx.Change, stockChangeID, feedbackID).Scan(&tx.ID)
	if err != nil {
		return ledger.Transaction{}, translate(err, ledger.ErrNotFound, ledger.ErrDuplicateRef)
	}
	return tx, nil
}

func (repo *ledgerRepository) QueryTransactions(ctx context.Context, accountEmail string) ([]ledger.Transaction, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT id, account_email, change, stock_change_id, feedback_id
		FROM transactions
		WHERE account_email = $1
		ORDER BY id
	`, accountEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]ledger.Transaction, 0)
	for rows.Next() {
		var (
			tx                       ledger.Transaction
			stockChangeID, feedbackID sql.NullInt64
		)
		if err = rows.Scan(&tx.ID, &tx.AccountEmail, &tx.Change, &stockChangeID, &feedbackID); err != nil {
			return nil, err
		}
		switch {
		case stockChangeID.Valid:
			tx.Reference = ledger.StockChangeRef(int(stockChangeID.Int64))
		case feedbackID.Valid:
			tx.Reference = ledger.FeedbackRef(int(feedbackID.Int64))
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func (repo *ledgerRepository) GetBalance(ctx context.Context, accountEmail string) (int, error) {
	var balance int
	err := repo.db.GetContext(ctx, &balance, `
		SELECT coalesce(sum(change), 0) FROM transactions WHERE account_email = $1
	`, accountEmail)
	return balance, err
}
