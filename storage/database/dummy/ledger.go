package dummydb

import (
	"context"
	"sort"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/ledger"
)

type ledgerRepository struct {
	db *DB
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *DB) ledger.Repository {
	return &ledgerRepository{db: db}
}

func (repo *ledgerRepository) CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.transactions {
		if existing.Reference == tx.Reference {
			return ledger.Transaction{}, core.ConflictError(ledger.ErrDuplicateRef)
		}
	}
	tx.ID = repo.db.nextPK()
	repo.db.transactions[tx.ID] = &tx
	return tx, nil
}

func (repo *ledgerRepository) QueryTransactions(ctx context.Context, accountEmail string) ([]ledger.Transaction, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	txs := make([]ledger.Transaction, 0)
	for _, tx := range repo.db.transactions {
		if tx.AccountEmail == accountEmail {
			txs = append(txs, *tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
	return txs, nil
}

func (repo *ledgerRepository) GetBalance(ctx context.Context, accountEmail string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	balance := 0
	for _, tx := range repo.db.transactions {
		if tx.AccountEmail == accountEmail {
			balance += tx.Change
		}
	}
	return balance, nil
}
