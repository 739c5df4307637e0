package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/store"
)

type storeRepository struct {
	db *DB
}

var _ store.Repository = (*storeRepository)(nil) // interface compliance check

func NewStoreRepository(db *DB) store.Repository {
	return &storeRepository{db: db}
}

func (repo *storeRepository) CreateProduct(ctx context.Context, p store.Product, varieties []store.Variety) (store.Product, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = repo.db.nextPK()
	for _, v := range varieties {
		v.ID = repo.db.nextPK()
		v.ProductID = p.ID
		vCopy := v
		repo.db.varieties[v.ID] = &vCopy
		p.Varieties = append(p.Varieties, v)
	}
	repo.db.products[p.ID] = &p
	return p, nil
}

func (repo *storeRepository) GetProduct(ctx context.Context, id int) (store.Product, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	p, ok := repo.db.products[id]
	if !ok {
		return store.Product{}, core.NotFoundError(store.ErrProductNotFound)
	}
	prod := *p
	prod.Varieties = repo.productVarieties(id)
	return prod, nil
}

// productVarieties must be called with at least the read lock held.
func (repo *storeRepository) productVarieties(productID int) []store.Variety {
	varieties := make([]store.Variety, 0)
	for _, v := range repo.db.varieties {
		if v.ProductID == productID {
			varieties = append(varieties, *v)
		}
	}
	sort.Slice(varieties, func(i, j int) bool { return varieties[i].ID < varieties[j].ID })
	return varieties
}

func (repo *storeRepository) QueryProducts(ctx context.Context, filter store.QueryFilter) ([]store.Product, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	products := make([]store.Product, 0, len(repo.db.products))
	for _, p := range repo.db.products {
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		prod := *p
		prod.Varieties = repo.productVarieties(p.ID)
		products = append(products, prod)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	offset := (filter.Page - 1) * filter.Limit
	if offset >= len(products) {
		return []store.Product{}, nil
	}
	end := offset + filter.Limit
	if end > len(products) {
		end = len(products)
	}
	return products[offset:end], nil
}

func (repo *storeRepository) DeleteProduct(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.products[id]; !ok {
		return core.NotFoundError(store.ErrProductNotFound)
	}
	delete(repo.db.products, id)
	for vID, v := range repo.db.varieties {
		if v.ProductID == id {
			delete(repo.db.varieties, vID)
		}
	}
	return nil
}

func (repo *storeRepository) GetVariety(ctx context.Context, id int) (store.Variety, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if v, ok := repo.db.varieties[id]; ok {
		return *v, nil
	}
	return store.Variety{}, core.NotFoundError(store.ErrVarietyNotFound)
}

func (repo *storeRepository) GetVarietyStock(ctx context.Context, varietyID int) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	stock := 0
	for _, sc := range repo.db.stockChanges {
		if sc.VarietyID == varietyID && sc.Status != store.StockRejected {
			stock += sc.Amount
		}
	}
	return stock, nil
}

func (repo *storeRepository) CreateStockChange(ctx context.Context, sc store.StockChange) (store.StockChange, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sc.ID = repo.db.nextPK()
	repo.db.stockChanges[sc.ID] = &sc
	return sc, nil
}

func (repo *storeRepository) CreatePurchase(ctx context.Context, sc store.StockChange, tx ledger.Transaction) (store.StockChange, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sc.ID = repo.db.nextPK()
	repo.db.stockChanges[sc.ID] = &sc

	tx.ID = repo.db.nextPK()
	tx.Reference = ledger.StockChangeRef(sc.ID)
	repo.db.transactions[tx.ID] = &tx
	return sc, nil
}

func (repo *storeRepository) GetStockChange(ctx context.Context, id int) (store.StockChange, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sc, ok := repo.db.stockChanges[id]; ok {
		return *sc, nil
	}
	return store.StockChange{}, core.NotFoundError(store.ErrStockChangeNotFound)
}

func (repo *storeRepository) SetStockChangeStatus(ctx context.Context, id int, status store.StockChangeStatus) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	sc, ok := repo.db.stockChanges[id]
	if !ok {
		return core.NotFoundError(store.ErrStockChangeNotFound)
	}
	sc.Status = status
	return nil
}

func (repo *storeRepository) QueryColors(ctx context.Context) ([]store.Color, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	colors := make([]store.Color, 0, len(repo.db.colors))
	for _, c := range repo.db.colors {
		colors = append(colors, *c)
	}
	sort.Slice(colors, func(i, j int) bool { return colors[i].ID < colors[j].ID })
	return colors, nil
}

func (repo *storeRepository) CreateColor(ctx context.Context, c store.Color) (store.Color, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.colors {
		if existing.Value == c.Value {
			return store.Color{}, core.ConflictError(store.ErrColorExists)
		}
	}
	c.ID = repo.db.nextPK()
	repo.db.colors[c.ID] = &c
	return c, nil
}

func (repo *storeRepository) QueryAdminEmails(ctx context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.adminEmails(), nil
}

func (repo *storeRepository) QueryAccountEmails(ctx context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	emails := make([]string, 0, len(repo.db.accounts))
	for _, acc := range repo.db.accounts {
		emails = append(emails, acc.Email)
	}
	sort.Strings(emails)
	return emails, nil
}
