package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/store"
)

type storeRepository struct {
	db *sqlx.DB
}

var _ store.Repository = (*storeRepository)(nil) // interface compliance check

func NewStoreRepository(db *sqlx.DB) store.Repository {
	return &storeRepository{db: db}
}

func (repo *storeRepository) CreateProduct(ctx context.Context, p store.Product, varieties []store.Variety) (store.Product, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.Product{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (name, type, description, price, addition_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, p.Name, p.Type, p.Description, p.Price, p.AdditionTime).Scan(&p.ID)
	if err != nil {
		return store.Product{}, err
	}

	p.Varieties = make([]store.Variety, 0, len(varieties))
	for _, v := range varieties {
		v.ProductID = p.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO varieties (product_id, size, color)
			VALUES ($1, $2, $3)
			RETURNING id
		`, v.ProductID, v.Size, v.Color).Scan(&v.ID)
		if err != nil {
			return store.Product{}, err
		}
		p.Varieties = append(p.Varieties, v)
	}
	if err = tx.Commit(); err != nil {
		return store.Product{}, errors.Wrap(err, "committing tx")
	}
	return p, nil
}

func (repo *storeRepository) GetProduct(ctx context.Context, id int) (store.Product, error) {
	var p store.Product
	err := repo.db.QueryRowContext(ctx, `
		SELECT id, name, type, description, price, addition_time
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Type, &p.Description, &p.Price, &p.AdditionTime)
	if err != nil {
		return store.Product{}, translate(err, store.ErrProductNotFound)
	}
	if p.Varieties, err = repo.productVarieties(ctx, p.ID); err != nil {
		return store.Product{}, err
	}
	return p, nil
}

func (repo *storeRepository) productVarieties(ctx context.Context, productID int) ([]store.Variety, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT id, product_id, size, color FROM varieties
		WHERE product_id = $1
		ORDER BY id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	varieties := make([]store.Variety, 0)
	for rows.Next() {
		var v store.Variety
		if err = rows.Scan(&v.ID, &v.ProductID, &v.Size, &v.Color); err != nil {
			return nil, err
		}
		varieties = append(varieties, v)
	}
	return varieties, rows.Err()
}

func (repo *storeRepository) QueryProducts(ctx context.Context, filter store.QueryFilter) ([]store.Product, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT id, name, type, description, price, addition_time
		FROM products
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
		ORDER BY addition_time DESC, id
		LIMIT $2 OFFSET $3
	`, filter.Search, filter.Limit, (filter.Page-1)*filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]store.Product, 0)
	for rows.Next() {
		var p store.Product
		if err = rows.Scan(&p.ID, &p.Name, &p.Type, &p.Description, &p.Price, &p.AdditionTime); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].Varieties, err = repo.productVarieties(ctx, products[i].ID); err != nil {
			return nil, err
		}
	}
	return products, nil
}

func (repo *storeRepository) DeleteProduct(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(store.ErrProductNotFound)
	}
	return nil
}

func (repo *storeRepository) GetVariety(ctx context.Context, id int) (store.Variety, error) {
	var v store.Variety
	err := repo.db.QueryRowContext(ctx, `
		SELECT id, product_id, size, color FROM varieties WHERE id = $1
	`, id).Scan(&v.ID, &v.ProductID, &v.Size, &v.Color)
	if err != nil {
		return store.Variety{}, translate(err, store.ErrVarietyNotFound)
	}
	return v, nil
}

func (repo *storeRepository) GetVarietyStock(ctx context.Context, varietyID int) (int, error) {
	var stock int
	err := repo.db.GetContext(ctx, &stock, `
		SELECT coalesce(sum(amount), 0)
		FROM stock_changes
		WHERE variety_id = $1 AND status <> 'rejected'
	`, varietyID)
	return stock, err
}

func (repo *storeRepository) CreateStockChange(ctx context.Context, sc store.StockChange) (store.StockChange, error) {
	err := repo.db.QueryRowContext(ctx, `
		INSERT INTO stock_changes (variety_id, account_email, amount, time, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, sc.VarietyID, sc.AccountEmail, sc.Amount, sc.Time, sc.Status).Scan(&sc.ID)
	if err != nil {
		return store.StockChange{}, err
	}
	return sc, nil
}

func (repo *storeRepository) CreatePurchase(ctx context.Context, sc store.StockChange, ltx ledger.Transaction) (store.StockChange, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.StockChange{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO stock_changes (variety_id, account_email, amount, time, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, sc.VarietyID, sc.AccountEmail, sc.Amount, sc.Time, sc.Status).Scan(&sc.ID)
	if err != nil {
		return store.StockChange{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (account_email, change, stock_change_id)
		VALUES ($1, $2, $3)
	`, ltx.AccountEmail, ltx.Change, sc.ID)
	if err != nil {
		return store.StockChange{}, translate(err, store.ErrStockChangeNotFound, ledger.ErrDuplicateRef)
	}
	if err = tx.Commit(); err != nil {
		return store.StockChange{}, errors.Wrap(err, "committing tx")
	}
	return sc, nil
}

func (repo *storeRepository) GetStockChange(ctx context.Context, id int) (store.StockChange, error) {
	var sc store.StockChange
	err := repo.db.QueryRowContext(ctx, `
		SELECT id, variety_id, account_email, amount, time, status
		FROM stock_changes
		WHERE id = $1
	`, id).Scan(&sc.ID, &sc.VarietyID, &sc.AccountEmail, &sc.Amount, &sc.Time, &sc.Status)
	if err != nil {
		return store.StockChange{}, translate(err, store.ErrStockChangeNotFound)
	}
	return sc, nil
}

func (repo *storeRepository) SetStockChangeStatus(ctx context.Context, id int, status store.StockChangeStatus) error {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE stock_changes SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(store.ErrStockChangeNotFound)
	}
	return nil
}

func (repo *storeRepository) QueryColors(ctx context.Context) ([]store.Color, error) {
	rows, err := repo.db.QueryContext(ctx, `SELECT id, value FROM colors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colors := make([]store.Color, 0)
	for rows.Next() {
		var c store.Color
		if err = rows.Scan(&c.ID, &c.Value); err != nil {
			return nil, err
		}
		colors = append(colors, c)
	}
	return colors, rows.Err()
}

func (repo *storeRepository) CreateColor(ctx context.Context, c store.Color) (store.Color, error) {
	err := repo.db.QueryRowContext(ctx, `
		INSERT INTO colors (value) VALUES ($1) RETURNING id
	`, c.Value).Scan(&c.ID)
	if err != nil {
		return store.Color{}, translate(err, store.ErrProductNotFound, store.ErrColorExists)
	}
	return c, nil
}

func (repo *storeRepository) QueryAdminEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := repo.db.SelectContext(ctx, &emails, `
		SELECT email FROM accounts WHERE is_admin ORDER BY email
	`)
	return emails, err
}

func (repo *storeRepository) QueryAccountEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := repo.db.SelectContext(ctx, &emails, `
		SELECT email FROM accounts ORDER BY email
	`)
	return emails, err
}
