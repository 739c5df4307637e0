package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
)

var (
	// errors
	ErrProductNotFound     = errors.New("product not found")
	ErrVarietyNotFound     = errors.New("variety not found")
	ErrStockChangeNotFound = errors.New("stock change not found")
	ErrColorExists         = errors.New("a color with this value already exists")

	errInsufficientStock   = errors.New("not enough items in stock")
	errInsufficientBalance = errors.New("not enough innopoints to cover the purchase")
	errInvalidStatus       = errors.New("a valid stock change status must be specified")
	errStatusFinal         = errors.New("rejected purchases cannot change status")
)

type (
	Repository interface {
		CreateProduct(ctx context.Context, p Product, varieties []Variety) (Product, error)
		GetProduct(ctx context.Context, id int) (Product, error)
		QueryProducts(ctx context.Context, filter QueryFilter) ([]Product, error)
		DeleteProduct(ctx context.Context, id int) error

		GetVariety(ctx context.Context, id int) (Variety, error)
		// GetVarietyStock sums all non-rejected stock changes of the variety.
		GetVarietyStock(ctx context.Context, varietyID int) (int, error)
		CreateStockChange(ctx context.Context, sc StockChange) (StockChange, error)
		// CreatePurchase persists the negative stock change and its ledger
		// transaction in one storage transaction.
		CreatePurchase(ctx context.Context, sc StockChange, tx ledger.Transaction) (StockChange, error)
		GetStockChange(ctx context.Context, id int) (StockChange, error)
		SetStockChangeStatus(ctx context.Context, id int, status StockChangeStatus) error

		QueryColors(ctx context.Context) ([]Color, error)
		CreateColor(ctx context.Context, c Color) (Color, error)

		QueryAdminEmails(ctx context.Context) ([]string, error)
		QueryAccountEmails(ctx context.Context) ([]string, error)
	}

	Service interface {
		CreateProduct(ctx context.Context, actor core.Actor, np NewProduct) (Product, error)
		GetProduct(ctx context.Context, id int) (Product, error)
		QueryProducts(ctx context.Context, filter QueryFilter) ([]Product, error)
		DeleteProduct(ctx context.Context, actor core.Actor, id int) error

		// Purchase buys amount items of a variety for price*amount innopoints.
		Purchase(ctx context.Context, actor core.Actor, np NewPurchase) (StockChange, error)
		Restock(ctx context.Context, actor core.Actor, varietyID, amount int) (StockChange, error)
		SetStockChangeStatus(ctx context.Context, actor core.Actor, id int, status StockChangeStatus) error

		QueryColors(ctx context.Context) ([]Color, error)
		CreateColor(ctx context.Context, actor core.Actor, nc NewColor) (Color, error)
	}

	service struct {
		repo      Repository
		ledgerSvc ledger.Service
		notifSvc  notification.Service
		logger    core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, ledgerSvc ledger.Service, notifSvc notification.Service, logger core.Logger) Service {
	return &service{
		repo:      repo,
		ledgerSvc: ledgerSvc,
		notifSvc:  notifSvc,
		logger:    logger,
	}
}

func (svc *service) CreateProduct(ctx context.Context, actor core.Actor, np NewProduct) (Product, error) {
	if !actor.IsAdmin {
		return Product{}, core.ForbiddenError(errors.New("only admins may create products"))
	}
	prod := Product{
		Name:         np.Name,
		Type:         np.Type,
		Description:  np.Description,
		Price:        np.Price,
		AdditionTime: time.Now().UTC(),
	}
	varieties := make([]Variety, 0, len(np.Varieties))
	for _, nv := range np.Varieties {
		varieties = append(varieties, Variety{Size: nv.Size, Color: nv.Color})
	}
	prod, err := svc.repo.CreateProduct(ctx, prod, varieties)
	if err != nil {
		return Product{}, errors.Wrap(err, "creating product")
	}
	// seed the initial stock
	for i, nv := range np.Varieties {
		if nv.Amount == 0 {
			continue
		}
		_, err := svc.repo.CreateStockChange(ctx, StockChange{
			VarietyID:    prod.Varieties[i].ID,
			AccountEmail: actor.Email,
			Amount:       nv.Amount,
			Time:         time.Now().UTC(),
			Status:       StockCarriedOut,
		})
		if err != nil {
			return Product{}, errors.Wrap(err, "seeding stock")
		}
	}
	if emails, err := svc.repo.QueryAccountEmails(ctx); err != nil {
		svc.logger.Error("querying recipients for new arrivals", err)
	} else {
		svc.notifSvc.NotifyAll(ctx, emails, notification.TypeNewArrivals, &notification.ProductPayload{ProductID: prod.ID})
	}
	return prod, nil
}

func (svc *service) GetProduct(ctx context.Context, id int) (Product, error) {
	return svc.repo.GetProduct(ctx, id)
}

func (svc *service) QueryProducts(ctx context.Context, filter QueryFilter) ([]Product, error) {
	filter.Clean()
	return svc.repo.QueryProducts(ctx, filter)
}

func (svc *service) DeleteProduct(ctx context.Context, actor core.Actor, id int) error {
	if !actor.IsAdmin {
		return core.ForbiddenError(errors.New("only admins may delete products"))
	}
	return svc.repo.DeleteProduct(ctx, id)
}

func (svc *service) Purchase(ctx context.Context, actor core.Actor, np NewPurchase) (StockChange, error) {
	variety, err := svc.repo.GetVariety(ctx, np.VarietyID)
	if err != nil {
		return StockChange{}, err
	}
	prod, err := svc.repo.GetProduct(ctx, variety.ProductID)
	if err != nil {
		return StockChange{}, err
	}

	stock, err := svc.repo.GetVarietyStock(ctx, variety.ID)
	if err != nil {
		return StockChange{}, errors.Wrap(err, "querying stock")
	}
	if stock < np.Amount {
		return StockChange{}, core.ConflictError(errInsufficientStock)
	}

	cost := prod.Price * np.Amount
	balance, err := svc.ledgerSvc.Balance(ctx, actor.Email)
	if err != nil {
		return StockChange{}, errors.Wrap(err, "querying balance")
	}
	if balance < cost {
		return StockChange{}, core.ConflictError(errInsufficientBalance)
	}

	sc := StockChange{
		VarietyID:    variety.ID,
		AccountEmail: actor.Email,
		Amount:       -np.Amount,
		Time:         time.Now().UTC(),
		Status:       StockPending,
	}
	sc, err = svc.repo.CreatePurchase(ctx, sc, ledger.Transaction{
		AccountEmail: actor.Email,
		Change:       -cost,
	})
	if err != nil {
		return StockChange{}, errors.Wrap(err, "creating purchase")
	}

	admins, err := svc.repo.QueryAdminEmails(ctx)
	if err != nil {
		svc.logger.Error("querying admins", err)
		return sc, nil
	}
	svc.notifSvc.NotifyAll(ctx, admins, notification.TypeNewPurchase, &notification.StockChangePayload{StockChangeID: sc.ID})
	if stock == np.Amount {
		svc.notifSvc.NotifyAll(ctx, admins, notification.TypeOutOfStock, &notification.ProductPayload{ProductID: prod.ID})
	}
	return sc, nil
}

// Restock adds items of a variety back to the shelf.
func (svc *service) Restock(ctx context.Context, actor core.Actor, varietyID, amount int) (StockChange, error) {
	if !actor.IsAdmin {
		return StockChange{}, core.ForbiddenError(errors.New("only admins may restock"))
	}
	if amount < 1 {
		return StockChange{}, core.NewValidationError(errors.New("amount must be positive"))
	}
	if _, err := svc.repo.GetVariety(ctx, varietyID); err != nil {
		return StockChange{}, err
	}
	return svc.repo.CreateStockChange(ctx, StockChange{
		VarietyID:    varietyID,
		AccountEmail: actor.Email,
		Amount:       amount,
		Time:         time.Now().UTC(),
		Status:       StockCarriedOut,
	})
}

func (svc *service) SetStockChangeStatus(ctx context.Context, actor core.Actor, id int, status StockChangeStatus) error {
	if !actor.IsAdmin {
		return core.ForbiddenError(errors.New("only admins may change purchase statuses"))
	}
	if !status.Valid() {
		return core.NewValidationError(errInvalidStatus, core.FieldError{Field: "status", Error: errInvalidStatus.Error()})
	}
	sc, err := svc.repo.GetStockChange(ctx, id)
	if err != nil {
		return err
	}
	if sc.Status == StockRejected {
		return core.InvalidStateError(errStatusFinal)
	}
	if sc.Status == status {
		return nil
	}
	if err = svc.repo.SetStockChangeStatus(ctx, id, status); err != nil {
		return errors.Wrap(err, "updating stock change")
	}
	if sc.Amount < 0 {
		_, err := svc.notifSvc.Notify(ctx, sc.AccountEmail, notification.TypePurchaseStatusChanged, &notification.StockChangePayload{StockChangeID: sc.ID})
		if err != nil {
			svc.logger.Error("notifying purchaser", err)
		}
	}
	return nil
}

func (svc *service) QueryColors(ctx context.Context) ([]Color, error) {
	return svc.repo.QueryColors(ctx)
}

func (svc *service) CreateColor(ctx context.Context, actor core.Actor, nc NewColor) (Color, error) {
	if !actor.IsAdmin {
		return Color{}, core.ForbiddenError(errors.New("only admins may create colors"))
	}
	return svc.repo.CreateColor(ctx, Color{Value: nc.Value})
}
