package store

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
)

// StockChangeStatus tracks a change in a variety's stock. Rejected changes
// stop counting towards the variety's amount.
type StockChangeStatus string

const (
	StockCarriedOut     StockChangeStatus = "carried_out"
	StockPending        StockChangeStatus = "pending"
	StockReadyForPickup StockChangeStatus = "ready_for_pickup"
	StockRejected       StockChangeStatus = "rejected"
)

func (s StockChangeStatus) Valid() bool {
	switch s {
	case StockCarriedOut, StockPending, StockReadyForPickup, StockRejected:
		return true
	}
	return false
}

// Product is an item in the InnoStore purchasable for innopoints.
type Product struct {
	ID           int         `json:"id"`
	Name         string      `json:"name"`
	Type         null.String `json:"type,omitempty"`
	Description  string      `json:"description"`
	Price        int         `json:"price"`
	AdditionTime time.Time   `json:"addition_time"` // UTC
	Varieties    []Variety   `json:"varieties,omitempty"`
}

// Variety is one concrete size/color combination of a product.
type Variety struct {
	ID        int         `json:"id"`
	ProductID int         `json:"product_id"`
	Size      null.String `json:"size,omitempty"`
	Color     null.String `json:"color,omitempty"` // hex value, no '#'
}

// StockChange is a signed adjustment of a variety's stock. Purchases are
// negative-amount changes made by the buying account.
type StockChange struct {
	ID           int               `json:"id"`
	VarietyID    int               `json:"variety_id"`
	AccountEmail string            `json:"account_email"`
	Amount       int               `json:"amount"`
	Time         time.Time         `json:"time"` // UTC
	Status       StockChangeStatus `json:"status"`
}

// Color is a selectable product color.
type Color struct {
	ID    int    `json:"id"`
	Value string `json:"value"` // hex, no '#'
}

// NewProduct contains information needed to put a product on the store.
type NewProduct struct {
	Name        string       `json:"name" validate:"required,max=128"`
	Type        null.String  `json:"type" validate:"omitempty,max=128"`
	Description string       `json:"description" validate:"max=1024"`
	Price       int          `json:"price" validate:"required,min=1"`
	Varieties   []NewVariety `json:"varieties" validate:"dive"`
}

type NewVariety struct {
	Size   null.String `json:"size" validate:"omitempty,max=3"`
	Color  null.String `json:"color" validate:"omitempty,len=6,hexadecimal"`
	Amount int         `json:"amount" validate:"min=0"`
}

func (np *NewProduct) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Description = core.CleanString(np.Description)
	return validate.Struct(np)
}

// NewPurchase is a buy order for one variety.
type NewPurchase struct {
	VarietyID int `json:"variety_id" validate:"required"`
	Amount    int `json:"amount" validate:"required,min=1"`
}

func (np *NewPurchase) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

// NewColor contains a new selectable color.
type NewColor struct {
	Value string `json:"value" validate:"required,len=6,hexadecimal"`
}

func (nc *NewColor) Validate(validate *validator.Validate) error {
	nc.Value = core.CleanString(nc.Value, true /* lower */)
	return validate.Struct(nc)
}

// QueryFilter narrows down product listings.
type QueryFilter struct {
	Search string `query:"q"`
	Page   int    `query:"page"`
	Limit  int    `query:"limit"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	if qf.Page < 1 {
		qf.Page = 1
	}
	if qf.Limit < 1 {
		qf.Limit = 25
	}
}
