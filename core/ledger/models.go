package ledger

// Reference ties a transaction to the event that produced it: either a stock
// purchase or a feedback submission, never both and never neither. The
// storage layer backs this with an XOR check constraint.
type Reference struct {
	kind ReferenceKind
	id   int
}

type ReferenceKind string

const (
	RefStockChange ReferenceKind = "stock_change"
	RefFeedback    ReferenceKind = "feedback"
)

func StockChangeRef(stockChangeID int) Reference {
	return Reference{kind: RefStockChange, id: stockChangeID}
}

func FeedbackRef(applicationID int) Reference {
	return Reference{kind: RefFeedback, id: applicationID}
}

func (r Reference) Kind() ReferenceKind { return r.kind }
func (r Reference) ID() int             { return r.id }
func (r Reference) IsZero() bool        { return r.kind == "" }

// Transaction is a single signed change in an account's innopoints balance.
// Entries are append-only; no update operation exists.
type Transaction struct {
	ID           int       `json:"id"`
	AccountEmail string    `json:"account_email"`
	Change       int       `json:"change"`
	Reference    Reference `json:"-"`
}
