package recon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the reconciliation lifecycle. A reconciliation starts pending,
// moves to in_progress once items are being resolved, and completes only when
// no item remains pending.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// ItemStatus tracks one statement line. Matched items are tied to a ledger
// transaction; cleared items are resolved without one (bank fees, interest).
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "PENDING"
	ItemStatusMatched ItemStatus = "MATCHED"
	ItemStatusCleared ItemStatus = "CLEARED"
)

// ItemSide mirrors the bank statement's view of the movement.
type ItemSide string

const (
	ItemSideDebit  ItemSide = "DEBIT"
	ItemSideCredit ItemSide = "CREDIT"
)

// BankReconciliation compares a bank statement against the book balance of a
// cash account. Difference is statement minus book and is refreshed from the
// live ledger balance on create and update, then frozen at completion.
type BankReconciliation struct {
	ID               int64
	AccountID        int64
	StatementDate    time.Time
	StatementBalance decimal.Decimal
	BookBalance      decimal.Decimal
	Difference       decimal.Decimal
	Status           Status
	Notes            string
	CreatedBy        int64
	CompletedBy      *int64
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Items            []ReconciliationItem
}

// PendingItems counts items still blocking completion.
func (r BankReconciliation) PendingItems() int {
	n := 0
	for _, item := range r.Items {
		if item.Status == ItemStatusPending {
			n++
		}
	}
	return n
}

// ReconciliationItem is one statement line awaiting resolution.
type ReconciliationItem struct {
	ID                   int64
	ReconciliationID     int64
	Date                 time.Time
	Description          string
	Amount               decimal.Decimal
	Side                 ItemSide
	Status               ItemStatus
	MatchedTransactionID *int64
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CreateRequest starts a reconciliation against a bank or cash account.
type CreateRequest struct {
	AccountID        int64           `json:"account_id" validate:"required,gt=0"`
	StatementDate    time.Time       `json:"statement_date" validate:"required"`
	StatementBalance decimal.Decimal `json:"statement_balance"`
	Notes            string          `json:"notes,omitempty" validate:"max=1000"`
}

// UpdateRequest adjusts an open reconciliation's statement figures.
type UpdateRequest struct {
	StatementDate    *time.Time       `json:"statement_date,omitempty"`
	StatementBalance *decimal.Decimal `json:"statement_balance,omitempty"`
	Notes            *string          `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// AddItemRequest attaches a statement line.
type AddItemRequest struct {
	Date        time.Time       `json:"date" validate:"required"`
	Description string          `json:"description" validate:"required,max=500"`
	Amount      decimal.Decimal `json:"amount"`
	Side        ItemSide        `json:"side" validate:"required,oneof=DEBIT CREDIT"`
	Notes       string          `json:"notes,omitempty" validate:"max=1000"`
}

// ListRequest narrows reconciliation listings.
type ListRequest struct {
	AccountID *int64  `json:"account_id,omitempty"`
	Status    *Status `json:"status,omitempty"`
	Limit     int     `json:"limit" validate:"gte=0,lte=500"`
	Offset    int     `json:"offset" validate:"gte=0"`
}
