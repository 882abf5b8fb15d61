package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleStatus enumerates the sale lifecycle. A sale carries no financial
// effect until confirmation turns it into a posted ledger transaction.
type SaleStatus string

const (
	SaleStatusDraft     SaleStatus = "DRAFT"
	SaleStatusConfirmed SaleStatus = "CONFIRMED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// PaymentType determines which account receives the debit at confirmation.
type PaymentType string

const (
	PaymentTypeCredit PaymentType = "CREDIT"
	PaymentTypeCash   PaymentType = "CASH"
)

// Sale is an invoice draft plus the account references its confirmation
// posting needs. SourceRef dedupes the ledger posting if a confirm is retried.
type Sale struct {
	ID               int64
	Number           string
	CustomerID       int64
	Date             time.Time
	DueDate          *time.Time
	PaymentType      PaymentType
	Status           SaleStatus
	Subtotal         decimal.Decimal
	DiscountAmount   decimal.Decimal
	TaxAmount        decimal.Decimal
	Total            decimal.Decimal
	ARAccountID      *int64
	RevenueAccountID *int64
	CashAccountID    *int64
	TaxAccountID     *int64
	Notes            string
	SourceRef        uuid.UUID
	CreatedBy        int64
	ConfirmedBy      *int64
	ConfirmedAt      *time.Time
	CancelledBy      *int64
	CancelledAt      *time.Time
	TransactionID    *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Lines            []SaleLine
}

// SaleLine is one invoiced item.
type SaleLine struct {
	ID              int64
	SaleID          int64
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
	DiscountAmount  decimal.Decimal
	TaxAmount       decimal.Decimal
	LineTotal       decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateSaleRequest creates a draft sale.
type CreateSaleRequest struct {
	CustomerID       int64               `json:"customer_id" validate:"required,gt=0"`
	Date             time.Time           `json:"date" validate:"required"`
	DueDate          *time.Time          `json:"due_date,omitempty"`
	PaymentType      PaymentType         `json:"payment_type" validate:"required,oneof=CREDIT CASH"`
	ARAccountID      *int64              `json:"ar_account_id,omitempty"`
	RevenueAccountID *int64              `json:"revenue_account_id,omitempty"`
	CashAccountID    *int64              `json:"cash_account_id,omitempty"`
	TaxAccountID     *int64              `json:"tax_account_id,omitempty"`
	Notes            string              `json:"notes,omitempty" validate:"max=1000"`
	Lines            []CreateSaleLineReq `json:"lines" validate:"required,min=1,dive"`
}

// CreateSaleLineReq is one line of a draft sale.
type CreateSaleLineReq struct {
	Description     string          `json:"description" validate:"required,max=500"`
	Quantity        decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice       decimal.Decimal `json:"unit_price" validate:"required"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

// UpdateSaleRequest updates a draft sale. Lines, when present, replace the
// existing set and totals are recalculated.
type UpdateSaleRequest struct {
	Date             *time.Time           `json:"date,omitempty"`
	DueDate          *time.Time           `json:"due_date,omitempty"`
	PaymentType      *PaymentType         `json:"payment_type,omitempty" validate:"omitempty,oneof=CREDIT CASH"`
	ARAccountID      *int64               `json:"ar_account_id,omitempty"`
	RevenueAccountID *int64               `json:"revenue_account_id,omitempty"`
	CashAccountID    *int64               `json:"cash_account_id,omitempty"`
	TaxAccountID     *int64               `json:"tax_account_id,omitempty"`
	Notes            *string              `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Lines            *[]CreateSaleLineReq `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
}

// ListSalesRequest narrows sale listings.
type ListSalesRequest struct {
	CustomerID *int64      `json:"customer_id,omitempty"`
	Status     *SaleStatus `json:"status,omitempty"`
	DateFrom   *time.Time  `json:"date_from,omitempty"`
	DateTo     *time.Time  `json:"date_to,omitempty"`
	Limit      int         `json:"limit" validate:"gte=0,lte=500"`
	Offset     int         `json:"offset" validate:"gte=0"`
}
