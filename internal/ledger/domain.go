package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// BalanceSide identifies which side of an account grows its balance.
type BalanceSide string

const (
	SideDebit  BalanceSide = "DEBIT"
	SideCredit BalanceSide = "CREDIT"
)

// NormalBalance returns the normal balance side for the account type.
// Asset and expense accounts are debit-normal; the rest are credit-normal.
func (t AccountType) NormalBalance() BalanceSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// TransactionType tags the originating workflow of a ledger transaction.
type TransactionType string

const (
	TransactionTypeInvoice TransactionType = "INVOICE"
	TransactionTypeExpense TransactionType = "EXPENSE"
	TransactionTypePayment TransactionType = "PAYMENT"
	TransactionTypeReceipt TransactionType = "RECEIPT"
	TransactionTypeJournal TransactionType = "JOURNAL"
	TransactionTypeSale    TransactionType = "SALE"
)

// TransactionStatus enumerates transaction lifecycle values. Posting always
// creates POSTED records; draft business objects (sales) hold their own
// pre-ledger state until they call posting at confirm time.
type TransactionStatus string

const (
	TransactionStatusDraft  TransactionStatus = "DRAFT"
	TransactionStatusPosted TransactionStatus = "POSTED"
	TransactionStatusVoid   TransactionStatus = "VOID"
)

// Account models a chart of accounts node. The ledger engine reads accounts
// but never mutates them; balances accrue only through transaction lines.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	IsActive  bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction captures posting metadata for a balanced set of lines.
type Transaction struct {
	ID          int64
	Date        time.Time
	Description string
	Reference   string
	Type        TransactionType
	Status      TransactionStatus
	CustomerID  *int64
	VendorID    *int64
	CreatedBy   int64
	Reconciled  bool
	SourceRef   uuid.UUID
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []TransactionLine
}

// TransactionLine stores a debit or credit amount against one account.
// Exactly one of Debit/Credit is non-zero on any persisted line.
type TransactionLine struct {
	ID            int64
	TransactionID int64
	AccountID     int64
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Memo          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LineInput describes one proposed line of a posting.
type LineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// PostingInput groups the fields required to create a transaction.
type PostingInput struct {
	Date        time.Time
	Description string
	Reference   string
	Type        TransactionType
	CustomerID  *int64
	VendorID    *int64
	CreatedBy   int64
	SourceRef   uuid.UUID
	Lines       []LineInput
}

// Totals carries the summed sides of a validated posting.
type Totals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// balanceTolerance bounds the permitted debit/credit gap. It absorbs rounding
// noise on the minor currency unit; anything larger is a real mismatch.
var balanceTolerance = decimal.New(1, -2)

// ValidateAndBalance enforces double-entry correctness on the proposed lines.
// Per-line shape errors are reported before the minimum-line-count check, and
// the aggregate balance check runs last. Amounts finer than the minor currency
// unit are rejected so that a validated line is stored and echoed unchanged.
// It is pure: account existence is verified separately against the chart of
// accounts at posting time.
func (in PostingInput) ValidateAndBalance() (Totals, error) {
	var debit, credit decimal.Decimal
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return Totals{}, lineShapeError(idx, "missing account")
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return Totals{}, lineShapeError(idx, "negative amount")
		}
		if !line.Debit.Equal(line.Debit.Round(2)) || !line.Credit.Equal(line.Credit.Round(2)) {
			return Totals{}, lineShapeError(idx, "amount is finer than 0.01")
		}
		hasDebit := line.Debit.IsPositive()
		hasCredit := line.Credit.IsPositive()
		if hasDebit && hasCredit {
			return Totals{}, lineShapeError(idx, "a line cannot have both debit and credit")
		}
		if !hasDebit && !hasCredit {
			return Totals{}, lineShapeError(idx, "a line must carry a debit or a credit")
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if len(in.Lines) < 2 {
		return Totals{}, &Error{
			Code:    CodeInsufficientLines,
			Message: "a transaction requires at least two lines",
			Meta:    map[string]any{"line_count": len(in.Lines)},
		}
	}
	if debit.Sub(credit).Abs().GreaterThan(balanceTolerance) {
		return Totals{}, &Error{
			Code:    CodeUnbalanced,
			Message: fmt.Sprintf("debits (%s) do not equal credits (%s)", debit.StringFixed(2), credit.StringFixed(2)),
			Meta:    map[string]any{"total_debit": debit.StringFixed(2), "total_credit": credit.StringFixed(2)},
		}
	}
	return Totals{Debit: debit, Credit: credit}, nil
}

// AccountIDs returns the distinct account ids referenced by the posting.
func (in PostingInput) AccountIDs() []int64 {
	seen := make(map[int64]struct{}, len(in.Lines))
	ids := make([]int64, 0, len(in.Lines))
	for _, line := range in.Lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}

func lineShapeError(idx int, msg string) *Error {
	return &Error{
		Code:    CodeInvalidLineShape,
		Message: fmt.Sprintf("line %d: %s", idx, msg),
		Meta:    map[string]any{"line": idx},
	}
}

// AccountBalanceResult reports a derived balance for one account.
type AccountBalanceResult struct {
	AccountID  int64
	Code       string
	Type       AccountType
	NormalSide BalanceSide
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Balance    decimal.Decimal
	AsOf       *time.Time
}

// TrialBalanceRow aggregates posted debits and credits for one account.
type TrialBalanceRow struct {
	AccountID int64
	Code      string
	Name      string
	Type      AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// TrialBalance is the full per-account aggregation over posted lines.
type TrialBalance struct {
	AsOf        *time.Time
	Rows        []TrialBalanceRow
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Balanced reports whether the aggregate drift is within tolerance.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Sub(tb.TotalCredit).Abs().LessThanOrEqual(balanceTolerance)
}
