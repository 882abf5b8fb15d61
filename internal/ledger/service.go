package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, id int64) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	GetTransactionWithLines(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	SumAccountLines(ctx context.Context, accountID int64, asOf *time.Time) (Totals, error)
	TrialBalanceRows(ctx context.Context, asOf *time.Time) ([]TrialBalanceRow, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BalancePort caches derived unbounded balances. Nil-safe implementations
// keep the ledger usable without Redis.
type BalancePort interface {
	Get(ctx context.Context, accountID int64) (AccountBalanceResult, bool)
	Set(ctx context.Context, res AccountBalanceResult)
	Invalidate(ctx context.Context, accountIDs ...int64)
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	Type     *TransactionType
	Status   *TransactionStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

// Service coordinates posting, voiding, and balance derivation.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	balances BalancePort
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, balances BalancePort) *Service {
	return &Service{repo: repo, audit: audit, balances: balances, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostTransaction validates and atomically persists a new posted transaction.
// Posting is not idempotent by itself; callers needing dedupe supply a
// SourceRef, which conflicts with DUPLICATE_REFERENCE on reuse.
func (s *Service) PostTransaction(ctx context.Context, input PostingInput) (Transaction, error) {
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = s.PostWithTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.afterPost(ctx, txn, input)
	return txn, nil
}

// PostWithTx runs the full validation and insert sequence inside an existing
// repository transaction. Callers owning a wider unit of work (sale confirm)
// use this so the ledger posting commits or rolls back with their own writes;
// they must call InvalidateBalances themselves after commit.
func (s *Service) PostWithTx(ctx context.Context, tx TxRepository, input PostingInput) (Transaction, error) {
	totals, err := input.ValidateAndBalance()
	if err != nil {
		return Transaction{}, err
	}
	accounts, err := tx.ResolveActiveAccounts(ctx, input.AccountIDs())
	if err != nil {
		return Transaction{}, err
	}
	for idx, line := range input.Lines {
		if _, ok := accounts[line.AccountID]; !ok {
			return Transaction{}, &Error{
				Code:    CodeUnknownAccount,
				Message: fmt.Sprintf("line %d references unknown or inactive account %d", idx, line.AccountID),
				Meta:    map[string]any{"line": idx, "account_id": line.AccountID},
			}
		}
	}
	txn, err := tx.InsertTransaction(ctx, input, totals)
	if err != nil {
		return Transaction{}, err
	}
	if err := tx.InsertTransactionLines(ctx, txn.ID, input.Lines); err != nil {
		return Transaction{}, err
	}
	if input.SourceRef != uuid.Nil {
		if err := tx.LinkSource(ctx, input.SourceRef, txn.ID); err != nil {
			return Transaction{}, err
		}
	}
	txn.Lines = linesForTransaction(txn.ID, input.Lines, s.now())
	return txn, nil
}

// InvalidateBalances drops cached balances for the given accounts. Exposed for
// callers that post through PostWithTx inside their own transaction.
func (s *Service) InvalidateBalances(ctx context.Context, accountIDs ...int64) {
	if s.balances != nil {
		s.balances.Invalidate(ctx, accountIDs...)
	}
}

func (s *Service) afterPost(ctx context.Context, txn Transaction, input PostingInput) {
	s.InvalidateBalances(ctx, input.AccountIDs()...)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.CreatedBy,
			Action:   "transaction.post",
			Entity:   "transaction",
			EntityID: fmt.Sprintf("%d", txn.ID),
			Meta: map[string]any{
				"type":         string(txn.Type),
				"total_debit":  txn.TotalDebit.StringFixed(2),
				"total_credit": txn.TotalCredit.StringFixed(2),
				"line_count":   len(txn.Lines),
			},
			At: s.now(),
		})
	}
}

// VoidTransaction marks a posted transaction VOID. Lines are retained for the
// audit trail; voided transactions never affect derived balances.
func (s *Service) VoidTransaction(ctx context.Context, id, actorID int64, reason string) (Transaction, error) {
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != TransactionStatusPosted {
			return StateError("only posted transactions can be voided", string(current.Status))
		}
		if err := tx.UpdateTransactionStatus(ctx, id, TransactionStatusVoid); err != nil {
			return err
		}
		txn = current
		txn.Status = TransactionStatusVoid
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	ids := make([]int64, 0, len(txn.Lines))
	for _, line := range txn.Lines {
		ids = append(ids, line.AccountID)
	}
	s.InvalidateBalances(ctx, ids...)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "transaction.void",
			Entity:   "transaction",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"reason": reason},
			At:       s.now(),
		})
	}
	return txn, nil
}

// GetTransaction loads a transaction with its lines.
func (s *Service) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.GetTransactionWithLines(ctx, id)
}

// ListTransactions returns transactions matching the filter.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// ListAccounts retrieves the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// GetAccount retrieves one account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// AccountBalance derives an account balance from posted line history as of the
// optional cutoff. The result is a pure function of committed state; the cache
// only serves the unbounded case and is dropped on every post or void that
// touches the account.
func (s *Service) AccountBalance(ctx context.Context, accountID int64, asOf *time.Time) (AccountBalanceResult, error) {
	if asOf == nil && s.balances != nil {
		if cached, ok := s.balances.Get(ctx, accountID); ok {
			return cached, nil
		}
	}
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return AccountBalanceResult{}, err
	}
	totals, err := s.repo.SumAccountLines(ctx, accountID, asOf)
	if err != nil {
		return AccountBalanceResult{}, err
	}
	res := AccountBalanceResult{
		AccountID:  account.ID,
		Code:       account.Code,
		Type:       account.Type,
		NormalSide: account.Type.NormalBalance(),
		Debit:      totals.Debit,
		Credit:     totals.Credit,
		AsOf:       asOf,
	}
	if res.NormalSide == SideDebit {
		res.Balance = totals.Debit.Sub(totals.Credit)
	} else {
		res.Balance = totals.Credit.Sub(totals.Debit)
	}
	// A reader racing a concurrent post can re-cache a balance derived
	// before that commit; the cache TTL bounds how long it survives.
	if asOf == nil && s.balances != nil {
		s.balances.Set(ctx, res)
	}
	return res, nil
}

// TrialBalance aggregates posted debits and credits per account.
func (s *Service) TrialBalance(ctx context.Context, asOf *time.Time) (TrialBalance, error) {
	rows, err := s.repo.TrialBalanceRows(ctx, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{AsOf: asOf, Rows: rows}
	for _, row := range rows {
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	return tb, nil
}

func linesForTransaction(txnID int64, lines []LineInput, ts time.Time) []TransactionLine {
	out := make([]TransactionLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, TransactionLine{
			TransactionID: txnID,
			AccountID:     line.AccountID,
			Debit:         line.Debit,
			Credit:        line.Credit,
			Memo:          line.Memo,
			CreatedAt:     ts,
			UpdatedAt:     ts,
		})
	}
	return out
}
