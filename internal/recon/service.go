package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts reconciliation persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReconciliation(ctx context.Context, id int64) (BankReconciliation, error)
	ListReconciliations(ctx context.Context, req ListRequest) ([]BankReconciliation, error)
}

// LedgerPort is the slice of the ledger service reconciliation depends on:
// account lookup for the bank-account precondition and live book balances.
type LedgerPort interface {
	GetAccount(ctx context.Context, id int64) (ledger.Account, error)
	AccountBalance(ctx context.Context, accountID int64, asOf *time.Time) (ledger.AccountBalanceResult, error)
}

// AuditPort records reconciliation events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the bank reconciliation workflow.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs a reconciliation service.
func NewService(repo RepositoryPort, ledgerSvc LedgerPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create starts a reconciliation. The account must be an active asset account,
// and the book balance is snapshotted from the ledger as of the statement date.
func (s *Service) Create(ctx context.Context, req CreateRequest, createdBy int64) (BankReconciliation, error) {
	account, err := s.ledger.GetAccount(ctx, req.AccountID)
	if err != nil {
		return BankReconciliation{}, err
	}
	if account.Type != ledger.AccountTypeAsset || !account.IsActive {
		return BankReconciliation{}, &ledger.Error{
			Code:    ledger.CodeValidationFailed,
			Message: "reconciliation requires an active bank or cash asset account",
			Meta:    map[string]any{"account_id": account.ID, "type": string(account.Type)},
		}
	}
	book, err := s.bookBalance(ctx, req.AccountID, req.StatementDate)
	if err != nil {
		return BankReconciliation{}, err
	}
	rec := BankReconciliation{
		AccountID:        req.AccountID,
		StatementDate:    req.StatementDate,
		StatementBalance: req.StatementBalance,
		BookBalance:      book,
		Difference:       req.StatementBalance.Sub(book),
		Status:           StatusPending,
		Notes:            req.Notes,
		CreatedBy:        createdBy,
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err = tx.InsertReconciliation(ctx, rec)
		return err
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	s.record(ctx, createdBy, "reconciliation.create", id, map[string]any{
		"account_id": req.AccountID,
		"difference": rec.Difference.StringFixed(2),
	})
	return s.repo.GetReconciliation(ctx, id)
}

// Update adjusts statement figures on an open reconciliation and refreshes
// the book balance and difference from the ledger.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (BankReconciliation, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status == StatusCompleted {
			return ledger.StateError("completed reconciliations are immutable", string(rec.Status))
		}
		if req.StatementDate != nil {
			rec.StatementDate = *req.StatementDate
		}
		if req.StatementBalance != nil {
			rec.StatementBalance = *req.StatementBalance
		}
		if req.Notes != nil {
			rec.Notes = *req.Notes
		}
		book, err := s.bookBalance(ctx, rec.AccountID, rec.StatementDate)
		if err != nil {
			return err
		}
		rec.BookBalance = book
		rec.Difference = rec.StatementBalance.Sub(book)
		return tx.UpdateReconciliation(ctx, rec)
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	return s.repo.GetReconciliation(ctx, id)
}

// AddItem attaches a statement line to an open reconciliation.
func (s *Service) AddItem(ctx context.Context, reconciliationID int64, req AddItemRequest) (BankReconciliation, error) {
	if !req.Amount.IsPositive() {
		return BankReconciliation{}, &ledger.Error{
			Code:    ledger.CodeValidationFailed,
			Message: "item amount must be positive",
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, reconciliationID)
		if err != nil {
			return err
		}
		if rec.Status == StatusCompleted {
			return ledger.StateError("completed reconciliations are immutable", string(rec.Status))
		}
		item := ReconciliationItem{
			ReconciliationID: reconciliationID,
			Date:             req.Date,
			Description:      req.Description,
			Amount:           req.Amount,
			Side:             req.Side,
			Status:           ItemStatusPending,
			Notes:            req.Notes,
		}
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	return s.repo.GetReconciliation(ctx, reconciliationID)
}

// MatchItem resolves an item against a posted ledger transaction.
func (s *Service) MatchItem(ctx context.Context, reconciliationID, itemID, transactionID int64) (BankReconciliation, error) {
	return s.resolveItem(ctx, reconciliationID, itemID, ItemStatusMatched, &transactionID)
}

// ClearItem resolves an item without a matching transaction, for movements
// like bank fees or interest that have no book entry yet.
func (s *Service) ClearItem(ctx context.Context, reconciliationID, itemID int64) (BankReconciliation, error) {
	return s.resolveItem(ctx, reconciliationID, itemID, ItemStatusCleared, nil)
}

func (s *Service) resolveItem(ctx context.Context, reconciliationID, itemID int64, status ItemStatus, transactionID *int64) (BankReconciliation, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, reconciliationID)
		if err != nil {
			return err
		}
		if rec.Status == StatusCompleted {
			return ledger.StateError("completed reconciliations are immutable", string(rec.Status))
		}
		if err := tx.UpdateItemStatus(ctx, reconciliationID, itemID, status, transactionID); err != nil {
			return err
		}
		// Resolving the first item moves the reconciliation out of pending.
		if rec.Status == StatusPending {
			return tx.UpdateStatus(ctx, reconciliationID, StatusInProgress)
		}
		return nil
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	return s.repo.GetReconciliation(ctx, reconciliationID)
}

// Complete closes the reconciliation. Every item must be matched or cleared;
// any pending item blocks completion and the error reports how many remain.
func (s *Service) Complete(ctx context.Context, id, actorID int64) (BankReconciliation, error) {
	var itemCount int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status == StatusCompleted {
			return ledger.StateError("reconciliation is already completed", string(rec.Status))
		}
		if pending := rec.PendingItems(); pending > 0 {
			return &ledger.Error{
				Code:    ledger.CodeItemsPending,
				Message: fmt.Sprintf("%d reconciliation items are still pending", pending),
				Meta:    map[string]any{"pending_count": pending},
			}
		}
		itemCount = len(rec.Items)
		return tx.MarkCompleted(ctx, id, actorID, s.now())
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	s.record(ctx, actorID, "reconciliation.complete", id, map[string]any{"item_count": itemCount})
	return s.repo.GetReconciliation(ctx, id)
}

// Get retrieves one reconciliation with items.
func (s *Service) Get(ctx context.Context, id int64) (BankReconciliation, error) {
	return s.repo.GetReconciliation(ctx, id)
}

// List returns reconciliations matching the filter.
func (s *Service) List(ctx context.Context, req ListRequest) ([]BankReconciliation, error) {
	return s.repo.ListReconciliations(ctx, req)
}

func (s *Service) bookBalance(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	res, err := s.ledger.AccountBalance(ctx, accountID, &asOf)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return res.Balance, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "reconciliation",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
