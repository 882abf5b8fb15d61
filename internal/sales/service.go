package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts sale persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, req ListSalesRequest) ([]Sale, error)
}

// LedgerPort is the slice of the ledger service the confirm gate depends on.
type LedgerPort interface {
	PostWithTx(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput) (ledger.Transaction, error)
	InvalidateBalances(ctx context.Context, accountIDs ...int64)
}

// SequencePort issues document numbers.
type SequencePort interface {
	NextDocNumber(ctx context.Context, entity, prefix string, at time.Time) (string, error)
}

// AuditPort records sale events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for sales invoicing.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	sequences SequencePort
	audit     AuditPort
	now       func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, ledgerSvc LedgerPort, sequences SequencePort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, sequences: sequences, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateSale creates a draft sale. Drafts carry no financial effect.
func (s *Service) CreateSale(ctx context.Context, req CreateSaleRequest, createdBy int64) (Sale, error) {
	for idx, line := range req.Lines {
		if !line.Quantity.IsPositive() || line.UnitPrice.IsNegative() {
			return Sale{}, &ledger.Error{
				Code:    ledger.CodeInvalidLineShape,
				Message: fmt.Sprintf("sale line %d: quantity must be positive and unit price non-negative", idx),
				Meta:    map[string]any{"line": idx},
			}
		}
	}
	number, err := s.sequences.NextDocNumber(ctx, "sale", "INV", req.Date)
	if err != nil {
		return Sale{}, fmt.Errorf("generate sale number: %w", err)
	}
	subtotal, discount, tax, total := totalsFromLines(req.Lines)
	sale := Sale{
		Number:           number,
		CustomerID:       req.CustomerID,
		Date:             req.Date,
		DueDate:          req.DueDate,
		PaymentType:      req.PaymentType,
		Status:           SaleStatusDraft,
		Subtotal:         subtotal,
		DiscountAmount:   discount,
		TaxAmount:        tax,
		Total:            total,
		ARAccountID:      req.ARAccountID,
		RevenueAccountID: req.RevenueAccountID,
		CashAccountID:    req.CashAccountID,
		TaxAccountID:     req.TaxAccountID,
		Notes:            req.Notes,
		SourceRef:        uuid.New(),
		CreatedBy:        createdBy,
	}

	var saleID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		saleID = id
		return insertLines(ctx, tx, id, req.Lines)
	})
	if err != nil {
		return Sale{}, err
	}
	s.record(ctx, createdBy, "sale.create", saleID, map[string]any{"number": number, "total": total.StringFixed(2)})
	return s.repo.GetSale(ctx, saleID)
}

func insertLines(ctx context.Context, tx TxRepository, saleID int64, lines []CreateSaleLineReq) error {
	for _, lineReq := range lines {
		d, t, lt := CalculateLineTotals(lineReq.Quantity, lineReq.UnitPrice, lineReq.DiscountPercent, lineReq.TaxPercent)
		line := SaleLine{
			SaleID:          saleID,
			Description:     lineReq.Description,
			Quantity:        lineReq.Quantity,
			UnitPrice:       lineReq.UnitPrice,
			DiscountPercent: lineReq.DiscountPercent,
			TaxPercent:      lineReq.TaxPercent,
			DiscountAmount:  d,
			TaxAmount:       t,
			LineTotal:       lt,
		}
		if err := tx.InsertSaleLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSale updates a draft sale; confirmed and cancelled sales are immutable.
func (s *Service) UpdateSale(ctx context.Context, id int64, req UpdateSaleRequest) (Sale, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status != SaleStatusDraft {
			return ledger.StateError("only draft sales can be updated", string(sale.Status))
		}
		if req.Date != nil {
			sale.Date = *req.Date
		}
		if req.DueDate != nil {
			sale.DueDate = req.DueDate
		}
		if req.PaymentType != nil {
			sale.PaymentType = *req.PaymentType
		}
		if req.ARAccountID != nil {
			sale.ARAccountID = req.ARAccountID
		}
		if req.RevenueAccountID != nil {
			sale.RevenueAccountID = req.RevenueAccountID
		}
		if req.CashAccountID != nil {
			sale.CashAccountID = req.CashAccountID
		}
		if req.TaxAccountID != nil {
			sale.TaxAccountID = req.TaxAccountID
		}
		if req.Notes != nil {
			sale.Notes = *req.Notes
		}
		if req.Lines != nil {
			sale.Subtotal, sale.DiscountAmount, sale.TaxAmount, sale.Total = totalsFromLines(*req.Lines)
			if err := tx.DeleteSaleLines(ctx, id); err != nil {
				return err
			}
			if err := insertLines(ctx, tx, id, *req.Lines); err != nil {
				return err
			}
		}
		return tx.UpdateSale(ctx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	return s.repo.GetSale(ctx, id)
}

// ConfirmSale turns a draft sale into a posted, balanced ledger transaction.
// The posting and the status flip commit as one unit: either both happen or
// the sale stays in draft.
func (s *Service) ConfirmSale(ctx context.Context, id, actorID int64) (Sale, error) {
	var (
		confirmed Sale
		accounts  []int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status != SaleStatusDraft {
			return ledger.StateError("only draft sales can be confirmed", string(sale.Status))
		}
		input, err := s.confirmationPosting(sale, actorID)
		if err != nil {
			return err
		}
		txn, err := s.ledger.PostWithTx(ctx, tx.Ledger(), input)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkConfirmed(ctx, id, actorID, txn.ID, now); err != nil {
			return err
		}
		accounts = input.AccountIDs()
		confirmed = sale
		confirmed.Status = SaleStatusConfirmed
		confirmed.ConfirmedBy = &actorID
		confirmed.ConfirmedAt = &now
		confirmed.TransactionID = &txn.ID
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.ledger.InvalidateBalances(ctx, accounts...)
	s.record(ctx, actorID, "sale.confirm", id, map[string]any{
		"number":         confirmed.Number,
		"transaction_id": *confirmed.TransactionID,
		"total":          confirmed.Total.StringFixed(2),
	})
	return confirmed, nil
}

// confirmationPosting builds the balanced posting for a sale: debit AR (or
// Cash, for cash sales) for the total; credit revenue for the net amount and
// the tax account, when configured, for the tax portion.
func (s *Service) confirmationPosting(sale Sale, actorID int64) (ledger.PostingInput, error) {
	var missing []string
	debitAccount := sale.ARAccountID
	if sale.PaymentType == PaymentTypeCash {
		debitAccount = sale.CashAccountID
		if debitAccount == nil {
			missing = append(missing, "cash_account_id")
		}
	} else if debitAccount == nil {
		missing = append(missing, "ar_account_id")
	}
	if sale.RevenueAccountID == nil {
		missing = append(missing, "revenue_account_id")
	}
	if len(missing) > 0 {
		return ledger.PostingInput{}, &ledger.Error{
			Code:    ledger.CodeMissingRequiredAccounts,
			Message: "sale is missing required accounts for confirmation",
			Meta:    map[string]any{"missing": missing},
		}
	}

	revenueCredit := sale.Total
	lines := []ledger.LineInput{
		{AccountID: *debitAccount, Debit: sale.Total, Memo: "Sale " + sale.Number},
	}
	if sale.TaxAccountID != nil && sale.TaxAmount.IsPositive() {
		revenueCredit = sale.Total.Sub(sale.TaxAmount)
		lines = append(lines, ledger.LineInput{AccountID: *sale.TaxAccountID, Credit: sale.TaxAmount, Memo: "Tax on " + sale.Number})
	}
	lines = append(lines, ledger.LineInput{AccountID: *sale.RevenueAccountID, Credit: revenueCredit, Memo: "Revenue " + sale.Number})

	return ledger.PostingInput{
		Date:        sale.Date,
		Description: "Sale invoice " + sale.Number,
		Reference:   sale.Number,
		Type:        ledger.TransactionTypeSale,
		CustomerID:  &sale.CustomerID,
		CreatedBy:   actorID,
		SourceRef:   sale.SourceRef,
		Lines:       lines,
	}, nil
}

// CancelSale cancels a draft sale.
func (s *Service) CancelSale(ctx context.Context, id, actorID int64, reason string) (Sale, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status != SaleStatusDraft {
			return ledger.StateError("only draft sales can be cancelled", string(sale.Status))
		}
		return tx.MarkCancelled(ctx, id, actorID, s.now())
	})
	if err != nil {
		return Sale{}, err
	}
	s.record(ctx, actorID, "sale.cancel", id, map[string]any{"reason": reason})
	return s.repo.GetSale(ctx, id)
}

// GetSale retrieves one sale with lines.
func (s *Service) GetSale(ctx context.Context, id int64) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales returns sales matching the filter.
func (s *Service) ListSales(ctx context.Context, req ListSalesRequest) ([]Sale, error) {
	return s.repo.ListSales(ctx, req)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: fmt.Sprintf("%d", saleID),
		Meta:     meta,
		At:       s.now(),
	})
}
