package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Ledger returns a ledger
// transaction repository bound to the same database transaction, so a sale
// confirmation and its posting commit together.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertSaleLine(ctx context.Context, line SaleLine) error
	DeleteSaleLines(ctx context.Context, saleID int64) error
	UpdateSale(ctx context.Context, sale Sale) error
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	MarkConfirmed(ctx context.Context, id, actorID, txnID int64, at time.Time) error
	MarkCancelled(ctx context.Context, id, actorID int64, at time.Time) error
	Ledger() ledger.TxRepository
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *txRepo) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

const saleColumns = `id, number, customer_id, date, due_date, payment_type, status, subtotal, discount_amount, tax_amount, total,
ar_account_id, revenue_account_id, cash_account_id, tax_account_id, notes, source_ref, created_by,
confirmed_by, confirmed_at, cancelled_by, cancelled_at, transaction_id, created_at, updated_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.Number, &s.CustomerID, &s.Date, &s.DueDate, &s.PaymentType, &s.Status,
		&s.Subtotal, &s.DiscountAmount, &s.TaxAmount, &s.Total,
		&s.ARAccountID, &s.RevenueAccountID, &s.CashAccountID, &s.TaxAccountID, &s.Notes, &s.SourceRef, &s.CreatedBy,
		&s.ConfirmedBy, &s.ConfirmedAt, &s.CancelledBy, &s.CancelledAt, &s.TransactionID, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (number, customer_id, date, due_date, payment_type, status, subtotal, discount_amount, tax_amount, total,
ar_account_id, revenue_account_id, cash_account_id, tax_account_id, notes, source_ref, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING id`,
		sale.Number, sale.CustomerID, sale.Date, sale.DueDate, sale.PaymentType, sale.Status,
		sale.Subtotal.StringFixed(2), sale.DiscountAmount.StringFixed(2), sale.TaxAmount.StringFixed(2), sale.Total.StringFixed(2),
		sale.ARAccountID, sale.RevenueAccountID, sale.CashAccountID, sale.TaxAccountID, sale.Notes, sale.SourceRef, sale.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepo) InsertSaleLine(ctx context.Context, line SaleLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sale_lines (sale_id, description, quantity, unit_price, discount_percent, tax_percent, discount_amount, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		line.SaleID, line.Description, line.Quantity, line.UnitPrice, line.DiscountPercent, line.TaxPercent,
		line.DiscountAmount.StringFixed(2), line.TaxAmount.StringFixed(2), line.LineTotal.StringFixed(2))
	return err
}

func (r *txRepo) DeleteSaleLines(ctx context.Context, saleID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM sale_lines WHERE sale_id=$1`, saleID)
	return err
}

func (r *txRepo) UpdateSale(ctx context.Context, sale Sale) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE sales SET date=$2, due_date=$3, payment_type=$4, subtotal=$5, discount_amount=$6, tax_amount=$7, total=$8,
ar_account_id=$9, revenue_account_id=$10, cash_account_id=$11, tax_account_id=$12, notes=$13, updated_at=NOW() WHERE id=$1`,
		sale.ID, sale.Date, sale.DueDate, sale.PaymentType,
		sale.Subtotal.StringFixed(2), sale.DiscountAmount.StringFixed(2), sale.TaxAmount.StringFixed(2), sale.Total.StringFixed(2),
		sale.ARAccountID, sale.RevenueAccountID, sale.CashAccountID, sale.TaxAccountID, sale.Notes)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.NotFoundError("sale", sale.ID)
	}
	return nil
}

func (r *txRepo) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ledger.NotFoundError("sale", id)
		}
		return Sale{}, err
	}
	return sale, nil
}

func (r *txRepo) MarkConfirmed(ctx context.Context, id, actorID, txnID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE sales SET status='CONFIRMED', confirmed_by=$2, confirmed_at=$3, transaction_id=$4, updated_at=NOW() WHERE id=$1`,
		id, actorID, at, txnID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.NotFoundError("sale", id)
	}
	return nil
}

func (r *txRepo) MarkCancelled(ctx context.Context, id, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE sales SET status='CANCELLED', cancelled_by=$2, cancelled_at=$3, updated_at=NOW() WHERE id=$1`, id, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.NotFoundError("sale", id)
	}
	return nil
}

// GetSale loads one sale with its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ledger.NotFoundError("sale", id)
		}
		return Sale{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, description, quantity, unit_price, discount_percent, tax_percent, discount_amount, tax_amount, line_total, created_at, updated_at
FROM sale_lines WHERE sale_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.Description, &line.Quantity, &line.UnitPrice,
			&line.DiscountPercent, &line.TaxPercent, &line.DiscountAmount, &line.TaxAmount, &line.LineTotal,
			&line.CreatedAt, &line.UpdatedAt); err != nil {
			return Sale{}, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	return sale, rows.Err()
}

// ListSales returns sales matching the filter, newest first.
func (r *Repository) ListSales(ctx context.Context, req ListSalesRequest) ([]Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE 1=1`
	args := []any{}
	idx := 1
	if req.CustomerID != nil {
		query += fmt.Sprintf(` AND customer_id=$%d`, idx)
		args = append(args, *req.CustomerID)
		idx++
	}
	if req.Status != nil {
		query += fmt.Sprintf(` AND status=$%d`, idx)
		args = append(args, *req.Status)
		idx++
	}
	if req.DateFrom != nil {
		query += fmt.Sprintf(` AND date >= $%d`, idx)
		args = append(args, *req.DateFrom)
		idx++
	}
	if req.DateTo != nil {
		query += fmt.Sprintf(` AND date <= $%d`, idx)
		args = append(args, *req.DateTo)
		idx++
	}
	query += ` ORDER BY date DESC, id DESC`
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}
