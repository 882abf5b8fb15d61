package recon

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

// Repository provides PostgreSQL backed persistence for reconciliations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional reconciliation operations.
type TxRepository interface {
	InsertReconciliation(ctx context.Context, rec BankReconciliation) (int64, error)
	UpdateReconciliation(ctx context.Context, rec BankReconciliation) error
	GetReconciliationForUpdate(ctx context.Context, id int64) (BankReconciliation, error)
	InsertItem(ctx context.Context, item ReconciliationItem) error
	UpdateItemStatus(ctx context.Context, reconciliationID, itemID int64, status ItemStatus, transactionID *int64) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	MarkCompleted(ctx context.Context, id, actorID int64, at time.Time) error
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

const reconciliationColumns = `id, account_id, statement_date, statement_balance, book_balance, difference, status, notes,
created_by, completed_by, completed_at, created_at, updated_at`

func scanReconciliation(row pgx.Row) (BankReconciliation, error) {
	var rec BankReconciliation
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.StatementDate, &rec.StatementBalance, &rec.BookBalance,
		&rec.Difference, &rec.Status, &rec.Notes, &rec.CreatedBy, &rec.CompletedBy, &rec.CompletedAt,
		&rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q querier, reconciliationID int64) ([]ReconciliationItem, error) {
	rows, err := q.Query(ctx, `SELECT id, reconciliation_id, date, description, amount, side, status, matched_transaction_id, notes, created_at, updated_at
FROM reconciliation_items WHERE reconciliation_id=$1 ORDER BY date ASC, id ASC`, reconciliationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReconciliationItem
	for rows.Next() {
		var item ReconciliationItem
		if err := rows.Scan(&item.ID, &item.ReconciliationID, &item.Date, &item.Description, &item.Amount,
			&item.Side, &item.Status, &item.MatchedTransactionID, &item.Notes, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepo) InsertReconciliation(ctx context.Context, rec BankReconciliation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO bank_reconciliations (account_id, statement_date, statement_balance, book_balance, difference, status, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		rec.AccountID, rec.StatementDate, rec.StatementBalance.StringFixed(2), rec.BookBalance.StringFixed(2),
		rec.Difference.StringFixed(2), rec.Status, rec.Notes, rec.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateReconciliation(ctx context.Context, rec BankReconciliation) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bank_reconciliations SET statement_date=$2, statement_balance=$3, book_balance=$4, difference=$5, notes=$6, updated_at=NOW() WHERE id=$1`,
		rec.ID, rec.StatementDate, rec.StatementBalance.StringFixed(2), rec.BookBalance.StringFixed(2),
		rec.Difference.StringFixed(2), rec.Notes)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.NotFoundError("reconciliation", rec.ID)
	}
	return nil
}

func (r *txRepo) GetReconciliationForUpdate(ctx context.Context, id int64) (BankReconciliation, error) {
	rec, err := scanReconciliation(r.tx.QueryRow(ctx, `SELECT `+reconciliationColumns+` FROM bank_reconciliations WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankReconciliation{}, ledger.NotFoundError("reconciliation", id)
		}
		return BankReconciliation{}, err
	}
	rec.Items, err = queryItems(ctx, r.tx, id)
	return rec, err
}

func (r *txRepo) InsertItem(ctx context.Context, item ReconciliationItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO reconciliation_items (reconciliation_id, date, description, amount, side, status, matched_transaction_id, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ReconciliationID, item.Date, item.Description, item.Amount.StringFixed(2), item.Side,
		item.Status, item.MatchedTransactionID, item.Notes)
	return err
}

func (r *txRepo) UpdateItemStatus(ctx context.Context, reconciliationID, itemID int64, status ItemStatus, transactionID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE reconciliation_items SET status=$3, matched_transaction_id=$4, updated_at=NOW()
WHERE id=$2 AND reconciliation_id=$1`, reconciliationID, itemID, status, transactionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.NotFoundError("reconciliation item", itemID)
	}
	return nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_reconciliations SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	return err
}

func (r *txRepo) MarkCompleted(ctx context.Context, id, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bank_reconciliations SET status='COMPLETED', completed_by=$2, completed_at=$3, updated_at=NOW() WHERE id=$1`,
		id, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.NotFoundError("reconciliation", id)
	}
	return nil
}

// GetReconciliation loads one reconciliation with items.
func (r *Repository) GetReconciliation(ctx context.Context, id int64) (BankReconciliation, error) {
	rec, err := scanReconciliation(r.pool.QueryRow(ctx, `SELECT `+reconciliationColumns+` FROM bank_reconciliations WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankReconciliation{}, ledger.NotFoundError("reconciliation", id)
		}
		return BankReconciliation{}, err
	}
	rec.Items, err = queryItems(ctx, r.pool, id)
	return rec, err
}

// ListReconciliations returns reconciliations matching the filter, newest first.
func (r *Repository) ListReconciliations(ctx context.Context, req ListRequest) ([]BankReconciliation, error) {
	query := `SELECT ` + reconciliationColumns + ` FROM bank_reconciliations WHERE 1=1`
	args := []any{}
	idx := 1
	if req.AccountID != nil {
		query += fmt.Sprintf(` AND account_id=$%d`, idx)
		args = append(args, *req.AccountID)
		idx++
	}
	if req.Status != nil {
		query += fmt.Sprintf(` AND status=$%d`, idx)
		args = append(args, *req.Status)
		idx++
	}
	query += ` ORDER BY statement_date DESC, id DESC`
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
	var recs []BankReconciliation
	for rows.Next() {
		rec, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
