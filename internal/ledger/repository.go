package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	ResolveActiveAccounts(ctx context.Context, ids []int64) (map[int64]Account, error)
	InsertTransaction(ctx context.Context, in PostingInput, totals Totals) (Transaction, error)
	InsertTransactionLines(ctx context.Context, txnID int64, lines []LineInput) error
	LinkSource(ctx context.Context, ref uuid.UUID, txnID int64) error
	GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status TransactionStatus) error
	MarkReconciled(ctx context.Context, txnID int64, reconciled bool) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an existing pgx transaction. Modules that post ledger
// transactions as part of their own unit of work (sale confirmation) use this
// to share a single commit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `id, code, name, type, parent_id, is_active, deleted_at, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.DeletedAt, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetAccount loads one account, including soft-deleted ones for display.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError("account", id)
		}
		return Account{}, err
	}
	return a, nil
}

// ListAccounts returns the chart of accounts ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE deleted_at IS NULL ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) ResolveActiveAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) AND is_active AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make(map[int64]Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts[a.ID] = a
	}
	return accounts, rows.Err()
}

func (r *txRepository) InsertTransaction(ctx context.Context, in PostingInput, totals Totals) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO transactions (date, description, reference, type, status, customer_id, vendor_id, created_by, total_debit, total_credit)
VALUES ($1,$2,$3,$4,'POSTED',$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		in.Date, in.Description, in.Reference, in.Type, in.CustomerID, in.VendorID, nullInt(in.CreatedBy), numeric(totals.Debit), numeric(totals.Credit))
	txn := Transaction{
		Date:        in.Date,
		Description: in.Description,
		Reference:   in.Reference,
		Type:        in.Type,
		Status:      TransactionStatusPosted,
		CustomerID:  in.CustomerID,
		VendorID:    in.VendorID,
		CreatedBy:   in.CreatedBy,
		SourceRef:   in.SourceRef,
		TotalDebit:  totals.Debit,
		TotalCredit: totals.Credit,
	}
	if err := row.Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

func (r *txRepository) InsertTransactionLines(ctx context.Context, txnID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO transaction_lines (transaction_id, account_id, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5)`, txnID, line.AccountID, numeric(line.Debit), numeric(line.Credit), line.Memo); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, ref uuid.UUID, txnID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (source_ref, transaction_id) VALUES ($1,$2)`, ref, txnID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &Error{
				Code:    CodeDuplicateReference,
				Message: "a transaction was already posted for this source reference",
				Meta:    map[string]any{"source_ref": ref.String()},
			}
		}
		return err
	}
	return nil
}

const transactionColumns = `id, date, description, reference, type, status, customer_id, vendor_id, created_by, reconciled, total_debit, total_credit, deleted_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var debit, credit decimal.Decimal
	err := row.Scan(&t.ID, &t.Date, &t.Description, &t.Reference, &t.Type, &t.Status, &t.CustomerID, &t.VendorID, &t.CreatedBy, &t.Reconciled, &debit, &credit, &t.DeletedAt, &t.CreatedAt, &t.UpdatedAt)
	t.TotalDebit = debit
	t.TotalCredit = credit
	return t, err
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error) {
	txn, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, NotFoundError("transaction", id)
		}
		return Transaction{}, err
	}
	lines, err := queryLines(ctx, r.tx, id)
	if err != nil {
		return Transaction{}, err
	}
	txn.Lines = lines
	return txn, nil
}

func (r *txRepository) UpdateTransactionStatus(ctx context.Context, id int64, status TransactionStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return NotFoundError("transaction", id)
	}
	return nil
}

func (r *txRepository) MarkReconciled(ctx context.Context, txnID int64, reconciled bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET reconciled=$2, updated_at=NOW() WHERE id=$1`, txnID, reconciled)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return NotFoundError("transaction", txnID)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, txnID int64) ([]TransactionLine, error) {
	rows, err := q.Query(ctx, `SELECT id, transaction_id, account_id, debit, credit, memo, created_at, updated_at
FROM transaction_lines WHERE transaction_id=$1 ORDER BY id ASC`, txnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []TransactionLine
	for rows.Next() {
		var line TransactionLine
		if err := rows.Scan(&line.ID, &line.TransactionID, &line.AccountID, &line.Debit, &line.Credit, &line.Memo, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// GetTransactionWithLines loads a transaction and its lines outside any tx.
func (r *Repository) GetTransactionWithLines(ctx context.Context, id int64) (Transaction, error) {
	txn, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, NotFoundError("transaction", id)
		}
		return Transaction{}, err
	}
	lines, err := queryLines(ctx, r.pool, id)
	if err != nil {
		return Transaction{}, err
	}
	txn.Lines = lines
	return txn, nil
}

// ListTransactions returns transactions matching the filter, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE deleted_at IS NULL`
	args := []any{}
	idx := 1
	if filter.Type != nil {
		query += fmt.Sprintf(` AND type=$%d`, idx)
		args = append(args, *filter.Type)
		idx++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(` AND status=$%d`, idx)
		args = append(args, *filter.Status)
		idx++
	}
	if filter.DateFrom != nil {
		query += fmt.Sprintf(` AND date >= $%d`, idx)
		args = append(args, *filter.DateFrom)
		idx++
	}
	if filter.DateTo != nil {
		query += fmt.Sprintf(` AND date <= $%d`, idx)
		args = append(args, *filter.DateTo)
		idx++
	}
	query += ` ORDER BY date DESC, id DESC`
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// SumAccountLines aggregates debit and credit amounts over posted,
// non-deleted transactions for one account up to the optional cutoff.
func (r *Repository) SumAccountLines(ctx context.Context, accountID int64, asOf *time.Time) (Totals, error) {
	var debit, credit decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM transaction_lines l
JOIN transactions t ON t.id = l.transaction_id
WHERE l.account_id = $1
  AND t.status = 'POSTED'
  AND t.deleted_at IS NULL
  AND ($2::timestamptz IS NULL OR t.date <= $2)`, accountID, asOf).Scan(&debit, &credit)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Debit: debit, Credit: credit}, nil
}

// TrialBalanceRows aggregates posted lines per account.
func (r *Repository) TrialBalanceRows(ctx context.Context, asOf *time.Time) ([]TrialBalanceRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.type, COALESCE(SUM(pl.debit), 0), COALESCE(SUM(pl.credit), 0)
FROM accounts a
LEFT JOIN (
	SELECT l.account_id, l.debit, l.credit
	FROM transaction_lines l
	JOIN transactions t ON t.id = l.transaction_id
	WHERE t.status = 'POSTED' AND t.deleted_at IS NULL AND ($1::timestamptz IS NULL OR t.date <= $1)
) pl ON pl.account_id = a.id
WHERE a.deleted_at IS NULL
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		if err := rows.Scan(&row.AccountID, &row.Code, &row.Name, &row.Type, &row.Debit, &row.Credit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func numeric(v decimal.Decimal) string {
	return v.StringFixed(2)
}
