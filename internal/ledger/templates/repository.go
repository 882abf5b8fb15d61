package templates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Repository persists templates in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const templateColumns = `id, name, description, type, recurring, frequency, next_run_at, created_by, created_at, updated_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var tpl Template
	var freq *string
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.Type, &tpl.Recurring, &freq, &tpl.NextRunAt, &tpl.CreatedBy, &tpl.CreatedAt, &tpl.UpdatedAt)
	if freq != nil {
		f := Frequency(*freq)
		tpl.Frequency = &f
	}
	return tpl, err
}

// Save inserts a template header plus its lines atomically.
func (r *Repository) Save(ctx context.Context, in SaveInput) (Template, error) {
	var tpl Template
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO journal_templates (name, description, type, recurring, frequency, next_run_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+templateColumns,
			in.Name, in.Description, in.Type, in.Recurring, freqValue(in.Frequency), in.NextRunAt, in.CreatedBy)
		var err error
		tpl, err = scanTemplate(row)
		if err != nil {
			return err
		}
		return insertLines(ctx, tx, tpl.ID, in)
	})
	if err != nil {
		return Template{}, err
	}
	return r.Get(ctx, tpl.ID)
}

// Replace overwrites the header and swaps all lines atomically.
func (r *Repository) Replace(ctx context.Context, id int64, in SaveInput) (Template, error) {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `UPDATE journal_templates SET name=$2, description=$3, type=$4, recurring=$5, frequency=$6, next_run_at=$7, updated_at=NOW() WHERE id=$1`,
			id, in.Name, in.Description, in.Type, in.Recurring, freqValue(in.Frequency), in.NextRunAt)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ledger.NotFoundError("journal_template", id)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM journal_template_lines WHERE template_id=$1`, id); err != nil {
			return err
		}
		return insertLines(ctx, tx, id, in)
	})
	if err != nil {
		return Template{}, err
	}
	return r.Get(ctx, id)
}

func insertLines(ctx context.Context, tx pgx.Tx, templateID int64, in SaveInput) error {
	for _, line := range in.Lines {
		if _, err := tx.Exec(ctx, `INSERT INTO journal_template_lines (template_id, account_id, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5)`, templateID, line.AccountID, line.Debit.StringFixed(2), line.Credit.StringFixed(2), line.Memo); err != nil {
			return err
		}
	}
	return nil
}

// Get loads one template with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Template, error) {
	tpl, err := scanTemplate(r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM journal_templates WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, ledger.NotFoundError("journal_template", id)
		}
		return Template{}, err
	}
	lines, err := r.lines(ctx, id)
	if err != nil {
		return Template{}, err
	}
	tpl.Lines = lines
	return tpl, nil
}

func (r *Repository) lines(ctx context.Context, templateID int64) ([]TemplateLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, template_id, account_id, debit, credit, memo FROM journal_template_lines WHERE template_id=$1 ORDER BY id ASC`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []TemplateLine
	for rows.Next() {
		var line TemplateLine
		if err := rows.Scan(&line.ID, &line.TemplateID, &line.AccountID, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// List returns all templates with their lines.
func (r *Repository) List(ctx context.Context) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM journal_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		lines, err := r.lines(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

// Delete removes a template and its lines (cascade).
func (r *Repository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM journal_templates WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.NotFoundError("journal_template", id)
	}
	return nil
}

// ListDue returns recurring templates whose next run is at or before now.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM journal_templates WHERE recurring AND next_run_at IS NOT NULL AND next_run_at <= $1 ORDER BY next_run_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		lines, err := r.lines(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

// AdvanceNextRun moves a recurring template's schedule forward.
func (r *Repository) AdvanceNextRun(ctx context.Context, id int64, next time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE journal_templates SET next_run_at=$2, updated_at=NOW() WHERE id=$1`, id, next)
	return err
}

func freqValue(f *Frequency) any {
	if f == nil {
		return nil
	}
	return string(*f)
}
