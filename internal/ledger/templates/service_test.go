package templates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	templates map[int64]*Template
	nextID    int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{templates: make(map[int64]*Template), nextID: 1}
}

func templateFromInput(id int64, in SaveInput) Template {
	tpl := Template{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Type:        in.Type,
		Recurring:   in.Recurring,
		Frequency:   in.Frequency,
		NextRunAt:   in.NextRunAt,
		CreatedBy:   in.CreatedBy,
	}
	for _, line := range in.Lines {
		tpl.Lines = append(tpl.Lines, TemplateLine{
			TemplateID: id,
			AccountID:  line.AccountID,
			Debit:      line.Debit,
			Credit:     line.Credit,
			Memo:       line.Memo,
		})
	}
	return tpl
}

func (m *mockRepository) Save(ctx context.Context, in SaveInput) (Template, error) {
	id := m.nextID
	m.nextID++
	tpl := templateFromInput(id, in)
	m.templates[id] = &tpl
	return tpl, nil
}

func (m *mockRepository) Replace(ctx context.Context, id int64, in SaveInput) (Template, error) {
	if _, ok := m.templates[id]; !ok {
		return Template{}, ledger.NotFoundError("journal template", id)
	}
	tpl := templateFromInput(id, in)
	m.templates[id] = &tpl
	return tpl, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Template, error) {
	tpl, ok := m.templates[id]
	if !ok {
		return Template{}, ledger.NotFoundError("journal template", id)
	}
	return *tpl, nil
}

func (m *mockRepository) List(ctx context.Context) ([]Template, error) {
	var out []Template
	for _, tpl := range m.templates {
		out = append(out, *tpl)
	}
	return out, nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.templates[id]; !ok {
		return ledger.NotFoundError("journal template", id)
	}
	delete(m.templates, id)
	return nil
}

func (m *mockRepository) ListDue(ctx context.Context, now time.Time) ([]Template, error) {
	var due []Template
	for _, tpl := range m.templates {
		if tpl.Recurring && tpl.NextRunAt != nil && !tpl.NextRunAt.After(now) {
			due = append(due, *tpl)
		}
	}
	return due, nil
}

func (m *mockRepository) AdvanceNextRun(ctx context.Context, id int64, next time.Time) error {
	tpl, ok := m.templates[id]
	if !ok {
		return ledger.NotFoundError("journal template", id)
	}
	tpl.NextRunAt = &next
	return nil
}

type mockLedger struct {
	postings []ledger.PostingInput
	nextID   int64
	postErr  error
}

func (m *mockLedger) PostTransaction(ctx context.Context, input ledger.PostingInput) (ledger.Transaction, error) {
	if m.postErr != nil {
		return ledger.Transaction{}, m.postErr
	}
	totals, err := input.ValidateAndBalance()
	if err != nil {
		return ledger.Transaction{}, err
	}
	m.nextID++
	m.postings = append(m.postings, input)
	return ledger.Transaction{
		ID:          m.nextID,
		Date:        input.Date,
		Reference:   input.Reference,
		Type:        input.Type,
		Status:      ledger.TransactionStatusPosted,
		TotalDebit:  totals.Debit,
		TotalCredit: totals.Credit,
	}, nil
}

type mockAudit struct {
	logs []shared.AuditLog
}

func (m *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func newTestService() (*Service, *mockRepository, *mockLedger, *mockAudit) {
	repo := newMockRepository()
	led := &mockLedger{}
	audit := &mockAudit{}
	svc := NewService(repo, led, audit)
	svc.WithNow(func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) })
	return svc, repo, led, audit
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func rentInput() SaveInput {
	return SaveInput{
		Name:        "Monthly rent",
		Description: "Office rent accrual",
		CreatedBy:   100,
		Lines: []ledger.LineInput{
			{AccountID: 10, Debit: dec("1200.00"), Memo: "Rent expense"},
			{AccountID: 20, Credit: dec("1200.00"), Memo: "Rent payable"},
		},
	}
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateTemplate(t *testing.T) {
	svc, _, _, audit := newTestService()

	tpl, err := svc.Create(context.Background(), rentInput())
	require.NoError(t, err)
	assert.Equal(t, ledger.TransactionTypeJournal, tpl.Type)
	assert.Len(t, tpl.Lines, 2)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "template.create", audit.logs[0].Action)
}

func TestCreateTemplateRejectsUnbalancedLines(t *testing.T) {
	svc, _, _, _ := newTestService()

	in := rentInput()
	in.Lines[1].Credit = dec("1100.00")

	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrUnbalanced))
}

func TestCreateTemplateRequiresName(t *testing.T) {
	svc, _, _, _ := newTestService()

	in := rentInput()
	in.Name = ""

	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrValidationFailed))
}

func TestCreateRecurringRequiresFrequency(t *testing.T) {
	svc, _, _, _ := newTestService()

	in := rentInput()
	in.Recurring = true

	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrValidationFailed))
	assert.False(t, errors.Is(err, ledger.ErrInvalidLineShape))

	freq := FrequencyMonthly
	in.Frequency = &freq
	_, err = svc.Create(context.Background(), in)
	require.NoError(t, err)
}

func TestApplyPostsThroughLedger(t *testing.T) {
	svc, _, led, _ := newTestService()
	ctx := context.Background()

	tpl, err := svc.Create(ctx, rentInput())
	require.NoError(t, err)

	date := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	txn, err := svc.Apply(ctx, tpl.ID, ApplyInput{Date: date, ActorID: 200})
	require.NoError(t, err)

	assert.Equal(t, ledger.TransactionStatusPosted, txn.Status)
	assert.True(t, txn.TotalDebit.Equal(dec("1200.00")))

	require.Len(t, led.postings, 1)
	posting := led.postings[0]
	assert.Equal(t, date, posting.Date)
	assert.Equal(t, "Office rent accrual", posting.Description)
	assert.NotEqual(t, posting.SourceRef.String(), "00000000-0000-0000-0000-000000000000")
	require.Len(t, posting.Lines, 2)
	assert.Equal(t, "Rent expense", posting.Lines[0].Memo)
}

func TestApplyUnknownTemplate(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Apply(context.Background(), 404, ApplyInput{ActorID: 200})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestFrequencyAdvance(t *testing.T) {
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC), FrequencyWeekly.Advance(base))
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), FrequencyMonthly.Advance(base))
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), FrequencyQuarterly.Advance(base))
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC), FrequencyAnnual.Advance(base))
}

func TestRunDuePostsAndAdvances(t *testing.T) {
	svc, repo, led, _ := newTestService()
	ctx := context.Background()

	freq := FrequencyMonthly
	next := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	in := rentInput()
	in.Recurring = true
	in.Frequency = &freq
	in.NextRunAt = &next
	tpl, err := svc.Create(ctx, in)
	require.NoError(t, err)

	// A template due in the future is skipped.
	future := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	otherIn := rentInput()
	otherIn.Name = "Quarterly insurance"
	otherIn.Recurring = true
	otherIn.Frequency = &freq
	otherIn.NextRunAt = &future
	_, err = svc.Create(ctx, otherIn)
	require.NoError(t, err)

	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	applied, err := svc.RunDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Len(t, led.postings, 1)

	// The schedule advances from the due time, not from the sweep time.
	stored, err := repo.Get(ctx, tpl.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), *stored.NextRunAt)
}

func TestRunDueContinuesPastFailures(t *testing.T) {
	svc, _, led, _ := newTestService()
	ctx := context.Background()

	freq := FrequencyMonthly
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for _, name := range []string{"First", "Second"} {
		in := rentInput()
		in.Name = name
		in.Recurring = true
		in.Frequency = &freq
		in.NextRunAt = &due
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	led.postErr = errors.New("connection reset")
	applied, err := svc.RunDue(ctx, due)
	require.Error(t, err)
	assert.Equal(t, 0, applied)

	led.postErr = nil
	applied, err = svc.RunDue(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
}

func TestDeleteTemplate(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	tpl, err := svc.Create(ctx, rentInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, tpl.ID))

	_, err = svc.Get(ctx, tpl.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}
