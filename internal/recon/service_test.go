package recon

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
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	recs       map[int64]*BankReconciliation
	items      map[int64][]ReconciliationItem
	nextRecID  int64
	nextItemID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		recs:       make(map[int64]*BankReconciliation),
		items:      make(map[int64][]ReconciliationItem),
		nextRecID:  1,
		nextItemID: 1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) GetReconciliation(ctx context.Context, id int64) (BankReconciliation, error) {
	rec, ok := m.recs[id]
	if !ok {
		return BankReconciliation{}, ledger.NotFoundError("reconciliation", id)
	}
	out := *rec
	out.Items = m.items[id]
	return out, nil
}

func (m *mockRepository) ListReconciliations(ctx context.Context, req ListRequest) ([]BankReconciliation, error) {
	var result []BankReconciliation
	for _, rec := range m.recs {
		if req.AccountID != nil && rec.AccountID != *req.AccountID {
			continue
		}
		if req.Status != nil && rec.Status != *req.Status {
			continue
		}
		result = append(result, *rec)
	}
	return result, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) InsertReconciliation(ctx context.Context, rec BankReconciliation) (int64, error) {
	id := t.mock.nextRecID
	t.mock.nextRecID++
	rec.ID = id
	t.mock.recs[id] = &rec
	return id, nil
}

func (t *mockTxRepo) UpdateReconciliation(ctx context.Context, rec BankReconciliation) error {
	if _, ok := t.mock.recs[rec.ID]; !ok {
		return ledger.NotFoundError("reconciliation", rec.ID)
	}
	rec.Items = nil
	t.mock.recs[rec.ID] = &rec
	return nil
}

func (t *mockTxRepo) GetReconciliationForUpdate(ctx context.Context, id int64) (BankReconciliation, error) {
	return t.mock.GetReconciliation(ctx, id)
}

func (t *mockTxRepo) InsertItem(ctx context.Context, item ReconciliationItem) error {
	item.ID = t.mock.nextItemID
	t.mock.nextItemID++
	t.mock.items[item.ReconciliationID] = append(t.mock.items[item.ReconciliationID], item)
	return nil
}

func (t *mockTxRepo) UpdateItemStatus(ctx context.Context, reconciliationID, itemID int64, status ItemStatus, transactionID *int64) error {
	items := t.mock.items[reconciliationID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].Status = status
			items[i].MatchedTransactionID = transactionID
			return nil
		}
	}
	return ledger.NotFoundError("reconciliation item", itemID)
}

func (t *mockTxRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	rec, ok := t.mock.recs[id]
	if !ok {
		return ledger.NotFoundError("reconciliation", id)
	}
	rec.Status = status
	return nil
}

func (t *mockTxRepo) MarkCompleted(ctx context.Context, id, actorID int64, at time.Time) error {
	rec, ok := t.mock.recs[id]
	if !ok {
		return ledger.NotFoundError("reconciliation", id)
	}
	rec.Status = StatusCompleted
	rec.CompletedBy = &actorID
	rec.CompletedAt = &at
	return nil
}

// ============================================================================
// MOCK LEDGER AND AUDIT
// ============================================================================

type mockLedger struct {
	accounts map[int64]ledger.Account
	balances map[int64]decimal.Decimal
}

func (m *mockLedger) GetAccount(ctx context.Context, id int64) (ledger.Account, error) {
	account, ok := m.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.NotFoundError("account", id)
	}
	return account, nil
}

func (m *mockLedger) AccountBalance(ctx context.Context, accountID int64, asOf *time.Time) (ledger.AccountBalanceResult, error) {
	return ledger.AccountBalanceResult{
		AccountID: accountID,
		Balance:   m.balances[accountID],
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
	led := &mockLedger{
		accounts: map[int64]ledger.Account{
			1: {ID: 1, Code: "1010", Name: "Bank", Type: ledger.AccountTypeAsset, IsActive: true},
			2: {ID: 2, Code: "4000", Name: "Revenue", Type: ledger.AccountTypeRevenue, IsActive: true},
		},
		balances: map[int64]decimal.Decimal{1: dec("950.00")},
	}
	audit := &mockAudit{}
	svc := NewService(repo, led, audit)
	svc.WithNow(func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) })
	return svc, repo, led, audit
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func createTestReconciliation(t *testing.T, svc *Service) BankReconciliation {
	t.Helper()
	rec, err := svc.Create(context.Background(), CreateRequest{
		AccountID:        1,
		StatementDate:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		StatementBalance: dec("1000.00"),
	}, 100)
	require.NoError(t, err)
	return rec
}

func addTestItem(t *testing.T, svc *Service, recID int64, desc, amount string) BankReconciliation {
	t.Helper()
	rec, err := svc.AddItem(context.Background(), recID, AddItemRequest{
		Date:        time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Amount:      dec(amount),
		Side:        ItemSideCredit,
	})
	require.NoError(t, err)
	return rec
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateReconciliationSnapshotsDifference(t *testing.T) {
	svc, _, _, audit := newTestService()

	rec := createTestReconciliation(t, svc)

	assert.Equal(t, StatusPending, rec.Status)
	assert.True(t, rec.BookBalance.Equal(dec("950.00")))
	// difference = statement - book
	assert.True(t, rec.Difference.Equal(dec("50.00")), "difference %s", rec.Difference)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "reconciliation.create", audit.logs[0].Action)
}

func TestCreateReconciliationRejectsNonAssetAccount(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateRequest{
		AccountID:        2,
		StatementDate:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		StatementBalance: dec("1000.00"),
	}, 100)
	require.Error(t, err)

	var coded *ledger.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ledger.CodeValidationFailed, coded.Code)
}

func TestCreateReconciliationUnknownAccount(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateRequest{
		AccountID:        99,
		StatementDate:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		StatementBalance: dec("1000.00"),
	}, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestUpdateRefreshesBookBalance(t *testing.T) {
	svc, _, led, _ := newTestService()
	ctx := context.Background()

	rec := createTestReconciliation(t, svc)
	led.balances[1] = dec("1000.00")

	balance := dec("1000.00")
	updated, err := svc.Update(ctx, rec.ID, UpdateRequest{StatementBalance: &balance})
	require.NoError(t, err)
	assert.True(t, updated.BookBalance.Equal(dec("1000.00")))
	assert.True(t, updated.Difference.IsZero(), "difference %s", updated.Difference)
}

func TestResolvingFirstItemAdvancesStatus(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	rec := createTestReconciliation(t, svc)
	rec = addTestItem(t, svc, rec.ID, "Deposit", "50.00")
	require.Equal(t, StatusPending, rec.Status)

	rec, err := svc.ClearItem(ctx, rec.ID, rec.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, ItemStatusCleared, rec.Items[0].Status)
}

func TestMatchItemLinksTransaction(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	rec := createTestReconciliation(t, svc)
	rec = addTestItem(t, svc, rec.ID, "Customer payment", "50.00")

	rec, err := svc.MatchItem(ctx, rec.ID, rec.Items[0].ID, 777)
	require.NoError(t, err)
	assert.Equal(t, ItemStatusMatched, rec.Items[0].Status)
	require.NotNil(t, rec.Items[0].MatchedTransactionID)
	assert.Equal(t, int64(777), *rec.Items[0].MatchedTransactionID)
}

func TestCompleteBlockedByPendingItems(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	rec := createTestReconciliation(t, svc)
	rec = addTestItem(t, svc, rec.ID, "Deposit", "50.00")
	rec = addTestItem(t, svc, rec.ID, "Fee", "5.00")
	rec = addTestItem(t, svc, rec.ID, "Interest", "1.00")

	_, err := svc.MatchItem(ctx, rec.ID, rec.Items[0].ID, 777)
	require.NoError(t, err)
	_, err = svc.ClearItem(ctx, rec.ID, rec.Items[1].ID)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, rec.ID, 200)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrItemsPending))

	var coded *ledger.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, 1, coded.Meta["pending_count"])
}

func TestCompleteAfterAllItemsResolved(t *testing.T) {
	svc, _, _, audit := newTestService()
	ctx := context.Background()

	rec := createTestReconciliation(t, svc)
	rec = addTestItem(t, svc, rec.ID, "Deposit", "50.00")
	rec = addTestItem(t, svc, rec.ID, "Fee", "5.00")
	rec = addTestItem(t, svc, rec.ID, "Interest", "1.00")

	_, err := svc.MatchItem(ctx, rec.ID, rec.Items[0].ID, 777)
	require.NoError(t, err)
	_, err = svc.ClearItem(ctx, rec.ID, rec.Items[1].ID)
	require.NoError(t, err)
	_, err = svc.ClearItem(ctx, rec.ID, rec.Items[2].ID)
	require.NoError(t, err)

	done, err := svc.Complete(ctx, rec.ID, 200)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.CompletedBy)
	assert.Equal(t, int64(200), *done.CompletedBy)

	last := audit.logs[len(audit.logs)-1]
	assert.Equal(t, "reconciliation.complete", last.Action)
	assert.Equal(t, 3, last.Meta["item_count"])
}

func TestCompleteTwiceRejected(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	rec := createTestReconciliation(t, svc)

	_, err := svc.Complete(ctx, rec.ID, 200)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, rec.ID, 200)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInvalidStateTransition))
}

func TestCompletedReconciliationIsImmutable(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	rec := createTestReconciliation(t, svc)
	_, err := svc.Complete(ctx, rec.ID, 200)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, rec.ID, AddItemRequest{
		Date:        time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		Description: "Late item",
		Amount:      dec("10.00"),
		Side:        ItemSideDebit,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInvalidStateTransition))

	notes := "edit"
	_, err = svc.Update(ctx, rec.ID, UpdateRequest{Notes: &notes})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInvalidStateTransition))
}
