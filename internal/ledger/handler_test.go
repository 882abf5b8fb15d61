package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	svc, _, _, _ := newTestService()
	handler := NewHandler(slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil)), svc)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, svc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "100")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func postBody(amount string) map[string]any {
	return map[string]any{
		"date":        "2026-01-15T00:00:00Z",
		"description": "Office supplies",
		"type":        "JOURNAL",
		"lines": []map[string]any{
			{"account_id": 3, "debit": "100.00"},
			{"account_id": 1, "credit": amount},
		},
	}
}

func TestHandlerPostTransaction(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/transactions", postBody("100.00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID          int64  `json:"id"`
		Status      string `json:"status"`
		TotalDebit  string `json:"total_debit"`
		TotalCredit string `json:"total_credit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "POSTED", resp.Status)
	assert.Equal(t, "100.00", resp.TotalDebit)
	assert.Equal(t, "100.00", resp.TotalCredit)
}

func TestHandlerUnbalancedMapsTo400(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/transactions", postBody("99.00"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "UNBALANCED", body.Code)
	assert.Equal(t, "100.00", body.Meta["total_debit"])
	assert.Equal(t, "99.00", body.Meta["total_credit"])
}

func TestHandlerUnknownAccountMapsTo400(t *testing.T) {
	r, _ := newTestRouter(t)

	payload := postBody("100.00")
	payload["lines"] = []map[string]any{
		{"account_id": 3, "debit": "100.00"},
		{"account_id": 99, "credit": "100.00"},
	}
	rec := doJSON(t, r, http.MethodPost, "/transactions", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_ACCOUNT", decodeError(t, rec).Code)
}

func TestHandlerNotFoundMapsTo404(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/transactions/4242", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestHandlerDuplicateReferenceMapsTo409(t *testing.T) {
	r, _ := newTestRouter(t)

	payload := postBody("100.00")
	payload["source_ref"] = "7f9c24e8-3b12-4a61-9e2f-8d5c16a07b3a"

	rec := doJSON(t, r, http.MethodPost, "/transactions", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, r, http.MethodPost, "/transactions", payload)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_REFERENCE", decodeError(t, rec).Code)
}

func TestHandlerVoidStateMapsTo400(t *testing.T) {
	r, svc := newTestRouter(t)

	txn, err := svc.PostTransaction(context.Background(), simplePosting(1, 2, "100.00"))
	require.NoError(t, err)

	path := fmt.Sprintf("/transactions/%d/void", txn.ID)
	rec := doJSON(t, r, http.MethodPost, path, map[string]any{"reason": "dupe"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, r, http.MethodPost, path, map[string]any{"reason": "again"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decodeError(t, rec).Code)
}

func TestHandlerValidationFailure(t *testing.T) {
	r, _ := newTestRouter(t)

	// Missing required description and type.
	rec := doJSON(t, r, http.MethodPost, "/transactions", map[string]any{
		"date": "2026-01-15T00:00:00Z",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, rec).Code)
}

func TestHandlerAccountBalance(t *testing.T) {
	r, svc := newTestRouter(t)

	_, err := svc.PostTransaction(context.Background(), simplePosting(1, 2, "250.00"))
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/accounts/1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "250.00", resp["balance"])
	assert.Equal(t, "DEBIT", resp["normal_balance"])
}

func TestHandlerTrialBalance(t *testing.T) {
	r, svc := newTestRouter(t)

	_, err := svc.PostTransaction(context.Background(), simplePosting(1, 2, "300.00"))
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/reports/trial-balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "300.00", resp["total_debit"])
	assert.Equal(t, "300.00", resp["total_credit"])
	assert.Equal(t, true, resp["balanced"])
}
