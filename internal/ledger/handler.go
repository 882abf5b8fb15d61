package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes the ledger over JSON endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Get("/accounts/{id}/balance", h.accountBalance)
	r.Post("/transactions", h.postTransaction)
	r.Get("/transactions", h.listTransactions)
	r.Get("/transactions/{id}", h.getTransaction)
	r.Post("/transactions/{id}/void", h.voidTransaction)
	r.Get("/reports/trial-balance", h.trialBalance)
}

type lineRequest struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty" validate:"max=500"`
}

type postTransactionRequest struct {
	Date        time.Time     `json:"date" validate:"required"`
	Description string        `json:"description" validate:"required,max=500"`
	Reference   string        `json:"reference,omitempty" validate:"max=100"`
	Type        string        `json:"type" validate:"required,oneof=INVOICE EXPENSE PAYMENT RECEIPT JOURNAL SALE"`
	CustomerID  *int64        `json:"customer_id,omitempty"`
	VendorID    *int64        `json:"vendor_id,omitempty"`
	SourceRef   string        `json:"source_ref,omitempty" validate:"omitempty,uuid4"`
	Lines       []lineRequest `json:"lines" validate:"required,dive"`
}

type transactionResponse struct {
	ID          int64          `json:"id"`
	Date        time.Time      `json:"date"`
	Description string         `json:"description"`
	Reference   string         `json:"reference,omitempty"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	TotalDebit  string         `json:"total_debit"`
	TotalCredit string         `json:"total_credit"`
	Reconciled  bool           `json:"reconciled"`
	Lines       []lineResponse `json:"lines,omitempty"`
}

type lineResponse struct {
	ID        int64  `json:"id,omitempty"`
	AccountID int64  `json:"account_id"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
	Memo      string `json:"memo,omitempty"`
}

func toTransactionResponse(txn Transaction) transactionResponse {
	resp := transactionResponse{
		ID:          txn.ID,
		Date:        txn.Date,
		Description: txn.Description,
		Reference:   txn.Reference,
		Type:        string(txn.Type),
		Status:      string(txn.Status),
		TotalDebit:  txn.TotalDebit.StringFixed(2),
		TotalCredit: txn.TotalCredit.StringFixed(2),
		Reconciled:  txn.Reconciled,
	}
	for _, line := range txn.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:        line.ID,
			AccountID: line.AccountID,
			Debit:     line.Debit.StringFixed(2),
			Credit:    line.Credit.StringFixed(2),
			Memo:      line.Memo,
		})
	}
	return resp
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req postTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	input := PostingInput{
		Date:        req.Date,
		Description: req.Description,
		Reference:   req.Reference,
		Type:        TransactionType(req.Type),
		CustomerID:  req.CustomerID,
		VendorID:    req.VendorID,
		CreatedBy:   actorID(r),
	}
	if req.SourceRef != "" {
		ref, err := uuid.Parse(req.SourceRef)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "source_ref must be a UUID", nil)
			return
		}
		input.SourceRef = ref
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Memo:      line.Memo,
		})
	}
	txn, err := h.service.PostTransaction(r.Context(), input)
	if err != nil {
		h.respondErr(w, r, "post transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(txn))
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid transaction id", nil)
		return
	}
	txn, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter := TransactionFilter{}
	q := r.URL.Query()
	if v := q.Get("type"); v != "" {
		t := TransactionType(v)
		filter.Type = &t
	}
	if v := q.Get("status"); v != "" {
		s := TransactionStatus(v)
		filter.Status = &s
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.DateFrom = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.DateTo = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	txns, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.respondErr(w, r, "list transactions", err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, toTransactionResponse(txn))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": out})
}

type voidRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) voidTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid transaction id", nil)
		return
	}
	var req voidRequest
	_ = httpx.DecodeJSON(r, &req)
	txn, err := h.service.VoidTransaction(r.Context(), id, actorID(r), req.Reason)
	if err != nil {
		h.respondErr(w, r, "void transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondErr(w, r, "list accounts", err)
		return
	}
	type accountResponse struct {
		ID            int64  `json:"id"`
		Code          string `json:"code"`
		Name          string `json:"name"`
		Type          string `json:"type"`
		NormalBalance string `json:"normal_balance"`
		ParentID      *int64 `json:"parent_id,omitempty"`
		IsActive      bool   `json:"is_active"`
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountResponse{
			ID:            a.ID,
			Code:          a.Code,
			Name:          a.Name,
			Type:          string(a.Type),
			NormalBalance: string(a.Type.NormalBalance()),
			ParentID:      a.ParentID,
			IsActive:      a.IsActive,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid account id", nil)
		return
	}
	var asOf *time.Time
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "as_of must be YYYY-MM-DD", nil)
			return
		}
		asOf = &t
	}
	res, err := h.service.AccountBalance(r.Context(), id, asOf)
	if err != nil {
		h.respondErr(w, r, "account balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account_id":     res.AccountID,
		"code":           res.Code,
		"type":           res.Type,
		"normal_balance": res.NormalSide,
		"total_debit":    res.Debit.StringFixed(2),
		"total_credit":   res.Credit.StringFixed(2),
		"balance":        res.Balance.StringFixed(2),
		"as_of":          res.AsOf,
	})
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	var asOf *time.Time
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "as_of must be YYYY-MM-DD", nil)
			return
		}
		asOf = &t
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.respondErr(w, r, "trial balance", err)
		return
	}
	type rowResponse struct {
		AccountID int64  `json:"account_id"`
		Code      string `json:"code"`
		Name      string `json:"name"`
		Type      string `json:"type"`
		Debit     string `json:"debit"`
		Credit    string `json:"credit"`
	}
	rows := make([]rowResponse, 0, len(tb.Rows))
	for _, row := range tb.Rows {
		rows = append(rows, rowResponse{
			AccountID: row.AccountID,
			Code:      row.Code,
			Name:      row.Name,
			Type:      string(row.Type),
			Debit:     row.Debit.StringFixed(2),
			Credit:    row.Credit.StringFixed(2),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows":         rows,
		"total_debit":  tb.TotalDebit.StringFixed(2),
		"total_credit": tb.TotalCredit.StringFixed(2),
		"balanced":     tb.Balanced(),
		"as_of":        tb.AsOf,
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	var coded *Error
	if !errors.As(err, &coded) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// actorID resolves the acting user. Auth plumbing lives outside this service;
// upstream gateways forward the identity in a trusted header.
func actorID(r *http.Request) int64 {
	if v := r.Header.Get("X-User-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id
		}
	}
	return 0
}
