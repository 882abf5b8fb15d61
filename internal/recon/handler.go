package recon

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes reconciliations over JSON endpoints.
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

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/reconciliations", h.create)
	r.Get("/reconciliations", h.list)
	r.Get("/reconciliations/{id}", h.get)
	r.Put("/reconciliations/{id}", h.update)
	r.Post("/reconciliations/{id}/items", h.addItem)
	r.Post("/reconciliations/{id}/items/{itemID}/match", h.matchItem)
	r.Post("/reconciliations/{id}/items/{itemID}/clear", h.clearItem)
	r.Post("/reconciliations/{id}/complete", h.complete)
}

type itemView struct {
	ID                   int64     `json:"id"`
	Date                 time.Time `json:"date"`
	Description          string    `json:"description"`
	Amount               string    `json:"amount"`
	Side                 string    `json:"side"`
	Status               string    `json:"status"`
	MatchedTransactionID *int64    `json:"matched_transaction_id,omitempty"`
	Notes                string    `json:"notes,omitempty"`
}

type reconciliationResponse struct {
	ID               int64      `json:"id"`
	AccountID        int64      `json:"account_id"`
	StatementDate    time.Time  `json:"statement_date"`
	StatementBalance string     `json:"statement_balance"`
	BookBalance      string     `json:"book_balance"`
	Difference       string     `json:"difference"`
	Status           string     `json:"status"`
	Notes            string     `json:"notes,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	PendingItems     int        `json:"pending_items"`
	Items            []itemView `json:"items,omitempty"`
}

func toResponse(rec BankReconciliation) reconciliationResponse {
	resp := reconciliationResponse{
		ID:               rec.ID,
		AccountID:        rec.AccountID,
		StatementDate:    rec.StatementDate,
		StatementBalance: rec.StatementBalance.StringFixed(2),
		BookBalance:      rec.BookBalance.StringFixed(2),
		Difference:       rec.Difference.StringFixed(2),
		Status:           string(rec.Status),
		Notes:            rec.Notes,
		CompletedAt:      rec.CompletedAt,
		PendingItems:     rec.PendingItems(),
	}
	for _, item := range rec.Items {
		resp.Items = append(resp.Items, itemView{
			ID:                   item.ID,
			Date:                 item.Date,
			Description:          item.Description,
			Amount:               item.Amount.StringFixed(2),
			Side:                 string(item.Side),
			Status:               string(item.Status),
			MatchedTransactionID: item.MatchedTransactionID,
			Notes:                item.Notes,
		})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	rec, err := h.service.Create(r.Context(), req, actorID(r))
	if err != nil {
		h.respondErr(w, r, "create reconciliation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(rec))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid reconciliation id", nil)
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	rec, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondErr(w, r, "update reconciliation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid reconciliation id", nil)
		return
	}
	var req AddItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	rec, err := h.service.AddItem(r.Context(), id, req)
	if err != nil {
		h.respondErr(w, r, "add reconciliation item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(rec))
}

type matchRequest struct {
	TransactionID int64 `json:"transaction_id" validate:"required,gt=0"`
}

func (h *Handler) matchItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid reconciliation id", nil)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid item id", nil)
		return
	}
	var req matchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	rec, err := h.service.MatchItem(r.Context(), id, itemID, req.TransactionID)
	if err != nil {
		h.respondErr(w, r, "match reconciliation item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) clearItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid reconciliation id", nil)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid item id", nil)
		return
	}
	rec, err := h.service.ClearItem(r.Context(), id, itemID)
	if err != nil {
		h.respondErr(w, r, "clear reconciliation item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid reconciliation id", nil)
		return
	}
	rec, err := h.service.Complete(r.Context(), id, actorID(r))
	if err != nil {
		h.respondErr(w, r, "complete reconciliation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid reconciliation id", nil)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "get reconciliation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListRequest{}
	q := r.URL.Query()
	if v := q.Get("account_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.AccountID = &n
		}
	}
	if v := q.Get("status"); v != "" {
		status := Status(v)
		req.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			req.Offset = n
		}
	}
	recs, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondErr(w, r, "list reconciliations", err)
		return
	}
	out := make([]reconciliationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reconciliations": out})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	var coded *ledger.Error
	if !errors.As(err, &coded) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

func actorID(r *http.Request) int64 {
	if v := r.Header.Get("X-User-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id
		}
	}
	return 0
}
