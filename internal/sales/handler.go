package sales

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

// Handler exposes sales over JSON endpoints.
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

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.createSale)
	r.Get("/sales", h.listSales)
	r.Get("/sales/{id}", h.getSale)
	r.Put("/sales/{id}", h.updateSale)
	r.Post("/sales/{id}/confirm", h.confirmSale)
	r.Post("/sales/{id}/cancel", h.cancelSale)
}

type saleLineView struct {
	ID              int64  `json:"id,omitempty"`
	Description     string `json:"description"`
	Quantity        string `json:"quantity"`
	UnitPrice       string `json:"unit_price"`
	DiscountPercent string `json:"discount_percent"`
	TaxPercent      string `json:"tax_percent"`
	DiscountAmount  string `json:"discount_amount"`
	TaxAmount       string `json:"tax_amount"`
	LineTotal       string `json:"line_total"`
}

type saleResponse struct {
	ID             int64          `json:"id"`
	Number         string         `json:"number"`
	CustomerID     int64          `json:"customer_id"`
	Date           time.Time      `json:"date"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	PaymentType    string         `json:"payment_type"`
	Status         string         `json:"status"`
	Subtotal       string         `json:"subtotal"`
	DiscountAmount string         `json:"discount_amount"`
	TaxAmount      string         `json:"tax_amount"`
	Total          string         `json:"total"`
	Notes          string         `json:"notes,omitempty"`
	TransactionID  *int64         `json:"transaction_id,omitempty"`
	ConfirmedAt    *time.Time     `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time     `json:"cancelled_at,omitempty"`
	Lines          []saleLineView `json:"lines,omitempty"`
}

func toSaleResponse(sale Sale) saleResponse {
	resp := saleResponse{
		ID:             sale.ID,
		Number:         sale.Number,
		CustomerID:     sale.CustomerID,
		Date:           sale.Date,
		DueDate:        sale.DueDate,
		PaymentType:    string(sale.PaymentType),
		Status:         string(sale.Status),
		Subtotal:       sale.Subtotal.StringFixed(2),
		DiscountAmount: sale.DiscountAmount.StringFixed(2),
		TaxAmount:      sale.TaxAmount.StringFixed(2),
		Total:          sale.Total.StringFixed(2),
		Notes:          sale.Notes,
		TransactionID:  sale.TransactionID,
		ConfirmedAt:    sale.ConfirmedAt,
		CancelledAt:    sale.CancelledAt,
	}
	for _, line := range sale.Lines {
		resp.Lines = append(resp.Lines, saleLineView{
			ID:              line.ID,
			Description:     line.Description,
			Quantity:        line.Quantity.String(),
			UnitPrice:       line.UnitPrice.StringFixed(2),
			DiscountPercent: line.DiscountPercent.String(),
			TaxPercent:      line.TaxPercent.String(),
			DiscountAmount:  line.DiscountAmount.StringFixed(2),
			TaxAmount:       line.TaxAmount.StringFixed(2),
			LineTotal:       line.LineTotal.StringFixed(2),
		})
	}
	return resp
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	sale, err := h.service.CreateSale(r.Context(), req, actorID(r))
	if err != nil {
		h.respondErr(w, r, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSaleResponse(sale))
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid sale id", nil)
		return
	}
	var req UpdateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	sale, err := h.service.UpdateSale(r.Context(), id, req)
	if err != nil {
		h.respondErr(w, r, "update sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) confirmSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid sale id", nil)
		return
	}
	sale, err := h.service.ConfirmSale(r.Context(), id, actorID(r))
	if err != nil {
		h.respondErr(w, r, "confirm sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) cancelSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid sale id", nil)
		return
	}
	var req cancelRequest
	_ = httpx.DecodeJSON(r, &req)
	sale, err := h.service.CancelSale(r.Context(), id, actorID(r), req.Reason)
	if err != nil {
		h.respondErr(w, r, "cancel sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid sale id", nil)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	req := ListSalesRequest{}
	q := r.URL.Query()
	if v := q.Get("customer_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.CustomerID = &n
		}
	}
	if v := q.Get("status"); v != "" {
		status := SaleStatus(v)
		req.Status = &status
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			req.DateFrom = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			req.DateTo = &t
		}
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
	sales, err := h.service.ListSales(r.Context(), req)
	if err != nil {
		h.respondErr(w, r, "list sales", err)
		return
	}
	out := make([]saleResponse, 0, len(sales))
	for _, sale := range sales {
		out = append(out, toSaleResponse(sale))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": out})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	var coded *ledger.Error
	if !errors.As(err, &coded) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func actorID(r *http.Request) int64 {
	if v := r.Header.Get("X-User-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id
		}
	}
	return 0
}
