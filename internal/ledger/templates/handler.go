package templates

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes journal templates over JSON endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers template routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/templates", h.list)
	r.Post("/templates", h.create)
	r.Get("/templates/{id}", h.get)
	r.Put("/templates/{id}", h.update)
	r.Delete("/templates/{id}", h.remove)
	r.Post("/templates/{id}/apply", h.apply)
}

type templateLineRequest struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty" validate:"max=500"`
}

type saveTemplateRequest struct {
	Name        string                `json:"name" validate:"required,max=200"`
	Description string                `json:"description,omitempty" validate:"max=500"`
	Type        string                `json:"type,omitempty" validate:"omitempty,oneof=INVOICE EXPENSE PAYMENT RECEIPT JOURNAL SALE"`
	Recurring   bool                  `json:"recurring"`
	Frequency   *string               `json:"frequency,omitempty" validate:"omitempty,oneof=WEEKLY MONTHLY QUARTERLY ANNUAL"`
	NextRunAt   *time.Time            `json:"next_run_at,omitempty"`
	Lines       []templateLineRequest `json:"lines" validate:"required,dive"`
}

func (req saveTemplateRequest) toInput(actor int64) SaveInput {
	in := SaveInput{
		Name:        req.Name,
		Description: req.Description,
		Type:        ledger.TransactionType(req.Type),
		Recurring:   req.Recurring,
		NextRunAt:   req.NextRunAt,
		CreatedBy:   actor,
	}
	if req.Frequency != nil {
		f := Frequency(*req.Frequency)
		in.Frequency = &f
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, ledger.LineInput{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Memo:      line.Memo,
		})
	}
	return in
}

type templateResponse struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        string     `json:"type"`
	Recurring   bool       `json:"recurring"`
	Frequency   *string    `json:"frequency,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	Lines       []lineView `json:"lines"`
}

type lineView struct {
	AccountID int64  `json:"account_id"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
	Memo      string `json:"memo,omitempty"`
}

func toTemplateResponse(tpl Template) templateResponse {
	resp := templateResponse{
		ID:          tpl.ID,
		Name:        tpl.Name,
		Description: tpl.Description,
		Type:        string(tpl.Type),
		Recurring:   tpl.Recurring,
		NextRunAt:   tpl.NextRunAt,
	}
	if tpl.Frequency != nil {
		f := string(*tpl.Frequency)
		resp.Frequency = &f
	}
	for _, line := range tpl.Lines {
		resp.Lines = append(resp.Lines, lineView{
			AccountID: line.AccountID,
			Debit:     line.Debit.StringFixed(2),
			Credit:    line.Credit.StringFixed(2),
			Memo:      line.Memo,
		})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	tpl, err := h.service.Create(r.Context(), req.toInput(actorID(r)))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTemplateResponse(tpl))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid template id", nil)
		return
	}
	var req saveTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	tpl, err := h.service.Update(r.Context(), id, req.toInput(actorID(r)))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid template id", nil)
		return
	}
	tpl, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tpls, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]templateResponse, 0, len(tpls))
	for _, tpl := range tpls {
		out = append(out, toTemplateResponse(tpl))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid template id", nil)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyRequest struct {
	Date        *time.Time `json:"date,omitempty"`
	Description string     `json:"description,omitempty" validate:"max=500"`
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid template id", nil)
		return
	}
	var req applyRequest
	_ = httpx.DecodeJSON(r, &req)
	in := ApplyInput{Description: req.Description, ActorID: actorID(r)}
	if req.Date != nil {
		in.Date = *req.Date
	}
	txn, err := h.service.Apply(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"transaction_id": txn.ID,
		"status":         txn.Status,
		"total_debit":    txn.TotalDebit.StringFixed(2),
		"total_credit":   txn.TotalCredit.StringFixed(2),
	})
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
