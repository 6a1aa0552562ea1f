package companies

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/platform/httpx"
	"github.com/jntims/jntims/internal/shared"
)

// Handler wires HTTP endpoints for companies and arrival batches.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	formatter *money.Formatter
}

// NewHandler constructs the companies handler.
func NewHandler(logger *slog.Logger, service *Service, formatter *money.Formatter) *Handler {
	return &Handler{logger: logger, service: service, formatter: formatter}
}

// MountRoutes registers company routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/companies", h.handleRegister)
	r.Get("/companies", h.handleList)
	r.Get("/companies/{companyID}", h.handleGet)
	r.Delete("/companies/{companyID}", h.handleDelete)
	r.Post("/companies/{companyID}/batches", h.handleCreateBatch)
	r.Get("/companies/{companyID}/batches", h.handleListBatches)
	r.Get("/companies/{companyID}/batches/{batchID}", h.handleGetBatch)
	r.Delete("/companies/{companyID}/batches/{batchID}", h.handleDeleteBatch)
}

type registerRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type batchRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Amount string `json:"amount" validate:"required"`
}

// CompanyResponse is the JSON shape of a company.
type CompanyResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CumulativePaid string    `json:"cumulativePaid"`
	TotalPayable   string    `json:"totalPayable"`
	Remaining      string    `json:"remaining"`
	Display        string    `json:"remainingDisplay"`
	CreatedAt      time.Time `json:"createdAt"`
}

// BatchResponse is the JSON shape of an arrival batch.
type BatchResponse struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"companyId"`
	Date           string    `json:"date"`
	DeclaredAmount string    `json:"amount"`
	Status         string    `json:"status"`
	Manual         bool      `json:"manual"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (h *Handler) company(c Company) CompanyResponse {
	return CompanyResponse{
		ID:             c.ID,
		Name:           c.Name,
		CumulativePaid: c.CumulativePaid.StringFixed(money.Scale),
		TotalPayable:   c.TotalPayable.StringFixed(money.Scale),
		Remaining:      c.Remaining().StringFixed(money.Scale),
		Display:        h.formatter.Format(money.ClampZero(c.Remaining())),
		CreatedAt:      c.CreatedAt,
	}
}

// NewBatchResponse converts a batch for JSON output.
func NewBatchResponse(b Batch) BatchResponse {
	return BatchResponse{
		ID:             b.ID,
		CompanyID:      b.CompanyID,
		Date:           b.Date,
		DeclaredAmount: b.DeclaredAmount.StringFixed(money.Scale),
		Status:         string(b.Status),
		Manual:         b.Manual,
		CreatedAt:      b.CreatedAt,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if shared.IsRetryable(err) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	company, err := h.service.Register(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, "register company", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.company(company))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.QueryInt(r, "page", 1)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perPage, err := httpx.QueryInt(r, "perPage", 50)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, "list companies", err)
		return
	}
	pagination := shared.NewPagination(page, perPage, len(list))
	start, end := pagination.Bounds()
	out := make([]CompanyResponse, 0, end-start)
	for _, c := range list[start:end] {
		out = append(out, h.company(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"companies": out, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	company, err := h.service.Get(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		h.fail(w, r, "get company", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.company(company))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "companyID")); err != nil {
		h.fail(w, r, "delete company", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError(FieldAmount, "must be a number"))
		return
	}
	batch, err := h.service.CreateBatch(r.Context(), chi.URLParam(r, "companyID"), BatchInput{Date: req.Date, DeclaredAmount: amount})
	if err != nil {
		h.fail(w, r, "create batch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewBatchResponse(batch))
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	status := BatchStatus(r.URL.Query().Get("status"))
	batches, err := h.service.ListBatches(r.Context(), chi.URLParam(r, "companyID"), status)
	if err != nil {
		h.fail(w, r, "list batches", err)
		return
	}
	out := make([]BatchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, NewBatchResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": out})
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.GetBatch(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "batchID"))
	if err != nil {
		h.fail(w, r, "get batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewBatchResponse(batch))
}

func (h *Handler) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBatch(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "batchID")); err != nil {
		h.fail(w, r, "delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
